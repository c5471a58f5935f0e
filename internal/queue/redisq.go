package queue

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	r "github.com/redis/go-redis/v9"
)

const jobIDField = "job_id"

// RedisQ is a Queue on a Redis Stream read through a consumer group.
// Entries stay in the group's pending list until acked; XAUTOCLAIM hands
// them to whichever consumer asks once they have been idle past the
// visibility window.
type RedisQ struct {
	rdb        *r.Client
	stream     string
	group      string
	consumer   string
	visibility time.Duration
	block      time.Duration

	// claimFrom is the XAUTOCLAIM cursor; "0-0" starts a new pass over the
	// pending list.
	mu        sync.Mutex
	claimFrom string
}

type RedisConfig struct {
	Stream     string
	Group      string
	Visibility time.Duration
	Block      time.Duration
}

func New(rdb *r.Client, cfg RedisConfig) *RedisQ {
	if cfg.Stream == "" {
		cfg.Stream = "textintel:jobs"
	}
	if cfg.Group == "" {
		cfg.Group = "textintel-workers"
	}
	if cfg.Visibility <= 0 {
		cfg.Visibility = 60 * time.Second
	}
	if cfg.Block <= 0 {
		cfg.Block = 5 * time.Second
	}
	return &RedisQ{
		rdb:        rdb,
		stream:     cfg.Stream,
		group:      cfg.Group,
		consumer:   "worker-" + uuid.NewString()[:8],
		visibility: cfg.Visibility,
		block:      cfg.Block,
		claimFrom:  "0-0",
	}
}

// EnsureGroup creates the stream and consumer group if they are missing.
func (q *RedisQ) EnsureGroup(ctx context.Context) error {
	err := q.rdb.XGroupCreateMkStream(ctx, q.stream, q.group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return errors.Wrap(err, "create consumer group")
	}
	return nil
}

func (q *RedisQ) Publish(ctx context.Context, jobID string) error {
	err := q.rdb.XAdd(ctx, &r.XAddArgs{
		Stream: q.stream,
		Values: map[string]any{jobIDField: jobID},
	}).Err()
	return errors.Wrapf(err, "xadd %s", jobID)
}

func (q *RedisQ) Receive(ctx context.Context) (*Delivery, error) {
	// expired deliveries first, so a crashed worker's jobs are not starved
	msg, err := q.claimExpired(ctx)
	if err != nil {
		return nil, err
	}
	if msg != nil {
		return q.delivery(ctx, *msg, true)
	}

	streams, err := q.rdb.XReadGroup(ctx, &r.XReadGroupArgs{
		Group:    q.group,
		Consumer: q.consumer,
		Streams:  []string{q.stream, ">"},
		Count:    1,
		Block:    q.block,
	}).Result()
	if err != nil {
		if err == r.Nil {
			return nil, nil
		}
		return nil, errors.Wrap(err, "xreadgroup")
	}
	if len(streams) == 0 || len(streams[0].Messages) == 0 {
		return nil, nil
	}
	return q.delivery(ctx, streams[0].Messages[0], false)
}

// claimExpired walks the pending list with a cursor kept across calls. Redis
// scans a bounded slice of the list per call, so restarting at "0-0" every
// time would never reach expired entries queued behind fresh ones.
func (q *RedisQ) claimExpired(ctx context.Context) (*r.XMessage, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for {
		start := q.claimFrom
		claimed, next, err := q.rdb.XAutoClaim(ctx, &r.XAutoClaimArgs{
			Stream:   q.stream,
			Group:    q.group,
			Consumer: q.consumer,
			MinIdle:  q.visibility,
			Start:    start,
			Count:    1,
		}).Result()
		if err != nil && err != r.Nil {
			return nil, errors.Wrap(err, "xautoclaim")
		}
		if next == "" {
			next = "0-0"
		}
		q.claimFrom = next
		if len(claimed) > 0 {
			return &claimed[0], nil
		}
		// a pass that began mid-list wraps once to the head
		if start == "0-0" && next == "0-0" {
			return nil, nil
		}
	}
}

func (q *RedisQ) delivery(ctx context.Context, msg r.XMessage, redelivered bool) (*Delivery, error) {
	jobID, _ := msg.Values[jobIDField].(string)
	if jobID == "" {
		// malformed entry; drop it rather than hand it out forever
		if err := q.settle(ctx, msg.ID); err != nil {
			return nil, err
		}
		return nil, nil
	}
	return &Delivery{JobID: jobID, Token: msg.ID, Redelivered: redelivered}, nil
}

func (q *RedisQ) Ack(ctx context.Context, d *Delivery) error {
	return q.settle(ctx, d.Token)
}

// Nack re-adds the job id as a fresh entry and settles the old one in the
// same transaction, so the job is neither lost nor doubled.
func (q *RedisQ) Nack(ctx context.Context, d *Delivery) error {
	pipe := q.rdb.TxPipeline()
	pipe.XAdd(ctx, &r.XAddArgs{Stream: q.stream, Values: map[string]any{jobIDField: d.JobID}})
	pipe.XAck(ctx, q.stream, q.group, d.Token)
	pipe.XDel(ctx, q.stream, d.Token)
	_, err := pipe.Exec(ctx)
	return errors.Wrapf(err, "nack %s", d.Token)
}

func (q *RedisQ) settle(ctx context.Context, id string) error {
	pipe := q.rdb.TxPipeline()
	pipe.XAck(ctx, q.stream, q.group, id)
	pipe.XDel(ctx, q.stream, id)
	_, err := pipe.Exec(ctx)
	return errors.Wrapf(err, "ack %s", id)
}

// Consumer is this instance's name inside the consumer group.
func (q *RedisQ) Consumer() string { return q.consumer }
