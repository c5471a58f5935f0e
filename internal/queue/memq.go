package queue

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

var ErrUnknownToken = errors.New("unknown delivery token")

type inflight struct {
	jobID    string
	deadline time.Time
}

// MemQ is an in-process Queue with the same visibility-window semantics
// as RedisQ.
type MemQ struct {
	mu         sync.Mutex
	ready      []string
	inflight   map[string]inflight
	visibility time.Duration
	block      time.Duration
	signal     chan struct{}
}

func NewMemQ(visibility, block time.Duration) *MemQ {
	return &MemQ{
		inflight:   make(map[string]inflight),
		visibility: visibility,
		block:      block,
		signal:     make(chan struct{}, 1),
	}
}

func (q *MemQ) Publish(ctx context.Context, jobID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	q.mu.Lock()
	q.ready = append(q.ready, jobID)
	q.mu.Unlock()
	q.wake()
	return nil
}

func (q *MemQ) Receive(ctx context.Context) (*Delivery, error) {
	deadline := time.NewTimer(q.block)
	defer deadline.Stop()
	poll := time.NewTicker(10 * time.Millisecond)
	defer poll.Stop()

	for {
		if d := q.take(time.Now()); d != nil {
			return d, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-deadline.C:
			return nil, nil
		case <-q.signal:
		case <-poll.C:
		}
	}
}

func (q *MemQ) take(now time.Time) *Delivery {
	q.mu.Lock()
	defer q.mu.Unlock()

	for token, in := range q.inflight {
		if now.After(in.deadline) {
			delete(q.inflight, token)
			next := uuid.NewString()
			q.inflight[next] = inflight{jobID: in.jobID, deadline: now.Add(q.visibility)}
			return &Delivery{JobID: in.jobID, Token: next, Redelivered: true}
		}
	}
	if len(q.ready) == 0 {
		return nil
	}
	jobID := q.ready[0]
	q.ready = q.ready[1:]
	token := uuid.NewString()
	q.inflight[token] = inflight{jobID: jobID, deadline: now.Add(q.visibility)}
	return &Delivery{JobID: jobID, Token: token}
}

func (q *MemQ) Ack(ctx context.Context, d *Delivery) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.inflight[d.Token]; !ok {
		return errors.Wrapf(ErrUnknownToken, "ack %s", d.Token)
	}
	delete(q.inflight, d.Token)
	return nil
}

func (q *MemQ) Nack(ctx context.Context, d *Delivery) error {
	q.mu.Lock()
	in, ok := q.inflight[d.Token]
	if !ok {
		q.mu.Unlock()
		return errors.Wrapf(ErrUnknownToken, "nack %s", d.Token)
	}
	delete(q.inflight, d.Token)
	q.ready = append(q.ready, in.jobID)
	q.mu.Unlock()
	q.wake()
	return nil
}

// Depth reports ready plus in-flight entries.
func (q *MemQ) Depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.ready) + len(q.inflight)
}

func (q *MemQ) wake() {
	select {
	case q.signal <- struct{}{}:
	default:
	}
}
