// Package scheduler holds the periodic reconciler. It finds async jobs that
// were recorded but never reached a worker, for example because the API
// crashed between the insert and the publish, and publishes them again.
package scheduler

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/SirClappington/textintel/internal/domain"
	"github.com/SirClappington/textintel/internal/storage"
)

// DefaultLockKey is the advisory lock that elects one reconciler.
const DefaultLockKey int64 = 0x7465787469

// Leader grants exclusive leadership for one tick.
type Leader interface {
	TryLead(ctx context.Context, key int64) (release func(), ok bool, err error)
}

type Publisher interface {
	Publish(ctx context.Context, jobID string) error
}

type Config struct {
	Interval   time.Duration
	StaleAfter time.Duration
	Batch      int
	LockKey    int64
}

type Reconciler struct {
	store  storage.Store
	lister storage.StaleLister
	leader Leader
	pub    Publisher
	cfg    Config
	log    *zap.Logger
	now    func() time.Time
}

var errNotStale = errors.New("job is no longer stale")

// New builds a reconciler. A nil leader means this process always leads.
func New(store storage.Store, lister storage.StaleLister, leader Leader, pub Publisher, cfg Config, logger *zap.Logger) *Reconciler {
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = 5 * time.Minute
	}
	if cfg.Batch <= 0 {
		cfg.Batch = 200
	}
	if cfg.LockKey == 0 {
		cfg.LockKey = DefaultLockKey
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reconciler{
		store:  store,
		lister: lister,
		leader: leader,
		pub:    pub,
		cfg:    cfg,
		log:    logger.Named("reconciler"),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Run ticks until ctx is cancelled. A failed tick is logged and retried on
// the next one.
func (r *Reconciler) Run(ctx context.Context) error {
	tick := time.NewTicker(r.cfg.Interval)
	defer tick.Stop()

	r.log.Info("reconciler started",
		zap.Duration("interval", r.cfg.Interval), zap.Duration("stale_after", r.cfg.StaleAfter))
	for {
		if _, err := r.Tick(ctx); err != nil && ctx.Err() == nil {
			r.log.Warn("reconcile failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			r.log.Info("reconciler stopped")
			return nil
		case <-tick.C:
		}
	}
}

// Tick runs one reconcile pass and reports how many jobs were republished.
func (r *Reconciler) Tick(ctx context.Context) (int, error) {
	if r.leader != nil {
		release, ok, err := r.leader.TryLead(ctx, r.cfg.LockKey)
		if err != nil {
			return 0, errors.Wrap(err, "leader election")
		}
		if !ok {
			r.log.Debug("not leader, skipping tick")
			return 0, nil
		}
		defer release()
	}

	cutoff := r.now().Add(-r.cfg.StaleAfter)
	jobs, err := r.lister.ListStalePending(ctx, cutoff, r.cfg.Batch)
	if err != nil {
		return 0, errors.Wrap(err, "list stale jobs")
	}

	republished := 0
	for _, job := range jobs {
		log := r.log.With(zap.String("job_id", job.ID))
		// touch first so a job that keeps failing to publish is retried at
		// most once per StaleAfter
		_, err := r.store.Update(ctx, job.ID, func(j *domain.Job) error {
			if j.Status != domain.Pending || !j.UpdatedAt.Before(cutoff) {
				return errNotStale
			}
			j.UpdatedAt = r.now()
			return nil
		})
		switch {
		case errors.Is(err, errNotStale), errors.Is(err, domain.ErrNotFound):
			continue
		case err != nil:
			return republished, errors.Wrapf(err, "touch %s", job.ID)
		}

		if err := r.pub.Publish(ctx, job.ID); err != nil {
			return republished, errors.Wrapf(err, "publish %s", job.ID)
		}
		log.Info("republished stale job", zap.Time("created_at", job.CreatedAt))
		republished++
	}
	return republished, nil
}
