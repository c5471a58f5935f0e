// Package worker consumes job ids from the queue and runs them through the
// pipeline.
package worker

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/SirClappington/textintel/internal/domain"
	"github.com/SirClappington/textintel/internal/queue"
)

// Runner executes a job to a terminal status.
type Runner interface {
	Run(ctx context.Context, jobID string) (*domain.Job, error)
}

type Worker struct {
	name   string
	queue  queue.Queue
	runner Runner
	log    *zap.Logger

	minBackoff time.Duration
	maxBackoff time.Duration
}

func New(name string, q queue.Queue, runner Runner, logger *zap.Logger) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{
		name:       name,
		queue:      q,
		runner:     runner,
		log:        logger.Named("worker").With(zap.String("worker", name)),
		minBackoff: time.Second,
		maxBackoff: 30 * time.Second,
	}
}

// Run receives deliveries until ctx is cancelled. Receive errors back off
// exponentially; they never stop the loop.
func (w *Worker) Run(ctx context.Context) error {
	w.log.Info("worker started")
	backoff := w.minBackoff

	for {
		if ctx.Err() != nil {
			break
		}
		d, err := w.queue.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			w.log.Warn("receive failed", zap.Error(err), zap.Duration("retry_in", backoff))
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
			}
			backoff *= 2
			if backoff > w.maxBackoff {
				backoff = w.maxBackoff
			}
			continue
		}
		backoff = w.minBackoff
		if d == nil {
			continue
		}
		w.Handle(ctx, d)
	}

	w.log.Info("worker stopped")
	return nil
}

// Handle processes one delivery and settles it. The delivery is acked once the
// job is terminal or unknown, and nacked when the run could not finish.
func (w *Worker) Handle(ctx context.Context, d *queue.Delivery) {
	log := w.log.With(zap.String("job_id", d.JobID), zap.String("token", d.Token), zap.Bool("redelivered", d.Redelivered))
	start := time.Now()

	job, err := w.runner.Run(ctx, d.JobID)
	switch {
	case err == nil:
		log.Info("job processed", zap.String("status", string(job.Status)), zap.Duration("elapsed", time.Since(start)))
		w.settle(log, "ack", w.queue.Ack, d)
	case errors.Is(err, domain.ErrNotFound):
		log.Warn("dropping delivery for unknown job")
		w.settle(log, "ack", w.queue.Ack, d)
	default:
		log.Warn("run failed, releasing job", zap.Error(err))
		w.settle(log, "nack", w.queue.Nack, d)
	}
}

// settle uses its own context so shutdown does not strand a finished job in
// the pending list until the visibility window lapses.
func (w *Worker) settle(log *zap.Logger, op string, fn func(context.Context, *queue.Delivery) error, d *queue.Delivery) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := fn(ctx, d); err != nil {
		log.Error(op+" failed", zap.Error(err))
	}
}
