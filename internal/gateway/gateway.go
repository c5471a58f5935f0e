// Package gateway is the entry point for new work. It validates submissions,
// records them and either runs them inline or hands them to the queue.
package gateway

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/SirClappington/textintel/internal/domain"
	"github.com/SirClappington/textintel/internal/storage"
)

const (
	DefaultSyncThreshold = 1000
	DefaultMaxTextLength = 100000
)

type Config struct {
	// SyncThreshold is the largest text, in characters, processed inline.
	SyncThreshold int
	MaxTextLength int
}

// Runner executes a job to a terminal status.
type Runner interface {
	Run(ctx context.Context, jobID string) (*domain.Job, error)
}

// Publisher hands a job id to the workers.
type Publisher interface {
	Publish(ctx context.Context, jobID string) error
}

type Gateway struct {
	store  storage.Store
	queue  Publisher
	runner Runner
	cfg    Config
	log    *zap.Logger
}

func New(store storage.Store, queue Publisher, runner Runner, cfg Config, logger *zap.Logger) *Gateway {
	if cfg.SyncThreshold <= 0 {
		cfg.SyncThreshold = DefaultSyncThreshold
	}
	if cfg.MaxTextLength <= 0 {
		cfg.MaxTextLength = DefaultMaxTextLength
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gateway{store: store, queue: queue, runner: runner, cfg: cfg, log: logger.Named("gateway")}
}

// Submit records a new job. Sync jobs come back terminal, async jobs come
// back pending. When an async job cannot be published it is marked failed
// and the caller gets a *domain.PublishError.
func (g *Gateway) Submit(ctx context.Context, text string, metadata map[string]any) (*domain.Job, error) {
	n := utf8.RuneCountInString(text)
	switch {
	case strings.TrimSpace(text) == "":
		return nil, errors.Wrap(domain.ErrInvalidInput, "text is empty")
	case n > g.cfg.MaxTextLength:
		return nil, errors.Wrapf(domain.ErrInvalidInput, "text is %d characters, limit is %d", n, g.cfg.MaxTextLength)
	}

	mode := domain.Sync
	if n > g.cfg.SyncThreshold {
		mode = domain.Async
	}
	job := domain.NewJob(text, metadata, mode)
	log := g.log.With(zap.String("job_id", job.ID), zap.String("mode", string(mode)), zap.Int("chars", n))

	if err := g.store.Create(ctx, job); err != nil {
		return nil, errors.Wrap(err, "create job")
	}
	log.Info("job accepted")

	if mode == domain.Sync {
		return g.runSync(ctx, job.ID, log)
	}

	if err := g.queue.Publish(ctx, job.ID); err != nil {
		log.Error("publish failed", zap.Error(err))
		g.markPublishFailed(job.ID, err)
		return nil, &domain.PublishError{JobID: job.ID, Err: err}
	}
	return job, nil
}

// runSync detaches the pipeline from request cancellation; stage timeouts
// still bound it. Nothing retries a sync job, so one the pipeline could not
// finish is failed here instead of being left in processing.
func (g *Gateway) runSync(ctx context.Context, id string, log *zap.Logger) (*domain.Job, error) {
	job, err := g.runner.Run(context.WithoutCancel(ctx), id)
	if err == nil || errors.Is(err, domain.ErrNotFound) {
		return job, err
	}
	log.Error("sync run failed", zap.Error(err))
	g.markSyncFailed(id, err)
	return nil, err
}

func (g *Gateway) markSyncFailed(id string, cause error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := g.store.Update(ctx, id, func(j *domain.Job) error {
		return j.Fail(time.Now().UTC(), interruptedStage(j.Result, j.StageErrors), cause)
	})
	if err != nil && !errors.Is(err, domain.ErrTerminal) {
		g.log.Error("could not mark sync job failed", zap.String("job_id", id), zap.Error(err))
	}
}

// interruptedStage is the first stage with neither a result nor a recorded
// soft failure.
func interruptedStage(r domain.Result, soft map[string]string) string {
	stages := []struct {
		name string
		done bool
	}{
		{domain.StageDetect, r.DetectedLanguage != nil},
		{domain.StageTranslate, r.TranslatedText != nil},
		{domain.StageSentiment, r.Sentiment != nil},
		{domain.StageSummarize, r.Summary != nil},
		{domain.StageEntities, r.Entities != nil},
	}
	for _, s := range stages {
		if _, failed := soft[s.name]; !s.done && !failed {
			return s.name
		}
	}
	return domain.StageEntities
}

// markPublishFailed runs on a fresh context so a cancelled request still
// leaves the record terminal.
func (g *Gateway) markPublishFailed(id string, cause error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := g.store.Update(ctx, id, func(j *domain.Job) error {
		return j.Fail(time.Now().UTC(), domain.StagePublish, cause)
	})
	if err != nil {
		g.log.Error("could not mark job failed after publish error", zap.String("job_id", id), zap.Error(err))
	}
}

func (g *Gateway) GetJob(ctx context.Context, id string) (*domain.Job, error) {
	return g.store.Get(ctx, id)
}
