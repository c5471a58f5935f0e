// Package pipeline drives a job through the enrichment stages and records the
// outcome in the job store. The store is the only source of truth: every
// write is a guarded read-modify-write, and a writer that finds the job
// already terminal drops its own result.
package pipeline

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/text/language"

	"github.com/SirClappington/textintel/internal/analyzer"
	"github.com/SirClappington/textintel/internal/domain"
	"github.com/SirClappington/textintel/internal/storage"
)

const DefaultTargetLanguage = "en"

type Executor struct {
	store        storage.Store
	suite        analyzer.Suite
	log          *zap.Logger
	target       string
	stageTimeout time.Duration
	now          func() time.Time
}

type Option func(*Executor)

// WithTargetLanguage sets the language everything is normalized to.
func WithTargetLanguage(tag string) Option {
	return func(e *Executor) {
		if tag != "" {
			e.target = tag
		}
	}
}

// WithStageTimeout bounds every stage call. Zero leaves it to the adapter.
func WithStageTimeout(d time.Duration) Option {
	return func(e *Executor) { e.stageTimeout = d }
}

func WithClock(now func() time.Time) Option {
	return func(e *Executor) { e.now = now }
}

func NewExecutor(store storage.Store, suite analyzer.Suite, logger *zap.Logger, opts ...Option) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Executor{
		store:  store,
		suite:  suite,
		log:    logger.Named("pipeline"),
		target: DefaultTargetLanguage,
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run processes the job and returns it in a terminal status. A job that is
// already terminal is returned untouched. The error is non-nil only when the
// store could not be read or written, or ctx ended; the job then stays
// non-terminal and may be run again.
func (e *Executor) Run(ctx context.Context, jobID string) (*domain.Job, error) {
	job, err := e.store.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	log := e.log.With(zap.String("job_id", jobID), zap.String("mode", string(job.Mode)))
	if job.Status.Terminal() {
		log.Debug("job already terminal", zap.String("status", string(job.Status)))
		return job, nil
	}

	job, err = e.store.Update(ctx, jobID, func(j *domain.Job) error {
		return j.Start(e.now())
	})
	if err != nil {
		if errors.Is(err, domain.ErrTerminal) {
			return e.store.Get(ctx, jobID)
		}
		return nil, err
	}
	if job.Result.DetectedLanguage != nil {
		log.Info("resuming job", zap.String("detected_language", *job.Result.DetectedLanguage))
	}

	start := time.Now()
	r := &run{e: e, job: job, log: log}
	done, err := r.stages(ctx)
	if err != nil {
		return nil, err
	}
	if done {
		return r.job, nil
	}

	final, err := e.store.Update(ctx, jobID, func(j *domain.Job) error {
		return j.Complete(e.now())
	})
	if err != nil {
		if errors.Is(err, domain.ErrTerminal) {
			log.Info("job finished elsewhere, dropping result")
			return e.store.Get(ctx, jobID)
		}
		return nil, err
	}

	fields := []zap.Field{zap.Duration("elapsed", time.Since(start))}
	if soft := multierr.Combine(r.soft...); soft != nil {
		fields = append(fields, zap.NamedError("soft_errors", soft))
	}
	log.Info("job completed", fields...)
	return final, nil
}

type run struct {
	e    *Executor
	job  *domain.Job
	log  *zap.Logger
	soft []error
}

// stages runs every stage whose result is still missing. done reports that
// the job reached a terminal status on the way and r.job holds it.
func (r *run) stages(ctx context.Context) (done bool, err error) {
	e := r.e

	if r.job.Result.DetectedLanguage == nil {
		lang, err := call(ctx, e, e.suite.Detector.DetectLanguage, r.job.OriginalText)
		if err != nil {
			return r.fatal(ctx, domain.StageDetect, err)
		}
		if done, err := r.record(ctx, domain.StageDetect, domain.Result{DetectedLanguage: &lang}, nil); done || err != nil {
			return done, err
		}
	}

	if r.job.Result.TranslatedText == nil {
		text := r.job.OriginalText
		if !sameLanguage(*r.job.Result.DetectedLanguage, e.target) {
			translated, err := call(ctx, e, func(ctx context.Context, s string) (string, error) {
				return e.suite.Translator.Translate(ctx, s, e.target)
			}, text)
			if err != nil {
				return r.fatal(ctx, domain.StageTranslate, err)
			}
			text = translated
		} else {
			r.log.Debug("source matches target language, skipping translation")
		}
		if done, err := r.record(ctx, domain.StageTranslate, domain.Result{TranslatedText: &text}, nil); done || err != nil {
			return done, err
		}
	}

	text := *r.job.Result.TranslatedText

	if r.job.Result.Sentiment == nil {
		s, err := call(ctx, e, e.suite.Sentiment.AnalyzeSentiment, text)
		var patch domain.Result
		if err == nil {
			patch.Sentiment = &s
		}
		if done, err := r.soften(ctx, domain.StageSentiment, patch, err); done || err != nil {
			return done, err
		}
	}

	if r.job.Result.Summary == nil {
		s, err := call(ctx, e, e.suite.Summarizer.Summarize, text)
		var patch domain.Result
		if err == nil {
			patch.Summary = &s
		}
		if done, err := r.soften(ctx, domain.StageSummarize, patch, err); done || err != nil {
			return done, err
		}
	}

	if r.job.Result.Entities == nil {
		ents, err := call(ctx, e, e.suite.Entities.ExtractEntities, text)
		var patch domain.Result
		if err == nil {
			if ents == nil {
				ents = []domain.Entity{}
			}
			patch.Entities = ents
		}
		if done, err := r.soften(ctx, domain.StageEntities, patch, err); done || err != nil {
			return done, err
		}
	}
	return false, nil
}

// soften records a soft stage outcome. Cancellation is not a stage failure.
func (r *run) soften(ctx context.Context, stage string, patch domain.Result, stageErr error) (bool, error) {
	if stageErr != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		r.soft = append(r.soft, &domain.StageError{Stage: stage, Err: stageErr})
		r.log.Warn("stage failed, continuing", zap.String("stage", stage), zap.Error(stageErr))
	}
	return r.record(ctx, stage, patch, stageErr)
}

// record persists one stage outcome while the job is still processing. Only
// absent result fields are written.
func (r *run) record(ctx context.Context, stage string, patch domain.Result, stageErr error) (bool, error) {
	job, err := r.e.store.Update(ctx, r.job.ID, func(j *domain.Job) error {
		if j.Status != domain.Processing {
			return errors.Wrapf(domain.ErrTerminal, "job %s is %s", j.ID, j.Status)
		}
		j.Result.FillGaps(patch)
		switch {
		case stageErr != nil:
			if j.StageErrors == nil {
				j.StageErrors = map[string]string{}
			}
			j.StageErrors[stage] = stageErr.Error()
		case j.StageErrors != nil:
			delete(j.StageErrors, stage)
			if len(j.StageErrors) == 0 {
				j.StageErrors = nil
			}
		}
		j.UpdatedAt = r.e.now()
		return nil
	})
	if err != nil {
		return r.settled(ctx, err)
	}
	r.job = job
	return false, nil
}

func (r *run) fatal(ctx context.Context, stage string, stageErr error) (bool, error) {
	if ctx.Err() != nil {
		return false, ctx.Err()
	}
	r.log.Warn("stage failed, failing job", zap.Error(&domain.StageError{Stage: stage, Fatal: true, Err: stageErr}))

	job, err := r.e.store.Update(ctx, r.job.ID, func(j *domain.Job) error {
		return j.Fail(r.e.now(), stage, stageErr)
	})
	if err != nil {
		return r.settled(ctx, err)
	}
	r.job = job
	return true, nil
}

// settled handles a write error. If another writer already finished the job
// its record wins and is loaded into r.job.
func (r *run) settled(ctx context.Context, err error) (bool, error) {
	if !errors.Is(err, domain.ErrTerminal) {
		return false, err
	}
	job, gerr := r.e.store.Get(ctx, r.job.ID)
	if gerr != nil {
		return false, gerr
	}
	r.log.Info("job finished elsewhere, dropping result", zap.String("status", string(job.Status)))
	r.job = job
	return true, nil
}

func call[T any](ctx context.Context, e *Executor, fn func(context.Context, string) (T, error), text string) (T, error) {
	if e.stageTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.stageTimeout)
		defer cancel()
	}
	return fn(ctx, text)
}

// sameLanguage compares base languages, so "en-US" matches "en".
func sameLanguage(a, b string) bool {
	ta, errA := language.Parse(a)
	tb, errB := language.Parse(b)
	if errA != nil || errB != nil {
		return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
	}
	ba, _ := ta.Base()
	bb, _ := tb.Base()
	return ba == bb
}
