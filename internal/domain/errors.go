package domain

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	ErrInvalidInput      = errors.New("invalid input")
	ErrNotFound          = errors.New("job not found")
	ErrAlreadyExists     = errors.New("job already exists")
	ErrStoreUnavailable  = errors.New("job store unavailable")
	ErrTerminal          = errors.New("job already terminal")
	ErrInvalidTransition = errors.New("invalid status transition")
)

// PublishError is returned by the gateway when an async job was recorded but
// could not be handed to the queue. The job has already been marked failed.
type PublishError struct {
	JobID string
	Err   error
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("publish job %s: %v", e.JobID, e.Err)
}

func (e *PublishError) Unwrap() error { return e.Err }

// StageError wraps an analyzer failure with the stage that produced it.
// Fatal stages abort the pipeline; soft stages are recorded and skipped.
type StageError struct {
	Stage string
	Fatal bool
	Err   error
}

func (e *StageError) Error() string {
	kind := "soft"
	if e.Fatal {
		kind = "fatal"
	}
	return fmt.Sprintf("%s stage %s: %v", kind, e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }
