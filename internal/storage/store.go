package storage

import (
	"context"
	"time"

	"github.com/SirClappington/textintel/internal/domain"
)

// Mutator edits a job inside an atomic read-modify-write. Returning an error
// aborts the write and the error is passed back to the Update caller.
type Mutator func(j *domain.Job) error

// Store is the durable job record store. Implementations hand out copies;
// callers never share a *domain.Job with the store.
type Store interface {
	// Create fails with domain.ErrAlreadyExists if the id is taken.
	Create(ctx context.Context, job *domain.Job) error
	// Get returns domain.ErrNotFound for unknown ids.
	Get(ctx context.Context, id string) (*domain.Job, error)
	// Update applies fn to the current record and persists the result.
	Update(ctx context.Context, id string, fn Mutator) (*domain.Job, error)
}

// StaleLister finds async jobs stuck in pending since before olderThan.
type StaleLister interface {
	ListStalePending(ctx context.Context, olderThan time.Time, limit int) ([]*domain.Job, error)
}
