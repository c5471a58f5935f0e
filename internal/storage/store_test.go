package storage

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/pkg/errors"

	"github.com/SirClappington/textintel/internal/domain"
)

// runStoreContract exercises the behavior every Store must share.
func runStoreContract(t *testing.T, newStore func(t *testing.T) Store) {
	ctx := context.Background()

	t.Run("create and get", func(t *testing.T) {
		s := newStore(t)
		job := domain.NewJob("hello world", map[string]any{"source": "test"}, domain.Sync)
		if err := s.Create(ctx, job); err != nil {
			t.Fatalf("Create: %v", err)
		}
		got, err := s.Get(ctx, job.ID)
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if diff := cmp.Diff(job, got, cmpopts.EquateApproxTime(time.Millisecond)); diff != "" {
			t.Errorf("job mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("duplicate create", func(t *testing.T) {
		s := newStore(t)
		job := domain.NewJob("x", nil, domain.Sync)
		if err := s.Create(ctx, job); err != nil {
			t.Fatalf("Create: %v", err)
		}
		if err := s.Create(ctx, job); !errors.Is(err, domain.ErrAlreadyExists) {
			t.Errorf("second Create err = %v, want ErrAlreadyExists", err)
		}
	})

	t.Run("get unknown", func(t *testing.T) {
		s := newStore(t)
		if _, err := s.Get(ctx, "missing"); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("err = %v, want ErrNotFound", err)
		}
		if _, err := s.Update(ctx, "missing", func(*domain.Job) error { return nil }); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("Update err = %v, want ErrNotFound", err)
		}
	})

	t.Run("update persists", func(t *testing.T) {
		s := newStore(t)
		job := domain.NewJob("x", nil, domain.Sync)
		if err := s.Create(ctx, job); err != nil {
			t.Fatalf("Create: %v", err)
		}
		lang := "en"
		_, err := s.Update(ctx, job.ID, func(j *domain.Job) error {
			if err := j.Start(time.Now().UTC()); err != nil {
				return err
			}
			j.Result.DetectedLanguage = &lang
			return nil
		})
		if err != nil {
			t.Fatalf("Update: %v", err)
		}
		got, err := s.Get(ctx, job.ID)
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if got.Status != domain.Processing {
			t.Errorf("status = %s, want processing", got.Status)
		}
		if got.Result.DetectedLanguage == nil || *got.Result.DetectedLanguage != "en" {
			t.Errorf("DetectedLanguage = %v, want en", got.Result.DetectedLanguage)
		}
	})

	t.Run("mutator error aborts write", func(t *testing.T) {
		s := newStore(t)
		job := domain.NewJob("x", nil, domain.Sync)
		if err := s.Create(ctx, job); err != nil {
			t.Fatalf("Create: %v", err)
		}
		boom := errors.New("boom")
		_, err := s.Update(ctx, job.ID, func(j *domain.Job) error {
			j.Status = domain.Failed
			return boom
		})
		if !errors.Is(err, boom) {
			t.Fatalf("err = %v, want boom", err)
		}
		got, _ := s.Get(ctx, job.ID)
		if got.Status != domain.Pending {
			t.Errorf("status = %s, want pending", got.Status)
		}
	})

	t.Run("concurrent terminal writers", func(t *testing.T) {
		s := newStore(t)
		job := domain.NewJob("x", nil, domain.Async)
		if err := s.Create(ctx, job); err != nil {
			t.Fatalf("Create: %v", err)
		}
		if _, err := s.Update(ctx, job.ID, func(j *domain.Job) error { return j.Start(time.Now().UTC()) }); err != nil {
			t.Fatalf("Start: %v", err)
		}

		const writers = 20
		var (
			wg   sync.WaitGroup
			mu   sync.Mutex
			wins int
		)
		wg.Add(writers)
		for i := 0; i < writers; i++ {
			go func(i int) {
				defer wg.Done()
				_, err := s.Update(ctx, job.ID, func(j *domain.Job) error {
					if i%2 == 0 {
						return j.Complete(time.Now().UTC())
					}
					return j.Fail(time.Now().UTC(), domain.StageTranslate, errors.New("late"))
				})
				if err == nil {
					mu.Lock()
					wins++
					mu.Unlock()
				} else if !errors.Is(err, domain.ErrTerminal) {
					t.Errorf("unexpected error: %v", err)
				}
			}(i)
		}
		wg.Wait()

		if wins != 1 {
			t.Errorf("terminal writes won = %d, want exactly 1", wins)
		}
	})

	t.Run("list stale pending", func(t *testing.T) {
		s, ok := newStore(t).(StaleLister)
		if !ok {
			t.Skip("store does not list stale jobs")
		}
		store := s.(Store)

		old := domain.NewJob("old", nil, domain.Async)
		old.CreatedAt = time.Now().UTC().Add(-time.Hour)
		old.UpdatedAt = old.CreatedAt
		fresh := domain.NewJob("fresh", nil, domain.Async)
		syncJob := domain.NewJob("sync", nil, domain.Sync)
		syncJob.UpdatedAt = old.UpdatedAt
		for _, j := range []*domain.Job{old, fresh, syncJob} {
			if err := store.Create(ctx, j); err != nil {
				t.Fatalf("Create: %v", err)
			}
		}

		got, err := s.ListStalePending(ctx, time.Now().UTC().Add(-time.Minute), 10)
		if err != nil {
			t.Fatalf("ListStalePending: %v", err)
		}
		if len(got) != 1 || got[0].ID != old.ID {
			t.Errorf("got %d stale jobs, want only %s", len(got), old.ID)
		}
	})
}

func TestMemoryStore(t *testing.T) {
	runStoreContract(t, func(t *testing.T) Store { return NewMemoryStore() })
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	job := domain.NewJob("x", map[string]any{"k": "v"}, domain.Sync)
	if err := s.Create(ctx, job); err != nil {
		t.Fatalf("Create: %v", err)
	}

	job.Metadata["k"] = "mutated"
	got, _ := s.Get(ctx, job.ID)
	got.Status = domain.Failed

	again, _ := s.Get(ctx, job.ID)
	if again.Metadata["k"] != "v" || again.Status != domain.Pending {
		t.Errorf("store state leaked through returned pointers: %+v", again)
	}
}

func TestMemoryStoreCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := NewMemoryStore()
	if err := s.Create(ctx, domain.NewJob("x", nil, domain.Sync)); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
	if s.Len() != 0 {
		t.Errorf("Len = %d, want 0", s.Len())
	}
}
