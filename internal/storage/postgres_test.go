package storage

import (
	"context"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"github.com/SirClappington/textintel/internal/domain"
)

// TestPostgresStore runs against a real database when TEST_POSTGRES_DSN is set.
func TestPostgresStore(t *testing.T) {
	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TEST_POSTGRES_DSN not set")
	}
	ctx := context.Background()
	var g errgroup.Group
	for i := 0; i < 3; i++ {
		g.Go(func() error { return Migrate(ctx, dsn, "../../migrations") })
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("concurrent Migrate: %v", err)
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("pgxpool.New: %v", err)
	}
	t.Cleanup(pool.Close)

	runStoreContract(t, func(t *testing.T) Store {
		if _, err := pool.Exec(ctx, `truncate jobs`); err != nil {
			t.Fatalf("truncate: %v", err)
		}
		return NewPostgresStore(pool)
	})

	t.Run("advisory lock is exclusive", func(t *testing.T) {
		s := NewPostgresStore(pool)
		release, ok, err := s.TryLead(ctx, 4242)
		if err != nil || !ok {
			t.Fatalf("first TryLead ok=%v err=%v", ok, err)
		}
		_, ok2, err := s.TryLead(ctx, 4242)
		if err != nil {
			t.Fatalf("second TryLead: %v", err)
		}
		if ok2 {
			t.Error("second TryLead acquired a held lock")
		}
		release()
	})
}

func TestEncodeScanRoundTripKeepsEmptyEntities(t *testing.T) {
	job := domain.NewJob("x", nil, domain.Sync)
	job.Result.Entities = []domain.Entity{}

	enc, err := encodeJob(job)
	if err != nil {
		t.Fatalf("encodeJob: %v", err)
	}
	var r domain.Result
	if err := decodeJSON(enc.result, &r); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if r.Entities == nil {
		t.Error("empty entity list decoded as absent")
	}
	if enc.err != nil {
		t.Errorf("nil job error encoded as %q, want SQL NULL", enc.err)
	}
}
