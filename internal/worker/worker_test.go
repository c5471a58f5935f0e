package worker

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap/zaptest"

	"github.com/SirClappington/textintel/internal/analyzer"
	"github.com/SirClappington/textintel/internal/analyzer/heuristic"
	"github.com/SirClappington/textintel/internal/domain"
	"github.com/SirClappington/textintel/internal/pipeline"
	"github.com/SirClappington/textintel/internal/queue"
	"github.com/SirClappington/textintel/internal/storage"
)

type runnerFunc func(ctx context.Context, id string) (*domain.Job, error)

func (f runnerFunc) Run(ctx context.Context, id string) (*domain.Job, error) { return f(ctx, id) }

func receive(t *testing.T, q queue.Queue) *queue.Delivery {
	t.Helper()
	d, err := q.Receive(context.Background())
	if err != nil || d == nil {
		t.Fatalf("Receive = %v, %v", d, err)
	}
	return d
}

func TestHandleSettlesDelivery(t *testing.T) {
	tests := []struct {
		name      string
		runErr    error
		wantDepth int
	}{
		{"terminal job is acked", nil, 0},
		{"unknown job is acked", errors.Wrap(domain.ErrNotFound, "get"), 0},
		{"store outage is nacked", errors.Wrap(domain.ErrStoreUnavailable, "update"), 1},
		{"cancelled run is nacked", context.Canceled, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := queue.NewMemQ(time.Minute, 50*time.Millisecond)
			if err := q.Publish(context.Background(), "job-1"); err != nil {
				t.Fatalf("Publish: %v", err)
			}
			runner := runnerFunc(func(ctx context.Context, id string) (*domain.Job, error) {
				if tt.runErr != nil {
					return nil, tt.runErr
				}
				return &domain.Job{ID: id, Status: domain.Completed}, nil
			})
			w := New("w1", q, runner, zaptest.NewLogger(t))

			w.Handle(context.Background(), receive(t, q))

			if got := q.Depth(); got != tt.wantDepth {
				t.Fatalf("depth = %d, want %d", got, tt.wantDepth)
			}
			if tt.wantDepth == 1 {
				if d := receive(t, q); d.JobID != "job-1" {
					t.Errorf("redelivered %q, want job-1", d.JobID)
				}
			}
		})
	}
}

func TestRunProcessesAsyncJob(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := storage.NewMemoryStore()
	q := queue.NewMemQ(time.Minute, 20*time.Millisecond)
	exec := pipeline.NewExecutor(store, analyzer.SuiteOf(heuristic.New()), zaptest.NewLogger(t))

	job := domain.NewJob("The team in London shipped a great release. Everyone is happy.", nil, domain.Async)
	if err := store.Create(ctx, job); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := q.Publish(ctx, job.ID); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	w := New("w1", q, exec, zaptest.NewLogger(t))
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	var got *domain.Job
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		got, _ = store.Get(context.Background(), job.ID)
		if got != nil && got.Status.Terminal() {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if got == nil || got.Status != domain.Completed {
		t.Fatalf("job = %+v, want completed", got)
	}
	if got.Result.Sentiment == nil || got.Result.Sentiment.Label != "positive" {
		t.Errorf("sentiment = %+v", got.Result.Sentiment)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run returned %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("worker did not stop after cancel")
	}
	if d := q.Depth(); d != 0 {
		t.Errorf("queue depth = %d after ack, want 0", d)
	}
}

type flakyQueue struct {
	queue.Queue
	mu    sync.Mutex
	fails int
}

func (f *flakyQueue) Receive(ctx context.Context) (*queue.Delivery, error) {
	f.mu.Lock()
	if f.fails > 0 {
		f.fails--
		f.mu.Unlock()
		return nil, errors.New("connection reset")
	}
	f.mu.Unlock()
	return f.Queue.Receive(ctx)
}

func TestRunBacksOffOnReceiveErrors(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	mem := queue.NewMemQ(time.Minute, 20*time.Millisecond)
	q := &flakyQueue{Queue: mem, fails: 3}
	if err := mem.Publish(ctx, "job-1"); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	handled := make(chan string, 1)
	runner := runnerFunc(func(ctx context.Context, id string) (*domain.Job, error) {
		handled <- id
		return &domain.Job{ID: id, Status: domain.Completed}, nil
	})
	w := New("w1", q, runner, zaptest.NewLogger(t))
	w.minBackoff = time.Millisecond
	w.maxBackoff = 2 * time.Millisecond
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = w.Run(ctx)
	}()
	defer func() {
		cancel()
		<-done
	}()

	select {
	case id := <-handled:
		if id != "job-1" {
			t.Errorf("handled %q, want job-1", id)
		}
	case <-time.After(2 * time.Second):
		t.Error("worker never recovered from receive errors")
	}
}
