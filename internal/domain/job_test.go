package domain

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/pkg/errors"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to Status
		want     bool
	}{
		{Pending, Processing, true},
		{Pending, Failed, true},
		{Pending, Completed, false},
		{Processing, Processing, true},
		{Processing, Completed, true},
		{Processing, Failed, true},
		{Processing, Pending, false},
		{Completed, Processing, false},
		{Completed, Failed, false},
		{Failed, Pending, false},
		{Failed, Completed, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			if got := CanTransition(tt.from, tt.to); got != tt.want {
				t.Errorf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
			}
		})
	}
}

func TestJobLifecycle(t *testing.T) {
	j := NewJob("hello", nil, Sync)
	if j.Status != Pending {
		t.Fatalf("new job status = %s, want pending", j.Status)
	}
	if j.CompletedAt != nil {
		t.Fatal("new job has completed_at")
	}

	now := time.Now().UTC()
	if err := j.Start(now); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if j.StartedAt == nil || !j.StartedAt.Equal(now) {
		t.Errorf("StartedAt = %v, want %v", j.StartedAt, now)
	}

	later := now.Add(time.Second)
	if err := j.Start(later); err != nil {
		t.Fatalf("second Start: %v", err)
	}
	if !j.StartedAt.Equal(now) {
		t.Errorf("StartedAt moved on re-entry: %v", j.StartedAt)
	}

	if err := j.Complete(later); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if j.CompletedAt == nil || !j.CompletedAt.Equal(later) {
		t.Errorf("CompletedAt = %v, want %v", j.CompletedAt, later)
	}

	for name, fn := range map[string]func() error{
		"start":    func() error { return j.Start(later) },
		"complete": func() error { return j.Complete(later) },
		"fail":     func() error { return j.Fail(later, StageDetect, errors.New("x")) },
	} {
		if err := fn(); !errors.Is(err, ErrTerminal) {
			t.Errorf("%s on terminal job: err = %v, want ErrTerminal", name, err)
		}
	}
	if j.Status != Completed {
		t.Errorf("status = %s after rejected transitions, want completed", j.Status)
	}
}

func TestJobFailRecordsStage(t *testing.T) {
	j := NewJob("hola", nil, Async)
	now := time.Now().UTC()
	if err := j.Fail(now, StagePublish, errors.New("redis down")); err != nil {
		t.Fatalf("Fail: %v", err)
	}
	want := &JobError{Stage: StagePublish, Message: "redis down"}
	if diff := cmp.Diff(want, j.Error); diff != "" {
		t.Errorf("Error mismatch (-want +got):\n%s", diff)
	}
	if j.CompletedAt == nil {
		t.Error("CompletedAt not set on failure")
	}
}

func TestPendingCannotComplete(t *testing.T) {
	j := NewJob("x", nil, Sync)
	if err := j.Complete(time.Now()); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("err = %v, want ErrInvalidTransition", err)
	}
}

func TestNewJobUniqueIDs(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := NewJob("x", nil, Sync).ID
		if seen[id] {
			t.Fatalf("duplicate id %s", id)
		}
		seen[id] = true
	}
}

func TestResultFillGaps(t *testing.T) {
	en, es := "en", "es"
	orig := "hello"
	r := Result{DetectedLanguage: &en}
	r.FillGaps(Result{
		DetectedLanguage: &es,
		TranslatedText:   &orig,
		Sentiment:        &Sentiment{Label: "positive", Score: 0.9},
		Entities:         []Entity{},
	})

	if *r.DetectedLanguage != "en" {
		t.Errorf("DetectedLanguage overwritten: %s", *r.DetectedLanguage)
	}
	if r.TranslatedText == nil || *r.TranslatedText != "hello" {
		t.Errorf("TranslatedText = %v, want hello", r.TranslatedText)
	}
	if r.Sentiment == nil || r.Sentiment.Label != "positive" {
		t.Errorf("Sentiment = %v", r.Sentiment)
	}
	if r.Entities == nil {
		t.Error("empty entity list should still count as populated")
	}
	if r.Summary != nil {
		t.Errorf("Summary = %v, want nil", *r.Summary)
	}
}

func TestCloneIsDeep(t *testing.T) {
	s := "summary"
	j := NewJob("x", map[string]any{"k": "v"}, Sync)
	j.Result.Summary = &s
	j.Result.Entities = []Entity{{Text: "Paris", Type: "LOC"}}
	j.StageErrors = map[string]string{StageSentiment: "boom"}

	c := j.Clone()
	c.Metadata["k"] = "changed"
	*c.Result.Summary = "changed"
	c.Result.Entities[0].Text = "changed"
	c.StageErrors[StageSentiment] = "changed"

	if j.Metadata["k"] != "v" || *j.Result.Summary != "summary" ||
		j.Result.Entities[0].Text != "Paris" || j.StageErrors[StageSentiment] != "boom" {
		t.Error("Clone shares state with the original")
	}
}
