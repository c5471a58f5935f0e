package heuristic

import (
	"context"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/pkg/errors"
)

func TestDetectLanguage(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{"english", "The weather is nice and the food was great.", "en"},
		{"spanish", "El servicio es muy bueno y la comida que probé fue excelente.", "es"},
		{"french", "Le service est très bon et je suis content dans cette ville.", "fr"},
		{"german", "Das Essen ist sehr gut und ich bin nicht enttäuscht.", "de"},
		{"russian", "Это очень хороший сервис", "ru"},
		{"japanese", "これは日本語の文章です", "ja"},
		{"chinese", "这是一个中文句子", "zh"},
		{"korean", "이것은 한국어 문장입니다", "ko"},
		{"latin without stopwords", "Hello", "en"},
	}
	a := New()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := a.DetectLanguage(context.Background(), tt.text)
			if err != nil {
				t.Fatalf("DetectLanguage: %v", err)
			}
			if got != tt.want {
				t.Errorf("DetectLanguage(%q) = %s, want %s", tt.text, got, tt.want)
			}
		})
	}
}

func TestDetectLanguageNoLetters(t *testing.T) {
	if _, err := New().DetectLanguage(context.Background(), "1234 !!! ..."); !errors.Is(err, ErrNoSignal) {
		t.Errorf("err = %v, want ErrNoSignal", err)
	}
}

func TestTranslateUnsupported(t *testing.T) {
	if _, err := New().Translate(context.Background(), "hola", "en"); !errors.Is(err, ErrTranslationBackend) {
		t.Errorf("err = %v, want ErrTranslationBackend", err)
	}
}

func TestAnalyzeSentiment(t *testing.T) {
	tests := []struct {
		text      string
		wantLabel string
	}{
		{"I love this, it is excellent and wonderful", "positive"},
		{"Terrible service, the worst experience, I hate it", "negative"},
		{"The package arrived on Tuesday", "neutral"},
		{"This was not good", "negative"},
		{"", "neutral"},
	}
	a := New()
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			got, err := a.AnalyzeSentiment(context.Background(), tt.text)
			if err != nil {
				t.Fatalf("AnalyzeSentiment: %v", err)
			}
			if got.Label != tt.wantLabel {
				t.Errorf("label = %s, want %s", got.Label, tt.wantLabel)
			}
			if got.Score < 0.5 || got.Score > 1 {
				t.Errorf("score %v out of [0.5, 1]", got.Score)
			}
		})
	}
}

func TestSummarize(t *testing.T) {
	a := New()
	ctx := context.Background()

	got, err := a.Summarize(ctx, "First sentence here. Second one follows! Third is dropped. Fourth too.")
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if want := "First sentence here. Second one follows!"; got != want {
		t.Errorf("Summarize = %q, want %q", got, want)
	}

	long := strings.Repeat("word ", 400)
	got, _ = a.Summarize(ctx, long)
	if n := len(strings.Fields(got)); n != MaxSummaryWords {
		t.Errorf("summary words = %d, want %d", n, MaxSummaryWords)
	}

	if got, _ := a.Summarize(ctx, "   "); got != "" {
		t.Errorf("Summarize(blank) = %q, want empty", got)
	}
}

func TestExtractEntities(t *testing.T) {
	text := "The meeting with Dr. Alice Smith at Acme Corp was moved to Paris. I will fly from New York."
	got, err := New().ExtractEntities(context.Background(), text)
	if err != nil {
		t.Fatalf("ExtractEntities: %v", err)
	}

	runes := []rune(text)
	for _, e := range got {
		if string(runes[e.Span.Start:e.Span.End]) != e.Text {
			t.Errorf("span %v does not cover %q", e.Span, e.Text)
		}
	}

	type tagged struct{ Text, Type string }
	var gotTags []tagged
	for _, e := range got {
		gotTags = append(gotTags, tagged{e.Text, e.Type})
	}
	want := []tagged{
		{"Alice Smith", "PER"},
		{"Acme Corp", "ORG"},
		{"Paris", "LOC"},
		{"New York", "LOC"},
	}
	if diff := cmp.Diff(want, gotTags); diff != "" {
		t.Errorf("entities mismatch (-want +got):\n%s", diff)
	}
}

func TestExtractEntitiesNoneFound(t *testing.T) {
	got, err := New().ExtractEntities(context.Background(), "nothing capitalized here")
	if err != nil {
		t.Fatalf("ExtractEntities: %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Errorf("got %v, want empty non-nil slice", got)
	}
}
