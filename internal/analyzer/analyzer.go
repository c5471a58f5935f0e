// Package analyzer defines the enrichment capabilities the pipeline runs.
// Each capability is a pure function of its input text; implementations are
// expected to bound their own latency and fail rather than hang.
package analyzer

import (
	"context"

	"github.com/SirClappington/textintel/internal/domain"
)

type LanguageDetector interface {
	// DetectLanguage returns a BCP 47 language tag such as "en" or "pt-BR".
	DetectLanguage(ctx context.Context, text string) (string, error)
}

type Translator interface {
	Translate(ctx context.Context, text, targetLang string) (string, error)
}

type SentimentAnalyzer interface {
	AnalyzeSentiment(ctx context.Context, text string) (domain.Sentiment, error)
}

type Summarizer interface {
	Summarize(ctx context.Context, text string) (string, error)
}

type EntityExtractor interface {
	ExtractEntities(ctx context.Context, text string) ([]domain.Entity, error)
}

// Suite bundles one implementation per stage. Implementations may be mixed,
// e.g. a remote translator with local sentiment.
type Suite struct {
	Detector   LanguageDetector
	Translator Translator
	Sentiment  SentimentAnalyzer
	Summarizer Summarizer
	Entities   EntityExtractor
}

// Full is implemented by backends that provide every capability.
type Full interface {
	LanguageDetector
	Translator
	SentimentAnalyzer
	Summarizer
	EntityExtractor
}

func SuiteOf(f Full) Suite {
	return Suite{Detector: f, Translator: f, Sentiment: f, Summarizer: f, Entities: f}
}
