// Package heuristic is a dependency-free analyzer backend for development and
// tests. It detects language by script and stopwords, scores sentiment from a
// small lexicon, summarizes by lead sentences and tags capitalized spans as
// entities. It cannot translate.
package heuristic

import (
	"context"
	"strings"
	"unicode"

	"github.com/pkg/errors"

	"github.com/SirClappington/textintel/internal/domain"
)

var (
	ErrNoSignal           = errors.New("no linguistic content")
	ErrTranslationBackend = errors.New("heuristic backend cannot translate")
)

// MaxSummaryWords caps Summarize output.
const MaxSummaryWords = 150

type Analyzer struct {
	summarySentences int
}

func New() *Analyzer { return &Analyzer{summarySentences: 2} }

var scripts = []struct {
	table *unicode.RangeTable
	lang  string
}{
	{unicode.Han, "zh"},
	{unicode.Hiragana, "ja"},
	{unicode.Katakana, "ja"},
	{unicode.Hangul, "ko"},
	{unicode.Cyrillic, "ru"},
	{unicode.Arabic, "ar"},
	{unicode.Greek, "el"},
	{unicode.Hebrew, "he"},
	{unicode.Devanagari, "hi"},
	{unicode.Thai, "th"},
}

var stopwords = map[string][]string{
	"en": {"the", "and", "is", "are", "was", "of", "to", "in", "it", "this", "that", "with", "for", "you", "i"},
	"es": {"el", "la", "los", "las", "y", "es", "de", "que", "en", "un", "una", "por", "con", "para", "muy"},
	"fr": {"le", "la", "les", "et", "est", "de", "des", "un", "une", "que", "dans", "pour", "avec", "très", "je"},
	"de": {"der", "die", "das", "und", "ist", "nicht", "ein", "eine", "zu", "mit", "ich", "sehr", "auf", "für", "den"},
	"pt": {"o", "os", "as", "e", "é", "de", "do", "da", "um", "uma", "que", "não", "com", "para", "muito"},
	"it": {"il", "lo", "gli", "e", "è", "di", "che", "un", "una", "non", "per", "con", "sono", "molto", "della"},
}

func (a *Analyzer) DetectLanguage(ctx context.Context, text string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	counts := make(map[string]int)
	latin, letters := 0, 0
	for _, r := range text {
		if !unicode.IsLetter(r) {
			continue
		}
		letters++
		if unicode.Is(unicode.Latin, r) {
			latin++
			continue
		}
		for _, s := range scripts {
			if unicode.Is(s.table, r) {
				counts[s.lang]++
				break
			}
		}
	}
	if letters == 0 {
		return "", ErrNoSignal
	}

	best, bestN := "", 0
	for lang, n := range counts {
		if n > bestN {
			best, bestN = lang, n
		}
	}
	// kana mixed with kanji is Japanese even when Han dominates
	if best == "zh" && counts["ja"] > 0 {
		best = "ja"
	}
	if bestN > latin {
		return best, nil
	}
	return latinLanguage(words(text)), nil
}

func latinLanguage(ws []string) string {
	scores := make(map[string]int)
	for _, w := range ws {
		for lang, list := range stopwords {
			for _, s := range list {
				if w == s {
					scores[lang]++
				}
			}
		}
	}
	best, bestN := "en", 0
	for _, lang := range []string{"en", "es", "fr", "de", "pt", "it"} {
		if scores[lang] > bestN {
			best, bestN = lang, scores[lang]
		}
	}
	return best
}

func (a *Analyzer) Translate(ctx context.Context, text, targetLang string) (string, error) {
	return "", errors.Wrapf(ErrTranslationBackend, "translate to %s", targetLang)
}

var (
	positive = set("good", "great", "excellent", "amazing", "love", "loved", "happy", "wonderful", "fantastic",
		"best", "nice", "pleasant", "enjoy", "enjoyed", "perfect", "awesome", "glad", "recommend", "helpful",
		"beautiful", "brilliant", "delightful", "satisfied", "success", "thanks", "thank")
	negative = set("bad", "terrible", "awful", "hate", "hated", "sad", "poor", "worst", "horrible", "angry",
		"disappointed", "disappointing", "broken", "fail", "failed", "failure", "useless", "slow", "problem",
		"annoying", "rude", "waste", "refund", "ugly", "pain", "wrong")
	negators = set("not", "no", "never", "don't", "doesn't", "didn't", "isn't", "wasn't", "hardly")
)

func (a *Analyzer) AnalyzeSentiment(ctx context.Context, text string) (domain.Sentiment, error) {
	if err := ctx.Err(); err != nil {
		return domain.Sentiment{}, err
	}
	ws := words(text)
	if len(ws) == 0 {
		return domain.Sentiment{Label: "neutral", Score: 0.5}, nil
	}

	pos, neg := 0, 0
	for i, w := range ws {
		flip := i > 0 && negators[ws[i-1]]
		switch {
		case positive[w] && !flip, negative[w] && flip:
			pos++
		case negative[w] && !flip, positive[w] && flip:
			neg++
		}
	}
	if pos == neg {
		return domain.Sentiment{Label: "neutral", Score: 0.5}, nil
	}
	label := "positive"
	if neg > pos {
		label = "negative"
	}
	diff := pos - neg
	if diff < 0 {
		diff = -diff
	}
	return domain.Sentiment{Label: label, Score: 0.5 + 0.5*float64(diff)/float64(pos+neg)}, nil
}

func (a *Analyzer) Summarize(ctx context.Context, text string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", nil
	}

	sentences := splitSentences(text)
	if len(sentences) > a.summarySentences {
		sentences = sentences[:a.summarySentences]
	}
	fields := strings.Fields(strings.Join(sentences, " "))
	if len(fields) > MaxSummaryWords {
		fields = fields[:MaxSummaryWords]
	}
	return strings.Join(fields, " "), nil
}

var (
	orgSuffixes   = set("inc", "corp", "corporation", "ltd", "llc", "university", "bank", "company", "group")
	personTitles  = set("mr", "mrs", "ms", "dr", "prof")
	knownLocation = set("paris", "london", "berlin", "madrid", "tokyo", "new york", "france", "germany", "spain",
		"italy", "japan", "china", "india", "brazil", "canada", "mexico", "europe", "africa", "asia", "california")
)

func (a *Analyzer) ExtractEntities(ctx context.Context, text string) ([]domain.Entity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	runes := []rune(text)
	out := []domain.Entity{}

	var (
		start, end  = -1, -1
		prevWord    string
		wordsInSpan int
		before      string
	)
	flush := func() {
		if start < 0 {
			return
		}
		span := string(runes[start:end])
		single := wordsInSpan == 1
		if !(single && spanStartsSentence(runes, start) && isStopword(strings.ToLower(span))) {
			out = append(out, domain.Entity{
				Text: span,
				Type: classify(span, before),
				Span: domain.Span{Start: start, End: end},
			})
		}
		start, end, wordsInSpan = -1, -1, 0
	}

	i := 0
	for i < len(runes) {
		if !unicode.IsLetter(runes[i]) {
			if runes[i] == '.' || runes[i] == '!' || runes[i] == '?' {
				// "Dr." does not end a sentence or an entity span
				if !personTitles[strings.ToLower(prevWord)] {
					flush()
				}
			} else if runes[i] != ' ' {
				flush()
			}
			i++
			continue
		}
		j := i
		for j < len(runes) && (unicode.IsLetter(runes[j]) || runes[j] == '\'' || runes[j] == '-') {
			j++
		}
		word := string(runes[i:j])
		if unicode.IsUpper(runes[i]) && !personTitles[strings.ToLower(word)] {
			if start < 0 {
				start = i
				before = strings.ToLower(prevWord)
			}
			end = j
			wordsInSpan++
		} else {
			flush()
		}
		prevWord = word
		i = j
	}
	flush()
	return out, nil
}

func classify(span, before string) string {
	lower := strings.ToLower(span)
	ws := strings.Fields(lower)
	switch {
	case personTitles[before]:
		return "PER"
	case len(ws) > 0 && orgSuffixes[strings.Trim(ws[len(ws)-1], ".")]:
		return "ORG"
	case knownLocation[lower]:
		return "LOC"
	default:
		return "MISC"
	}
}

func spanStartsSentence(runes []rune, start int) bool {
	for k := start - 1; k >= 0; k-- {
		switch {
		case runes[k] == '.' || runes[k] == '!' || runes[k] == '?':
			return true
		case unicode.IsSpace(runes[k]):
			continue
		default:
			return false
		}
	}
	return true
}

func isStopword(w string) bool {
	for _, list := range stopwords {
		for _, s := range list {
			if s == w {
				return true
			}
		}
	}
	return false
}

func splitSentences(text string) []string {
	var out []string
	var b strings.Builder
	runes := []rune(text)
	for i, r := range runes {
		b.WriteRune(r)
		if (r == '.' || r == '!' || r == '?') && (i+1 == len(runes) || unicode.IsSpace(runes[i+1])) {
			if s := strings.TrimSpace(b.String()); s != "" {
				out = append(out, s)
			}
			b.Reset()
		}
	}
	if s := strings.TrimSpace(b.String()); s != "" {
		out = append(out, s)
	}
	return out
}

func words(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && r != '\''
	})
}

func set(items ...string) map[string]bool {
	m := make(map[string]bool, len(items))
	for _, it := range items {
		m[it] = true
	}
	return m
}
