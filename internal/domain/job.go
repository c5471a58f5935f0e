package domain

import (
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	Pending    Status = "pending"
	Processing Status = "processing"
	Completed  Status = "completed"
	Failed     Status = "failed"
)

// Terminal reports whether no further transitions are allowed.
func (s Status) Terminal() bool { return s == Completed || s == Failed }

type Mode string

const (
	Sync  Mode = "sync"
	Async Mode = "async"
)

// Stage names, as recorded in JobError.Stage and Job.StageErrors.
const (
	StageDetect    = "detect_language"
	StageTranslate = "translate"
	StageSentiment = "sentiment"
	StageSummarize = "summarize"
	StageEntities  = "extract_entities"
	StagePublish   = "publish"
)

type Sentiment struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

// Span is a half-open [Start, End) range of rune offsets into the analyzed text.
type Span struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

type Entity struct {
	Text string `json:"text"`
	Type string `json:"type"`
	Span Span   `json:"span"`
}

// Result fields stay nil until the stage that owns them succeeds.
type Result struct {
	DetectedLanguage *string    `json:"detected_language,omitempty"`
	TranslatedText   *string    `json:"translated_text,omitempty"`
	Sentiment        *Sentiment `json:"sentiment,omitempty"`
	Summary          *string    `json:"summary,omitempty"`
	Entities         []Entity   `json:"entities"`
}

type JobError struct {
	Stage   string `json:"stage"`
	Message string `json:"message"`
}

type Job struct {
	ID           string
	Status       Status
	Mode         Mode
	OriginalText string
	Metadata     map[string]any
	Result       Result
	StageErrors  map[string]string
	Error        *JobError
	CreatedAt    time.Time
	UpdatedAt    time.Time
	StartedAt    *time.Time
	CompletedAt  *time.Time
}

func NewJob(text string, metadata map[string]any, mode Mode) *Job {
	now := time.Now().UTC()
	if metadata == nil {
		metadata = map[string]any{}
	}
	return &Job{
		ID:           uuid.NewString(),
		Status:       Pending,
		Mode:         mode,
		OriginalText: text,
		Metadata:     metadata,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// Clone returns a copy that shares no mutable state with j.
func (j *Job) Clone() *Job {
	c := *j
	if j.Metadata != nil {
		c.Metadata = make(map[string]any, len(j.Metadata))
		for k, v := range j.Metadata {
			c.Metadata[k] = v
		}
	}
	if j.StageErrors != nil {
		c.StageErrors = make(map[string]string, len(j.StageErrors))
		for k, v := range j.StageErrors {
			c.StageErrors[k] = v
		}
	}
	if j.Error != nil {
		e := *j.Error
		c.Error = &e
	}
	c.Result = j.Result.clone()
	c.StartedAt = cloneTime(j.StartedAt)
	c.CompletedAt = cloneTime(j.CompletedAt)
	return &c
}

func (r Result) clone() Result {
	c := Result{
		DetectedLanguage: cloneString(r.DetectedLanguage),
		TranslatedText:   cloneString(r.TranslatedText),
		Summary:          cloneString(r.Summary),
	}
	if r.Sentiment != nil {
		s := *r.Sentiment
		c.Sentiment = &s
	}
	if r.Entities != nil {
		c.Entities = append([]Entity{}, r.Entities...)
	}
	return c
}

// FillGaps copies into r every field of other that r does not have yet.
// Populated fields of r are never overwritten.
func (r *Result) FillGaps(other Result) {
	if r.DetectedLanguage == nil && other.DetectedLanguage != nil {
		r.DetectedLanguage = cloneString(other.DetectedLanguage)
	}
	if r.TranslatedText == nil && other.TranslatedText != nil {
		r.TranslatedText = cloneString(other.TranslatedText)
	}
	if r.Sentiment == nil && other.Sentiment != nil {
		s := *other.Sentiment
		r.Sentiment = &s
	}
	if r.Summary == nil && other.Summary != nil {
		r.Summary = cloneString(other.Summary)
	}
	if r.Entities == nil && other.Entities != nil {
		r.Entities = append([]Entity{}, other.Entities...)
	}
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
