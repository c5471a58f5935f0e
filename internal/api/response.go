package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/SirClappington/textintel/internal/domain"
)

type ProcessRequest struct {
	Text     string         `json:"text"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

type JobResponse struct {
	JobID     string           `json:"job_id"`
	Status    string           `json:"status"`
	Mode      string           `json:"mode"`
	CreatedAt time.Time        `json:"created_at"`
	Message   string           `json:"message"`
	Error     *domain.JobError `json:"error,omitempty"`
}

type ResultResponse struct {
	JobID            string            `json:"job_id"`
	Status           string            `json:"status"`
	OriginalText     string            `json:"original_text"`
	DetectedLanguage *string           `json:"detected_language"`
	TranslatedText   *string           `json:"translated_text"`
	Sentiment        *domain.Sentiment `json:"sentiment"`
	Summary          *string           `json:"summary"`
	Entities         []domain.Entity   `json:"entities"`
	StageErrors      map[string]string `json:"stage_errors,omitempty"`
	CreatedAt        time.Time         `json:"created_at"`
	CompletedAt      *time.Time        `json:"completed_at"`
	Metadata         map[string]any    `json:"metadata"`
}

type JobStatusResponse struct {
	JobID       string           `json:"job_id"`
	Status      string           `json:"status"`
	Mode        string           `json:"mode"`
	CreatedAt   time.Time        `json:"created_at"`
	CompletedAt *time.Time       `json:"completed_at"`
	Error       *domain.JobError `json:"error"`
	Result      *ResultResponse  `json:"result,omitempty"`
}

type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

type InfoResponse struct {
	Service   string `json:"service"`
	Component string `json:"component"`
	Status    string `json:"status"`
}

func toStatusResponse(job *domain.Job) JobStatusResponse {
	resp := JobStatusResponse{
		JobID:       job.ID,
		Status:      string(job.Status),
		Mode:        string(job.Mode),
		CreatedAt:   job.CreatedAt,
		CompletedAt: job.CompletedAt,
		Error:       job.Error,
	}
	if job.Status.Terminal() {
		resp.Result = &ResultResponse{
			JobID:            job.ID,
			Status:           string(job.Status),
			OriginalText:     job.OriginalText,
			DetectedLanguage: job.Result.DetectedLanguage,
			TranslatedText:   job.Result.TranslatedText,
			Sentiment:        job.Result.Sentiment,
			Summary:          job.Result.Summary,
			Entities:         job.Result.Entities,
			StageErrors:      job.StageErrors,
			CreatedAt:        job.CreatedAt,
			CompletedAt:      job.CompletedAt,
			Metadata:         job.Metadata,
		}
	}
	return resp
}

func JSONResponse(w http.ResponseWriter, v any, statusCode int) {
	bs, err := json.Marshal(v)
	if err != nil {
		ErrorResponse(w, "Failed to marshal response", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_, _ = w.Write(bs)
}

func ErrorResponse(w http.ResponseWriter, message string, statusCode int) {
	bs, err := json.Marshal(map[string]string{"error": message})
	if err != nil {
		http.Error(w, "Failed to marshal error response", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_, _ = w.Write(bs)
}
