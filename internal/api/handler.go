package api

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/SirClappington/textintel/internal/domain"
)

func (h *Handler) info(component string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		JSONResponse(w, InfoResponse{Service: "textintel", Component: component, Status: "running"}, http.StatusOK)
	}
}

func (h *Handler) health(w http.ResponseWriter, _ *http.Request) {
	JSONResponse(w, HealthResponse{Status: "healthy", Timestamp: h.now().UTC()}, http.StatusOK)
}

func (h *Handler) process(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			ErrorResponse(w, "Request body too large", http.StatusRequestEntityTooLarge)
			return
		}
		ErrorResponse(w, "Failed to read request body", http.StatusBadRequest)
		return
	}

	var req ProcessRequest
	if err := json.Unmarshal(body, &req); err != nil {
		ErrorResponse(w, "Failed to parse request body", http.StatusBadRequest)
		return
	}

	job, err := h.svc.Submit(r.Context(), req.Text, req.Metadata)
	if err != nil {
		h.submitError(w, err)
		return
	}

	resp := JobResponse{
		JobID:     job.ID,
		Status:    string(job.Status),
		Mode:      string(job.Mode),
		CreatedAt: job.CreatedAt,
		Error:     job.Error,
	}
	code := http.StatusOK
	switch job.Status {
	case domain.Completed:
		resp.Message = "Text processed successfully"
	case domain.Failed:
		resp.Message = "Text processing failed"
	default:
		resp.Message = "Job queued for asynchronous processing"
		code = http.StatusAccepted
	}
	JSONResponse(w, resp, code)
}

func (h *Handler) submitError(w http.ResponseWriter, err error) {
	var pubErr *domain.PublishError
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		ErrorResponse(w, err.Error(), http.StatusBadRequest)
	case errors.As(err, &pubErr):
		h.log.Error("job could not be queued", zap.String("job_id", pubErr.JobID), zap.Error(err))
		ErrorResponse(w, "Job could not be queued, retry later", http.StatusServiceUnavailable)
	case errors.Is(err, domain.ErrStoreUnavailable):
		h.log.Error("store unavailable", zap.Error(err))
		ErrorResponse(w, "Job store unavailable, retry later", http.StatusServiceUnavailable)
	default:
		h.log.Error("submit failed", zap.Error(err))
		ErrorResponse(w, "Internal server error", http.StatusInternalServerError)
	}
}

func (h *Handler) getJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	job, err := h.svc.GetJob(r.Context(), id)
	switch {
	case err == nil:
		JSONResponse(w, toStatusResponse(job), http.StatusOK)
	case errors.Is(err, domain.ErrNotFound):
		ErrorResponse(w, "Job "+id+" not found", http.StatusNotFound)
	case errors.Is(err, domain.ErrStoreUnavailable):
		h.log.Error("store unavailable", zap.String("job_id", id), zap.Error(err))
		ErrorResponse(w, "Job store unavailable, retry later", http.StatusServiceUnavailable)
	default:
		h.log.Error("get job failed", zap.String("job_id", id), zap.Error(err))
		ErrorResponse(w, "Internal server error", http.StatusInternalServerError)
	}
}
