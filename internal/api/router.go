// Package api is the HTTP surface of the service.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/SirClappington/textintel/internal/domain"
)

const maxBodyBytes = 1 << 20

// Service is what the handlers need from the gateway.
type Service interface {
	Submit(ctx context.Context, text string, metadata map[string]any) (*domain.Job, error)
	GetJob(ctx context.Context, id string) (*domain.Job, error)
}

type Handler struct {
	svc Service
	log *zap.Logger
	now func() time.Time
}

func NewRouter(svc Service, logger *zap.Logger) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &Handler{svc: svc, log: logger.Named("api"), now: time.Now}

	rtr := baseRouter(h.log)
	rtr.Get("/", h.info("api"))
	rtr.Get("/health", h.health)
	rtr.Route("/api/v1", func(rtr chi.Router) {
		rtr.Post("/process", h.process)
		rtr.Get("/jobs/{id}", h.getJob)
	})
	return rtr
}

// HealthRouter serves only the info and health routes. Workers expose it.
func HealthRouter(component string, logger *zap.Logger) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &Handler{log: logger.Named("health"), now: time.Now}
	rtr := baseRouter(h.log)
	rtr.Get("/", h.info(component))
	rtr.Get("/health", h.health)
	return rtr
}

func baseRouter(log *zap.Logger) *chi.Mux {
	rtr := chi.NewRouter()
	rtr.Use(middleware.RequestID)
	rtr.Use(middleware.RealIP)
	rtr.Use(requestLogger(log))
	rtr.Use(middleware.Recoverer)
	rtr.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		ErrorResponse(w, "Not found", http.StatusNotFound)
	})
	rtr.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		ErrorResponse(w, "Method not allowed", http.StatusMethodNotAllowed)
	})
	return rtr
}

func requestLogger(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			defer func() {
				log.Info("request",
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.Int("status", ww.Status()),
					zap.Int("bytes", ww.BytesWritten()),
					zap.Duration("elapsed", time.Since(start)),
					zap.String("request_id", middleware.GetReqID(r.Context())),
				)
			}()
			next.ServeHTTP(ww, r)
		})
	}
}
