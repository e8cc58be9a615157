package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"speech-checkpoint-service/internal/app"
	"speech-checkpoint-service/internal/checkpoint"
	"speech-checkpoint-service/internal/service/status"
)

// NewRouter constructs the HTTP router for the status API.
func NewRouter(application *app.Application, reporter *status.Reporter) http.Handler {
	r := chi.NewRouter()

	// Basic middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	// Health endpoints
	r.Get("/v1/liveness", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/v1/readiness", func(w http.ResponseWriter, _ *http.Request) {
		if application.StartupTime.IsZero() {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("not ready"))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	r.Handle("/metrics", promhttp.Handler())

	// API routes
	r.Route("/v1/jobs", func(r chi.Router) {
		r.Get("/", func(w http.ResponseWriter, r *http.Request) {
			snap, err := reporter.Snapshot(r.Context())
			if err != nil {
				writeError(w, http.StatusInternalServerError, err)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			_ = status.RenderJSON(w, snap, reporter.Now())
		})

		r.Get("/{jobKey}", func(w http.ResponseWriter, r *http.Request) {
			p, err := reporter.Job(r.Context(), chi.URLParam(r, "jobKey"))
			switch {
			case err == nil:
				writeJSON(w, http.StatusOK, p)
			case errors.Is(err, checkpoint.ErrNotFound):
				writeError(w, http.StatusNotFound, err)
			case errors.Is(err, checkpoint.ErrCorruptState):
				writeError(w, http.StatusConflict, err)
			default:
				writeError(w, http.StatusBadRequest, err)
			}
		})
	})

	return r
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("Failed to write response")
	}
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}
