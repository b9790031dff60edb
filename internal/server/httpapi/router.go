package httpapi

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/rescrv/brief-measure/internal/server/service"
	"github.com/rescrv/brief-measure/internal/shared/apperr"
)

type Router struct {
	services        *service.Services
	logger          *log.Logger
	maxRequestBytes int64
}

func NewRouter(services *service.Services, logger *log.Logger, maxRequestBytes int64) http.Handler {
	r := &Router{services: services, logger: logger, maxRequestBytes: maxRequestBytes}
	mux := chi.NewRouter()

	mux.Get("/health", r.handleHealth)
	mux.Post("/api/v1/keys", r.handleIssueKey)

	mux.Group(func(pr chi.Router) {
		pr.Use(r.authMiddleware)
		pr.Post("/api/v1/observations", r.handleSubmitObservation)
		pr.Get("/api/v1/observations", r.handleListObservations)
		pr.Post("/api/v1/forget-me-now", r.handleForgetMeNow)
	})

	return mux
}

func (r *Router) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps the error taxonomy onto HTTP statuses. Only the safe
// message leaves the process; causes stay in the log.
func (r *Router) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch apperr.CodeOf(err) {
	case apperr.CodeUnauthorized:
		status = http.StatusUnauthorized
	case apperr.CodeInvalidUUID, apperr.CodeInvalidObservation, apperr.CodeInvalidLimit:
		status = http.StatusBadRequest
	case apperr.CodeRateLimited:
		status = http.StatusTooManyRequests
	}
	if status == http.StatusInternalServerError && r.logger != nil {
		r.logger.Printf("internal error: %v", err)
	}
	writeJSON(w, status, map[string]string{"error": apperr.MessageOf(err)})
}
