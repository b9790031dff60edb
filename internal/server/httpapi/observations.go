package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/rescrv/brief-measure/internal/shared/apperr"
	"github.com/rescrv/brief-measure/internal/shared/models"
)

func (r *Router) handleIssueKey(w http.ResponseWriter, req *http.Request) {
	key, err := r.services.Keys.Issue(req.Context())
	if err != nil {
		r.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, models.APIKeyResponse{APIKey: key.Hex()})
}

func (r *Router) handleSubmitObservation(w http.ResponseWriter, req *http.Request) {
	if r.maxRequestBytes > 0 {
		req.Body = http.MaxBytesReader(w, req.Body, r.maxRequestBytes)
	}
	var body models.Observation
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		r.writeError(w, apperr.New(apperr.CodeInvalidObservation, "invalid json"))
		return
	}
	stored, err := r.services.Observations.Ingest(req.Context(), apiKeyFrom(req.Context()), body)
	if err != nil {
		r.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, stored)
}

func (r *Router) handleListObservations(w http.ResponseWriter, req *http.Request) {
	var requested *int64
	if raw := req.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			r.writeError(w, apperr.ErrInvalidLimit)
			return
		}
		requested = &n
	}
	observations, err := r.services.Observations.Recent(req.Context(), apiKeyFrom(req.Context()), requested)
	if err != nil {
		r.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, observations)
}

func (r *Router) handleForgetMeNow(w http.ResponseWriter, req *http.Request) {
	if err := r.services.Keys.Forget(req.Context(), apiKeyFrom(req.Context())); err != nil {
		r.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
