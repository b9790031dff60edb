package httpapi

import (
	"context"
	"net/http"
	"strings"

	"github.com/rescrv/brief-measure/internal/shared/apperr"
	"github.com/rescrv/brief-measure/internal/shared/models"
)

type contextKey string

const apiKeyContextKey contextKey = "apiKey"

// authMiddleware resolves the bearer credential. A missing header, a
// malformed key, and an unknown key all produce the same 401 body.
func (r *Router) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		authz := req.Header.Get("Authorization")
		if !strings.HasPrefix(authz, "Bearer ") {
			r.writeError(w, apperr.ErrUnauthorized)
			return
		}
		key, err := models.ParseAPIKey(strings.TrimPrefix(authz, "Bearer "))
		if err != nil {
			r.writeError(w, err)
			return
		}
		if err := r.services.Keys.Ensure(req.Context(), key); err != nil {
			r.writeError(w, err)
			return
		}
		ctx := context.WithValue(req.Context(), apiKeyContextKey, key)
		next.ServeHTTP(w, req.WithContext(ctx))
	})
}

func apiKeyFrom(ctx context.Context) models.APIKey {
	if key, ok := ctx.Value(apiKeyContextKey).(models.APIKey); ok {
		return key
	}
	return models.APIKey{}
}
