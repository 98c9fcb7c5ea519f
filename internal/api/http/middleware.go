package http

import (
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"equiprent-backend/internal/logger"
	"equiprent-backend/internal/security"
)

// extractBearerToken reads the token from the Authorization header. The
// scheme is matched case-insensitively.
func extractBearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	if len(header) < 8 || !strings.EqualFold(header[:7], "bearer ") {
		return "", false
	}
	token := strings.TrimSpace(header[7:])
	return token, token != ""
}

// AuthMiddleware admits requests carrying a valid access token bound to a
// company and stores its claims on the request context.
func AuthMiddleware(tm security.TokenManager) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := extractBearerToken(r)
			if !ok {
				writeJSON(w, http.StatusUnauthorized, errorBody{Error: "authorization token is not provided"})
				return
			}

			claims, err := tm.ValidateToken(token)
			if err != nil {
				logger.Debug("Rejected token", "path", r.URL.Path, "error", err)
				writeJSON(w, http.StatusUnauthorized, errorBody{Error: err.Error()})
				return
			}
			if err := security.RequireAccess(claims); err != nil {
				writeJSON(w, http.StatusForbidden, errorBody{Error: err.Error()})
				return
			}

			next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
		})
	}
}
