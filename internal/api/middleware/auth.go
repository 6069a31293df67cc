package middleware

import (
	"net/http"
	"strings"

	"github.com/leasehub/backend/internal/auth"
)

// Authenticate verifies the session token and stores the actor in the
// request context. The token is read from the Authorization bearer header,
// or from the access_token query parameter for WebSocket upgrades, which
// cannot carry custom headers from browsers.
func Authenticate(tokens *auth.Tokens) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := bearerToken(r)
			if raw == "" {
				WriteError(w, http.StatusUnauthorized, ErrUnauthorized, "Missing session token")
				return
			}

			actor, err := tokens.Verify(raw)
			if err != nil {
				WriteError(w, http.StatusUnauthorized, ErrUnauthorized, "Invalid session token")
				return
			}

			next.ServeHTTP(w, r.WithContext(auth.WithActor(r.Context(), actor)))
		})
	}
}

func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	return r.URL.Query().Get("access_token")
}
