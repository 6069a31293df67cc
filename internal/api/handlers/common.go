package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/leasehub/backend/internal/api/middleware"
	"github.com/leasehub/backend/internal/auth"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// decodeJSON reads the request body into v, writing a 400 on failure.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, middleware.ErrBadRequest, "Invalid JSON body")
		return false
	}
	return true
}

// actorFrom returns the authenticated actor, writing a 401 when there is none.
func actorFrom(w http.ResponseWriter, r *http.Request) (auth.Actor, bool) {
	actor, ok := auth.FromContext(r.Context())
	if !ok {
		middleware.WriteError(w, http.StatusUnauthorized, middleware.ErrUnauthorized, "Authentication required")
	}
	return actor, ok
}

// reasonRequest is the body of reject and terminate calls.
type reasonRequest struct {
	Reason string `json:"reason"`
}
