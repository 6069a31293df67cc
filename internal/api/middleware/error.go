// Package middleware provides HTTP middleware for the API.
package middleware

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"runtime/debug"

	"github.com/leasehub/backend/internal/apperror"
)

// ErrorResponse represents a standardized API error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// WriteError writes a JSON error response with the given status code.
func WriteError(w http.ResponseWriter, status int, errCode, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{
		Error:   errCode,
		Message: message,
	})
}

// WriteErrorWithDetails writes a JSON error response with additional details.
func WriteErrorWithDetails(w http.ResponseWriter, status int, errCode, message string, details any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{
		Error:   errCode,
		Message: message,
		Details: details,
	})
}

// WriteDomainError maps a service error onto its HTTP status and error
// code. Errors outside the known categories are logged and reported as a
// bare internal error.
func WriteDomainError(w http.ResponseWriter, r *http.Request, err error) {
	switch apperror.Category(err) {
	case apperror.ErrValidation:
		WriteError(w, http.StatusBadRequest, ErrValidation, apperror.Message(err))
	case apperror.ErrConflict:
		WriteError(w, http.StatusConflict, ErrConflict, apperror.Message(err))
	case apperror.ErrForbidden:
		WriteError(w, http.StatusForbidden, ErrForbidden, apperror.Message(err))
	case apperror.ErrNotFound:
		WriteError(w, http.StatusNotFound, ErrNotFound, apperror.Message(err))
	default:
		if ctxErr := r.Context().Err(); ctxErr != nil && errors.Is(err, ctxErr) {
			log.Printf("%s %s: request cancelled: %v", r.Method, r.URL.Path, err)
		} else {
			log.Printf("%s %s: %v", r.Method, r.URL.Path, err)
		}
		WriteError(w, http.StatusInternalServerError, ErrInternalError, "An unexpected error occurred")
	}
}

// ErrorRecovery is middleware that recovers from panics and returns a 500 error.
func ErrorRecovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				log.Printf("Panic recovered: %v\n%s", err, debug.Stack())
				WriteError(w, http.StatusInternalServerError, ErrInternalError, "An unexpected error occurred")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// Common error codes
const (
	ErrNotFound      = "not_found"
	ErrBadRequest    = "bad_request"
	ErrConflict      = "conflict"
	ErrInternalError = "internal_error"
	ErrValidation    = "validation_error"
	ErrUnauthorized  = "unauthorized"
	ErrForbidden     = "forbidden"
	ErrRateLimited   = "rate_limited"
)
