// Package apperror defines the error categories shared by the domain services.
// Specific errors wrap one of the categories so callers can map them with errors.Is.
package apperror

import (
	"errors"
	"fmt"
)

// Error categories
var (
	ErrValidation = errors.New("validation failed")
	ErrConflict   = errors.New("state conflict")
	ErrForbidden  = errors.New("not permitted")
	ErrNotFound   = errors.New("not found")
	ErrTransport  = errors.New("transport failure")
)

// Validation returns an error in the validation category.
func Validation(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// Conflict returns an error in the state conflict category.
func Conflict(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConflict, fmt.Sprintf(format, args...))
}

// Forbidden returns an error in the authorization category.
func Forbidden(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrForbidden, fmt.Sprintf(format, args...))
}

// NotFound returns an error in the not found category.
func NotFound(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}

// Transport returns an error in the transport category.
func Transport(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrTransport, fmt.Sprintf(format, args...))
}

// Category returns the category sentinel an error belongs to, or nil for
// errors outside the taxonomy.
func Category(err error) error {
	for _, c := range []error{ErrValidation, ErrConflict, ErrForbidden, ErrNotFound, ErrTransport} {
		if errors.Is(err, c) {
			return c
		}
	}
	return nil
}

// Message strips the category prefix so only the human-readable reason is shown to users.
func Message(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	if c := Category(err); c != nil {
		prefix := c.Error() + ": "
		if len(msg) > len(prefix) && msg[:len(prefix)] == prefix {
			return msg[len(prefix):]
		}
	}
	return msg
}
