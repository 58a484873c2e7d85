// Package errors carries the error taxonomy shared by services and
// transports. Every failure surfaced by a mutating operation wraps exactly
// one of the category sentinels so callers can branch with errors.Is.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrValidation marks malformed or missing required fields. Rejected
	// before any store or registry mutation.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound marks an unknown user, conversation or member.
	ErrNotFound = errors.New("not found")
	// ErrPermission marks an actor lacking admin or member standing.
	ErrPermission = errors.New("permission denied")
	// ErrStore marks a persistence failure; the mutation was aborted and
	// the caller may retry.
	ErrStore = errors.New("store unavailable")
	// ErrDelivery marks a single unreachable connection during fan-out.
	// Isolated per connection, never fails the overall operation.
	ErrDelivery = errors.New("delivery failed")

	ErrUnauthenticated    = errors.New("unauthenticated")
	ErrUserAlreadyExists  = errors.New("user already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidPassword    = errors.New("password does not meet complexity requirements")
	ErrWorkerPanic        = errors.New("worker panic")
	ErrEmptyWords         = errors.New("censored word list is empty")
)

func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

func NotFoundf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}

func Permissionf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrPermission, fmt.Sprintf(format, args...))
}

// Store wraps a persistence-layer failure, keeping the cause in the chain.
func Store(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %v", ErrStore, err)
}

// HTTPStatus maps a taxonomy error to the status the REST layer returns.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrUnauthenticated), errors.Is(err, ErrInvalidCredentials):
		return http.StatusForbidden
	case errors.Is(err, ErrPermission):
		return http.StatusForbidden
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrUserAlreadyExists):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
