package services

import (
	"errors"
	"fmt"
	"net/http"
)

// Domain-level error values shared across services.
var (
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrWalletNotFound      = errors.New("wallet not found")
)

// ValidationError reports malformed or missing input. Never retried.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// NotFoundError reports a referenced entity that does not exist or is not
// owned by the caller's store.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Resource, e.ID)
}

// InvalidTransitionError reports an illegal withdrawal status change. Both
// statuses are included so operators can see what was attempted.
type InvalidTransitionError struct {
	From string
	To   string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid status transition from %s to %s", e.From, e.To)
}

// LockError reports that a resource is held by a concurrent operation.
// Callers may retry after a short backoff.
type LockError struct {
	Resource string
}

func (e *LockError) Error() string {
	return fmt.Sprintf("resource busy: %s", e.Resource)
}

// StorageError reports a failed atomic commit or other infrastructure
// failure. No partial state is left behind, so bounded retries are safe.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage failure during %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// HTTPStatus maps a service error to the status code surfaced to clients.
func HTTPStatus(err error) int {
	var (
		validationErr *ValidationError
		notFoundErr   *NotFoundError
		transitionErr *InvalidTransitionError
		lockErr       *LockError
	)
	switch {
	case errors.As(err, &validationErr), errors.As(err, &transitionErr),
		errors.Is(err, ErrInsufficientBalance):
		return http.StatusBadRequest
	case errors.As(err, &notFoundErr), errors.Is(err, ErrWalletNotFound):
		return http.StatusNotFound
	case errors.As(err, &lockErr):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
