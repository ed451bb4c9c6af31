package api

import (
	"context"
	"errors"
	"fmt"

	"github.com/iliyamo/garment-booking/internal/repository"
)

// Error is a non-2xx answer from the booking API. It unwraps to the
// repository sentinel that matches its code, so callers can use errors.Is
// the same way they would in process.
type Error struct {
	Status  int
	Code    string
	Message string
	Fields  map[string]string
}

func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("api: %d %s: %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("api: %d %s", e.Status, e.Code)
}

func (e *Error) Unwrap() error {
	switch e.Code {
	case CodeStockChanged:
		return repository.ErrStockChanged
	case CodeInsufficientStock:
		return repository.ErrInsufficientStock
	case CodeEmailExists:
		return repository.ErrEmailExists
	}
	switch e.Status {
	case 403:
		return repository.ErrForbidden
	case 404:
		return repository.ErrNotFound
	case 409:
		return repository.ErrConflict
	}
	return nil
}

// Retryable reports whether the request may succeed if sent again: the
// server failed or was unreachable rather than rejecting the request.
func (e *Error) Retryable() bool { return e.Status >= 500 || e.Status == 429 }

// Retryable classifies any error returned by a Client: API errors by
// status, cancellation as final and transport failures as retryable.
func Retryable(err error) bool {
	var e *Error
	switch {
	case err == nil:
		return false
	case errors.As(err, &e):
		return e.Retryable()
	case errors.Is(err, context.Canceled):
		return false
	}
	return true
}
