// Package errs holds the business error taxonomy shared by the engines.
// Detailed errors wrap one of the sentinels, so callers check them with errors.Is.
package errs

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrValidation        = errors.New("validation error")
	ErrNotFound          = errors.New("not found")
	ErrForbidden         = errors.New("forbidden")
	ErrInvalidState      = errors.New("invalid state")
	ErrInsufficientStock = errors.New("insufficient stock")
)

func Validation(format string, a ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, a...))
}

func NotFound(format string, a ...any) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, a...))
}

func Forbidden(format string, a ...any) error {
	return fmt.Errorf("%w: %s", ErrForbidden, fmt.Sprintf(format, a...))
}

func InvalidState(format string, a ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidState, fmt.Sprintf(format, a...))
}

// InsufficientStockError carries the stock seen at check time.
type InsufficientStockError struct {
	MaterialID int64
	Current    float64
	Requested  float64
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock: material %d has %g, requested %g", e.MaterialID, e.Current, e.Requested)
}

func (e *InsufficientStockError) Unwrap() error { return ErrInsufficientStock }

// IncompleteItemsError is returned when a stocktaking task still has uncounted items.
type IncompleteItemsError struct {
	TaskID int64
	Count  int
}

func (e *IncompleteItemsError) Error() string {
	return fmt.Sprintf("validation error: %d items of task %d have no actual stock recorded", e.Count, e.TaskID)
}

func (e *IncompleteItemsError) Unwrap() error { return ErrValidation }

// HTTPStatus maps a business error to a response code. Anything unknown is a 500.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrInvalidState):
		return http.StatusConflict
	case errors.Is(err, ErrInsufficientStock):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
