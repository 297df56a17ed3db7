// Package apperrors is the error taxonomy shared by the ordering pipeline.
// Callers wrap one of the sentinels with context and test with errors.Is.
package apperrors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrValidation        = errors.New("validation error")
	ErrNotFound          = errors.New("not found")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrPayment           = errors.New("payment error")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrDuplicateEvent    = errors.New("duplicate event")
	ErrConflict          = errors.New("write conflict")
	ErrInternal          = errors.New("internal error")
)

// InsufficientStockError carries the product that could not be reserved and
// how many units were left when the attempt failed.
type InsufficientStockError struct {
	ProductID   string
	ProductName string
	Remaining   int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("%s: Only %d left in stock", e.ProductName, e.Remaining)
}

func (e *InsufficientStockError) Is(target error) bool {
	return target == ErrInsufficientStock
}

// Validation returns an ErrValidation with a formatted message.
func Validation(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// NotFound returns an ErrNotFound naming the missing entity.
func NotFound(entity, id string) error {
	return fmt.Errorf("%w: %s %s", ErrNotFound, entity, id)
}

// Payment wraps a gateway failure.
func Payment(err error) error {
	return fmt.Errorf("%w: %v", ErrPayment, err)
}

// Conflict wraps a transactional write conflict.
func Conflict(err error) error {
	return fmt.Errorf("%w: %v", ErrConflict, err)
}

// Internal wraps an unexpected failure.
func Internal(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrInternal) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrInternal, err)
}

// HTTPStatus maps an error to the response code the API reports for it.
func HTTPStatus(err error) int {
	switch {
	case err == nil, errors.Is(err, ErrDuplicateEvent):
		return http.StatusOK
	case errors.Is(err, ErrValidation), errors.Is(err, ErrInsufficientStock):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// IsTransient reports whether retrying the same operation may succeed.
// Conflicts are excluded: the materializer has already retried them.
func IsTransient(err error) bool {
	return errors.Is(err, ErrInternal)
}
