package apperrors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInsufficientStockError_MatchesSentinel(t *testing.T) {
	err := fmt.Errorf("checkout: %w", &InsufficientStockError{ProductID: "p1", ProductName: "Laptop", Remaining: 2})

	assert.True(t, errors.Is(err, ErrInsufficientStock))
	assert.Contains(t, err.Error(), "Laptop: Only 2 left in stock")

	var stockErr *InsufficientStockError
	assert.True(t, errors.As(err, &stockErr))
	assert.Equal(t, 2, stockErr.Remaining)
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, http.StatusOK},
		{"duplicate", ErrDuplicateEvent, http.StatusOK},
		{"validation", Validation("cart is empty"), http.StatusBadRequest},
		{"stock", &InsufficientStockError{ProductName: "Mouse"}, http.StatusBadRequest},
		{"not found", NotFound("user", "u1"), http.StatusNotFound},
		{"unauthorized", ErrUnauthorized, http.StatusUnauthorized},
		{"payment", Payment(errors.New("timeout")), http.StatusInternalServerError},
		{"conflict", Conflict(errors.New("deadlock")), http.StatusConflict},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HTTPStatus(tt.err))
		})
	}
}

func TestIsTransient(t *testing.T) {
	assert.True(t, IsTransient(Internal(errors.New("connection reset"))))
	assert.False(t, IsTransient(Conflict(errors.New("deadlock"))))
	assert.False(t, IsTransient(ErrUnauthorized))
	assert.False(t, IsTransient(Validation("bad")))
}

func TestInternal_DoesNotDoubleWrap(t *testing.T) {
	err := Internal(errors.New("db down"))
	assert.Equal(t, err, Internal(err))
	assert.Nil(t, Internal(nil))
}
