package apperror

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorMatchesKindSentinel(t *testing.T) {
	err := NewPostingError("PostInvoice", "invoice already posted")

	assert.True(t, errors.Is(err, ErrPosting))
	assert.False(t, errors.Is(err, ErrValidation))
	assert.Equal(t, KindPosting, KindOf(err))
}

func TestErrorSurvivesWrapping(t *testing.T) {
	inner := NewAlreadyIncludedError("GenerateChallan", "invoice INV-7 already in challan C-1")
	wrapped := fmt.Errorf("failed to generate challan: %w", inner)

	assert.True(t, errors.Is(wrapped, ErrAlreadyIncluded))
	assert.Equal(t, KindAlreadyIncluded, KindOf(wrapped))
}

func TestErrorMessage(t *testing.T) {
	err := NewValidationError("Compute", "items[0].quantity", "must be greater than zero")
	assert.Equal(t, "Compute: VALIDATION_ERROR (field items[0].quantity): must be greater than zero", err.Error())
}

func TestKindOfForeignError(t *testing.T) {
	assert.Equal(t, KindInternal, KindOf(errors.New("boom")))
}

func TestConflictUnwrapsCause(t *testing.T) {
	cause := errors.New("lock not obtained")
	err := NewConflictError("GenerateChallan", "challan generation in progress", cause)

	assert.True(t, errors.Is(err, cause))
	assert.True(t, errors.Is(err, ErrConflict))
}
