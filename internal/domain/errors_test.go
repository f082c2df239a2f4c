package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDomainError_Error(t *testing.T) {
	assert.Equal(t, "[NOT_FOUND] document not found", ErrDocumentNotFound.Error())

	wrapped := NewDomainErrorWithCause(ErrCodeInternalError, "save failed", errors.New("disk full"))
	assert.Equal(t, "[INTERNAL_ERROR] save failed: disk full", wrapped.Error())
	assert.EqualError(t, errors.Unwrap(wrapped), "disk full")
}

func TestTypedErrors_As(t *testing.T) {
	cause := errors.New("boom")

	t.Run("extraction", func(t *testing.T) {
		err := fmt.Errorf("extract: %w", NewExtractionError(ExtractionCauseEncrypted, cause))
		var target *ExtractionError
		require.True(t, errors.As(err, &target))
		assert.Equal(t, ExtractionCauseEncrypted, target.Cause)
		assert.ErrorIs(t, err, cause)
		assert.Equal(t, ErrCodeExtraction, ErrorCode(err))
	})

	t.Run("embedding batch", func(t *testing.T) {
		err := NewEmbeddingBatchError(10, 5, cause)
		assert.Contains(t, err.Error(), "[10:15]")
		assert.Equal(t, ErrCodeEmbeddingBatch, ErrorCode(err))
	})

	t.Run("dimension mismatch", func(t *testing.T) {
		err := fmt.Errorf("search: %w", NewDimensionMismatchError(3, 4))
		var target *DimensionMismatchError
		require.True(t, errors.As(err, &target))
		assert.Equal(t, 3, target.Expected)
		assert.Equal(t, 4, target.Actual)
	})

	t.Run("query", func(t *testing.T) {
		err := NewQueryError(cause)
		assert.Equal(t, QuerySafeMessage, err.SafeMessage())
		assert.Equal(t, ErrCodeQuery, ErrorCode(err))
		assert.ErrorIs(t, err, cause)
	})

	t.Run("initialization", func(t *testing.T) {
		err := NewInitializationError("no provider credentials", nil)
		assert.Equal(t, ErrCodeInitialization, ErrorCode(err))
	})
}

func TestErrorCode_Plain(t *testing.T) {
	assert.Equal(t, "", ErrorCode(errors.New("plain")))
	assert.Equal(t, ErrCodeNotFound, ErrorCode(fmt.Errorf("lookup: %w", ErrDocumentNotFound)))
}
