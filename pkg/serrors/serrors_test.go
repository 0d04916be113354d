package serrors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVersionConflictError(t *testing.T) {
	t.Parallel()

	err := NewVersionConflictError("order", 3, 5)
	assert.Equal(t, http.StatusConflict, err.Status)
	assert.Equal(t, CodeVersionConflict, err.Code)
	assert.Equal(t, "3", err.Meta["expected_version"])
	assert.Equal(t, "5", err.Meta["actual_version"])
}

func TestStatusAndCodeUnwrapping(t *testing.T) {
	t.Parallel()

	inner := NewNotFoundError("order")
	wrapped := fmt.Errorf("load order: %w", inner)

	assert.Equal(t, http.StatusNotFound, Status(wrapped))
	assert.Equal(t, CodeNotFound, Code(wrapped))

	assert.Equal(t, http.StatusInternalServerError, Status(errors.New("boom")))
	assert.Equal(t, CodeInternal, Code(errors.New("boom")))
}

func TestInternalErrorKeepsCause(t *testing.T) {
	t.Parallel()

	cause := errors.New("connection refused")
	err := NewInternalError(cause)
	require.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestFieldRequired(t *testing.T) {
	t.Parallel()

	err := NewFieldRequiredError("entity_type")
	assert.Equal(t, http.StatusBadRequest, err.Status)
	assert.Equal(t, CodeValidation, err.Code)
	assert.Equal(t, "entity_type", err.Meta["field"])
}
