package apperrors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppError_ErrorMessage(t *testing.T) {
	e := New(TypeConfig, "destination is not a directory", "create it first")
	assert.Equal(t, "destination is not a directory", e.Error())
}

func TestAppError_ErrorMessageWithWrappedCause(t *testing.T) {
	cause := errors.New("permission denied")
	e := Wrap(cause, TypeResource, "failed to unlink tempfile", "check directory permissions")
	assert.Equal(t, "failed to unlink tempfile: permission denied", e.Error())
}

func TestAppError_Unwrap(t *testing.T) {
	cause := errors.New("connection refused")
	e := Wrap(cause, TypeConnection, "manifest fetch failed", "")
	assert.Equal(t, cause, errors.Unwrap(e))
	assert.True(t, errors.Is(e, cause))
}

func TestAppError_AsMatchesConcreteType(t *testing.T) {
	e := New(TypeIntegrity, "digest mismatch", "")
	var target *AppError
	assert.True(t, errors.As(e, &target))
	assert.Equal(t, TypeIntegrity, target.Type)
}

func TestSentinelErrors(t *testing.T) {
	assert.Equal(t, TypeIntegrity, ErrIntegrityMismatch.Type)
	assert.Equal(t, TypeParse, ErrMalformedName.Type)
}
