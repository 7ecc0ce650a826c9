package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsMatchesKind(t *testing.T) {
	err := fmt.Errorf("load resource: %w", NotFound("resource not found"))

	assert.True(t, errors.Is(err, ErrNotFound))
	assert.False(t, errors.Is(err, ErrConflict))
	assert.Equal(t, KindNotFound, KindOf(err))
	assert.Equal(t, "resource not found", Message(err, "fallback"))
}

func TestIOWrapsCause(t *testing.T) {
	cause := errors.New("disk full")
	err := IO("failed to store file", cause)

	assert.True(t, errors.Is(err, ErrIO))
	assert.True(t, errors.Is(err, cause))
	assert.Equal(t, "failed to store file: disk full", err.Error())
}

func TestUnclassified(t *testing.T) {
	err := errors.New("boom")

	assert.Equal(t, KindInternal, KindOf(err))
	assert.Equal(t, "fallback", Message(err, "fallback"))
	assert.Equal(t, "validation error", Message(ErrValidation, ""))
}
