package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMessage(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"not found", NotFound("step"), "step not found"},
		{"wrapped not found", fmt.Errorf("failed to get step 5: %w", NotFound("step")), "step not found"},
		{"forbidden", Forbidden("enroll in the story first"), "enroll in the story first"},
		{"wrapped conflict", fmt.Errorf("failed to enroll: %w", Conflict("already enrolled")), "already enrolled"},
		{"bare sentinel", ErrUnauthorized, "unauthorized"},
		{"untyped", errors.New("boom"), "boom"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Message(tt.err))
		})
	}
}

func TestConstructorsWrapSentinels(t *testing.T) {
	assert.ErrorIs(t, NotFound("user"), ErrNotFound)
	assert.ErrorIs(t, Forbidden("x"), ErrForbidden)
	assert.ErrorIs(t, Unauthorized("x"), ErrUnauthorized)
	assert.ErrorIs(t, Conflict("x"), ErrConflict)
	assert.ErrorIs(t, Validation("x"), ErrValidation)
}
