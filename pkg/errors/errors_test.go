package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBusinessError_Unwrap(t *testing.T) {
	err := WrapInvariant("deposit would exceed maximum balance", ErrMaximumBalanceExceeded)

	assert.ErrorIs(t, err, ErrMaximumBalanceExceeded)
	assert.Contains(t, err.Error(), ErrCodeInvariantViolation)
}

func TestIsCode(t *testing.T) {
	err := WrapNotFound("escrow account", "abc", ErrAccountNotFound)

	assert.True(t, IsCode(err, ErrCodeNotFound))
	assert.False(t, IsCode(err, ErrCodeValidation))
	assert.False(t, IsCode(errors.New("plain"), ErrCodeNotFound))

	wrapped := fmt.Errorf("handler: %w", err)
	assert.True(t, IsCode(wrapped, ErrCodeNotFound))
}

func TestWrapInvalidTransition_Message(t *testing.T) {
	err := WrapInvalidTransition("payout request", "completed", "processing")

	assert.Equal(t, ErrCodeInvalidTransition, err.Code)
	assert.Contains(t, err.Message, "completed")
	assert.Contains(t, err.Message, "processing")
	assert.ErrorIs(t, err, ErrInvalidTransition)
}
