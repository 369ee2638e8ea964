package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	err := E(KindInsufficientFunds, "balance too low")
	assert.Equal(t, KindInsufficientFunds, KindOf(err))

	wrapped := fmt.Errorf("spend failed: %w", err)
	assert.Equal(t, KindInsufficientFunds, KindOf(wrapped), "kind survives fmt.Errorf wrapping")

	assert.Equal(t, KindStoreUnavailable, KindOf(errors.New("raw driver error")),
		"untagged errors are store failures")
}

func TestIsKind(t *testing.T) {
	err := WrapE(KindLockTimeout, errors.New("canceling statement due to lock timeout"), "lock wait")

	assert.True(t, IsKind(err, KindLockTimeout))
	assert.False(t, IsKind(err, KindInsufficientFunds))
	assert.False(t, IsKind(nil, KindLockTimeout))
}

func TestWrapPreservesCause(t *testing.T) {
	cause := errors.New("connection reset")
	err := WrapE(KindStoreUnavailable, cause, "idempotency lookup failed")

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "idempotency lookup failed")
}

func TestRetryable(t *testing.T) {
	assert.True(t, Retryable(KindDuplicateKeyRace))
	assert.True(t, Retryable(KindLockTimeout))
	assert.False(t, Retryable(KindInsufficientFunds))
	assert.False(t, Retryable(KindStoreUnavailable))
	assert.False(t, Retryable(KindPriorAttemptFailed))
}
