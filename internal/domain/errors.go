package domain

import (
	"errors"
	"fmt"
)

// Kind is the closed set of failure categories the engine can surface.
// Callers branch on the kind, never on the message text.
type Kind string

const (
	KindInvalidAmount         Kind = "invalid_amount"
	KindMissingIdempotencyKey Kind = "missing_idempotency_key"
	KindAccountNotFound       Kind = "account_not_found"
	KindSystemAccountNotFound Kind = "system_account_not_found"
	KindInsufficientFunds     Kind = "insufficient_funds"
	KindPriorAttemptFailed    Kind = "prior_attempt_failed"
	KindDuplicateKeyRace      Kind = "duplicate_key_race"
	KindLockTimeout           Kind = "lock_timeout"
	KindStoreUnavailable      Kind = "store_unavailable"
)

// Error is a kind-tagged failure, optionally wrapping a cause.
type Error struct {
	kind    Kind
	message string
	cause   error
}

func E(kind Kind, message string) *Error {
	return &Error{kind: kind, message: message}
}

func Ef(kind Kind, format string, args ...any) *Error {
	return &Error{kind: kind, message: fmt.Sprintf(format, args...)}
}

// WrapE attaches a kind to an underlying error.
func WrapE(kind Kind, cause error, message string) *Error {
	return &Error{kind: kind, message: message, cause: cause}
}

func (e *Error) Kind() Kind {
	if e == nil {
		return KindStoreUnavailable
	}
	return e.kind
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.kind, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.kind, e.message)
}

func (e *Error) Unwrap() error { return e.cause }

// KindOf extracts the kind from err. Untagged errors are treated as
// store-level failures, the only category the engine cannot classify.
func KindOf(err error) Kind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind()
	}
	return KindStoreUnavailable
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	var de *Error
	return errors.As(err, &de) && de.Kind() == kind
}

// Retryable reports whether the caller may resubmit the same request. A
// duplicate-key race and a lock timeout both left nothing committed, so the
// same idempotency key remains safe to reuse.
func Retryable(kind Kind) bool {
	switch kind {
	case KindDuplicateKeyRace, KindLockTimeout:
		return true
	}
	return false
}
