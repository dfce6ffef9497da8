package dynamolock

import "errors"

// Sentinel errors returned by the client facade and its engines. Callers
// should match them with errors.Is; the concrete error returned often wraps
// one of these with additional context.
var (
	// ErrTimeout is returned when Acquire exceeds AcquireTimeoutMs.
	ErrTimeout = errors.New("dynamolock: acquire timed out")
	// ErrUnavailable is returned when Acquire exhausts MaxAttempts against a
	// live, renewing owner.
	ErrUnavailable = errors.New("dynamolock: lock unavailable after max attempts")
	// ErrLockLost is returned by owner-facing operations once a Lock's
	// renewal failed, its local deadline passed, or a release CAS mismatched.
	ErrLockLost = errors.New("dynamolock: lock lost")
	// ErrCanceled is returned when the caller's context is done mid-wait,
	// mid-backoff, or mid-acquire.
	ErrCanceled = errors.New("dynamolock: acquire canceled")
	// ErrAlreadyHeld is returned when a client attempts to acquire a lock it
	// already owns; reentrancy is a non-goal (spec.md §9 Open Questions).
	ErrAlreadyHeld = errors.New("dynamolock: lock already held by this client")
	// ErrUnknown is returned when a write's outcome could not be determined
	// because of a transient backing-store error: Release returns it after
	// bounded retries, Acquire on the first transient write error without
	// retrying. Callers must treat the lock as indeterminate.
	ErrUnknown = errors.New("dynamolock: write outcome unknown")
	// ErrFatal is returned for non-retryable backing-store errors:
	// authorization failures, schema mismatches, or programmer error.
	ErrFatal = errors.New("dynamolock: fatal backing-store error")
	// ErrPayloadTooLarge is returned by Acquire when the supplied payload
	// exceeds Options.MaxPayloadBytes.
	ErrPayloadTooLarge = errors.New("dynamolock: payload exceeds maximum size")
	// ErrInvalidName is returned when Options.NameValidator rejects a lock name.
	ErrInvalidName = errors.New("dynamolock: invalid lock name")
)
