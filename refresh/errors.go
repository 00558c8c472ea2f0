package refresh

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by the coordinator.
var (
	// ErrRefreshInProgress is the cancellation cause attached to every signal
	// of an epoch that was invalidated because a credential refresh started.
	ErrRefreshInProgress = errors.New("refresh: credentials are being refreshed")

	// ErrEmptyCredential indicates that a refresh handler reported success
	// but produced no credential.
	ErrEmptyCredential = errors.New("refresh: handler returned an empty credential")

	// ErrNilHandler is returned by New when no refresh handler is supplied.
	ErrNilHandler = errors.New("refresh: handler is nil")

	// ErrInvalidConfig indicates that a Config failed validation.
	ErrInvalidConfig = errors.New("refresh: invalid configuration")

	// ErrHandlerPanic indicates that the refresh handler panicked. The panic
	// is recovered and reported as a failed refresh round.
	ErrHandlerPanic = errors.New("refresh: handler panicked")
)

// RefreshError reports a failed refresh round. It is returned to the caller
// that triggered the refresh and to every caller that was parked on it.
type RefreshError struct {
	Cause error
}

// Error implements the error interface.
func (e *RefreshError) Error() string {
	if e.Cause == nil {
		return "refresh: credential refresh failed"
	}
	return fmt.Sprintf("refresh: credential refresh failed: %v", e.Cause)
}

// Unwrap returns the underlying error.
func (e *RefreshError) Unwrap() error {
	return e.Cause
}

// RetryExhaustedError is the terminal error for a request whose retry budget
// was spent while it kept failing.
type RetryExhaustedError struct {
	// Attempts is the number of refresh-triggered retries already made.
	Attempts int

	// Err is the failure observed on the last attempt, if any.
	Err error
}

// Error implements the error interface.
func (e *RetryExhaustedError) Error() string {
	msg := fmt.Sprintf("refresh: credentials refreshed but request still failed after %d retry attempt(s)", e.Attempts)
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the last observed failure.
func (e *RetryExhaustedError) Unwrap() error {
	return e.Err
}

// IsRefreshError reports whether err is, or wraps, a *RefreshError.
func IsRefreshError(err error) bool {
	var re *RefreshError
	return errors.As(err, &re)
}

// IsRetryExhausted reports whether err is, or wraps, a *RetryExhaustedError.
func IsRetryExhausted(err error) bool {
	var re *RetryExhaustedError
	return errors.As(err, &re)
}
