package refresh

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"
)

// Decision is the outcome of DecideRetry.
type Decision int

const (
	// Propagate passes the original failure through unchanged.
	Propagate Decision = iota

	// RetryAfterRefresh resubmits the request once the refresh it triggers
	// or joins has completed.
	RetryAfterRefresh

	// GiveUp ends the request with a *RetryExhaustedError.
	GiveUp
)

// String returns the metric label for d.
func (d Decision) String() string {
	switch d {
	case Propagate:
		return "propagate"
	case RetryAfterRefresh:
		return "retry"
	case GiveUp:
		return "give_up"
	default:
		return "unknown"
	}
}

// Failure describes a failed request attempt.
type Failure struct {
	// StatusCode is the response status, or 0 when no response was received.
	// gRPC callers map their status codes onto the HTTP equivalents.
	StatusCode int

	// Err is the transport error, or nil when a response was received.
	Err error

	// Signal is the context the attempt was sent with, as returned by
	// AcquireSignal. It is used to tell self-induced cancellation apart.
	Signal context.Context
}

// StatusError reports a response status that ended a request.
type StatusError struct {
	StatusCode int
}

// Error implements the error interface.
func (e *StatusError) Error() string {
	return fmt.Sprintf("refresh: unexpected response status %d %s", e.StatusCode, http.StatusText(e.StatusCode))
}

// CanceledByRefresh reports whether the attempt failed because its epoch was
// invalidated by a starting refresh, as opposed to the caller cancelling it
// or an ordinary transport error.
func (c *Coordinator) CanceledByRefresh(f Failure) bool {
	if f.Err == nil || f.Signal == nil || f.Signal.Err() == nil {
		return false
	}
	return errors.Is(context.Cause(f.Signal), ErrRefreshInProgress)
}

// ShouldRefresh reports whether f matches the refresh predicate: the custom
// classifier when one is configured, the status code set otherwise.
func (c *Coordinator) ShouldRefresh(f Failure) bool {
	if c.shouldRefresh != nil {
		return c.shouldRefresh(f)
	}
	if f.StatusCode == 0 {
		return false
	}
	_, ok := c.statusCodes[f.StatusCode]
	return ok
}

// DecideRetry classifies a failed attempt of the request tracked by state.
//
// A request whose budget is spent gets GiveUp with a *RetryExhaustedError.
// A failure matching the refresh predicate, or a cancellation caused by this
// coordinator's own epoch, gets RetryAfterRefresh and state.Retries is
// incremented. Anything else gets Propagate. DecideRetry never waits on a
// refresh; the caller must go through AcquireSignal again before resending.
func (c *Coordinator) DecideRetry(state *RequestState, f Failure) (Decision, error) {
	if state == nil {
		state = &RequestState{}
	}

	logger := c.logger.With(
		zap.String("request_id", state.ID),
		zap.Int("retries", state.Retries),
		zap.Int("status_code", f.StatusCode),
	)

	if state.Retries >= c.maxRetries {
		cause := f.Err
		if cause == nil && f.StatusCode != 0 {
			cause = &StatusError{StatusCode: f.StatusCode}
		}
		c.metrics.recordDecision(GiveUp)
		logger.Warn("retry budget exhausted", zap.NamedError("cause", cause))
		return GiveUp, &RetryExhaustedError{Attempts: state.Retries, Err: cause}
	}

	if c.ShouldRefresh(f) || c.CanceledByRefresh(f) {
		state.Retries++
		c.metrics.recordDecision(RetryAfterRefresh)
		logger.Debug("retrying after credential refresh")
		return RetryAfterRefresh, nil
	}

	c.metrics.recordDecision(Propagate)
	return Propagate, nil
}
