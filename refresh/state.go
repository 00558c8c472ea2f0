package refresh

import (
	"context"

	"github.com/google/uuid"
)

// RequestState is the retry bookkeeping for one logical request. It lives in
// the request's context rather than on a shared request config, so reusing a
// config for several requests never shares a retry counter.
type RequestState struct {
	// ID correlates log lines of all attempts of the same request.
	ID string

	// Retries counts refresh-triggered resubmissions made so far.
	Retries int
}

// NewRequestState returns a fresh state with a random ID and no retries.
func NewRequestState() *RequestState {
	return &RequestState{ID: uuid.NewString()}
}

type requestStateKey struct{}

// WithRequestState returns a copy of ctx carrying state.
func WithRequestState(ctx context.Context, state *RequestState) context.Context {
	return context.WithValue(ctx, requestStateKey{}, state)
}

// RequestStateFromContext returns the state stored in ctx, if any.
func RequestStateFromContext(ctx context.Context) (*RequestState, bool) {
	state, ok := ctx.Value(requestStateKey{}).(*RequestState)
	return state, ok && state != nil
}

// EnsureRequestState returns the state stored in ctx, creating and attaching
// a new one on first sight.
func EnsureRequestState(ctx context.Context) (context.Context, *RequestState) {
	if state, ok := RequestStateFromContext(ctx); ok {
		return ctx, state
	}
	state := NewRequestState()
	return WithRequestState(ctx, state), state
}
