package httpclient

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/AmmannChristian/go-refreshx/refresh"
	"go.uber.org/zap"
)

// RefreshTransport is an http.RoundTripper that retries requests after a
// coordinated credential refresh.
//
// Every attempt is sent on a signal obtained from the Coordinator. When an
// attempt fails with a transport error or a status of 400 or above, the
// Coordinator decides whether to refresh and resend, give up or pass the
// failure through. Request bodies are buffered once when the request has no
// GetBody, so retried attempts resend the same payload.
//
// The returned response keeps its signal until the body is closed. Always
// close response bodies.
type RefreshTransport struct {
	// Base sends the individual attempts, typically an OAuth2Transport.
	// If nil, http.DefaultTransport is used.
	Base http.RoundTripper

	// Coordinator serialises refreshes across every request sharing it.
	Coordinator *refresh.Coordinator

	// Interceptors are optional user callbacks.
	Interceptors Interceptors

	// Logger receives per-attempt debug output. If nil, nothing is logged.
	Logger *zap.Logger
}

// NewRefreshTransport creates a RefreshTransport around base.
// The base transport defaults to http.DefaultTransport if not specified.
func NewRefreshTransport(c *refresh.Coordinator, base http.RoundTripper) *RefreshTransport {
	if base == nil {
		base = http.DefaultTransport
	}

	return &RefreshTransport{
		Base:        base,
		Coordinator: c,
	}
}

// RoundTrip implements http.RoundTripper interface.
func (t *RefreshTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.Coordinator == nil {
		closeRequestBody(req)
		return nil, errors.New("httpclient: Coordinator is nil")
	}

	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}
	logger := t.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	ctx, state := refresh.EnsureRequestState(req.Context())
	logger = logger.With(
		zap.String("request_id", state.ID),
		zap.String("method", req.Method),
		zap.String("url", req.URL.Redacted()),
	)

	getBody, err := replayableBody(req)
	if err != nil {
		return nil, t.Interceptors.onError(req, fmt.Errorf("httpclient: buffer request body: %w", err))
	}

	for {
		signal, release, err := t.Coordinator.AcquireSignal(ctx, state.Retries)
		if err != nil {
			logger.Debug("request aborted while waiting for credential refresh", zap.Error(err))
			return nil, t.Interceptors.onError(req, err)
		}

		attempt := req.Clone(signal)
		if getBody != nil {
			body, err := getBody()
			if err != nil {
				release()
				return nil, t.Interceptors.onError(req, fmt.Errorf("httpclient: rewind request body: %w", err))
			}
			attempt.Body = body
			attempt.GetBody = getBody
		}

		attempt, err = t.Interceptors.onRequest(attempt)
		if err != nil {
			release()
			return nil, t.Interceptors.onError(req, err)
		}

		resp, err := base.RoundTrip(attempt)
		if err == nil && resp.StatusCode < http.StatusBadRequest {
			return t.finish(resp, release)
		}

		failure := refresh.Failure{Err: err, Signal: signal}
		if resp != nil {
			failure.StatusCode = resp.StatusCode
		}

		decision, derr := t.Coordinator.DecideRetry(state, failure)
		switch decision {
		case refresh.RetryAfterRefresh:
			discard(resp)
			release()
			logger.Debug("retrying request after credential refresh",
				zap.Int("retries", state.Retries),
				zap.Int("status_code", failure.StatusCode),
			)
			continue

		case refresh.GiveUp:
			discard(resp)
			release()
			return nil, t.Interceptors.onError(attempt, derr)

		default:
			if err != nil {
				release()
				return nil, t.Interceptors.onError(attempt, err)
			}
			return t.finish(resp, release)
		}
	}
}

// finish hands resp to the response interceptor and ties release to the body.
func (t *RefreshTransport) finish(resp *http.Response, release func()) (*http.Response, error) {
	resp.Body = &releasingBody{ReadCloser: resp.Body, release: release}

	out, err := t.Interceptors.onResponse(resp)
	if err != nil {
		discard(resp)
		return nil, t.Interceptors.onError(resp.Request, err)
	}
	return out, nil
}

// replayableBody returns a function producing fresh copies of req's body, or
// nil when the request has none. The original body is consumed and closed.
func replayableBody(req *http.Request) (func() (io.ReadCloser, error), error) {
	if req.Body == nil || req.Body == http.NoBody {
		return nil, nil
	}

	if req.GetBody != nil {
		_ = req.Body.Close()
		return req.GetBody, nil
	}

	buf, err := io.ReadAll(req.Body)
	_ = req.Body.Close()
	if err != nil {
		return nil, err
	}

	return func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(buf)), nil
	}, nil
}

func discard(resp *http.Response) {
	if resp == nil || resp.Body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	_ = resp.Body.Close()
}

// releasingBody releases the attempt's signal once the body is closed.
type releasingBody struct {
	io.ReadCloser
	once    sync.Once
	release func()
}

func (b *releasingBody) Close() error {
	err := b.ReadCloser.Close()
	b.once.Do(b.release)
	return err
}
