// Package refresh coordinates credential refreshes for clients of a token-protected backend.
//
// A Coordinator guarantees that when many concurrent requests discover that their credential is
// stale, exactly one refresh runs. Requests arriving while it runs are parked and released in
// FIFO order once it completes. Each request attempt is sent with a signal (a context.Context)
// bound to the current cancellation epoch; starting a refresh cancels that epoch with
// ErrRefreshInProgress so in-flight requests holding stale credentials are aborted and retried
// rather than completing with them.
//
// The package is transport-agnostic. httpclient.RefreshTransport and
// grpcclient.RefreshUnaryInterceptor drive it for net/http and gRPC.
//
// # Features
//
//   - Single-flight refresh with FIFO release of parked callers
//   - Per-epoch cancellation, optionally merged with the caller's own context
//   - Retry decisions by status code or custom classifier, bounded per request
//   - Refresh failures release every parked caller with a *RefreshError
//   - Prometheus metrics, OpenTelemetry spans, zap logging, optional circuit breaker
//   - YAML configuration via LoadConfig
//
// # Quick Start
//
//	coord, err := refresh.New(tokenManager,
//	    refresh.WithStatusCodes(http.StatusUnauthorized),
//	    refresh.WithMaxRetries(1),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	client := &http.Client{Transport: httpclient.NewRefreshTransport(coord, nil)}
//
// # Request lifecycle
//
// For every attempt a pipeline calls AcquireSignal with the request's retry count, sends the
// request on the returned signal, and on failure calls DecideRetry. RetryAfterRefresh means the
// next AcquireSignal call triggers or joins a refresh before resending; GiveUp and Propagate end
// the request.
package refresh
