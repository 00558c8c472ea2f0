package grpcclient

import (
	"context"
	"net/http"

	"github.com/AmmannChristian/go-refreshx/refresh"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// RefreshUnaryInterceptor returns a unary client interceptor that resends
// calls rejected with a stale credential after a coordinated refresh.
//
// Unauthenticated is reported to the coordinator as status 401 and
// PermissionDenied as 403, so the default status set matches expired
// tokens. A custom classifier installed with refresh.WithShouldRefresh sees
// the gRPC error in Failure.Err.
//
// Place it before the token injecting interceptor so every attempt picks up
// the current token:
//
//	grpc.WithChainUnaryInterceptor(
//	    grpcclient.RefreshUnaryInterceptor(coord, logger),
//	    tm.UnaryClientInterceptor(),
//	)
//
// Streams are not retried.
func RefreshUnaryInterceptor(c *refresh.Coordinator, logger *zap.Logger) grpc.UnaryClientInterceptor {
	if logger == nil {
		logger = zap.NewNop()
	}

	return func(
		ctx context.Context,
		method string,
		req, reply interface{},
		cc *grpc.ClientConn,
		invoker grpc.UnaryInvoker,
		opts ...grpc.CallOption,
	) error {
		ctx, state := refresh.EnsureRequestState(ctx)

		for {
			signal, release, err := c.AcquireSignal(ctx, state.Retries)
			if err != nil {
				logger.Debug("call aborted while waiting for credential refresh",
					zap.String("method", method),
					zap.String("request_id", state.ID),
					zap.Error(err),
				)
				return err
			}

			err = invoker(signal, method, req, reply, cc, opts...)
			if err == nil {
				release()
				return nil
			}

			decision, derr := c.DecideRetry(state, refresh.Failure{
				StatusCode: httpStatus(status.Code(err)),
				Err:        err,
				Signal:     signal,
			})
			release()

			switch decision {
			case refresh.RetryAfterRefresh:
				logger.Debug("retrying call after credential refresh",
					zap.String("method", method),
					zap.String("request_id", state.ID),
					zap.Int("retries", state.Retries),
				)
				continue
			case refresh.GiveUp:
				return derr
			default:
				return err
			}
		}
	}
}

// httpStatus maps the gRPC codes that signal a credential problem onto their
// HTTP equivalents. Everything else maps to 0.
func httpStatus(code codes.Code) int {
	switch code {
	case codes.Unauthenticated:
		return http.StatusUnauthorized
	case codes.PermissionDenied:
		return http.StatusForbidden
	default:
		return 0
	}
}
