package refresh

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const tracerName = "github.com/AmmannChristian/go-refreshx/refresh"

// Coordinator guarantees that at most one credential refresh runs at a time
// across any number of concurrent requests. Requests that discover the need
// to refresh while a refresh is running are parked and released in FIFO order
// once it finishes. Every request is bound to the current cancellation epoch,
// which is cancelled with ErrRefreshInProgress the moment a refresh starts so
// that requests carrying stale credentials are aborted and retried.
//
// A Coordinator is created once per backend and shared by every client that
// talks to it. It is safe for concurrent use.
type Coordinator struct {
	handler        Handler
	combineSignals bool
	statusCodes    map[int]struct{}
	shouldRefresh  func(Failure) bool
	maxRetries     int
	refreshTimeout time.Duration
	logger         *zap.Logger
	metrics        *Metrics
	tracer         trace.Tracer
	breaker        *gobreaker.CircuitBreaker
	optErr         error

	mu          sync.Mutex
	suspended   bool
	waiters     []func(error)
	epoch       context.Context
	cancelEpoch context.CancelCauseFunc
}

// New creates a coordinator that refreshes credentials through handler.
// It returns ErrNilHandler without a handler and an error wrapping
// ErrInvalidConfig when an option carries an unusable value.
//
// Defaults: signals are not combined, status 401 triggers a refresh, each
// request may be retried once, and a refresh round times out after 30s.
func New(handler Handler, opts ...Option) (*Coordinator, error) {
	if handler == nil {
		return nil, ErrNilHandler
	}

	c := &Coordinator{
		handler:        handler,
		statusCodes:    codeSet(DefaultStatusCodes()),
		maxRetries:     DefaultMaxRetries,
		refreshTimeout: DefaultRefreshTimeout,
		logger:         zap.NewNop(),
		tracer:         otel.GetTracerProvider().Tracer(tracerName),
	}

	for _, opt := range opts {
		opt(c)
	}
	if c.optErr != nil {
		return nil, c.optErr
	}

	c.epoch, c.cancelEpoch = context.WithCancelCause(context.Background())

	return c, nil
}

// MaxRetries returns the per-request retry budget.
func (c *Coordinator) MaxRetries() int {
	return c.maxRetries
}

// Suspended reports whether a refresh is currently running.
func (c *Coordinator) Suspended() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.suspended
}

// Waiting returns the number of callers parked on the running refresh.
func (c *Coordinator) Waiting() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.waiters)
}

// AcquireSignal returns the context a request attempt must be sent with.
//
// If the request is a retry (retries > 0) or a refresh is running, it first
// triggers or joins a refresh and returns its error if that refresh failed.
// The returned signal carries ctx's values. It is cancelled when the current
// epoch ends and, if signals are combined, also when ctx is cancelled. The
// release function must be called once the attempt is finished.
func (c *Coordinator) AcquireSignal(ctx context.Context, retries int) (context.Context, context.CancelFunc, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	c.mu.Lock()
	if retries == 0 && !c.suspended {
		epoch := c.epoch
		c.mu.Unlock()
		signal, release := c.bind(ctx, epoch)
		return signal, release, nil
	}
	c.mu.Unlock()

	if err := c.TriggerOrJoin(ctx); err != nil {
		return nil, nil, err
	}

	c.mu.Lock()
	epoch := c.epoch
	c.mu.Unlock()

	signal, release := c.bind(ctx, epoch)
	return signal, release, nil
}

// bind derives the per-attempt signal from ctx and the given epoch.
func (c *Coordinator) bind(ctx, epoch context.Context) (context.Context, context.CancelFunc) {
	parent := ctx
	if !c.combineSignals {
		parent = context.WithoutCancel(ctx)
	}

	signal, cancel := context.WithCancelCause(parent)
	stop := context.AfterFunc(epoch, func() {
		cancel(context.Cause(epoch))
	})

	return signal, func() {
		stop()
		cancel(context.Canceled)
	}
}

// TriggerOrJoin starts a refresh, or waits for the one already running.
//
// The caller that starts the refresh invalidates the current epoch, runs the
// handler and then releases every parked caller. All of them receive the
// same result: nil on success or a *RefreshError on failure. A parked caller
// whose ctx ends stops waiting and gets ctx's error.
func (c *Coordinator) TriggerOrJoin(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	done := make(chan error, 1)
	if !c.begin(func(err error) { done <- err }) {
		select {
		case err := <-done:
			return err
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	return c.refresh(ctx)
}

// begin either claims the refresh for the caller and returns true, or parks
// resolve on the running refresh and returns false. The check and the state
// change happen in one critical section, so two callers can never both start
// a refresh.
func (c *Coordinator) begin(resolve func(error)) bool {
	c.mu.Lock()
	if c.suspended {
		c.waiters = append(c.waiters, resolve)
		n := len(c.waiters)
		c.mu.Unlock()

		c.metrics.setWaiters(n)
		c.logger.Debug("joined running credential refresh", zap.Int("waiters", n))
		return false
	}

	c.suspended = true
	c.cancelEpoch(ErrRefreshInProgress)
	c.mu.Unlock()

	return true
}

func (c *Coordinator) refresh(ctx context.Context) error {
	start := time.Now()

	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.refreshTimeout)
	defer cancel()

	rctx, span := c.tracer.Start(rctx, "refresh.Coordinator/Refresh")
	defer span.End()

	c.logger.Info("refreshing credentials")

	var err error
	if herr := c.callHandler(rctx); herr != nil {
		err = &RefreshError{Cause: herr}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}

	released := c.notifyAll(err)
	elapsed := time.Since(start)

	span.SetAttributes(
		attribute.Int("refresh.waiters", released),
		attribute.Bool("refresh.success", err == nil),
	)
	c.metrics.recordRefresh(err == nil, elapsed)

	if err != nil {
		c.logger.Error("credential refresh failed",
			zap.Error(err),
			zap.Int("waiters", released),
			zap.Duration("duration", elapsed),
		)
		return err
	}

	c.logger.Info("credentials refreshed",
		zap.Int("waiters", released),
		zap.Duration("duration", elapsed),
	)
	return nil
}

// callHandler runs the handler, through the breaker when one is configured.
// A panicking handler is reported as ErrHandlerPanic so the round still ends
// and parked callers are released.
func (c *Coordinator) callHandler(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrHandlerPanic, r)
		}
	}()

	if c.breaker == nil {
		return c.handler.Refresh(ctx)
	}

	_, err = c.breaker.Execute(func() (interface{}, error) {
		return nil, c.handler.Refresh(ctx)
	})
	return err
}

// notifyAll installs a fresh epoch, clears the suspension and resolves every
// parked caller in the order they parked. It returns the number released.
func (c *Coordinator) notifyAll(err error) int {
	c.mu.Lock()
	c.epoch, c.cancelEpoch = context.WithCancelCause(context.Background())
	waiters := c.waiters
	c.waiters = nil
	c.suspended = false
	c.mu.Unlock()

	c.metrics.setWaiters(0)

	for _, resolve := range waiters {
		resolve(err)
	}

	return len(waiters)
}
