package refresh

import (
	"time"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Option is a functional option for configuring a Coordinator.
type Option func(*Coordinator)

// WithConfig applies a serialisable Config. Options given after it override
// the values it sets.
func WithConfig(cfg *Config) Option {
	return func(c *Coordinator) {
		if cfg == nil {
			return
		}
		if err := cfg.Validate(); err != nil {
			c.optErr = err
			return
		}
		c.combineSignals = cfg.CombineSignals
		c.statusCodes = codeSet(cfg.GetStatusCodes())
		c.maxRetries = cfg.GetMaxRetries()
		c.refreshTimeout = cfg.GetRefreshTimeout()
	}
}

// WithCombineSignals controls whether a caller's own context cancellation is
// merged into the signal attached to its request.
func WithCombineSignals(combine bool) Option {
	return func(c *Coordinator) {
		c.combineSignals = combine
	}
}

// WithStatusCodes replaces the set of response codes that warrant a
// refresh-and-retry. Codes outside 100..599 make New fail. An empty list
// restores the default [401], as an empty Config.StatusCodes does.
func WithStatusCodes(codes ...int) Option {
	return func(c *Coordinator) {
		cfg := &Config{StatusCodes: codes}
		if err := cfg.Validate(); err != nil {
			c.optErr = err
			return
		}
		c.statusCodes = codeSet(cfg.GetStatusCodes())
	}
}

// WithShouldRefresh installs a custom failure classifier. When set it
// replaces the status code check.
func WithShouldRefresh(fn func(Failure) bool) Option {
	return func(c *Coordinator) {
		c.shouldRefresh = fn
	}
}

// WithMaxRetries sets the per-request retry budget. A negative budget makes
// New fail.
func WithMaxRetries(n int) Option {
	return func(c *Coordinator) {
		if err := (&Config{MaxRetries: &n}).Validate(); err != nil {
			c.optErr = err
			return
		}
		c.maxRetries = n
	}
}

// WithRefreshTimeout bounds each call to the refresh handler. Zero keeps the
// current value; a negative timeout makes New fail.
func WithRefreshTimeout(d time.Duration) Option {
	return func(c *Coordinator) {
		if err := (&Config{RefreshTimeout: d}).Validate(); err != nil {
			c.optErr = err
			return
		}
		if d > 0 {
			c.refreshTimeout = d
		}
	}
}

// WithLogger sets the logger. If not set, nothing is logged.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Coordinator) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithMetrics enables Prometheus metrics.
func WithMetrics(m *Metrics) Option {
	return func(c *Coordinator) {
		c.metrics = m
	}
}

// WithTracerProvider sets the provider used for refresh spans.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(c *Coordinator) {
		if tp != nil {
			c.tracer = tp.Tracer(tracerName)
		}
	}
}

// WithCircuitBreaker routes refresh calls through a circuit breaker so a
// failing token endpoint is not hammered by every stale request.
func WithCircuitBreaker(settings gobreaker.Settings) Option {
	return func(c *Coordinator) {
		c.breaker = gobreaker.NewCircuitBreaker(settings)
	}
}

func codeSet(codes []int) map[int]struct{} {
	set := make(map[int]struct{}, len(codes))
	for _, code := range codes {
		set[code] = struct{}{}
	}
	return set
}
