package refresh

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds Prometheus metrics for a coordinator. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	refreshTotal    *prometheus.CounterVec
	refreshDuration prometheus.Histogram
	waiters         prometheus.Gauge
	decisionsTotal  *prometheus.CounterVec
	registry        *prometheus.Registry
}

// NewMetrics creates metrics registered on a private registry.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "refreshx"
	}

	m := &Metrics{
		registry: prometheus.NewRegistry(),
	}

	m.refreshTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "coordinator",
			Name:      "refresh_total",
			Help:      "Total number of credential refresh rounds",
		},
		[]string{"status"},
	)

	m.refreshDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "coordinator",
			Name:      "refresh_duration_seconds",
			Help:      "Duration of credential refresh rounds in seconds",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
	)

	m.waiters = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "coordinator",
			Name:      "refresh_waiters",
			Help:      "Number of requests parked on the running refresh",
		},
	)

	m.decisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "coordinator",
			Name:      "retry_decisions_total",
			Help:      "Total number of retry decisions by outcome",
		},
		[]string{"decision"},
	)

	m.registry.MustRegister(m.refreshTotal, m.refreshDuration, m.waiters, m.decisionsTotal)

	return m
}

// Registry returns the registry the metrics are registered on.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Collectors returns all collectors so they can be registered elsewhere.
func (m *Metrics) Collectors() []prometheus.Collector {
	if m == nil {
		return nil
	}
	return []prometheus.Collector{m.refreshTotal, m.refreshDuration, m.waiters, m.decisionsTotal}
}

func (m *Metrics) recordRefresh(success bool, d time.Duration) {
	if m == nil {
		return
	}
	status := "success"
	if !success {
		status = "failure"
	}
	m.refreshTotal.WithLabelValues(status).Inc()
	m.refreshDuration.Observe(d.Seconds())
}

func (m *Metrics) setWaiters(n int) {
	if m == nil {
		return
	}
	m.waiters.Set(float64(n))
}

func (m *Metrics) recordDecision(d Decision) {
	if m == nil {
		return
	}
	m.decisionsTotal.WithLabelValues(d.String()).Inc()
}
