// ABOUTME: Prometheus collectors for dispatched requests and navigation decisions
// ABOUTME: All Observe methods are nil-safe so components run without metrics configured

package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Config configures the collectors.
type Config struct {
	// Namespace is the metrics namespace (default: "gatekeeper").
	Namespace string

	// Buckets are the histogram buckets for dispatch duration.
	// Default: prometheus.DefBuckets
	Buckets []float64

	// Registry is the Prometheus registry to use.
	// Default: a fresh registry.
	Registry prometheus.Registerer
}

// Option configures the collectors.
type Option func(*Config)

// WithNamespace sets the metrics namespace.
func WithNamespace(namespace string) Option {
	return func(c *Config) {
		c.Namespace = namespace
	}
}

// WithBuckets sets the histogram buckets.
func WithBuckets(buckets []float64) Option {
	return func(c *Config) {
		c.Buckets = buckets
	}
}

// WithRegistry sets the Prometheus registry.
func WithRegistry(registry prometheus.Registerer) Option {
	return func(c *Config) {
		c.Registry = registry
	}
}

// Metrics holds the gatekeeper collectors.
type Metrics struct {
	registry prometheus.Registerer

	dispatches       *prometheus.CounterVec
	dispatchDuration *prometheus.HistogramVec
	decisions        *prometheus.CounterVec
}

// New creates and registers the collectors.
func New(opts ...Option) *Metrics {
	cfg := Config{
		Namespace: "gatekeeper",
		Buckets:   prometheus.DefBuckets,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Registry == nil {
		cfg.Registry = prometheus.NewRegistry()
	}

	m := &Metrics{
		registry: cfg.Registry,
		dispatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: "dispatch",
			Name:      "requests_total",
			Help:      "Outbound requests by method and result (status class or transport_error).",
		}, []string{"method", "result"}),
		dispatchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: cfg.Namespace,
			Subsystem: "dispatch",
			Name:      "duration_seconds",
			Help:      "Outbound request latency until response headers.",
			Buckets:   cfg.Buckets,
		}, []string{"method"}),
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: "guard",
			Name:      "decisions_total",
			Help:      "Navigation decisions by action and reason.",
		}, []string{"action", "reason"}),
	}

	cfg.Registry.MustRegister(m.dispatches, m.dispatchDuration, m.decisions)
	return m
}

// Registry returns the registerer the collectors were registered with.
func (m *Metrics) Registry() prometheus.Registerer {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveDispatch records one outbound request. status is ignored when err is set.
func (m *Metrics) ObserveDispatch(method string, status int, err error, elapsed time.Duration) {
	if m == nil {
		return
	}
	result := "transport_error"
	if err == nil {
		result = StatusClass(status)
	}
	m.dispatches.WithLabelValues(method, result).Inc()
	m.dispatchDuration.WithLabelValues(method).Observe(elapsed.Seconds())
}

// ObserveDecision records one navigation decision.
func (m *Metrics) ObserveDecision(action, reason string) {
	if m == nil {
		return
	}
	m.decisions.WithLabelValues(action, reason).Inc()
}

// StatusClass buckets an HTTP status code as "2xx", "4xx" and so on.
func StatusClass(status int) string {
	if status < 100 || status > 599 {
		return "unknown"
	}
	return strconv.Itoa(status/100) + "xx"
}
