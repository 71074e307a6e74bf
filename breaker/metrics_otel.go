package breaker

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MetricsConfig holds configuration for breaker metrics
type MetricsConfig struct {
	Enabled     bool `mapstructure:"enabled"`
	RecordState bool `mapstructure:"record_state"`
}

// OTelMetrics implements component.MetricsProvider for breakers.
// A nil *OTelMetrics records nothing.
type OTelMetrics struct {
	config     MetricsConfig
	registered bool
	mu         sync.RWMutex

	requestsTotal   metric.Int64Counter
	failuresTotal   metric.Int64Counter
	rejectionsTotal metric.Int64Counter
	latency         metric.Float64Histogram
	stateGauge      metric.Int64ObservableGauge

	stateCallbacks map[string]func() int64
	stateMu        sync.RWMutex
}

// NewOTelMetrics creates a metrics provider for breakers
func NewOTelMetrics(cfg MetricsConfig) *OTelMetrics {
	return &OTelMetrics{
		config:         cfg,
		stateCallbacks: make(map[string]func() int64),
	}
}

// MetricsName returns the metrics group name
func (m *OTelMetrics) MetricsName() string {
	return "breaker"
}

// IsMetricsEnabled returns whether metrics collection is enabled
func (m *OTelMetrics) IsMetricsEnabled() bool {
	return m.config.Enabled
}

// RegisterMetrics creates the breaker instruments on meter
func (m *OTelMetrics) RegisterMetrics(meter metric.Meter) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.registered {
		return nil
	}

	var err error
	m.requestsTotal, err = meter.Int64Counter(
		"breaker_requests_total",
		metric.WithDescription("Total number of circuit breaker requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return err
	}

	m.failuresTotal, err = meter.Int64Counter(
		"breaker_failures_total",
		metric.WithDescription("Total number of failed guarded calls"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return err
	}

	m.rejectionsTotal, err = meter.Int64Counter(
		"breaker_rejections_total",
		metric.WithDescription("Total number of rejected requests (circuit open)"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return err
	}

	m.latency, err = meter.Float64Histogram(
		"breaker_latency_seconds",
		metric.WithDescription("Guarded call latency distribution"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return err
	}

	if m.config.RecordState {
		m.stateGauge, err = meter.Int64ObservableGauge(
			"breaker_state",
			metric.WithDescription("Current circuit breaker state (0=closed, 1=open, 2=half-open)"),
			metric.WithInt64Callback(m.collectState),
		)
		if err != nil {
			return err
		}
	}

	m.registered = true
	return nil
}

func (m *OTelMetrics) collectState(_ context.Context, observer metric.Int64Observer) error {
	m.stateMu.RLock()
	defer m.stateMu.RUnlock()

	for name, callback := range m.stateCallbacks {
		observer.Observe(callback(), metric.WithAttributes(attribute.String("breaker", name)))
	}
	return nil
}

// RegisterStateCallback observes a breaker's state
func (m *OTelMetrics) RegisterStateCallback(name string, callback func() int64) {
	if m == nil {
		return
	}
	m.stateMu.Lock()
	defer m.stateMu.Unlock()
	m.stateCallbacks[name] = callback
}

// UnregisterStateCallback stops observing a breaker
func (m *OTelMetrics) UnregisterStateCallback(name string) {
	if m == nil {
		return
	}
	m.stateMu.Lock()
	defer m.stateMu.Unlock()
	delete(m.stateCallbacks, name)
}

// IsRegistered returns whether metrics have been registered
func (m *OTelMetrics) IsRegistered() bool {
	if m == nil {
		return false
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.registered
}

func (m *OTelMetrics) recordSuccess(ctx context.Context, name string, duration time.Duration) {
	if !m.IsRegistered() {
		return
	}
	m.requestsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("breaker", name),
		attribute.String("result", "success"),
	))
	m.latency.Record(ctx, duration.Seconds(), metric.WithAttributes(attribute.String("breaker", name)))
}

func (m *OTelMetrics) recordFailure(ctx context.Context, name string, duration time.Duration, kind string, monitored bool) {
	if !m.IsRegistered() {
		return
	}
	m.requestsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("breaker", name),
		attribute.String("result", "failure"),
	))
	m.failuresTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("breaker", name),
		attribute.String("error_kind", kind),
		attribute.Bool("monitored", monitored),
	))
	m.latency.Record(ctx, duration.Seconds(), metric.WithAttributes(attribute.String("breaker", name)))
}

func (m *OTelMetrics) recordRejection(ctx context.Context, name string) {
	if !m.IsRegistered() {
		return
	}
	m.requestsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("breaker", name),
		attribute.String("result", "rejected"),
	))
	m.rejectionsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("breaker", name)))
}
