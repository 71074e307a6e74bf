package limiter

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MetricsConfig holds configuration for limiter metrics
type MetricsConfig struct {
	Enabled      bool `mapstructure:"enabled"`
	RecordTokens bool `mapstructure:"record_tokens"`
}

// OTelMetrics implements component.MetricsProvider for the limiter.
// A nil *OTelMetrics records nothing.
type OTelMetrics struct {
	config     MetricsConfig
	registered bool
	mu         sync.RWMutex

	allowedTotal  metric.Int64Counter
	rejectedTotal metric.Int64Counter
	waitSeconds   metric.Float64Histogram
	currentTokens metric.Float64ObservableGauge

	tokenCallbacks map[string]func() float64
	tokenMu        sync.RWMutex
}

// NewOTelMetrics creates a metrics provider for limiters
func NewOTelMetrics(cfg MetricsConfig) *OTelMetrics {
	return &OTelMetrics{
		config:         cfg,
		tokenCallbacks: make(map[string]func() float64),
	}
}

// MetricsName returns the metrics group name
func (m *OTelMetrics) MetricsName() string {
	return "limiter"
}

// IsMetricsEnabled returns whether metrics collection is enabled
func (m *OTelMetrics) IsMetricsEnabled() bool {
	return m.config.Enabled
}

// RegisterMetrics creates the limiter instruments on meter
func (m *OTelMetrics) RegisterMetrics(meter metric.Meter) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.registered {
		return nil
	}

	var err error
	m.allowedTotal, err = meter.Int64Counter(
		"limiter_allowed_total",
		metric.WithDescription("Total number of acquired tokens"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return err
	}

	m.rejectedTotal, err = meter.Int64Counter(
		"limiter_rejected_total",
		metric.WithDescription("Total number of rejected acquisitions"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return err
	}

	m.waitSeconds, err = meter.Float64Histogram(
		"limiter_wait_seconds",
		metric.WithDescription("Time spent waiting for a token"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return err
	}

	if m.config.RecordTokens {
		m.currentTokens, err = meter.Float64ObservableGauge(
			"limiter_current_tokens",
			metric.WithDescription("Current available tokens"),
			metric.WithUnit("{token}"),
			metric.WithFloat64Callback(m.collectTokens),
		)
		if err != nil {
			return err
		}
	}

	m.registered = true
	return nil
}

func (m *OTelMetrics) collectTokens(_ context.Context, observer metric.Float64Observer) error {
	m.tokenMu.RLock()
	defer m.tokenMu.RUnlock()

	for name, callback := range m.tokenCallbacks {
		observer.Observe(callback(), metric.WithAttributes(attribute.String("limiter", name)))
	}
	return nil
}

// RegisterTokenCallback observes a bucket's token count
func (m *OTelMetrics) RegisterTokenCallback(name string, callback func() float64) {
	if m == nil {
		return
	}
	m.tokenMu.Lock()
	defer m.tokenMu.Unlock()
	m.tokenCallbacks[name] = callback
}

// UnregisterTokenCallback stops observing a bucket
func (m *OTelMetrics) UnregisterTokenCallback(name string) {
	if m == nil {
		return
	}
	m.tokenMu.Lock()
	defer m.tokenMu.Unlock()
	delete(m.tokenCallbacks, name)
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

func (m *OTelMetrics) recordAllowed(ctx context.Context, name string, waited time.Duration) {
	if !m.IsRegistered() {
		return
	}
	attrs := metric.WithAttributes(attribute.String("limiter", name))
	m.allowedTotal.Add(ctx, 1, attrs)
	if waited > 0 {
		m.waitSeconds.Record(ctx, waited.Seconds(), attrs)
	}
}

func (m *OTelMetrics) recordRejected(ctx context.Context, name, reason string) {
	if !m.IsRegistered() {
		return
	}
	m.rejectedTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("limiter", name),
		attribute.String("reason", reason),
	))
}
