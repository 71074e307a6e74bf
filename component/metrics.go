package component

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MetricsProvider is implemented by components that expose otel instruments.
//
//	func (p *Pool[T]) MetricsName() string { return "pool" }
//
//	func (p *Pool[T]) RegisterMetrics(meter metric.Meter) error {
//	    gauge, err := meter.Int64ObservableGauge("pool_checked_out")
//	    ...
//	}
type MetricsProvider interface {
	// MetricsName returns a short lowercase group name used for the Meter
	MetricsName() string

	// RegisterMetrics creates the instruments on meter
	RegisterMetrics(meter metric.Meter) error

	// IsMetricsEnabled reports whether instruments should be registered
	IsMetricsEnabled() bool
}

// MetricsCollector is implemented by telemetry.MetricsRegistry
type MetricsCollector interface {
	Register(provider MetricsProvider) error
	GetMeter(name string) metric.Meter
	GetBaseLabels() []attribute.KeyValue
	IsEnabled() bool
}
