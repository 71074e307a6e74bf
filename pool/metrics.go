package pool

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MetricsName implements component.MetricsProvider
func (p *Pool[T]) MetricsName() string {
	return "pool"
}

// IsMetricsEnabled implements component.MetricsProvider
func (p *Pool[T]) IsMetricsEnabled() bool {
	return p.config.MetricsEnabled
}

// RegisterMetrics registers observable instruments reading Stats
func (p *Pool[T]) RegisterMetrics(meter metric.Meter) error {
	available, err := meter.Int64ObservableGauge("pool_available",
		metric.WithDescription("Idle connections"), metric.WithUnit("{connection}"))
	if err != nil {
		return err
	}
	checkedOut, err := meter.Int64ObservableGauge("pool_checked_out",
		metric.WithDescription("Connections in use"), metric.WithUnit("{connection}"))
	if err != nil {
		return err
	}
	waiting, err := meter.Int64ObservableGauge("pool_waiting",
		metric.WithDescription("Callers waiting for a connection"), metric.WithUnit("{caller}"))
	if err != nil {
		return err
	}
	created, err := meter.Int64ObservableCounter("pool_connections_created_total",
		metric.WithDescription("Connections created by the factory"), metric.WithUnit("{connection}"))
	if err != nil {
		return err
	}
	closed, err := meter.Int64ObservableCounter("pool_connections_closed_total",
		metric.WithDescription("Connections closed"), metric.WithUnit("{connection}"))
	if err != nil {
		return err
	}

	_, err = meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		s := p.Stats()
		attrs := metric.WithAttributes(attribute.String("pool", s.Name))
		o.ObserveInt64(available, int64(s.Available), attrs)
		o.ObserveInt64(checkedOut, int64(s.CheckedOut), attrs)
		o.ObserveInt64(waiting, int64(s.Waiting), attrs)
		o.ObserveInt64(created, s.Created, attrs)
		o.ObserveInt64(closed, s.Closed, attrs)
		return nil
	}, available, checkedOut, waiting, created, closed)
	return err
}
