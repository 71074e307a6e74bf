package cache

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// RegisterMetrics registers observable instruments reading Stats under name
func (c *TTLCache[V]) RegisterMetrics(meter metric.Meter, name string) error {
	size, err := meter.Int64ObservableGauge("cache_size",
		metric.WithDescription("Entries held"), metric.WithUnit("{entry}"))
	if err != nil {
		return err
	}
	hits, err := meter.Int64ObservableCounter("cache_hits_total",
		metric.WithDescription("Lookups served from the cache"))
	if err != nil {
		return err
	}
	misses, err := meter.Int64ObservableCounter("cache_misses_total",
		metric.WithDescription("Lookups not served from the cache"))
	if err != nil {
		return err
	}
	evictions, err := meter.Int64ObservableCounter("cache_evictions_total",
		metric.WithDescription("Entries removed to make room"))
	if err != nil {
		return err
	}

	_, err = meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		s := c.Stats()
		attrs := metric.WithAttributes(attribute.String("cache", name))
		o.ObserveInt64(size, int64(s.Size), attrs)
		o.ObserveInt64(hits, s.Hits, attrs)
		o.ObserveInt64(misses, s.Misses, attrs)
		o.ObserveInt64(evictions, s.Evictions, attrs)
		return nil
	}, size, hits, misses, evictions)
	return err
}

// MetricsName implements component.MetricsProvider
func (s *MemoryStore) MetricsName() string {
	return "cache"
}

// IsMetricsEnabled implements component.MetricsProvider
func (s *MemoryStore) IsMetricsEnabled() bool {
	return true
}

// RegisterMetrics implements component.MetricsProvider
func (s *MemoryStore) RegisterMetrics(meter metric.Meter) error {
	return s.cache.RegisterMetrics(meter, s.name)
}
