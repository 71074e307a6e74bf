package telemetry

import (
	"context"
	"errors"
	"testing"

	"github.com/stokry/vectra/breaker"
	"github.com/stokry/vectra/component"
	"github.com/stokry/vectra/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

type mockMetricsProvider struct {
	name          string
	enabled       bool
	registered    int
	registerError error
}

func (m *mockMetricsProvider) MetricsName() string { return m.name }

func (m *mockMetricsProvider) IsMetricsEnabled() bool { return m.enabled }

func (m *mockMetricsProvider) RegisterMetrics(meter metric.Meter) error {
	m.registered++
	return m.registerError
}

func newTestRegistry(opts ...RegistryOption) *MetricsRegistry {
	return NewMetricsRegistry(noop.NewMeterProvider(), append([]RegistryOption{WithRegistryLogger(logger.NewNop())}, opts...)...)
}

func TestMetricsRegistry_Register(t *testing.T) {
	t.Run("registers enabled provider once", func(t *testing.T) {
		r := newTestRegistry()
		p := &mockMetricsProvider{name: "pool", enabled: true}
		require.NoError(t, r.Register(p))
		assert.Equal(t, 1, p.registered)

		err := r.Register(&mockMetricsProvider{name: "pool", enabled: true})
		assert.ErrorContains(t, err, "already registered")
		assert.Equal(t, []string{"pool"}, r.Providers())
	})

	t.Run("skips disabled provider", func(t *testing.T) {
		r := newTestRegistry()
		p := &mockMetricsProvider{name: "cache", enabled: false}
		require.NoError(t, r.Register(p))
		assert.Zero(t, p.registered)
		assert.Empty(t, r.Providers())
	})

	t.Run("skips everything when disabled", func(t *testing.T) {
		r := newTestRegistry()
		r.SetEnabled(false)
		p := &mockMetricsProvider{name: "cache", enabled: true}
		require.NoError(t, r.Register(p))
		assert.Zero(t, p.registered)
	})

	t.Run("rejects nil, unnamed and failing providers", func(t *testing.T) {
		r := newTestRegistry()
		assert.Error(t, r.Register(nil))
		assert.Error(t, r.Register(&mockMetricsProvider{enabled: true}))
		assert.Error(t, r.Register(&mockMetricsProvider{name: "x", enabled: true, registerError: errors.New("boom")}))
		assert.Empty(t, r.Providers())
	})
}

func TestMetricsRegistry_BreakerInstruments(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	r := NewMetricsRegistry(mp, WithRegistryLogger(logger.NewNop()))

	metrics := breaker.NewOTelMetrics(breaker.MetricsConfig{Enabled: true, RecordState: true})
	require.NoError(t, r.Register(metrics))

	cb, err := breaker.New("backend", breaker.DefaultConfig(),
		breaker.WithMetrics(metrics), breaker.WithLogger(logger.NewNop()))
	require.NoError(t, err)
	_, err = cb.Call(context.Background(), nil, func(ctx context.Context) (any, error) { return nil, nil })
	require.NoError(t, err)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	require.NotEmpty(t, rm.ScopeMetrics)
	assert.Equal(t, "vectra_breaker", rm.ScopeMetrics[0].Scope.Name)
}

func TestMetricsRegistry_GetMeterIsCached(t *testing.T) {
	r := newTestRegistry(WithNamespace("custom"), WithBaseLabels([]attribute.KeyValue{attribute.String("env", "test")}))
	assert.Equal(t, r.GetMeter("client"), r.GetMeter("client"))
	assert.Len(t, r.GetBaseLabels(), 1)
	assert.True(t, r.IsEnabled())

	var _ component.MetricsCollector = r
}

func TestLabels(t *testing.T) {
	got := labels(map[string]string{"region": "eu", "env": "prod"})
	require.Len(t, got, 2)
	assert.Equal(t, attribute.Key("env"), got[0].Key)
}
