package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stokry/vectra/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

type match struct {
	ID    string  `json:"id"`
	Score float64 `json:"score"`
}

func TestTyped_GetSetFetch(t *testing.T) {
	store := NewMemoryStore("mem", 10, WithLogger(logger.NewNop()))
	typed := NewTyped[[]match](store, nil, time.Minute)
	ctx := context.Background()

	_, err := typed.Get(ctx, "q")
	assert.ErrorIs(t, err, ErrCacheMiss)

	want := []match{{ID: "a", Score: 0.9}, {ID: "b", Score: 0.5}}
	calls := 0
	got, err := typed.Fetch(ctx, "q", func(ctx context.Context) ([]match, error) {
		calls++
		return want, nil
	})
	require.NoError(t, err)
	assert.Equal(t, want, got)

	got, err = typed.Fetch(ctx, "q", func(ctx context.Context) ([]match, error) {
		calls++
		return nil, errors.New("unreachable")
	})
	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.Equal(t, 1, calls)
	assert.Same(t, store, typed.Store())
}

func TestTyped_CorruptEntry(t *testing.T) {
	store := NewMemoryStore("mem", 10, WithLogger(logger.NewNop()))
	typed := NewTyped[match](store, NewJSONSerializer(), time.Minute)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "k", []byte("{not json"), time.Minute))
	_, err := typed.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrDeserialize)

	v, err := typed.Fetch(ctx, "k", func(ctx context.Context) (match, error) { return match{ID: "x"}, nil })
	require.NoError(t, err)
	assert.Equal(t, "x", v.ID)
}

func TestTyped_SerializeError(t *testing.T) {
	store := NewMemoryStore("mem", 10, WithLogger(logger.NewNop()))
	typed := NewTyped[chan int](store, nil, time.Minute)
	assert.ErrorIs(t, typed.Set(context.Background(), "k", make(chan int)), ErrSerialize)
}

func TestMemoryStore_Metrics(t *testing.T) {
	store := NewMemoryStore("results", 10, WithLogger(logger.NewNop()))
	assert.Equal(t, "cache", store.MetricsName())
	assert.True(t, store.IsMetricsEnabled())

	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	require.NoError(t, store.RegisterMetrics(provider.Meter("cache")))

	ctx := context.Background()
	require.NoError(t, store.Set(ctx, "k", []byte("v"), time.Minute))
	_, _ = store.Get(ctx, "k")
	_, _ = store.Get(ctx, "missing")

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))
	values := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			switch data := m.Data.(type) {
			case metricdata.Gauge[int64]:
				values[m.Name] = data.DataPoints[0].Value
			case metricdata.Sum[int64]:
				values[m.Name] = data.DataPoints[0].Value
			}
		}
	}
	assert.Equal(t, int64(1), values["cache_size"])
	assert.Equal(t, int64(1), values["cache_hits_total"])
	assert.Equal(t, int64(1), values["cache_misses_total"])
	assert.Equal(t, 1, store.Stats().Size)
}
