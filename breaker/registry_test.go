package breaker

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stokry/vectra/errcode"
	"github.com/stokry/vectra/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func newTestRegistry(t *testing.T, cfg RegistryConfig) *Registry {
	t.Helper()
	r, err := NewRegistry(cfg, WithRegistryLogger(logger.NewNop()))
	require.NoError(t, err)
	t.Cleanup(r.Close)
	return r
}

func TestRegistry_GetOrCreateAppliesOverrides(t *testing.T) {
	r := newTestRegistry(t, RegistryConfig{
		Breakers: map[string]Config{"pgvector": {FailureThreshold: 1}},
	})

	pg := r.GetOrCreate("pgvector")
	assert.Same(t, pg, r.GetOrCreate("pgvector"))
	assert.Equal(t, 1, pg.Config().FailureThreshold)
	assert.Equal(t, 2, pg.Config().SuccessThreshold)

	other := r.GetOrCreate("qdrant")
	assert.Equal(t, 5, other.Config().FailureThreshold)
	assert.Equal(t, []string{"pgvector", "qdrant"}, r.Names())
}

func TestRegistry_InvalidOverride(t *testing.T) {
	_, err := NewRegistry(RegistryConfig{
		Breakers: map[string]Config{"bad": {MonitoredKinds: []string{"nope"}}},
	})
	assert.ErrorIs(t, err, errcode.ErrValidation)
}

func TestRegistry_RegisterRemove(t *testing.T) {
	r := newTestRegistry(t, RegistryConfig{})

	cb, err := New("custom", testConfig(), WithLogger(logger.NewNop()))
	require.NoError(t, err)
	require.NoError(t, r.Register(cb))
	assert.ErrorIs(t, r.Register(cb), errcode.ErrValidation)

	got, ok := r.Get("custom")
	require.True(t, ok)
	assert.Same(t, cb, got)

	assert.True(t, r.Remove("custom"))
	assert.False(t, r.Remove("custom"))
	_, ok = r.Get("custom")
	assert.False(t, ok)
}

func TestRegistry_ResetAllAndSnapshots(t *testing.T) {
	r := newTestRegistry(t, RegistryConfig{})
	r.GetOrCreate("b").Trip()
	r.GetOrCreate("a")

	snaps := r.Snapshots()
	require.Len(t, snaps, 2)
	assert.Equal(t, "a", snaps[0].Name)
	assert.Equal(t, StateOpen, snaps[1].State)

	r.ResetAll()
	for _, s := range r.Snapshots() {
		assert.Equal(t, StateClosed, s.State)
	}
}

func TestRegistry_PublishesEvents(t *testing.T) {
	r := newTestRegistry(t, RegistryConfig{Config: Config{FailureThreshold: 1, SuccessThreshold: 1, RecoveryTimeout: time.Minute}})

	var (
		mu      sync.Mutex
		changes []*StateChangedEvent
		calls   int32
	)
	r.EventBus().Subscribe(EventListenerFunc(func(e Event) {
		mu.Lock()
		defer mu.Unlock()
		changes = append(changes, e.(*StateChangedEvent))
	}), EventStateChanged)
	r.EventBus().Subscribe(EventListenerFunc(func(e Event) {
		atomic.AddInt32(&calls, 1)
	}), EventCallFailure, EventCallRejected)

	cb := r.GetOrCreate("weaviate")
	ctx := context.Background()
	_, _ = cb.Call(ctx, nil, failWith(errcode.ErrConnection))
	_, _ = cb.Call(ctx, nil, succeed)

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(changes) == 1 && atomic.LoadInt32(&calls) == 2
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, StateClosed, changes[0].FromState)
	assert.Equal(t, StateOpen, changes[0].ToState)
	assert.Equal(t, "weaviate", changes[0].Breaker())
}

func TestEventBus_UnsubscribeAndClose(t *testing.T) {
	bus := NewEventBus(10)

	var called int32
	id := bus.Subscribe(EventListenerFunc(func(Event) { atomic.AddInt32(&called, 1) }))
	assert.NotEmpty(t, id)

	bus.Publish(&CallEvent{BaseEvent: NewBaseEvent(EventCallSuccess, "x", context.Background())})
	assert.Eventually(t, func() bool { return atomic.LoadInt32(&called) == 1 }, time.Second, 5*time.Millisecond)

	bus.Unsubscribe(id)
	bus.Publish(&CallEvent{BaseEvent: NewBaseEvent(EventCallSuccess, "x", context.Background())})
	bus.Close()
	bus.Close()
	bus.Publish(&CallEvent{BaseEvent: NewBaseEvent(EventCallSuccess, "x", context.Background())})
	assert.Equal(t, int32(1), atomic.LoadInt32(&called))
}

func TestEventBus_ListenerPanicIsContained(t *testing.T) {
	bus := NewEventBus(10)
	defer bus.Close()

	var called int32
	bus.Subscribe(EventListenerFunc(func(Event) { panic("boom") }))
	bus.Subscribe(EventListenerFunc(func(Event) { atomic.AddInt32(&called, 1) }))

	bus.Publish(&CallEvent{BaseEvent: NewBaseEvent(EventCallSuccess, "x", context.Background())})
	bus.Publish(&CallEvent{BaseEvent: NewBaseEvent(EventCallSuccess, "x", context.Background())})
	assert.Eventually(t, func() bool { return atomic.LoadInt32(&called) == 2 }, time.Second, 5*time.Millisecond)
}

func TestRegistry_Metrics(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	r := newTestRegistry(t, RegistryConfig{
		Config:  Config{FailureThreshold: 1, SuccessThreshold: 1, RecoveryTimeout: time.Minute},
		Metrics: MetricsConfig{Enabled: true, RecordState: true},
	})
	m := r.Metrics()
	assert.Equal(t, "breaker", m.MetricsName())
	assert.True(t, m.IsMetricsEnabled())
	require.NoError(t, m.RegisterMetrics(provider.Meter("breaker")))

	cb := r.GetOrCreate("milvus")
	ctx := context.Background()
	_, _ = cb.Call(ctx, nil, failWith(errcode.ErrServer))
	_, _ = cb.Call(ctx, nil, succeed)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))

	sums := map[string]int64{}
	var state int64 = -1
	for _, sm := range rm.ScopeMetrics {
		for _, metric := range sm.Metrics {
			switch data := metric.Data.(type) {
			case metricdata.Sum[int64]:
				for _, dp := range data.DataPoints {
					sums[metric.Name] += dp.Value
				}
			case metricdata.Gauge[int64]:
				if metric.Name == "breaker_state" {
					state = data.DataPoints[0].Value
				}
			}
		}
	}
	assert.Equal(t, int64(2), sums["breaker_requests_total"])
	assert.Equal(t, int64(1), sums["breaker_failures_total"])
	assert.Equal(t, int64(1), sums["breaker_rejections_total"])
	assert.Equal(t, int64(StateOpen), state)
}

func TestEventBus_OrderAndDrops(t *testing.T) {
	bus := NewEventBus(1)

	started := make(chan struct{})
	release := make(chan struct{})
	var (
		mu   sync.Mutex
		seen []string
	)
	record := func(tag string) EventListener {
		return EventListenerFunc(func(e Event) {
			mu.Lock()
			seen = append(seen, tag+":"+e.Breaker())
			mu.Unlock()
		})
	}

	var once sync.Once
	bus.Subscribe(EventListenerFunc(func(Event) {
		once.Do(func() {
			close(started)
			<-release
		})
	}))
	bus.Subscribe(record("first"))
	bus.Subscribe(record("second"), EventCallFailure)

	publish := func(name string, typ EventType) {
		bus.Publish(&CallEvent{BaseEvent: NewBaseEvent(typ, name, context.Background())})
	}
	publish("a", EventCallFailure)
	<-started
	publish("b", EventCallSuccess)
	publish("c", EventCallSuccess)
	assert.Equal(t, int64(1), bus.Dropped())

	close(release)
	bus.Close()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"first:a", "second:a", "first:b"}, seen)
}
