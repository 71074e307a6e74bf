package pool

import (
	"context"
	"errors"
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

type fakeConn struct {
	id      int64
	healthy atomic.Bool
	closed  atomic.Bool
}

func (c *fakeConn) Healthy(ctx context.Context) bool { return c.healthy.Load() && !c.closed.Load() }
func (c *fakeConn) Close() error {
	c.closed.Store(true)
	return nil
}

type fakeFactory struct {
	next  atomic.Int64
	fail  atomic.Bool
	conns sync.Map
}

func (f *fakeFactory) New(ctx context.Context) (*fakeConn, error) {
	if f.fail.Load() {
		return nil, errors.New("dial tcp: refused")
	}
	c := &fakeConn{id: f.next.Add(1)}
	c.healthy.Store(true)
	f.conns.Store(c.id, c)
	return c, nil
}

func newTestPool(t *testing.T, cfg Config) (*Pool[*fakeConn], *fakeFactory) {
	t.Helper()
	f := &fakeFactory{}
	p, err := New[*fakeConn](f.New, cfg, WithName("test"), WithLogger(logger.NewNop()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Shutdown(context.Background()) })
	return p, f
}

func assertInvariant(t *testing.T, p *Pool[*fakeConn]) {
	t.Helper()
	s := p.Stats()
	assert.LessOrEqual(t, s.Available+s.CheckedOut, s.Capacity)
}

func TestNew_Validation(t *testing.T) {
	_, err := New[*fakeConn](nil, Config{})
	assert.ErrorIs(t, err, errcode.ErrValidation)

	f := &fakeFactory{}
	_, err = New[*fakeConn](f.New, Config{Capacity: 2, Timeout: time.Second, Warmup: 3})
	assert.ErrorIs(t, err, errcode.ErrValidation)
}

func TestPool_CheckoutCreatesLazilyAndReuses(t *testing.T) {
	p, f := newTestPool(t, Config{Capacity: 2, Timeout: 100 * time.Millisecond})
	ctx := context.Background()

	c1, err := p.Checkout(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), f.next.Load())
	assertInvariant(t, p)

	p.Checkin(c1)
	c2, err := p.Checkout(ctx)
	require.NoError(t, err)
	assert.Same(t, c1, c2)
	assert.Equal(t, int64(1), p.Stats().Created)
}

func TestPool_CheckoutTimesOutWhenFull(t *testing.T) {
	p, _ := newTestPool(t, Config{Capacity: 1, Timeout: 50 * time.Millisecond})
	ctx := context.Background()

	_, err := p.Checkout(ctx)
	require.NoError(t, err)

	start := time.Now()
	_, err = p.Checkout(ctx)
	elapsed := time.Since(start)

	require.Error(t, err)
	assert.ErrorIs(t, err, errcode.ErrPoolTimeout)
	assert.GreaterOrEqual(t, elapsed, 50*time.Millisecond)
	assert.Less(t, elapsed, time.Second)
	assert.Equal(t, 1, errcode.DataOf(err)["capacity"])
	assertInvariant(t, p)
}

func TestPool_CheckoutRespectsContextDeadline(t *testing.T) {
	p, _ := newTestPool(t, Config{Capacity: 1, Timeout: 10 * time.Second})
	_, err := p.Checkout(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	start := time.Now()
	_, err = p.Checkout(ctx)
	assert.ErrorIs(t, err, errcode.ErrPoolTimeout)
	assert.Less(t, time.Since(start), time.Second)
}

func TestPool_WaiterWokenByCheckin(t *testing.T) {
	p, _ := newTestPool(t, Config{Capacity: 1, Timeout: time.Second})
	ctx := context.Background()

	held, err := p.Checkout(ctx)
	require.NoError(t, err)

	got := make(chan *fakeConn, 1)
	go func() {
		c, err := p.Checkout(ctx)
		if err == nil {
			got <- c
		}
	}()

	assert.Eventually(t, func() bool { return p.Stats().Waiting == 1 }, time.Second, time.Millisecond)
	p.Checkin(held)

	select {
	case c := <-got:
		assert.Same(t, held, c)
	case <-time.After(time.Second):
		t.Fatal("waiter was not woken")
	}
}

func TestPool_UnhealthyIdleIsDiscarded(t *testing.T) {
	p, f := newTestPool(t, Config{Capacity: 2, Timeout: 100 * time.Millisecond})
	ctx := context.Background()

	c1, err := p.Checkout(ctx)
	require.NoError(t, err)
	p.Checkin(c1)
	c1.healthy.Store(false)

	c2, err := p.Checkout(ctx)
	require.NoError(t, err)
	assert.NotSame(t, c1, c2)
	assert.True(t, c1.closed.Load())
	assert.Equal(t, int64(2), f.next.Load())
	assert.Equal(t, int64(1), p.Stats().Closed)
	assertInvariant(t, p)
}

func TestPool_UnhealthyCheckinFreesSlot(t *testing.T) {
	p, _ := newTestPool(t, Config{Capacity: 1, Timeout: 50 * time.Millisecond})
	ctx := context.Background()

	c1, err := p.Checkout(ctx)
	require.NoError(t, err)
	c1.healthy.Store(false)
	p.Checkin(c1)

	assert.True(t, c1.closed.Load())
	s := p.Stats()
	assert.Equal(t, 0, s.Available)
	assert.Equal(t, 0, s.CheckedOut)

	c2, err := p.Checkout(ctx)
	require.NoError(t, err)
	assert.NotSame(t, c1, c2)
}

func TestPool_FactoryErrorReleasesSlot(t *testing.T) {
	p, f := newTestPool(t, Config{Capacity: 1, Timeout: 50 * time.Millisecond})
	f.fail.Store(true)

	_, err := p.Checkout(context.Background())
	assert.ErrorIs(t, err, errcode.ErrConnection)
	assert.Equal(t, 0, p.Stats().CheckedOut)

	f.fail.Store(false)
	_, err = p.Checkout(context.Background())
	assert.NoError(t, err)
}

func TestPool_Warmup(t *testing.T) {
	p, _ := newTestPool(t, Config{Capacity: 3, Timeout: time.Second})
	ctx := context.Background()

	n, err := p.Warmup(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, 3, p.Stats().Available)

	n, err = p.Warmup(ctx, 1)
	require.NoError(t, err)
	assert.Zero(t, n)
	assertInvariant(t, p)
}

func TestPool_WarmupPartialCapacity(t *testing.T) {
	p, _ := newTestPool(t, Config{Capacity: 3, Timeout: time.Second})
	ctx := context.Background()

	_, err := p.Checkout(ctx)
	require.NoError(t, err)

	n, err := p.Warmup(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assertInvariant(t, p)
}

func TestPool_DoubleCheckinKeepsOwnershipExclusive(t *testing.T) {
	p, _ := newTestPool(t, Config{Capacity: 1, Timeout: 50 * time.Millisecond})
	ctx := context.Background()

	c, err := p.Checkout(ctx)
	require.NoError(t, err)
	p.Checkin(c)
	p.Checkin(c)

	s := p.Stats()
	assert.Equal(t, 1, s.Available)
	assert.Equal(t, 0, s.CheckedOut)
	assertInvariant(t, p)
	assert.False(t, c.closed.Load())

	first, err := p.Checkout(ctx)
	require.NoError(t, err)
	assert.Same(t, c, first)
	_, err = p.Checkout(ctx)
	assert.ErrorIs(t, err, errcode.ErrPoolTimeout)
	assertInvariant(t, p)
}

func TestPool_CheckinWithoutCheckoutClosesConnection(t *testing.T) {
	p, _ := newTestPool(t, Config{Capacity: 1, Timeout: 50 * time.Millisecond})

	stray := &fakeConn{id: 99}
	stray.healthy.Store(true)
	p.Checkin(stray)

	assert.True(t, stray.closed.Load())
	assert.Equal(t, 0, p.Stats().Available)
	assertInvariant(t, p)
}

func TestPool_ShutdownIsTerminal(t *testing.T) {
	p, _ := newTestPool(t, Config{Capacity: 2, Timeout: time.Second})
	ctx := context.Background()

	idle, err := p.Checkout(ctx)
	require.NoError(t, err)
	busy, err := p.Checkout(ctx)
	require.NoError(t, err)
	p.Checkin(idle)

	require.NoError(t, p.Shutdown(ctx))
	require.NoError(t, p.Shutdown(ctx))
	assert.True(t, idle.closed.Load())
	assert.False(t, busy.closed.Load(), "checked out connections are not reclaimed")

	_, err = p.Checkout(ctx)
	assert.ErrorIs(t, err, errcode.ErrPoolExhausted)

	p.Checkin(busy)
	assert.True(t, busy.closed.Load())
	assert.Equal(t, 0, p.Stats().Available)

	_, err = p.Warmup(ctx, 1)
	assert.ErrorIs(t, err, errcode.ErrPoolExhausted)
	assert.ErrorIs(t, p.Check(ctx), errcode.ErrPoolExhausted)
}

func TestPool_ShutdownWakesWaiters(t *testing.T) {
	p, _ := newTestPool(t, Config{Capacity: 1, Timeout: 5 * time.Second})
	ctx := context.Background()
	_, err := p.Checkout(ctx)
	require.NoError(t, err)

	errCh := make(chan error, 1)
	go func() {
		_, err := p.Checkout(ctx)
		errCh <- err
	}()
	assert.Eventually(t, func() bool { return p.Stats().Waiting == 1 }, time.Second, time.Millisecond)

	require.NoError(t, p.Shutdown(ctx))
	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, errcode.ErrPoolExhausted)
	case <-time.After(time.Second):
		t.Fatal("waiter was not released by shutdown")
	}
}

func TestPool_WithConnection(t *testing.T) {
	p, _ := newTestPool(t, Config{Capacity: 1, Timeout: 50 * time.Millisecond})
	ctx := context.Background()

	boom := errors.New("query failed")
	err := p.WithConnection(ctx, func(c *fakeConn) error { return boom })
	assert.Equal(t, boom, err)
	assert.Equal(t, 1, p.Stats().Available)

	assert.Panics(t, func() {
		_ = p.WithConnection(ctx, func(c *fakeConn) error { panic("adapter bug") })
	})
	assert.Equal(t, 0, p.Stats().CheckedOut, "checkin runs on panic")

	n, err := WithConnectionResult(ctx, p, func(c *fakeConn) (int64, error) { return c.id, nil })
	require.NoError(t, err)
	assert.Positive(t, n)
}

func TestPool_ConcurrentInvariant(t *testing.T) {
	p, _ := newTestPool(t, Config{Capacity: 4, Timeout: 2 * time.Second})
	ctx := context.Background()

	var (
		wg       sync.WaitGroup
		inUse    atomic.Int32
		maxInUse atomic.Int32
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := p.WithConnection(ctx, func(c *fakeConn) error {
				n := inUse.Add(1)
				for {
					m := maxInUse.Load()
					if n <= m || maxInUse.CompareAndSwap(m, n) {
						break
					}
				}
				time.Sleep(time.Millisecond)
				inUse.Add(-1)
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, maxInUse.Load(), int32(4))
	assert.LessOrEqual(t, p.Stats().Created, int64(4))
	assertInvariant(t, p)
}

func TestPool_Reap(t *testing.T) {
	p, _ := newTestPool(t, Config{Capacity: 3, Timeout: time.Second})
	ctx := context.Background()

	_, err := p.Warmup(ctx, 3)
	require.NoError(t, err)

	p.mu.Lock()
	p.idle[0].healthy.Store(false)
	p.mu.Unlock()

	assert.Equal(t, 1, p.Reap(ctx))
	assert.Equal(t, 2, p.Stats().Available)
	assert.Equal(t, 0, p.Reap(ctx))
}

func TestPool_StartReaper(t *testing.T) {
	p, _ := newTestPool(t, Config{Capacity: 2, Timeout: time.Second, ReapInterval: 20 * time.Millisecond})
	ctx := context.Background()

	_, err := p.Warmup(ctx, 2)
	require.NoError(t, err)
	require.NoError(t, p.StartReaper())
	require.NoError(t, p.StartReaper())

	p.mu.Lock()
	for _, c := range p.idle {
		c.healthy.Store(false)
	}
	p.mu.Unlock()

	assert.Eventually(t, func() bool { return p.Stats().Available == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestPool_Metrics(t *testing.T) {
	p, _ := newTestPool(t, Config{Capacity: 2, Timeout: time.Second, MetricsEnabled: true})
	assert.Equal(t, "pool", p.MetricsName())
	assert.True(t, p.IsMetricsEnabled())

	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	require.NoError(t, p.RegisterMetrics(provider.Meter("pool")))

	ctx := context.Background()
	_, err := p.Checkout(ctx)
	require.NoError(t, err)

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
	assert.Equal(t, int64(1), values["pool_checked_out"])
	assert.Equal(t, int64(1), values["pool_connections_created_total"])
}
