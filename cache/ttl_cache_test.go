package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stokry/vectra/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Unix(1_700_000_000, 0)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestCache[V any](ttl time.Duration, maxSize int) (*TTLCache[V], *fakeClock) {
	clock := newFakeClock()
	c := NewTTLCache[V](ttl, maxSize, WithLogger(logger.NewNop()))
	c.now = clock.Now
	return c, clock
}

func TestTTLCache_RoundTripAndExpiry(t *testing.T) {
	c, clock := newTestCache[string](10*time.Second, 10)

	c.Set("k", "v")
	v, ok := c.Get("k")
	require.True(t, ok)
	assert.Equal(t, "v", v)
	assert.True(t, c.Exists("k"))

	clock.Advance(9 * time.Second)
	_, ok = c.Get("k")
	assert.True(t, ok)

	clock.Advance(time.Second)
	_, ok = c.Get("k")
	assert.True(t, ok, "an entry exactly ttl old is still present")

	clock.Advance(time.Nanosecond)
	_, ok = c.Get("k")
	assert.False(t, ok)
	assert.False(t, c.Exists("k"))
	assert.Zero(t, c.Len(), "expired entry is evicted on read")

	s := c.Stats()
	assert.Equal(t, int64(3), s.Hits)
	assert.Equal(t, int64(1), s.Misses)
	assert.Equal(t, int64(1), s.Expirations)
}

func TestTTLCache_EvictsOldestFirst(t *testing.T) {
	c, clock := newTestCache[int](time.Hour, 10)

	for i := 0; i < 10; i++ {
		c.Set(fmt.Sprintf("k%d", i), i)
		clock.Advance(time.Millisecond)
	}
	require.Equal(t, 10, c.Len())

	// full: floor(10*0.1)+1 = 2 oldest go before the insert
	c.Set("new", 100)
	assert.Equal(t, 9, c.Len())
	assert.False(t, c.Exists("k0"))
	assert.False(t, c.Exists("k1"))
	assert.True(t, c.Exists("k2"))
	assert.True(t, c.Exists("new"))
	assert.Equal(t, int64(2), c.Stats().Evictions)
}

func TestTTLCache_EvictionCountScalesWithMaxSize(t *testing.T) {
	c, clock := newTestCache[int](time.Hour, 50)
	for i := 0; i < 50; i++ {
		c.Set(fmt.Sprintf("k%02d", i), i)
		clock.Advance(time.Millisecond)
	}

	c.Set("overflow", 0)
	// floor(50*0.1)+1 = 6
	assert.Equal(t, 45, c.Len())
	for i := 0; i < 6; i++ {
		assert.False(t, c.Exists(fmt.Sprintf("k%02d", i)))
	}
	assert.True(t, c.Exists("k06"))
}

func TestTTLCache_OverwriteDoesNotEvict(t *testing.T) {
	c, _ := newTestCache[int](time.Hour, 2)
	c.Set("a", 1)
	c.Set("b", 2)
	c.Set("a", 3)

	assert.Equal(t, 2, c.Len())
	v, _ := c.Get("a")
	assert.Equal(t, 3, v)
}

func TestTTLCache_DeleteClear(t *testing.T) {
	c, _ := newTestCache[int](time.Hour, 10)
	c.Set("idx:a", 1)
	c.Set("idx:b", 2)
	c.Set("other", 3)

	assert.True(t, c.Delete("other"))
	assert.False(t, c.Delete("other"))

	assert.Equal(t, 2, c.DeleteFunc(func(k string) bool { return k[:4] == "idx:" }))
	c.Set("x", 1)
	c.Clear()
	assert.Zero(t, c.Len())
}

func TestTTLCache_SetWithTTL(t *testing.T) {
	c, clock := newTestCache[int](time.Hour, 10)
	c.SetWithTTL("short", 1, time.Second)
	c.SetWithTTL("forever", 2, 0)

	clock.Advance(2 * time.Hour)
	assert.False(t, c.Exists("short"))
	assert.True(t, c.Exists("forever"))
}

func TestTTLCache_Fetch(t *testing.T) {
	c, _ := newTestCache[string](time.Hour, 10)
	ctx := context.Background()

	calls := 0
	compute := func(ctx context.Context) (string, error) {
		calls++
		return "fresh", nil
	}

	v, err := c.Fetch(ctx, "k", compute)
	require.NoError(t, err)
	assert.Equal(t, "fresh", v)

	v, err = c.Fetch(ctx, "k", compute)
	require.NoError(t, err)
	assert.Equal(t, "fresh", v)
	assert.Equal(t, 1, calls)

	boom := errors.New("backend down")
	_, err = c.Fetch(ctx, "bad", func(ctx context.Context) (string, error) { return "", boom })
	assert.Equal(t, boom, err)
	assert.False(t, c.Exists("bad"), "errors are not cached")
}

func TestTTLCache_FetchCollapsesConcurrentMisses(t *testing.T) {
	c, _ := newTestCache[int](time.Hour, 10)
	ctx := context.Background()

	var calls atomic.Int32
	release := make(chan struct{})
	compute := func(ctx context.Context) (int, error) {
		calls.Add(1)
		<-release
		return 7, nil
	}

	var wg sync.WaitGroup
	results := make([]int, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := c.Fetch(ctx, "hot", compute)
			assert.NoError(t, err)
			results[i] = v
		}(i)
	}

	assert.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.LessOrEqual(t, calls.Load(), int32(2))
	for _, v := range results {
		assert.Equal(t, 7, v)
	}
}

func TestTTLCache_FetchDoesNotHoldLock(t *testing.T) {
	c, _ := newTestCache[int](time.Hour, 10)
	c.Set("other", 1)

	started := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_, _ = c.Fetch(context.Background(), "slow", func(ctx context.Context) (int, error) {
			close(started)
			<-release
			return 1, nil
		})
	}()
	<-started

	done := make(chan struct{})
	go func() {
		_, _ = c.Get("other")
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Get blocked behind a slow compute")
	}
	close(release)
}

func TestTTLCache_PurgeAndJanitor(t *testing.T) {
	c, clock := newTestCache[int](time.Second, 10)
	c.Set("a", 1)
	c.Set("b", 2)
	clock.Advance(2 * time.Second)
	c.Set("c", 3)

	assert.Equal(t, 2, c.PurgeExpired())
	assert.Equal(t, 1, c.Len())

	clock.Advance(2 * time.Second)
	require.NoError(t, c.StartJanitor(10*time.Millisecond))
	require.NoError(t, c.StartJanitor(10*time.Millisecond))
	assert.Eventually(t, func() bool { return c.Len() == 0 }, 2*time.Second, 10*time.Millisecond)
	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
}
