package limiter

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stokry/vectra/errcode"
	"github.com/stokry/vectra/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock advances only when told to
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
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

func newBucketWithClock(t *testing.T, rate float64, burst int) (*TokenBucket, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Unix(1700000000, 0)}
	b, err := NewTokenBucket("test", rate, burst, WithLogger(logger.NewNop()))
	require.NoError(t, err)
	b.now = clock.Now
	b.Reset()
	return b, clock
}

func TestNewTokenBucket_InvalidConfig(t *testing.T) {
	tests := []struct {
		name  string
		rate  float64
		burst int
	}{
		{"zero rate", 0, 5},
		{"negative rate", -1, 5},
		{"zero burst", 10, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewTokenBucket("bad", tt.rate, tt.burst)
			require.Error(t, err)
			assert.ErrorIs(t, err, errcode.ErrValidation)
		})
	}
}

func TestTokenBucket_DrainAndReject(t *testing.T) {
	b, _ := newBucketWithClock(t, 10, 5)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, b.Acquire(ctx, AcquireOptions{}), "request %d should pass", i+1)
	}

	err := b.Acquire(ctx, AcquireOptions{})
	require.Error(t, err)
	assert.ErrorIs(t, err, errcode.ErrRateLimitExceeded)
	assert.Equal(t, errcode.KindRateLimit, errcode.KindOf(err))

	var rle *RateLimitError
	require.True(t, errors.As(err, &rle))
	assert.Equal(t, "test", rle.Name)
	assert.Equal(t, 100*time.Millisecond, rle.WaitTime)
}

func TestTokenBucket_RecoversAfterRefill(t *testing.T) {
	b, clock := newBucketWithClock(t, 10, 5)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, b.Acquire(ctx, AcquireOptions{}))
	}
	assert.InDelta(t, 0, b.Tokens(), 1e-9)

	clock.Advance(100 * time.Millisecond)
	assert.GreaterOrEqual(t, b.Tokens(), 1.0)
	assert.NoError(t, b.Acquire(ctx, AcquireOptions{}))
}

func TestTokenBucket_TokensNeverExceedCapacity(t *testing.T) {
	b, clock := newBucketWithClock(t, 10, 5)
	ctx := context.Background()

	steps := []time.Duration{0, 50 * time.Millisecond, time.Hour, 0, 10 * time.Millisecond, 3 * time.Second}
	for _, step := range steps {
		clock.Advance(step)
		_ = b.Acquire(ctx, AcquireOptions{})
		tokens := b.Tokens()
		assert.GreaterOrEqual(t, tokens, 0.0)
		assert.LessOrEqual(t, tokens, 5.0)
	}
}

func TestTokenBucket_Reset(t *testing.T) {
	b, _ := newBucketWithClock(t, 1, 3)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		require.NoError(t, b.Acquire(ctx, AcquireOptions{}))
	}
	b.Reset()
	assert.Equal(t, 3.0, b.Tokens())
}

func TestTokenBucket_WaitSucceeds(t *testing.T) {
	b, err := NewTokenBucket("wait", 50, 1, WithLogger(logger.NewNop()), WithPollInterval(5*time.Millisecond))
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, b.Acquire(ctx, AcquireOptions{}))

	start := time.Now()
	require.NoError(t, b.Acquire(ctx, AcquireOptions{Wait: true, Timeout: time.Second}))
	assert.GreaterOrEqual(t, time.Since(start), 10*time.Millisecond)
}

func TestTokenBucket_WaitTimesOut(t *testing.T) {
	b, err := NewTokenBucket("slow", 0.5, 1, WithLogger(logger.NewNop()))
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, b.Acquire(ctx, AcquireOptions{}))

	start := time.Now()
	err = b.Acquire(ctx, AcquireOptions{Wait: true, Timeout: 50 * time.Millisecond})
	elapsed := time.Since(start)

	require.Error(t, err)
	assert.ErrorIs(t, err, errcode.ErrRateLimitExceeded)
	assert.GreaterOrEqual(t, elapsed, 50*time.Millisecond)
	assert.Less(t, elapsed, 500*time.Millisecond)

	var rle *RateLimitError
	require.True(t, errors.As(err, &rle))
	assert.Greater(t, rle.WaitTime, time.Duration(0))
}

func TestTokenBucket_WaitDeadlineIgnoresRefillClock(t *testing.T) {
	b, _ := newBucketWithClock(t, 10, 1)
	b.pollInterval = 5 * time.Millisecond
	ctx := context.Background()
	require.NoError(t, b.Acquire(ctx, AcquireOptions{}))

	// the refill clock is frozen, so only the wall clock can end the wait
	start := time.Now()
	err := b.Acquire(ctx, AcquireOptions{Wait: true, Timeout: 30 * time.Millisecond})
	elapsed := time.Since(start)

	assert.ErrorIs(t, err, errcode.ErrRateLimitExceeded)
	assert.GreaterOrEqual(t, elapsed, 30*time.Millisecond)
	assert.Less(t, elapsed, time.Second)
}

func TestTokenBucket_WaitCancelled(t *testing.T) {
	b, err := NewTokenBucket("cancel", 0.1, 1, WithLogger(logger.NewNop()))
	require.NoError(t, err)
	require.NoError(t, b.Acquire(context.Background(), AcquireOptions{}))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err = b.Acquire(ctx, AcquireOptions{Wait: true, Timeout: 5 * time.Second})
	assert.ErrorIs(t, err, errcode.ErrRateLimitExceeded)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestTokenBucket_TryAcquire(t *testing.T) {
	b, _ := newBucketWithClock(t, 10, 1)
	ctx := context.Background()

	assert.True(t, b.TryAcquire(ctx, 0))
	assert.False(t, b.TryAcquire(ctx, 0))
}

func TestTokenBucket_Do(t *testing.T) {
	b, _ := newBucketWithClock(t, 10, 1)
	ctx := context.Background()

	calls := 0
	op := func(ctx context.Context) error {
		calls++
		return nil
	}

	require.NoError(t, b.Do(ctx, AcquireOptions{}, op))
	err := b.Do(ctx, AcquireOptions{}, op)
	assert.ErrorIs(t, err, errcode.ErrRateLimitExceeded)
	assert.Equal(t, 1, calls, "guarded operation must not run without a token")
}

func TestTokenBucket_ConcurrentAcquire(t *testing.T) {
	b, _ := newBucketWithClock(t, 1, 50)
	ctx := context.Background()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		granted int
	)
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if b.TryAcquire(ctx, 0) {
				mu.Lock()
				granted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, granted)
	assert.GreaterOrEqual(t, b.Tokens(), 0.0)
}
