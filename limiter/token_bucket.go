// Package limiter implements a proactive token bucket throttle and a named registry of buckets.
package limiter

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/stokry/vectra/errcode"
	"github.com/stokry/vectra/logger"
	"go.uber.org/zap"
)

const (
	// DefaultPollInterval bounds a single sleep while waiting for a token
	DefaultPollInterval = 10 * time.Millisecond
	// DefaultWaitTimeout is used when Acquire waits without an explicit timeout
	DefaultWaitTimeout = time.Second
)

// AcquireOptions controls Acquire
type AcquireOptions struct {
	Wait    bool          // block until a token is available or Timeout passes
	Timeout time.Duration // zero uses the bucket's wait timeout
}

// TokenBucket refills continuously at rate tokens/s up to burst tokens.
// tokens and lastRefill are only touched under mu.
type TokenBucket struct {
	name         string
	capacity     float64
	rate         float64
	pollInterval time.Duration
	waitTimeout  time.Duration

	mu         sync.Mutex
	tokens     float64
	lastRefill time.Time

	now     func() time.Time // drives refills only; wait deadlines use the wall clock
	logger  *logger.CtxZapLogger
	metrics *OTelMetrics
}

// Option configures a TokenBucket
type Option func(*TokenBucket)

// WithPollInterval bounds each sleep of a waiting Acquire
func WithPollInterval(d time.Duration) Option {
	return func(b *TokenBucket) {
		if d > 0 {
			b.pollInterval = d
		}
	}
}

// WithWaitTimeout sets the wait bound used when AcquireOptions.Timeout is zero
func WithWaitTimeout(d time.Duration) Option {
	return func(b *TokenBucket) {
		if d > 0 {
			b.waitTimeout = d
		}
	}
}

// WithLogger sets the logger
func WithLogger(l *logger.CtxZapLogger) Option {
	return func(b *TokenBucket) {
		if l != nil {
			b.logger = l
		}
	}
}

// WithMetrics records acquisitions on m
func WithMetrics(m *OTelMetrics) Option {
	return func(b *TokenBucket) {
		b.metrics = m
	}
}

// NewTokenBucket creates a full bucket
func NewTokenBucket(name string, rate float64, burst int, opts ...Option) (*TokenBucket, error) {
	cfg := ResourceConfig{Rate: rate, Burst: burst}
	if err := cfg.Validate(); err != nil {
		return nil, errcode.ErrValidation.Wrapf(err, "limiter %q: invalid config", name)
	}
	return newTokenBucket(name, cfg, opts...), nil
}

func newTokenBucket(name string, cfg ResourceConfig, opts ...Option) *TokenBucket {
	b := &TokenBucket{
		name:         name,
		capacity:     float64(cfg.Burst),
		rate:         cfg.Rate,
		pollInterval: DefaultPollInterval,
		waitTimeout:  DefaultWaitTimeout,
		now:          time.Now,
		logger:       logger.GetLogger("vectra"),
	}
	if cfg.PollInterval > 0 {
		b.pollInterval = cfg.PollInterval
	}
	if cfg.WaitTimeout > 0 {
		b.waitTimeout = cfg.WaitTimeout
	}
	for _, opt := range opts {
		opt(b)
	}
	b.tokens = b.capacity
	b.lastRefill = b.now()
	return b
}

// Name returns the bucket name
func (b *TokenBucket) Name() string {
	return b.name
}

// Rate returns the refill rate in tokens per second
func (b *TokenBucket) Rate() float64 {
	return b.rate
}

// Capacity returns the burst size
func (b *TokenBucket) Capacity() int {
	return int(b.capacity)
}

// refillLocked must be called with mu held
func (b *TokenBucket) refillLocked() {
	now := b.now()
	elapsed := now.Sub(b.lastRefill).Seconds()
	if elapsed > 0 {
		b.tokens = math.Min(b.capacity, b.tokens+elapsed*b.rate)
	}
	b.lastRefill = now
}

// take consumes one token, or reports how long until one is available
func (b *TokenBucket) take() (time.Duration, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.refillLocked()
	if b.tokens >= 1 {
		b.tokens--
		return 0, true
	}
	wait := (1 - b.tokens) / b.rate
	return time.Duration(wait * float64(time.Second)), false
}

// Acquire consumes one token. Without Wait it fails immediately with a
// *RateLimitError; with Wait it sleeps until a token is available, the
// timeout passes or ctx is done.
func (b *TokenBucket) Acquire(ctx context.Context, opts AcquireOptions) error {
	wait, ok := b.take()
	if ok {
		b.metrics.recordAllowed(ctx, b.name, 0)
		return nil
	}

	if !opts.Wait {
		b.metrics.recordRejected(ctx, b.name, "no_wait")
		b.logger.DebugCtx(ctx, "🚫 [Limiter] token not available",
			zap.String("name", b.name),
			zap.Duration("wait_time", wait))
		return &RateLimitError{Name: b.name, WaitTime: wait}
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = b.waitTimeout
	}
	start := time.Now()
	deadline := start.Add(timeout)

	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()

	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			b.metrics.recordRejected(ctx, b.name, "wait_timeout")
			b.logger.DebugCtx(ctx, "⏱️ [Limiter] wait timed out",
				zap.String("name", b.name),
				zap.Duration("timeout", timeout),
				zap.Duration("wait_time", wait))
			return &RateLimitError{Name: b.name, WaitTime: wait}
		}

		sleep := min(wait, b.pollInterval, remaining)
		timer.Reset(sleep)
		select {
		case <-ctx.Done():
			b.metrics.recordRejected(ctx, b.name, "cancelled")
			return &RateLimitError{Name: b.name, WaitTime: wait, Cause: ctx.Err()}
		case <-timer.C:
		}

		if wait, ok = b.take(); ok {
			b.metrics.recordAllowed(ctx, b.name, time.Since(start))
			return nil
		}
	}
}

// TryAcquire reports whether a token was obtained within timeout; zero means no waiting
func (b *TokenBucket) TryAcquire(ctx context.Context, timeout time.Duration) bool {
	return b.Acquire(ctx, AcquireOptions{Wait: timeout > 0, Timeout: timeout}) == nil
}

// Do runs fn after a token is secured
func (b *TokenBucket) Do(ctx context.Context, opts AcquireOptions, fn func(ctx context.Context) error) error {
	if err := b.Acquire(ctx, opts); err != nil {
		return err
	}
	return fn(ctx)
}

// Tokens returns the current token count after refilling
func (b *TokenBucket) Tokens() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.refillLocked()
	return b.tokens
}

// Reset fills the bucket
func (b *TokenBucket) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.tokens = b.capacity
	b.lastRefill = b.now()
}
