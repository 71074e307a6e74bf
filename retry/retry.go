// Package retry runs operations with classified retries and exponential backoff.
package retry

import (
	"context"
	"errors"
	"time"

	"github.com/stokry/vectra/logger"
	"go.uber.org/zap"
)

// ErrBudgetExhausted is joined with the last error when the retry budget denies a retry
var ErrBudgetExhausted = errors.New("retry: budget exhausted")

type config struct {
	policy     Policy
	backoff    BackoffStrategy
	classifier Classifier
	onRetry    func(attempt int, delay time.Duration, err error)
	budget     *Budget
	logger     *logger.CtxZapLogger
}

// Option configures a single Do call
type Option func(*config)

func newConfig(opts []Option) *config {
	cfg := &config{
		policy:     DefaultPolicy(),
		classifier: DefaultClassifier(),
		logger:     logger.GetLogger("vectra"),
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.backoff == nil {
		cfg.backoff = cfg.policy.Backoff()
	}
	return cfg
}

// WithPolicy sets attempts and backoff from p; zero fields take defaults
func WithPolicy(p Policy) Option {
	return func(c *config) {
		p.ApplyDefaults()
		c.policy = p
	}
}

// MaxAttempts overrides the attempt count (ignored when <= 0)
func MaxAttempts(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.policy.MaxAttempts = n
		}
	}
}

// Backoff overrides the policy backoff
func Backoff(b BackoffStrategy) Option {
	return func(c *config) {
		if b != nil {
			c.backoff = b
		}
	}
}

// Classify overrides the default classifier
func Classify(cl Classifier) Option {
	return func(c *config) {
		if cl != nil {
			c.classifier = cl
		}
	}
}

// OnRetry is called before sleeping for each retry
func OnRetry(fn func(attempt int, delay time.Duration, err error)) Option {
	return func(c *config) {
		c.onRetry = fn
	}
}

// WithBudget shares a retry budget across calls
func WithBudget(b *Budget) Option {
	return func(c *config) {
		c.budget = b
	}
}

// WithLogger sets the logger
func WithLogger(l *logger.CtxZapLogger) Option {
	return func(c *config) {
		if l != nil {
			c.logger = l
		}
	}
}

// Do runs operation until it succeeds, a non-retryable error occurs or the
// attempts are exhausted. The last operation error is returned unmodified.
func Do(ctx context.Context, operation func() error, opts ...Option) error {
	_, _, err := DoWithAttempts(ctx, func() (struct{}, error) {
		return struct{}{}, operation()
	}, opts...)
	return err
}

// DoWithData is Do for operations returning a value
func DoWithData[T any](ctx context.Context, operation func() (T, error), opts ...Option) (T, error) {
	result, _, err := DoWithAttempts(ctx, operation, opts...)
	return result, err
}

// DoWithAttempts is DoWithData that also reports how many attempts ran.
// If ctx ends while sleeping, the last error joined with ctx.Err() is returned.
func DoWithAttempts[T any](ctx context.Context, operation func() (T, error), opts ...Option) (T, int, error) {
	cfg := newConfig(opts)
	if cfg.budget != nil {
		cfg.budget.RecordCall()
	}

	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for attempt := 1; ; attempt++ {
		result, err := operation()
		if err == nil {
			if attempt > 1 {
				cfg.logger.DebugCtx(ctx, "✅ [Retry] succeeded after retry", zap.Int("attempts", attempt))
			}
			return result, attempt, nil
		}

		if attempt >= cfg.policy.MaxAttempts || !cfg.classifier.ShouldRetry(err, attempt) {
			return result, attempt, err
		}
		if cfg.budget != nil && !cfg.budget.AllowRetry() {
			cfg.logger.WarnCtx(ctx, "🪫 [Retry] budget exhausted", zap.Int("attempt", attempt), zap.Error(err))
			return result, attempt, errors.Join(err, ErrBudgetExhausted)
		}

		delay := cfg.backoff.Next(attempt)
		cfg.logger.WarnCtx(ctx, "🔁 [Retry] attempt failed, retrying",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", cfg.policy.MaxAttempts),
			zap.Duration("delay", delay),
			zap.Error(err))
		if cfg.onRetry != nil {
			cfg.onRetry(attempt, delay, err)
		}

		if delay <= 0 {
			if ctx.Err() != nil {
				return result, attempt, errors.Join(err, ctx.Err())
			}
			continue
		}

		if timer == nil {
			timer = time.NewTimer(delay)
		} else {
			timer.Reset(delay)
		}
		select {
		case <-timer.C:
		case <-ctx.Done():
			return result, attempt, errors.Join(err, ctx.Err())
		}
	}
}
