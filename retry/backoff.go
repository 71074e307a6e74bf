package retry

import (
	"math"
	"math/rand/v2"
	"time"
)

// BackoffStrategy computes the delay after the n-th failed attempt (n starts at 1)
type BackoffStrategy interface {
	Next(attempt int) time.Duration
}

// BackoffOption configures a backoff strategy
type BackoffOption func(*backoffConfig)

type backoffConfig struct {
	multiplier float64
	maxDelay   time.Duration
	jitter     float64
}

func defaultBackoffConfig() *backoffConfig {
	return &backoffConfig{
		multiplier: 2.0,
		maxDelay:   5 * time.Second,
	}
}

// WithMultiplier sets the growth factor (ignored when <= 0)
func WithMultiplier(m float64) BackoffOption {
	return func(c *backoffConfig) {
		if m > 0 {
			c.multiplier = m
		}
	}
}

// WithMaxDelay caps every delay (ignored when <= 0)
func WithMaxDelay(d time.Duration) BackoffOption {
	return func(c *backoffConfig) {
		if d > 0 {
			c.maxDelay = d
		}
	}
}

// WithJitter sets the perturbation ratio in [0, 1]
func WithJitter(ratio float64) BackoffOption {
	return func(c *backoffConfig) {
		if ratio >= 0 && ratio <= 1.0 {
			c.jitter = ratio
		}
	}
}

type exponentialBackoff struct {
	base   time.Duration
	config *backoffConfig
}

// ExponentialBackoff delay = min(base * multiplier^(attempt-1), maxDelay).
// With jitter the result is perturbed and clamped back into [base, maxDelay].
//
//	base=1s, multiplier=2, max=10s: 1s 2s 4s 8s 10s 10s
func ExponentialBackoff(base time.Duration, opts ...BackoffOption) BackoffStrategy {
	config := defaultBackoffConfig()
	for _, opt := range opts {
		opt(config)
	}
	if config.maxDelay < base {
		config.maxDelay = base
	}
	return &exponentialBackoff{base: base, config: config}
}

func (b *exponentialBackoff) Next(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}

	delay := float64(b.base) * math.Pow(b.config.multiplier, float64(attempt-1))
	delay = math.Min(delay, float64(b.config.maxDelay))

	if b.config.jitter > 0 {
		delay = applyJitter(delay, b.config.jitter)
		delay = math.Max(float64(b.base), math.Min(delay, float64(b.config.maxDelay)))
	}
	return time.Duration(delay)
}

type constantBackoff struct {
	delay time.Duration
}

// ConstantBackoff waits the same delay before every retry
func ConstantBackoff(delay time.Duration) BackoffStrategy {
	return &constantBackoff{delay: delay}
}

func (b *constantBackoff) Next(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}
	return b.delay
}

type noBackoff struct{}

// NoBackoff retries immediately
func NoBackoff() BackoffStrategy {
	return noBackoff{}
}

func (noBackoff) Next(int) time.Duration {
	return 0
}

// applyJitter returns a uniform value in [delay*(1-jitter), delay*(1+jitter)], never negative
func applyJitter(delay float64, jitter float64) float64 {
	delta := delay * jitter
	result := delay + (rand.Float64()*2-1)*delta
	if result < 0 {
		return 0
	}
	return result
}
