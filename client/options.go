package client

import (
	"time"

	"github.com/stokry/vectra/batch"
	"github.com/stokry/vectra/breaker"
	"github.com/stokry/vectra/health"
	"github.com/stokry/vectra/limiter"
	"github.com/stokry/vectra/logger"
	"github.com/stokry/vectra/middleware"
	"github.com/stokry/vectra/retry"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Option configures a Client
type Option func(*options)

type options struct {
	name   string
	logger *logger.CtxZapLogger

	limiter  *limiter.TokenBucket
	limiters *limiter.Registry
	acquire  limiter.AcquireOptions

	breaker  *breaker.CircuitBreaker
	breakers *breaker.Registry

	retryPolicy retry.Policy
	retryOpts   []retry.Option

	dryRun     bool
	dryRunOpts []middleware.DryRunOption
	requestID  func() string

	tracer trace.Tracer
	meter  metric.Meter
	extra  []middleware.Middleware

	batch         batch.Config
	healthTimeout time.Duration
	checkers      []health.Checker
}

func defaultOptions() options {
	return options{
		logger:      logger.GetLogger("vectra"),
		acquire:     limiter.AcquireOptions{Wait: true},
		retryPolicy: retry.DefaultPolicy(),
		batch:       batch.DefaultConfig(),
	}
}

// WithName names the upstream; defaults to the adapter name
func WithName(name string) Option {
	return func(o *options) {
		o.name = name
	}
}

// WithLogger sets the logger used by the client and its pipeline
func WithLogger(l *logger.CtxZapLogger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithLimiter gates every call on bucket
func WithLimiter(bucket *limiter.TokenBucket) Option {
	return func(o *options) {
		o.limiter = bucket
	}
}

// WithLimiterRegistry takes the bucket named after the upstream from r
func WithLimiterRegistry(r *limiter.Registry) Option {
	return func(o *options) {
		o.limiters = r
	}
}

// WithAcquireOptions sets how the gate waits for a token (default: wait up to the bucket timeout)
func WithAcquireOptions(opts limiter.AcquireOptions) Option {
	return func(o *options) {
		o.acquire = opts
	}
}

// WithBreaker guards every call with cb
func WithBreaker(cb *breaker.CircuitBreaker) Option {
	return func(o *options) {
		o.breaker = cb
	}
}

// WithBreakerRegistry takes the breaker named after the upstream from r
func WithBreakerRegistry(r *breaker.Registry) Option {
	return func(o *options) {
		o.breakers = r
	}
}

// WithRetryPolicy sets the retry policy of the pipeline
func WithRetryPolicy(p retry.Policy) Option {
	return func(o *options) {
		o.retryPolicy = p
	}
}

// WithRetryOptions appends raw retry options (classifier, budget, hooks)
func WithRetryOptions(opts ...retry.Option) Option {
	return func(o *options) {
		o.retryOpts = append(o.retryOpts, opts...)
	}
}

// WithDryRun answers writes with a plan instead of calling the backend
func WithDryRun(enabled bool, opts ...middleware.DryRunOption) Option {
	return func(o *options) {
		o.dryRun = enabled
		o.dryRunOpts = append(o.dryRunOpts, opts...)
	}
}

// WithRequestIDGenerator replaces the uuid request id generator
func WithRequestIDGenerator(fn func() string) Option {
	return func(o *options) {
		o.requestID = fn
	}
}

// WithTracer adds the tracing middleware
func WithTracer(t trace.Tracer) Option {
	return func(o *options) {
		o.tracer = t
	}
}

// WithMeter adds the instrumentation middleware
func WithMeter(m metric.Meter) Option {
	return func(o *options) {
		o.meter = m
	}
}

// WithMiddleware appends middleware between recovery and dry-run
func WithMiddleware(mws ...middleware.Middleware) Option {
	return func(o *options) {
		o.extra = append(o.extra, mws...)
	}
}

// WithBatchConfig configures UpsertBatch
func WithBatchConfig(cfg batch.Config) Option {
	return func(o *options) {
		o.batch = cfg
	}
}

// WithHealthTimeout bounds Health
func WithHealthTimeout(d time.Duration) Option {
	return func(o *options) {
		o.healthTimeout = d
	}
}

// WithHealthCheckers adds checkers to Health
func WithHealthCheckers(checkers ...health.Checker) Option {
	return func(o *options) {
		o.checkers = append(o.checkers, checkers...)
	}
}
