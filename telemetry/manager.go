// Package telemetry builds the OpenTelemetry tracer and meter providers used
// by the client's tracing and instrumentation middleware.
package telemetry

import (
	"context"
	"errors"
	"fmt"

	"github.com/stokry/vectra/breaker"
	"github.com/stokry/vectra/logger"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"
)

// Option configures the Manager
type Option func(*Manager)

// WithLogger sets the logger
func WithLogger(l *logger.CtxZapLogger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithSpanExporter replaces the configured span exporter (tests, custom backends)
func WithSpanExporter(exp sdktrace.SpanExporter) Option {
	return func(m *Manager) {
		m.spanExporter = exp
	}
}

// WithMetricReader replaces the periodic metric reader (e.g. sdkmetric.NewManualReader)
func WithMetricReader(r sdkmetric.Reader) Option {
	return func(m *Manager) {
		m.metricReader = r
	}
}

// WithGlobal installs the providers as the otel globals on Start
func WithGlobal() Option {
	return func(m *Manager) {
		m.global = true
	}
}

// Manager owns the tracer and meter providers. Before Start, or when
// disabled, it hands out noop providers.
type Manager struct {
	config       Config
	logger       *logger.CtxZapLogger
	spanExporter sdktrace.SpanExporter
	metricReader sdkmetric.Reader
	global       bool

	tracerProvider *sdktrace.TracerProvider
	meterProvider  *sdkmetric.MeterProvider
	guarded        *GuardedExporter
	registry       *MetricsRegistry
}

// NewManager creates the manager; call Start to build the providers
func NewManager(cfg Config, opts ...Option) *Manager {
	cfg.ApplyDefaults()
	m := &Manager{config: cfg, logger: logger.GetLogger("vectra")}
	for _, opt := range opts {
		opt(m)
	}
	m.registry = NewMetricsRegistry(metricnoop.NewMeterProvider(),
		WithNamespace(cfg.Metrics.Namespace), WithRegistryLogger(m.logger))
	return m
}

// Start builds the providers
func (m *Manager) Start(ctx context.Context) error {
	if !m.config.Enabled {
		m.logger.InfoCtx(ctx, "Telemetry disabled, using noop providers")
		return nil
	}
	if err := m.config.Validate(); err != nil {
		return err
	}

	res, err := newResource(ctx, m.config)
	if err != nil {
		return fmt.Errorf("create resource failed: %w", err)
	}

	tp, err := m.newTracerProvider(ctx, res)
	if err != nil {
		return err
	}
	m.tracerProvider = tp

	if m.config.Metrics.Enabled {
		mp, err := m.newMeterProvider(ctx, res)
		if err != nil {
			_ = tp.Shutdown(ctx)
			return err
		}
		m.meterProvider = mp
		m.registry = NewMetricsRegistry(mp,
			WithNamespace(m.config.Metrics.Namespace),
			WithBaseLabels(labels(m.config.Metrics.Labels)),
			WithRegistryLogger(m.logger))
	}

	if m.global {
		otel.SetTracerProvider(m.TracerProvider())
		otel.SetMeterProvider(m.MeterProvider())
	}

	m.logger.InfoCtx(ctx, "✅ Telemetry started",
		zap.String("service_name", m.config.ServiceName),
		zap.String("exporter", m.config.Exporter.Type),
		zap.Bool("metrics", m.meterProvider != nil))
	return nil
}

func (m *Manager) newTracerProvider(ctx context.Context, res *resource.Resource) (*sdktrace.TracerProvider, error) {
	exporter, err := m.newGuardedSpanExporter(ctx)
	if err != nil {
		return nil, err
	}

	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler(m.config.Sampler)),
	}
	if m.config.Batch.Enabled {
		opts = append(opts, sdktrace.WithBatcher(exporter,
			sdktrace.WithMaxQueueSize(m.config.Batch.MaxQueueSize),
			sdktrace.WithMaxExportBatchSize(m.config.Batch.MaxExportBatchSize),
			sdktrace.WithBatchTimeout(m.config.Batch.ScheduleDelay),
			sdktrace.WithExportTimeout(m.config.Batch.ExportTimeout),
		))
	} else {
		opts = append(opts, sdktrace.WithSyncer(exporter))
	}
	return sdktrace.NewTracerProvider(opts...), nil
}

func (m *Manager) newGuardedSpanExporter(ctx context.Context) (sdktrace.SpanExporter, error) {
	primary := m.spanExporter
	if primary == nil {
		exp, err := newSpanExporter(ctx, m.config.Exporter.Type, m.config.Exporter)
		if err != nil {
			return nil, fmt.Errorf("create span exporter failed: %w", err)
		}
		primary = exp
	}
	if !m.config.Breaker.Enabled {
		return primary, nil
	}

	fallback, err := newSpanExporter(ctx, m.config.Breaker.Fallback, m.config.Exporter)
	if err != nil {
		m.logger.WarnCtx(ctx, "Failed to create fallback exporter, using noop",
			zap.Error(err),
			zap.String("fallback", m.config.Breaker.Fallback))
		fallback = noopExporter{}
	}

	cb, err := breaker.New("telemetry_exporter", m.config.Breaker.Breaker, breaker.WithLogger(m.logger))
	if err != nil {
		return nil, err
	}
	m.guarded = NewGuardedExporter(primary, fallback, cb)

	m.logger.InfoCtx(ctx, "✅ Circuit breaker enabled for telemetry exporter",
		zap.Int("failure_threshold", m.config.Breaker.Breaker.FailureThreshold),
		zap.Duration("recovery_timeout", m.config.Breaker.Breaker.RecoveryTimeout),
		zap.String("fallback", m.config.Breaker.Fallback))
	return m.guarded, nil
}

func (m *Manager) newMeterProvider(ctx context.Context, res *resource.Resource) (*sdkmetric.MeterProvider, error) {
	opts := []sdkmetric.Option{sdkmetric.WithResource(res)}

	reader := m.metricReader
	if reader == nil {
		exporter, err := newMetricExporter(ctx, m.config.Exporter)
		if err != nil {
			return nil, err
		}
		if exporter != nil {
			reader = sdkmetric.NewPeriodicReader(exporter,
				sdkmetric.WithInterval(m.config.Metrics.ExportInterval),
				sdkmetric.WithTimeout(m.config.Metrics.ExportTimeout))
		}
	}
	if reader != nil {
		opts = append(opts, sdkmetric.WithReader(reader))
	}
	return sdkmetric.NewMeterProvider(opts...), nil
}

func sampler(cfg SamplerConfig) sdktrace.Sampler {
	switch cfg.Type {
	case SamplerAlwaysOn:
		return sdktrace.AlwaysSample()
	case SamplerAlwaysOff:
		return sdktrace.NeverSample()
	case SamplerRatio:
		return sdktrace.TraceIDRatioBased(cfg.Ratio)
	default:
		return sdktrace.ParentBased(sdktrace.AlwaysSample())
	}
}

// Shutdown flushes and stops the providers
func (m *Manager) Shutdown(ctx context.Context) error {
	var errs []error
	if m.tracerProvider != nil {
		if err := m.tracerProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown tracer provider failed: %w", err))
		}
	}
	if m.meterProvider != nil {
		if err := m.meterProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown meter provider failed: %w", err))
		}
	}
	return errors.Join(errs...)
}

// TracerProvider returns the sdk provider, or a noop provider when not started
func (m *Manager) TracerProvider() trace.TracerProvider {
	if m.tracerProvider == nil {
		return tracenoop.NewTracerProvider()
	}
	return m.tracerProvider
}

// MeterProvider returns the sdk provider, or a noop provider when metrics are off
func (m *Manager) MeterProvider() metric.MeterProvider {
	if m.meterProvider == nil {
		return metricnoop.NewMeterProvider()
	}
	return m.meterProvider
}

// Tracer returns a named tracer
func (m *Manager) Tracer(name string) trace.Tracer {
	return m.TracerProvider().Tracer(name)
}

// Meter returns a meter through the metrics registry namespace
func (m *Manager) Meter(name string) metric.Meter {
	return m.registry.GetMeter(name)
}

// Registry returns the metrics registry
func (m *Manager) Registry() *MetricsRegistry {
	return m.registry
}

// ExporterBreaker returns the breaker guarding the span exporter, nil when disabled
func (m *Manager) ExporterBreaker() *breaker.CircuitBreaker {
	if m.guarded == nil {
		return nil
	}
	return m.guarded.Breaker()
}

// IsEnabled reports whether telemetry is enabled
func (m *Manager) IsEnabled() bool {
	return m.config.Enabled
}

// Config returns the applied configuration
func (m *Manager) Config() Config {
	return m.config
}
