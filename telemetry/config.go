package telemetry

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/stokry/vectra/breaker"
	"github.com/stokry/vectra/validator"
)

// Exporter types
const (
	ExporterOTLP     = "otlp"
	ExporterOTLPHTTP = "otlphttp" // spans only, metrics are not exported
	ExporterStdout   = "stdout"
	ExporterNoop     = "noop"
)

// Sampler types
const (
	SamplerAlwaysOn       = "always_on"
	SamplerAlwaysOff      = "always_off"
	SamplerRatio          = "trace_id_ratio"
	SamplerParentAlwaysOn = "parent_based_always_on"
)

// Config OpenTelemetry configuration
type Config struct {
	Enabled        bool                   `mapstructure:"enabled"`
	ServiceName    string                 `mapstructure:"service_name"`
	ServiceVersion string                 `mapstructure:"service_version"`
	Exporter       ExporterConfig         `mapstructure:"exporter"`
	Sampler        SamplerConfig          `mapstructure:"sampler"`
	ResourceAttrs  map[string]interface{} `mapstructure:"resource_attributes"` // nested maps are flattened with '.'
	Batch          BatchConfig            `mapstructure:"batch"`
	Breaker        ExporterBreakerConfig  `mapstructure:"breaker"`
	Metrics        MetricsConfig          `mapstructure:"metrics"`
}

// ExporterConfig span and metric exporter
type ExporterConfig struct {
	Type     string            `mapstructure:"type"` // otlp, otlphttp, stdout, noop
	Endpoint string            `mapstructure:"endpoint"`
	Insecure bool              `mapstructure:"insecure"`
	Timeout  time.Duration     `mapstructure:"timeout"`
	Headers  map[string]string `mapstructure:"headers"`
}

// SamplerConfig trace sampling
type SamplerConfig struct {
	Type  string  `mapstructure:"type"`
	Ratio float64 `mapstructure:"ratio"` // trace_id_ratio only
}

// BatchConfig span batching; disabled means synchronous export
type BatchConfig struct {
	Enabled            bool          `mapstructure:"enabled"`
	MaxQueueSize       int           `mapstructure:"max_queue_size"`
	MaxExportBatchSize int           `mapstructure:"max_export_batch_size"`
	ScheduleDelay      time.Duration `mapstructure:"schedule_delay"`
	ExportTimeout      time.Duration `mapstructure:"export_timeout"`
}

// ExporterBreakerConfig guards the span exporter with a circuit breaker
type ExporterBreakerConfig struct {
	Enabled  bool           `mapstructure:"enabled"`
	Fallback string         `mapstructure:"fallback"` // stdout or noop
	Breaker  breaker.Config `mapstructure:",squash"`
}

// MetricsConfig meter provider
type MetricsConfig struct {
	Enabled        bool              `mapstructure:"enabled"`
	ExportInterval time.Duration     `mapstructure:"export_interval"`
	ExportTimeout  time.Duration     `mapstructure:"export_timeout"`
	Namespace      string            `mapstructure:"namespace"`
	Labels         map[string]string `mapstructure:"labels"`
}

// DefaultConfig telemetry disabled, otlp on localhost when enabled
func DefaultConfig() Config {
	return Config{
		ServiceName:    "vectra",
		ServiceVersion: "dev",
		Exporter: ExporterConfig{
			Type:     ExporterOTLP,
			Endpoint: "localhost:4317",
			Insecure: true,
			Timeout:  10 * time.Second,
		},
		Sampler: SamplerConfig{Type: SamplerParentAlwaysOn, Ratio: 1},
		Batch: BatchConfig{
			Enabled:            true,
			MaxQueueSize:       2048,
			MaxExportBatchSize: 512,
			ScheduleDelay:      5 * time.Second,
			ExportTimeout:      30 * time.Second,
		},
		Breaker: ExporterBreakerConfig{
			Enabled:  true,
			Fallback: ExporterNoop,
			Breaker: breaker.Config{
				FailureThreshold: 5,
				SuccessThreshold: 2,
				RecoveryTimeout:  60 * time.Second,
			},
		},
		Metrics: MetricsConfig{
			ExportInterval: 10 * time.Second,
			ExportTimeout:  5 * time.Second,
			Namespace:      "vectra",
		},
	}
}

// ApplyDefaults fills zero values from DefaultConfig
func (c *Config) ApplyDefaults() {
	d := DefaultConfig()
	if c.ServiceName == "" {
		c.ServiceName = d.ServiceName
	}
	if c.ServiceVersion == "" {
		c.ServiceVersion = d.ServiceVersion
	}
	if c.Exporter.Type == "" {
		c.Exporter.Type = d.Exporter.Type
	}
	if c.Exporter.Timeout <= 0 {
		c.Exporter.Timeout = d.Exporter.Timeout
	}
	if c.Sampler.Type == "" {
		c.Sampler = d.Sampler
	}
	if c.Batch.MaxQueueSize <= 0 {
		c.Batch.MaxQueueSize = d.Batch.MaxQueueSize
	}
	if c.Batch.MaxExportBatchSize <= 0 {
		c.Batch.MaxExportBatchSize = d.Batch.MaxExportBatchSize
	}
	if c.Batch.ScheduleDelay <= 0 {
		c.Batch.ScheduleDelay = d.Batch.ScheduleDelay
	}
	if c.Batch.ExportTimeout <= 0 {
		c.Batch.ExportTimeout = d.Batch.ExportTimeout
	}
	if c.Breaker.Fallback == "" {
		c.Breaker.Fallback = d.Breaker.Fallback
	}
	c.Breaker.Breaker = d.Breaker.Breaker.Merge(c.Breaker.Breaker)
	if c.Metrics.ExportInterval <= 0 {
		c.Metrics.ExportInterval = d.Metrics.ExportInterval
	}
	if c.Metrics.ExportTimeout <= 0 {
		c.Metrics.ExportTimeout = d.Metrics.ExportTimeout
	}
	if c.Metrics.Namespace == "" {
		c.Metrics.Namespace = d.Metrics.Namespace
	}
}

// Validate checks the configuration; a disabled config is always valid
func (c Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	err := validation.ValidateStruct(&c,
		validation.Field(&c.ServiceName, validation.Required),
		validation.Field(&c.Exporter),
		validation.Field(&c.Sampler),
		validation.Field(&c.Breaker),
	)
	return validator.Convert(err)
}

// Validate checks the exporter
func (e ExporterConfig) Validate() error {
	return validation.ValidateStruct(&e,
		validation.Field(&e.Type, validation.Required, validation.In(ExporterOTLP, ExporterOTLPHTTP, ExporterStdout, ExporterNoop)),
		validation.Field(&e.Endpoint, validation.When(e.Type == ExporterOTLP || e.Type == ExporterOTLPHTTP, validation.Required)),
	)
}

// Validate checks the sampler
func (s SamplerConfig) Validate() error {
	return validation.ValidateStruct(&s,
		validation.Field(&s.Type, validation.Required,
			validation.In(SamplerAlwaysOn, SamplerAlwaysOff, SamplerRatio, SamplerParentAlwaysOn)),
		validation.Field(&s.Ratio, validation.When(s.Type == SamplerRatio, validation.Min(0.0), validation.Max(1.0))),
	)
}

// Validate checks the fallback exporter
func (b ExporterBreakerConfig) Validate() error {
	if !b.Enabled {
		return nil
	}
	if err := validation.ValidateStruct(&b,
		validation.Field(&b.Fallback, validation.In(ExporterStdout, ExporterNoop)),
	); err != nil {
		return err
	}
	return b.Breaker.Validate()
}
