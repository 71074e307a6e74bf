package breaker

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/stokry/vectra/errcode"
	"github.com/stokry/vectra/validator"
)

// Config configures one circuit breaker
type Config struct {
	// FailureThreshold monitored failures that open a closed circuit
	FailureThreshold int `mapstructure:"failure_threshold"`

	// SuccessThreshold successes in half-open that close the circuit
	SuccessThreshold int `mapstructure:"success_threshold"`

	// RecoveryTimeout time spent open before probing
	RecoveryTimeout time.Duration `mapstructure:"recovery_timeout"`

	// MonitoredKinds overrides the default monitored error kinds (e.g. ["connection", "timeout"])
	MonitoredKinds []string `mapstructure:"monitored_kinds"`
}

// DefaultConfig 5 failures, 2 successes, 30s recovery
func DefaultConfig() Config {
	return Config{
		FailureThreshold: 5,
		SuccessThreshold: 2,
		RecoveryTimeout:  30 * time.Second,
	}
}

var knownKinds = []interface{}{
	"unknown",
	string(errcode.KindRateLimit),
	string(errcode.KindPoolTimeout),
	string(errcode.KindPoolExhausted),
	string(errcode.KindOpenCircuit),
	string(errcode.KindValidation),
	string(errcode.KindConnection),
	string(errcode.KindTimeout),
	string(errcode.KindServer),
	string(errcode.KindAuthentication),
	string(errcode.KindNotFound),
	string(errcode.KindConflict),
}

// Validate checks thresholds and kinds
func (c Config) Validate() error {
	err := validation.ValidateStruct(&c,
		validation.Field(&c.FailureThreshold, validation.Required, validation.Min(1)),
		validation.Field(&c.SuccessThreshold, validation.Required, validation.Min(1)),
		validation.Field(&c.RecoveryTimeout, validation.Required, validation.Min(time.Duration(0)).Exclusive()),
		validation.Field(&c.MonitoredKinds, validation.Each(validation.In(knownKinds...))),
	)
	return validator.Convert(err)
}

// Merge overlays the non-zero fields of override
func (c Config) Merge(override Config) Config {
	result := c
	if override.FailureThreshold > 0 {
		result.FailureThreshold = override.FailureThreshold
	}
	if override.SuccessThreshold > 0 {
		result.SuccessThreshold = override.SuccessThreshold
	}
	if override.RecoveryTimeout > 0 {
		result.RecoveryTimeout = override.RecoveryTimeout
	}
	if len(override.MonitoredKinds) > 0 {
		result.MonitoredKinds = override.MonitoredKinds
	}
	return result
}

// monitor returns the MonitorFunc described by MonitoredKinds
func (c Config) monitor() MonitorFunc {
	if len(c.MonitoredKinds) == 0 {
		return DefaultMonitor
	}
	kinds := make([]errcode.Kind, 0, len(c.MonitoredKinds))
	for _, k := range c.MonitoredKinds {
		if k == "unknown" {
			kinds = append(kinds, errcode.KindUnknown)
			continue
		}
		kinds = append(kinds, errcode.Kind(k))
	}
	return MonitorKinds(kinds...)
}

// RegistryConfig is the breaker section; top-level values are the registry defaults
type RegistryConfig struct {
	Config `mapstructure:",squash"`

	// Breakers per-name overrides of the defaults
	Breakers map[string]Config `mapstructure:"breakers"`

	// EventBusBuffer event bus buffer size
	EventBusBuffer int `mapstructure:"event_bus_buffer"`

	Metrics MetricsConfig `mapstructure:"metrics"`
}

// DefaultRegistryConfig returns the default breaker section
func DefaultRegistryConfig() RegistryConfig {
	return RegistryConfig{
		Config:         DefaultConfig(),
		Breakers:       make(map[string]Config),
		EventBusBuffer: 500,
	}
}

// ApplyDefaults fills zero values
func (c *RegistryConfig) ApplyDefaults() {
	def := DefaultRegistryConfig()
	c.Config = def.Config.Merge(c.Config)
	if c.EventBusBuffer <= 0 {
		c.EventBusBuffer = def.EventBusBuffer
	}
	if c.Breakers == nil {
		c.Breakers = make(map[string]Config)
	}
}

// Validate checks the defaults and every override after merging
func (c RegistryConfig) Validate() error {
	if err := c.Config.Validate(); err != nil {
		return err
	}
	for name, bc := range c.Breakers {
		if err := c.Config.Merge(bc).Validate(); err != nil {
			return validator.Convert(validation.Errors{"breakers." + name: err})
		}
	}
	return nil
}

// ConfigFor returns the merged configuration for name
func (c RegistryConfig) ConfigFor(name string) Config {
	if bc, ok := c.Breakers[name]; ok {
		return c.Config.Merge(bc)
	}
	return c.Config
}
