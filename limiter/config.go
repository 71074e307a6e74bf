package limiter

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/stokry/vectra/validator"
)

// ResourceConfig configures one bucket
type ResourceConfig struct {
	Rate         float64       `mapstructure:"rate"`          // tokens per second
	Burst        int           `mapstructure:"burst"`         // bucket capacity
	PollInterval time.Duration `mapstructure:"poll_interval"` // max single sleep while waiting
	WaitTimeout  time.Duration `mapstructure:"wait_timeout"`  // default wait bound
}

// Config is the limiter section; top-level values are the registry defaults
type Config struct {
	ResourceConfig `mapstructure:",squash"`

	// Resources per-name overrides of the defaults
	Resources map[string]ResourceConfig `mapstructure:"resources"`

	Metrics MetricsConfig `mapstructure:"metrics"`
}

// DefaultConfig 10 tokens/s, burst 20
func DefaultConfig() Config {
	return Config{
		ResourceConfig: ResourceConfig{
			Rate:         10,
			Burst:        20,
			PollInterval: DefaultPollInterval,
			WaitTimeout:  DefaultWaitTimeout,
		},
		Resources: make(map[string]ResourceConfig),
	}
}

// ApplyDefaults fills zero values from DefaultConfig
func (c *Config) ApplyDefaults() {
	c.ResourceConfig = DefaultConfig().ResourceConfig.Merge(c.ResourceConfig)
	if c.Resources == nil {
		c.Resources = make(map[string]ResourceConfig)
	}
}

// Validate checks the defaults and every resource. Overrides are checked
// as written, so a negative value is rejected instead of falling back.
func (c Config) Validate() error {
	if err := c.ResourceConfig.Validate(); err != nil {
		return err
	}
	for name, rc := range c.Resources {
		if err := rc.validateOverride(); err != nil {
			return validator.Convert(validation.Errors{"resources." + name: err})
		}
		if err := c.ResourceConfig.Merge(rc).Validate(); err != nil {
			return validator.Convert(validation.Errors{"resources." + name: err})
		}
	}
	return nil
}

// Validate checks one bucket configuration
func (rc ResourceConfig) Validate() error {
	err := validation.ValidateStruct(&rc,
		validation.Field(&rc.Rate, validation.Required, validation.Min(0.0).Exclusive()),
		validation.Field(&rc.Burst, validation.Required, validation.Min(1)),
		validation.Field(&rc.PollInterval, validation.Min(time.Duration(0))),
		validation.Field(&rc.WaitTimeout, validation.Min(time.Duration(0))),
	)
	return validator.Convert(err)
}

// validateOverride rejects negative fields; zero means inherit
func (rc ResourceConfig) validateOverride() error {
	return validation.ValidateStruct(&rc,
		validation.Field(&rc.Rate, validation.Min(0.0)),
		validation.Field(&rc.Burst, validation.Min(0)),
		validation.Field(&rc.PollInterval, validation.Min(time.Duration(0))),
		validation.Field(&rc.WaitTimeout, validation.Min(time.Duration(0))),
	)
}

// Merge overlays the non-zero fields of override
func (rc ResourceConfig) Merge(override ResourceConfig) ResourceConfig {
	result := rc
	if override.Rate > 0 {
		result.Rate = override.Rate
	}
	if override.Burst > 0 {
		result.Burst = override.Burst
	}
	if override.PollInterval > 0 {
		result.PollInterval = override.PollInterval
	}
	if override.WaitTimeout > 0 {
		result.WaitTimeout = override.WaitTimeout
	}
	return result
}

// ResourceConfigFor returns the merged configuration for name
func (c Config) ResourceConfigFor(name string) ResourceConfig {
	if rc, ok := c.Resources[name]; ok {
		return c.ResourceConfig.Merge(rc)
	}
	return c.ResourceConfig
}
