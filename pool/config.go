package pool

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/stokry/vectra/validator"
)

// Config pool configuration
type Config struct {
	// Capacity maximum live connections (idle + checked out)
	Capacity int `mapstructure:"capacity"`

	// Timeout maximum time Checkout waits for a free slot
	Timeout time.Duration `mapstructure:"timeout"`

	// Warmup connections created by the owner at startup
	Warmup int `mapstructure:"warmup"`

	// ReapInterval period of the idle health sweep (0 disables the reaper)
	ReapInterval time.Duration `mapstructure:"reap_interval"`

	// MetricsEnabled registers pool gauges with the metrics registry
	MetricsEnabled bool `mapstructure:"metrics_enabled"`
}

// DefaultConfig capacity 5, 5s checkout timeout
func DefaultConfig() Config {
	return Config{
		Capacity: 5,
		Timeout:  5 * time.Second,
	}
}

// ApplyDefaults fills zero values
func (c *Config) ApplyDefaults() {
	def := DefaultConfig()
	if c.Capacity == 0 {
		c.Capacity = def.Capacity
	}
	if c.Timeout == 0 {
		c.Timeout = def.Timeout
	}
}

// Validate checks the configuration
func (c Config) Validate() error {
	err := validation.ValidateStruct(&c,
		validation.Field(&c.Capacity, validation.Required, validation.Min(1)),
		validation.Field(&c.Timeout, validation.Required, validation.Min(time.Duration(0)).Exclusive()),
		validation.Field(&c.Warmup, validation.Min(0), validation.Max(c.Capacity)),
		validation.Field(&c.ReapInterval, validation.Min(time.Duration(0))),
	)
	return validator.Convert(err)
}
