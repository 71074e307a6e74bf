package batch

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/stokry/vectra/validator"
)

// Config batch processing configuration
type Config struct {
	// ChunkSize items per op call
	ChunkSize int `mapstructure:"chunk_size"`

	// Concurrency worker pool size
	Concurrency int `mapstructure:"concurrency"`

	// DrainTimeout bound on waiting for submitted chunks once submission ends
	DrainTimeout time.Duration `mapstructure:"drain_timeout"`
}

// DefaultConfig chunks of 100, 4 workers, 5 minute drain
func DefaultConfig() Config {
	return Config{
		ChunkSize:    100,
		Concurrency:  4,
		DrainTimeout: 5 * time.Minute,
	}
}

// ApplyDefaults fills zero values
func (c *Config) ApplyDefaults() {
	def := DefaultConfig()
	if c.ChunkSize == 0 {
		c.ChunkSize = def.ChunkSize
	}
	if c.Concurrency == 0 {
		c.Concurrency = def.Concurrency
	}
	if c.DrainTimeout == 0 {
		c.DrainTimeout = def.DrainTimeout
	}
}

// Validate checks the configuration
func (c Config) Validate() error {
	err := validation.ValidateStruct(&c,
		validation.Field(&c.ChunkSize, validation.Required, validation.Min(1)),
		validation.Field(&c.Concurrency, validation.Required, validation.Min(1)),
		validation.Field(&c.DrainTimeout, validation.Required, validation.Min(time.Duration(0)).Exclusive()),
	)
	return validator.Convert(err)
}
