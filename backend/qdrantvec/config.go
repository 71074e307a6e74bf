package qdrantvec

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/stokry/vectra/validator"
)

// DefaultPort Qdrant gRPC port
const DefaultPort = 6334

// Config Qdrant connection configuration
type Config struct {
	Host   string `mapstructure:"host"`
	Port   int    `mapstructure:"port"`
	APIKey string `mapstructure:"api_key"`
	UseTLS bool   `mapstructure:"use_tls"`

	// CheckCompatibility compares client and server versions on connect
	CheckCompatibility bool `mapstructure:"check_compatibility"`

	// Timeout bounds every call that arrives without a deadline
	Timeout time.Duration `mapstructure:"timeout"`
}

// ApplyDefaults fills zero values
func (c *Config) ApplyDefaults() {
	if c.Host == "" {
		c.Host = "localhost"
	}
	if c.Port <= 0 {
		c.Port = DefaultPort
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
}

// Validate checks the configuration
func (c Config) Validate() error {
	return validator.Convert(validation.ValidateStruct(&c,
		validation.Field(&c.Host, validation.Required),
		validation.Field(&c.Port, validation.Min(1), validation.Max(65535)),
	))
}
