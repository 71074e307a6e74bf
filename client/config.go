package client

import (
	"fmt"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/stokry/vectra/backend/httpvec"
	"github.com/stokry/vectra/backend/qdrantvec"
	"github.com/stokry/vectra/backend/sqlvec"
	"github.com/stokry/vectra/batch"
	"github.com/stokry/vectra/breaker"
	"github.com/stokry/vectra/cache"
	"github.com/stokry/vectra/config"
	"github.com/stokry/vectra/health"
	"github.com/stokry/vectra/limiter"
	"github.com/stokry/vectra/logger"
	"github.com/stokry/vectra/retry"
	"github.com/stokry/vectra/telemetry"
	"github.com/stokry/vectra/validator"
)

// Backend types
const (
	BackendMemory = "memory"
	BackendSQL    = "sql"
	BackendHTTP   = "http"
	BackendQdrant = "qdrant"
)

// Config is the whole vectra configuration file
type Config struct {
	Backend   BackendConfig          `mapstructure:"backend"`
	Gates     GatesConfig            `mapstructure:"gates"`
	Limiter   limiter.Config         `mapstructure:"limiter"`
	Breaker   breaker.RegistryConfig `mapstructure:"breaker"`
	Retry     retry.Policy           `mapstructure:"retry"`
	Cache     cache.Config           `mapstructure:"cache"`
	Batch     batch.Config           `mapstructure:"batch"`
	Health    health.Config          `mapstructure:"health"`
	Telemetry telemetry.Config       `mapstructure:"telemetry"`
	Logger    logger.ManagerConfig   `mapstructure:"logger"`
}

// BackendConfig selects and configures the adapter
type BackendConfig struct {
	Type string `mapstructure:"type"` // memory, sql, http, qdrant

	// Name of the upstream; keys the limiter bucket and the breaker (defaults to Type)
	Name string `mapstructure:"name"`

	SQL    sqlvec.Config    `mapstructure:"sql"`
	HTTP   httpvec.Config   `mapstructure:"http"`
	Qdrant qdrantvec.Config `mapstructure:"qdrant"`
}

// GatesConfig switches the client-level gates and pipeline stages
type GatesConfig struct {
	RateLimit      bool `mapstructure:"rate_limit"`
	CircuitBreaker bool `mapstructure:"circuit_breaker"`

	// PerOperation adds a RateLimitedClient with one bucket per operation
	PerOperation bool `mapstructure:"per_operation"`

	DryRun bool `mapstructure:"dry_run"`
}

// DefaultConfig in-memory backend with both gates on
func DefaultConfig() Config {
	return Config{
		Backend: BackendConfig{
			Type: BackendMemory,
			SQL:  sqlvec.DefaultConfig(),
		},
		Gates:     GatesConfig{RateLimit: true, CircuitBreaker: true},
		Limiter:   limiter.DefaultConfig(),
		Breaker:   breaker.DefaultRegistryConfig(),
		Retry:     retry.DefaultPolicy(),
		Cache:     cache.DefaultConfig(),
		Batch:     batch.DefaultConfig(),
		Health:    health.DefaultConfig(),
		Telemetry: telemetry.DefaultConfig(),
		Logger:    logger.DefaultManagerConfig(),
	}
}

// ApplyDefaults fills zero values of every section
func (c *Config) ApplyDefaults() {
	c.Backend.ApplyDefaults()
	c.Limiter.ApplyDefaults()
	c.Breaker.ApplyDefaults()
	c.Retry.ApplyDefaults()
	c.Cache.ApplyDefaults()
	c.Batch.ApplyDefaults()
	c.Health.ApplyDefaults()
	c.Telemetry.ApplyDefaults()
	c.Logger.ApplyDefaults()
}

// Validate checks every section
func (c Config) Validate() error {
	return config.ValidateAll(
		c.Backend,
		c.Limiter,
		c.Breaker,
		c.Retry,
		c.Cache,
		c.Batch,
		c.Health,
		c.Telemetry,
		c.Logger,
	)
}

// ApplyDefaults fills the upstream name and the selected adapter section
func (b *BackendConfig) ApplyDefaults() {
	if b.Type == "" {
		b.Type = BackendMemory
	}
	if b.Name == "" {
		b.Name = b.Type
	}
	switch b.Type {
	case BackendSQL:
		b.SQL.ApplyDefaults()
	case BackendHTTP:
		b.HTTP.ApplyDefaults()
	case BackendQdrant:
		b.Qdrant.ApplyDefaults()
	}
}

// Validate checks the type and the selected adapter section only
func (b BackendConfig) Validate() error {
	if err := validator.Convert(validation.ValidateStruct(&b,
		validation.Field(&b.Type, validation.Required, validation.In(BackendMemory, BackendSQL, BackendHTTP, BackendQdrant)),
	)); err != nil {
		return err
	}
	switch b.Type {
	case BackendSQL:
		return b.SQL.Validate()
	case BackendHTTP:
		return b.HTTP.Validate()
	case BackendQdrant:
		return b.Qdrant.Validate()
	}
	return nil
}

// LoadConfig decodes the whole configuration over DefaultConfig, then applies
// defaults and validates
func LoadConfig(loader *config.Loader) (Config, error) {
	cfg := DefaultConfig()
	if err := loader.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}
