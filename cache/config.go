package cache

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/stokry/vectra/validator"
)

// Store types
const (
	StoreMemory = "memory"
	StoreRedis  = "redis"
	StoreChain  = "chain"
)

// Config cache configuration
type Config struct {
	// Enabled turns the client result cache on
	Enabled bool `mapstructure:"enabled"`

	// TTL lifetime of an entry
	TTL time.Duration `mapstructure:"ttl"`

	// MaxSize entries kept by the in-memory cache
	MaxSize int `mapstructure:"max_size"`

	// JanitorInterval period of the expired-entry sweep (0 disables it)
	JanitorInterval time.Duration `mapstructure:"janitor_interval"`

	// Store memory, redis or chain (memory in front of redis)
	Store string `mapstructure:"store"`

	// KeyPrefix namespaces keys in shared stores
	KeyPrefix string `mapstructure:"key_prefix"`

	// BackfillTTL lifetime of entries copied into upper chain layers
	BackfillTTL time.Duration `mapstructure:"backfill_ttl"`

	Redis RedisConfig `mapstructure:"redis"`
}

// RedisConfig connection settings of the redis store
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// DefaultConfig memory store, 5 minute TTL, 1000 entries
func DefaultConfig() Config {
	return Config{
		TTL:         5 * time.Minute,
		MaxSize:     1000,
		Store:       StoreMemory,
		KeyPrefix:   "vectra:",
		BackfillTTL: time.Minute,
	}
}

// ApplyDefaults fills zero values
func (c *Config) ApplyDefaults() {
	def := DefaultConfig()
	if c.TTL == 0 {
		c.TTL = def.TTL
	}
	if c.MaxSize == 0 {
		c.MaxSize = def.MaxSize
	}
	if c.Store == "" {
		c.Store = def.Store
	}
	if c.KeyPrefix == "" {
		c.KeyPrefix = def.KeyPrefix
	}
	if c.BackfillTTL == 0 {
		c.BackfillTTL = def.BackfillTTL
	}
}

// Validate checks the configuration
func (c Config) Validate() error {
	needsRedis := c.Store == StoreRedis || c.Store == StoreChain
	err := validation.ValidateStruct(&c,
		validation.Field(&c.TTL, validation.Min(time.Duration(0)).Exclusive()),
		validation.Field(&c.MaxSize, validation.Min(1)),
		validation.Field(&c.JanitorInterval, validation.Min(time.Duration(0))),
		validation.Field(&c.Store, validation.In(StoreMemory, StoreRedis, StoreChain)),
		validation.Field(&c.Redis, validation.By(func(interface{}) error {
			if needsRedis && c.Redis.Addr == "" {
				return validation.NewError("validation_redis_addr", "addr is required for the redis and chain stores")
			}
			return nil
		})),
	)
	return validator.Convert(err)
}
