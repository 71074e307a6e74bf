// Package sqlvec stores vectors in a relational database through gorm.
// Every statement runs on a connection checked out of a pool.Pool, so the
// number of concurrent SQL sessions is bounded by the pool capacity.
package sqlvec

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/stokry/vectra/pool"
	"github.com/stokry/vectra/validator"
)

// Supported drivers
const (
	DriverMySQL    = "mysql"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Config SQL backend configuration
type Config struct {
	Driver          string        `mapstructure:"driver"`            // mysql, postgres, sqlite
	DSN             string        `mapstructure:"dsn"`               // data source name
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`    // idle connections kept by database/sql
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"` // lifetime of database/sql connections
	SlowThreshold   time.Duration `mapstructure:"slow_threshold"`    // slow statement threshold for the gorm logger
	EnableAudit     bool          `mapstructure:"enable_audit"`      // log every statement at debug
	AutoMigrate     bool          `mapstructure:"auto_migrate"`      // create tables on Open
	TraceSQL        bool          `mapstructure:"trace_sql"`         // record statements on otel spans
	TraceSQLMaxLen  int           `mapstructure:"trace_sql_max_len"` // statement length kept on spans

	// Pool bounds the sessions used by adapter calls
	Pool pool.Config `mapstructure:"pool"`
}

// DefaultConfig sqlite defaults with auto migration
func DefaultConfig() Config {
	return Config{
		Driver:          DriverSQLite,
		MaxIdleConns:    2,
		ConnMaxLifetime: time.Hour,
		SlowThreshold:   200 * time.Millisecond,
		AutoMigrate:     true,
		TraceSQLMaxLen:  1000,
		Pool:            pool.DefaultConfig(),
	}
}

// ApplyDefaults fills zero values
func (c *Config) ApplyDefaults() {
	def := DefaultConfig()
	if c.Driver == "" {
		c.Driver = def.Driver
	}
	if c.MaxIdleConns <= 0 {
		c.MaxIdleConns = def.MaxIdleConns
	}
	if c.ConnMaxLifetime <= 0 {
		c.ConnMaxLifetime = def.ConnMaxLifetime
	}
	if c.SlowThreshold <= 0 {
		c.SlowThreshold = def.SlowThreshold
	}
	if c.TraceSQLMaxLen <= 0 {
		c.TraceSQLMaxLen = def.TraceSQLMaxLen
	}
	c.Pool.ApplyDefaults()
}

// Validate checks the configuration
func (c Config) Validate() error {
	err := validation.ValidateStruct(&c,
		validation.Field(&c.Driver, validation.Required, validation.In(DriverMySQL, DriverPostgres, DriverSQLite)),
		validation.Field(&c.DSN, validation.Required),
		validation.Field(&c.MaxIdleConns, validation.Min(0)),
	)
	if err != nil {
		return validator.Convert(err)
	}
	return c.Pool.Validate()
}
