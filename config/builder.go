package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"
)

// DefaultEnvPrefix is the environment prefix used when none is configured
const DefaultEnvPrefix = "VECTRA"

// LoaderBuilder assembles the standard source stack
type LoaderBuilder struct {
	configFile  string
	defaults    map[string]interface{}
	envPrefix   string
	flags       *pflag.FlagSet
	flagMapping map[string]string
	skipEnvFile bool
}

// NewLoaderBuilder creates a builder with the VECTRA env prefix
func NewLoaderBuilder() *LoaderBuilder {
	return &LoaderBuilder{envPrefix: DefaultEnvPrefix}
}

// WithConfigFile sets the base file (e.g. ./vectra.yaml)
func (b *LoaderBuilder) WithConfigFile(path string) *LoaderBuilder {
	b.configFile = path
	return b
}

// WithDefaults sets the lowest-priority values
func (b *LoaderBuilder) WithDefaults(defaults map[string]interface{}) *LoaderBuilder {
	b.defaults = defaults
	return b
}

// WithEnvPrefix sets the environment prefix; "" disables environment scanning
func (b *LoaderBuilder) WithEnvPrefix(prefix string) *LoaderBuilder {
	b.envPrefix = prefix
	return b
}

// WithFlags adds changed command line flags as the highest-priority source
func (b *LoaderBuilder) WithFlags(flags *pflag.FlagSet, mapping map[string]string) *LoaderBuilder {
	b.flags = flags
	b.flagMapping = mapping
	return b
}

// WithoutEnvFile skips the <name>.<env>.yaml overlay
func (b *LoaderBuilder) WithoutEnvFile() *LoaderBuilder {
	b.skipEnvFile = true
	return b
}

// Build creates and loads the loader:
// defaults(1) < file(10) < env overlay file(20) < environment(50) < flags(100)
func (b *LoaderBuilder) Build() (*Loader, error) {
	loader := NewLoader()

	if b.defaults != nil {
		loader.AddSource(NewMapSource("defaults", b.defaults, 1))
	}

	if b.configFile != "" {
		loader.AddSource(NewFileSource(b.configFile, 10))
		if !b.skipEnvFile {
			if overlay := envOverlayPath(b.configFile, GetEnv()); overlay != "" {
				loader.AddSource(NewFileSource(overlay, 20))
			}
		}
	}

	if b.envPrefix != "" {
		loader.AddSource(NewEnvSource(b.envPrefix, 50))
	}

	if b.flags != nil {
		loader.AddSource(NewFlagSource(b.flags, b.flagMapping, 100))
	}

	if err := loader.Load(); err != nil {
		return nil, err
	}
	return loader, nil
}

// envOverlayPath vectra.yaml + "prod" -> vectra.prod.yaml
func envOverlayPath(base, env string) string {
	if env == "" {
		return ""
	}
	ext := filepath.Ext(base)
	return strings.TrimSuffix(base, ext) + "." + env + ext
}

// GetEnv returns VECTRA_ENV, then APP_ENV, else ""
func GetEnv() string {
	if env := os.Getenv("VECTRA_ENV"); env != "" {
		return env
	}
	return os.Getenv("APP_ENV")
}
