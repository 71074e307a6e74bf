package config

import (
	"fmt"

	"github.com/samber/do/v2"
)

// ProvideLoaderOptions options for ProvideLoader
type ProvideLoaderOptions struct {
	ConfigFile string
	EnvPrefix  string
	Defaults   map[string]interface{}
}

// ProvideLoader returns a samber/do provider building the Loader.
//
//	do.Provide(injector, config.ProvideLoader(config.ProvideLoaderOptions{ConfigFile: "vectra.yaml"}))
//	loader := do.MustInvoke[*config.Loader](injector)
func ProvideLoader(opts ProvideLoaderOptions) func(do.Injector) (*Loader, error) {
	return func(i do.Injector) (*Loader, error) {
		b := NewLoaderBuilder().WithConfigFile(opts.ConfigFile).WithDefaults(opts.Defaults)
		if opts.EnvPrefix != "" {
			b = b.WithEnvPrefix(opts.EnvPrefix)
		}
		loader, err := b.Build()
		if err != nil {
			return nil, fmt.Errorf("config loader build failed: %w", err)
		}
		return loader, nil
	}
}

// ProvideLoaderValue registers an already built loader (tests)
func ProvideLoaderValue(loader *Loader) func(do.Injector) (*Loader, error) {
	return func(i do.Injector) (*Loader, error) {
		return loader, nil
	}
}
