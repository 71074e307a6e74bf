package di

import (
	"context"

	"github.com/samber/do/v2"
	"github.com/spf13/pflag"
	"github.com/stokry/vectra/backend"
	"github.com/stokry/vectra/breaker"
	"github.com/stokry/vectra/cache"
	"github.com/stokry/vectra/client"
	"github.com/stokry/vectra/config"
	"github.com/stokry/vectra/limiter"
	"github.com/stokry/vectra/logger"
	"github.com/stokry/vectra/telemetry"
	"go.uber.org/zap"
)

// ============================================
// Base providers (config, logger)
// ============================================

// ConfigOptions configure the config loader provider
type ConfigOptions struct {
	ConfigFile  string                 // base yaml file, "" for none
	EnvPrefix   string                 // environment prefix, "" means VECTRA
	Defaults    map[string]interface{} // lowest priority values
	Flags       *pflag.FlagSet         // changed flags override everything
	FlagMapping map[string]string      // flag name -> config key
}

// ProvideConfigLoader builds the loader; no dependencies
func ProvideConfigLoader(opts ConfigOptions) func(do.Injector) (*config.Loader, error) {
	return func(i do.Injector) (*config.Loader, error) {
		b := config.NewLoaderBuilder().
			WithConfigFile(opts.ConfigFile).
			WithDefaults(opts.Defaults)
		if opts.EnvPrefix != "" {
			b = b.WithEnvPrefix(opts.EnvPrefix)
		}
		if opts.Flags != nil {
			b = b.WithFlags(opts.Flags, opts.FlagMapping)
		}
		return b.Build()
	}
}

// ProvideConfig decodes and validates the whole configuration.
// Depends on: *config.Loader
func ProvideConfig(i do.Injector) (client.Config, error) {
	loader, err := do.Invoke[*config.Loader](i)
	if err != nil {
		return client.Config{}, err
	}
	return client.LoadConfig(loader)
}

// ProvideLoggerManager builds the logger manager from the logger section
func ProvideLoggerManager(i do.Injector) (*logger.Manager, error) {
	cfg, err := do.Invoke[client.Config](i)
	if err != nil {
		// fall back to defaults
		return logger.NewManager(logger.DefaultManagerConfig()), nil
	}
	return logger.NewManager(cfg.Logger), nil
}

// ProvideCtxLogger returns a provider of the named module logger
func ProvideCtxLogger(moduleName string) func(do.Injector) (*logger.CtxZapLogger, error) {
	return func(i do.Injector) (*logger.CtxZapLogger, error) {
		mgr, err := do.Invoke[*logger.Manager](i)
		if err != nil {
			return logger.GetLogger(moduleName), nil
		}
		return mgr.GetLogger(moduleName), nil
	}
}

func invokeLogger(i do.Injector) *logger.CtxZapLogger {
	log, _ := do.Invoke[*logger.CtxZapLogger](i)
	if log == nil {
		log = logger.GetLogger("vectra")
	}
	return log
}

// ============================================
// Telemetry
// Depends on: Config, Logger
// ============================================

// ProvideTelemetryManager builds and starts the telemetry manager. Disabled
// telemetry yields a manager handing out noop providers.
func ProvideTelemetryManager(i do.Injector) (*telemetry.Manager, error) {
	cfg, err := do.Invoke[client.Config](i)
	if err != nil {
		return nil, err
	}
	tm := telemetry.NewManager(cfg.Telemetry, telemetry.WithLogger(invokeLogger(i)))
	if err := tm.Start(context.Background()); err != nil {
		return nil, err
	}
	return tm, nil
}

// ============================================
// Resilience registries
// Depends on: Config, Logger, Telemetry
// ============================================

// ProvideLimiterRegistry builds the token bucket registry and registers its instruments
func ProvideLimiterRegistry(i do.Injector) (*limiter.Registry, error) {
	cfg, err := do.Invoke[client.Config](i)
	if err != nil {
		return nil, err
	}
	log := invokeLogger(i)

	r, err := limiter.NewRegistry(cfg.Limiter, limiter.WithRegistryLogger(log))
	if err != nil {
		return nil, err
	}
	if tm, err := do.Invoke[*telemetry.Manager](i); err == nil && r.Metrics() != nil {
		if err := tm.Registry().Register(r.Metrics()); err != nil {
			log.Warn("⚠️ limiter metrics not registered", zap.Error(err))
		}
	}
	return r, nil
}

// ProvideBreakerRegistry builds the circuit breaker registry and registers its instruments
func ProvideBreakerRegistry(i do.Injector) (*breaker.Registry, error) {
	cfg, err := do.Invoke[client.Config](i)
	if err != nil {
		return nil, err
	}
	log := invokeLogger(i)

	r, err := breaker.NewRegistry(cfg.Breaker, breaker.WithRegistryLogger(log))
	if err != nil {
		return nil, err
	}
	if tm, err := do.Invoke[*telemetry.Manager](i); err == nil && r.Metrics() != nil {
		if err := tm.Registry().Register(r.Metrics()); err != nil {
			log.Warn("⚠️ breaker metrics not registered", zap.Error(err))
		}
	}
	return r, nil
}

// ============================================
// Backend, cache and client
// ============================================

// ProvideAdapter opens the configured backend
func ProvideAdapter(i do.Injector) (backend.Adapter, error) {
	cfg, err := do.Invoke[client.Config](i)
	if err != nil {
		return nil, err
	}
	tm, err := do.Invoke[*telemetry.Manager](i)
	if err != nil {
		return nil, err
	}
	return client.OpenBackend(context.Background(), cfg.Backend, invokeLogger(i), tm.TracerProvider())
}

// ProvideCacheStore builds the result cache store; nil when the cache is disabled
func ProvideCacheStore(i do.Injector) (cache.Store, error) {
	cfg, err := do.Invoke[client.Config](i)
	if err != nil {
		return nil, err
	}
	if !cfg.Cache.Enabled {
		return nil, nil
	}
	return cache.NewStore(cfg.Cache, cache.WithLogger(invokeLogger(i)))
}

// ProvideClient builds the gated client from the gates section
func ProvideClient(i do.Injector) (*client.Client, error) {
	cfg, err := do.Invoke[client.Config](i)
	if err != nil {
		return nil, err
	}
	adapter, err := do.Invoke[backend.Adapter](i)
	if err != nil {
		return nil, err
	}
	tm, err := do.Invoke[*telemetry.Manager](i)
	if err != nil {
		return nil, err
	}

	opts := []client.Option{
		client.WithName(cfg.Backend.Name),
		client.WithLogger(invokeLogger(i)),
		client.WithRetryPolicy(cfg.Retry),
		client.WithDryRun(cfg.Gates.DryRun),
		client.WithBatchConfig(cfg.Batch),
		client.WithHealthTimeout(cfg.Health.Timeout),
	}
	if cfg.Gates.RateLimit {
		limiters, err := do.Invoke[*limiter.Registry](i)
		if err != nil {
			return nil, err
		}
		opts = append(opts, client.WithLimiterRegistry(limiters))
	}
	if cfg.Gates.CircuitBreaker {
		breakers, err := do.Invoke[*breaker.Registry](i)
		if err != nil {
			return nil, err
		}
		opts = append(opts, client.WithBreakerRegistry(breakers))
	}
	if tm.IsEnabled() {
		opts = append(opts, client.WithTracer(tm.Tracer("vectra/client")))
		if tm.Config().Metrics.Enabled {
			opts = append(opts, client.WithMeter(tm.Meter("client")))
		}
	}
	if guard := tm.ExporterBreaker(); guard != nil {
		opts = append(opts, client.WithHealthCheckers(guard))
	}
	return client.New(adapter, opts...)
}

// ProvideOperations decorates the client: per-operation buckets when
// gates.per_operation is set, then the result cache when enabled
func ProvideOperations(i do.Injector) (client.Operations, error) {
	cfg, err := do.Invoke[client.Config](i)
	if err != nil {
		return nil, err
	}
	c, err := do.Invoke[*client.Client](i)
	if err != nil {
		return nil, err
	}

	var ops client.Operations = c
	if cfg.Gates.PerOperation {
		limiters, err := do.Invoke[*limiter.Registry](i)
		if err != nil {
			return nil, err
		}
		ops = client.NewRateLimitedClient(ops, limiters, c.Name()+".", limiter.AcquireOptions{Wait: true})
	}

	store, err := do.Invoke[cache.Store](i)
	if err != nil {
		return nil, err
	}
	if store != nil {
		ops = client.NewCachedClient(ops, store, cfg.Cache.TTL, invokeLogger(i))
	}
	return ops, nil
}
