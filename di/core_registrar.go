package di

import (
	"github.com/samber/do/v2"
)

// RegisterCoreProviders registers every vectra provider, lazily, by dependency level
func RegisterCoreProviders(injector do.Injector, opts ConfigOptions) {
	// ═══════════════════════════════════════════════════════════
	// Layer 0: configuration
	// ═══════════════════════════════════════════════════════════
	do.Provide(injector, ProvideConfigLoader(opts))
	do.Provide(injector, ProvideConfig)

	// ═══════════════════════════════════════════════════════════
	// Layer 1: logging and telemetry
	// ═══════════════════════════════════════════════════════════
	do.Provide(injector, ProvideLoggerManager)
	do.Provide(injector, ProvideCtxLogger("vectra"))
	do.Provide(injector, ProvideTelemetryManager)

	// ═══════════════════════════════════════════════════════════
	// Layer 2: resilience registries and stores
	// ═══════════════════════════════════════════════════════════
	do.Provide(injector, ProvideLimiterRegistry)
	do.Provide(injector, ProvideBreakerRegistry)
	do.Provide(injector, ProvideCacheStore)
	do.Provide(injector, ProvideAdapter)

	// ═══════════════════════════════════════════════════════════
	// Layer 3: client
	// ═══════════════════════════════════════════════════════════
	do.Provide(injector, ProvideClient)
	do.Provide(injector, ProvideOperations)
}
