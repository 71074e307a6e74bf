// Package component defines the capability interfaces shared by vectra components.
// It sits at the bottom of the dependency graph and imports no vectra package.
package component

import "context"

// HealthChecker is implemented by components that can report their health
type HealthChecker interface {
	// Check returns nil when healthy
	Check(ctx context.Context) error

	// Name returns the check name (e.g. "pool:sqlvec", "breaker:qdrant")
	Name() string
}

// HealthCheckProvider exposes a health checker
type HealthCheckProvider interface {
	GetHealthChecker() HealthChecker
}

// Shutdowner is implemented by components holding resources released at exit.
// Matches samber/do's shutdown hook.
type Shutdowner interface {
	Shutdown() error
}

// Component names used for metric groups and health checks
const (
	ComponentLimiter   = "limiter"
	ComponentBreaker   = "breaker"
	ComponentPool      = "pool"
	ComponentCache     = "cache"
	ComponentBatch     = "batch"
	ComponentClient    = "client"
	ComponentTelemetry = "telemetry"
	ComponentHealth    = "health"
)
