package errcode

// Module codes
const (
	ModuleClient    = 10
	ModuleBackend   = 20
	ModuleLimiter   = 30
	ModuleBreaker   = 40
	ModulePool      = 50
	ModuleBatch     = 60
	ModuleCache     = 70
	ModuleTelemetry = 80
)

// Caller errors (never retried)
var (
	ErrValidation     = Register(New(ModuleClient, 1, "client", "error.client.validation", "validation failed", KindValidation))
	ErrAuthentication = Register(New(ModuleClient, 2, "client", "error.client.authentication", "authentication failed", KindAuthentication))
	ErrNotFound       = Register(New(ModuleClient, 3, "client", "error.client.not_found", "resource not found", KindNotFound))
	ErrUnsupported    = Register(New(ModuleClient, 4, "client", "error.client.unsupported", "operation not supported by backend", KindValidation))
)

// Transient infrastructure errors (retryable, breaker-monitored)
var (
	ErrConnection = Register(New(ModuleBackend, 1, "backend", "error.backend.connection", "connection failed", KindConnection))
	ErrTimeout    = Register(New(ModuleBackend, 2, "backend", "error.backend.timeout", "operation timed out", KindTimeout))
	ErrServer     = Register(New(ModuleBackend, 3, "backend", "error.backend.server", "server error", KindServer))
	ErrConflict   = Register(New(ModuleBackend, 4, "backend", "error.backend.conflict", "serialization conflict", KindConflict))
)

// Resilience layer errors
var (
	ErrRateLimitExceeded = Register(New(ModuleLimiter, 1, "limiter", "error.limiter.exceeded", "rate limit exceeded", KindRateLimit))
	ErrOpenCircuit       = Register(New(ModuleBreaker, 1, "breaker", "error.breaker.open", "circuit breaker is open", KindOpenCircuit))
	ErrPoolTimeout       = Register(New(ModulePool, 1, "pool", "error.pool.timeout", "timed out waiting for a pooled connection", KindPoolTimeout))
	ErrPoolExhausted     = Register(New(ModulePool, 2, "pool", "error.pool.exhausted", "pool has been shut down", KindPoolExhausted))
)
