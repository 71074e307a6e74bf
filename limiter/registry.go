package limiter

import (
	"context"
	"sort"
	"sync"

	"github.com/stokry/vectra/errcode"
	"github.com/stokry/vectra/logger"
	"go.uber.org/zap"
)

// Registry maps names to shared token buckets so that every call site
// throttling the same upstream uses one bucket. Owned by the application.
type Registry struct {
	config  Config
	buckets map[string]*TokenBucket
	metrics *OTelMetrics
	logger  *logger.CtxZapLogger
	mu      sync.RWMutex
}

// RegistryOption configures a Registry
type RegistryOption func(*Registry)

// WithRegistryLogger sets the logger handed to created buckets
func WithRegistryLogger(l *logger.CtxZapLogger) RegistryOption {
	return func(r *Registry) {
		if l != nil {
			r.logger = l
		}
	}
}

// NewRegistry validates cfg and creates an empty registry
func NewRegistry(cfg Config, opts ...RegistryOption) (*Registry, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	r := &Registry{
		config:  cfg,
		buckets: make(map[string]*TokenBucket),
		metrics: NewOTelMetrics(cfg.Metrics),
		logger:  logger.GetLogger("vectra"),
	}
	for _, opt := range opts {
		opt(r)
	}

	r.logger.DebugCtx(context.Background(), "🎯 [LimiterRegistry] initialized",
		zap.Float64("rate", cfg.Rate),
		zap.Int("burst", cfg.Burst),
		zap.Int("resources", len(cfg.Resources)))
	return r, nil
}

// Get returns the bucket registered under name
func (r *Registry) Get(name string) (*TokenBucket, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.buckets[name]
	return b, ok
}

// GetOrCreate returns the bucket for name, creating it from the merged configuration
func (r *Registry) GetOrCreate(name string) *TokenBucket {
	r.mu.RLock()
	b, ok := r.buckets[name]
	r.mu.RUnlock()
	if ok {
		return b
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Double check
	if b, ok := r.buckets[name]; ok {
		return b
	}

	b = newTokenBucket(name, r.config.ResourceConfigFor(name),
		WithLogger(r.logger), WithMetrics(r.metrics))
	r.buckets[name] = b
	r.metrics.RegisterTokenCallback(name, b.Tokens)

	r.logger.DebugCtx(context.Background(), "✅ [LimiterRegistry] bucket created",
		zap.String("name", name),
		zap.Float64("rate", b.rate),
		zap.Int("burst", b.Capacity()))
	return b
}

// Register adds an externally built bucket; names are unique
func (r *Registry) Register(b *TokenBucket) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.buckets[b.name]; exists {
		return errcode.ErrValidation.WithMsgf("limiter %q already registered", b.name)
	}
	if b.metrics == nil {
		b.metrics = r.metrics
	}
	r.buckets[b.name] = b
	r.metrics.RegisterTokenCallback(b.name, b.Tokens)
	return nil
}

// Remove drops name; reports whether it existed
func (r *Registry) Remove(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.buckets[name]; !ok {
		return false
	}
	delete(r.buckets, name)
	r.metrics.UnregisterTokenCallback(name)
	return true
}

// Names returns the registered names, sorted
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.buckets))
	for name := range r.buckets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Reset refills every bucket
func (r *Registry) Reset() {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, b := range r.buckets {
		b.Reset()
	}
}

// Metrics returns the provider shared by the registry's buckets
func (r *Registry) Metrics() *OTelMetrics {
	return r.metrics
}
