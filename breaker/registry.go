package breaker

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/stokry/vectra/errcode"
	"github.com/stokry/vectra/logger"
	"go.uber.org/zap"
)

// Registry shares one breaker per upstream name. It is owned by the
// application and handed to whoever needs a breaker.
type Registry struct {
	config   RegistryConfig
	breakers map[string]*CircuitBreaker
	eventBus EventBus
	metrics  *OTelMetrics
	logger   *logger.CtxZapLogger
	mu       sync.RWMutex
}

// RegistryOption configures a Registry
type RegistryOption func(*Registry)

// WithRegistryLogger sets the logger handed to created breakers
func WithRegistryLogger(l *logger.CtxZapLogger) RegistryOption {
	return func(r *Registry) {
		if l != nil {
			r.logger = l
		}
	}
}

// NewRegistry validates cfg and starts the event bus
func NewRegistry(cfg RegistryConfig, opts ...RegistryOption) (*Registry, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	r := &Registry{
		config:   cfg,
		breakers: make(map[string]*CircuitBreaker),
		metrics:  NewOTelMetrics(cfg.Metrics),
		logger:   logger.GetLogger("vectra"),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.eventBus = NewEventBus(cfg.EventBusBuffer)

	r.logger.DebugCtx(context.Background(), "🎯 [BreakerRegistry] initialized",
		zap.Int("failure_threshold", cfg.FailureThreshold),
		zap.Int("success_threshold", cfg.SuccessThreshold),
		zap.Duration("recovery_timeout", cfg.RecoveryTimeout),
		zap.Int("overrides", len(cfg.Breakers)))
	return r, nil
}

// Get returns the breaker registered under name
func (r *Registry) Get(name string) (*CircuitBreaker, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cb, ok := r.breakers[name]
	return cb, ok
}

// GetOrCreate returns the breaker for name, creating it from the merged configuration
func (r *Registry) GetOrCreate(name string) *CircuitBreaker {
	r.mu.RLock()
	cb, ok := r.breakers[name]
	r.mu.RUnlock()
	if ok {
		return cb
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if cb, ok := r.breakers[name]; ok {
		return cb
	}

	cfg := r.config.ConfigFor(name)
	cb = &CircuitBreaker{
		name:     name,
		config:   cfg,
		monitor:  cfg.monitor(),
		state:    StateClosed,
		logger:   r.logger,
		eventBus: r.eventBus,
		metrics:  r.metrics,
		now:      time.Now,
	}
	r.track(cb)

	r.logger.DebugCtx(context.Background(), "✅ [BreakerRegistry] breaker created",
		zap.String("name", name),
		zap.Int("failure_threshold", cfg.FailureThreshold))
	return cb
}

// Register adds an externally built breaker and attaches it to the registry's bus
func (r *Registry) Register(cb *CircuitBreaker) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.breakers[cb.name]; exists {
		return errcode.ErrValidation.WithMsgf("breaker %q already registered", cb.name)
	}
	if cb.eventBus == nil {
		cb.eventBus = r.eventBus
	}
	if cb.metrics == nil {
		cb.metrics = r.metrics
	}
	r.track(cb)
	return nil
}

// track must be called with mu held
func (r *Registry) track(cb *CircuitBreaker) {
	r.breakers[cb.name] = cb
	r.metrics.RegisterStateCallback(cb.name, func() int64 { return int64(cb.State()) })
}

// Remove drops name; reports whether it existed
func (r *Registry) Remove(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.breakers[name]; !ok {
		return false
	}
	delete(r.breakers, name)
	r.metrics.UnregisterStateCallback(name)
	return true
}

// Names returns the registered names, sorted
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.breakers))
	for name := range r.breakers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ResetAll closes every circuit
func (r *Registry) ResetAll() {
	for _, cb := range r.all() {
		cb.Reset()
	}
}

// Snapshots returns the state of every breaker, sorted by name
func (r *Registry) Snapshots() []Snapshot {
	breakers := r.all()
	snaps := make([]Snapshot, 0, len(breakers))
	for _, cb := range breakers {
		snaps = append(snaps, cb.Snapshot())
	}
	sort.Slice(snaps, func(i, j int) bool { return snaps[i].Name < snaps[j].Name })
	return snaps
}

// all returns every registered breaker
func (r *Registry) all() []*CircuitBreaker {
	r.mu.RLock()
	defer r.mu.RUnlock()
	list := make([]*CircuitBreaker, 0, len(r.breakers))
	for _, cb := range r.breakers {
		list = append(list, cb)
	}
	return list
}

// EventBus returns the bus shared by the registry's breakers
func (r *Registry) EventBus() EventBus {
	return r.eventBus
}

// Metrics returns the metrics provider shared by the registry's breakers
func (r *Registry) Metrics() *OTelMetrics {
	return r.metrics
}

// Close stops the event bus
func (r *Registry) Close() {
	r.eventBus.Close()
}

// Shutdown implements do.Shutdowner
func (r *Registry) Shutdown() error {
	r.Close()
	return nil
}
