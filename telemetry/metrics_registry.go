package telemetry

import (
	"fmt"
	"sort"
	"sync"

	"github.com/stokry/vectra/component"
	"github.com/stokry/vectra/logger"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// MetricsRegistry hands out one Meter per component group and registers
// component.MetricsProvider instruments on it
type MetricsRegistry struct {
	mu            sync.RWMutex
	meterProvider metric.MeterProvider
	meters        map[string]metric.Meter
	providers     []component.MetricsProvider
	baseLabels    []attribute.KeyValue
	namespace     string
	enabled       bool
	logger        *logger.CtxZapLogger
}

// RegistryOption configures the MetricsRegistry
type RegistryOption func(*MetricsRegistry)

// WithNamespace sets the meter name prefix ("vectra")
func WithNamespace(namespace string) RegistryOption {
	return func(r *MetricsRegistry) {
		r.namespace = namespace
	}
}

// WithBaseLabels sets labels shared by every instrument
func WithBaseLabels(labels []attribute.KeyValue) RegistryOption {
	return func(r *MetricsRegistry) {
		r.baseLabels = labels
	}
}

// WithRegistryLogger sets the logger
func WithRegistryLogger(l *logger.CtxZapLogger) RegistryOption {
	return func(r *MetricsRegistry) {
		if l != nil {
			r.logger = l
		}
	}
}

// NewMetricsRegistry creates a registry over mp
func NewMetricsRegistry(mp metric.MeterProvider, opts ...RegistryOption) *MetricsRegistry {
	r := &MetricsRegistry{
		meterProvider: mp,
		meters:        make(map[string]metric.Meter),
		namespace:     "vectra",
		enabled:       true,
		logger:        logger.GetLogger("vectra"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register creates the provider's instruments on its group meter.
// Disabled providers are skipped; a second provider with the same name is an error.
func (r *MetricsRegistry) Register(provider component.MetricsProvider) error {
	if provider == nil {
		return fmt.Errorf("metrics provider is nil")
	}
	if !r.IsEnabled() || !provider.IsMetricsEnabled() {
		return nil
	}

	name := provider.MetricsName()
	if name == "" {
		return fmt.Errorf("metrics provider name is empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.providers {
		if p.MetricsName() == name {
			return fmt.Errorf("metrics provider %q already registered", name)
		}
	}

	if err := provider.RegisterMetrics(r.meterLocked(name)); err != nil {
		return fmt.Errorf("register metrics for %q failed: %w", name, err)
	}
	r.providers = append(r.providers, provider)
	r.logger.Debug("📈 [Metrics] provider registered", zap.String("provider", name))
	return nil
}

// GetMeter returns the meter "<namespace>_<name>"
func (r *MetricsRegistry) GetMeter(name string) metric.Meter {
	r.mu.RLock()
	meter, ok := r.meters[name]
	r.mu.RUnlock()
	if ok {
		return meter
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	return r.meterLocked(name)
}

func (r *MetricsRegistry) meterLocked(name string) metric.Meter {
	if meter, ok := r.meters[name]; ok {
		return meter
	}
	meterName := name
	if r.namespace != "" {
		meterName = r.namespace + "_" + name
	}
	meter := r.meterProvider.Meter(meterName)
	r.meters[name] = meter
	return meter
}

// GetBaseLabels returns a copy of the shared labels
func (r *MetricsRegistry) GetBaseLabels() []attribute.KeyValue {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]attribute.KeyValue{}, r.baseLabels...)
}

// IsEnabled reports whether Register creates instruments
func (r *MetricsRegistry) IsEnabled() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.enabled
}

// SetEnabled toggles registration
func (r *MetricsRegistry) SetEnabled(enabled bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.enabled = enabled
}

// Providers returns the registered provider names, sorted
func (r *MetricsRegistry) Providers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.providers))
	for _, p := range r.providers {
		names = append(names, p.MetricsName())
	}
	sort.Strings(names)
	return names
}

var _ component.MetricsCollector = (*MetricsRegistry)(nil)

func labels(m map[string]string) []attribute.KeyValue {
	kvs := make([]attribute.KeyValue, 0, len(m))
	for k, v := range m {
		kvs = append(kvs, attribute.String(k, v))
	}
	sort.Slice(kvs, func(i, j int) bool { return kvs[i].Key < kvs[j].Key })
	return kvs
}
