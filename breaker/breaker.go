// Package breaker implements a three-state circuit breaker guarding a named upstream,
// plus an injectable registry sharing one breaker per name.
//
// A breaker never swallows the error of the guarded call: it only uses it to
// decide whether future calls are allowed.
package breaker

import (
	"context"
	"sync"
	"time"

	"github.com/stokry/vectra/errcode"
	"github.com/stokry/vectra/logger"
	"go.uber.org/zap"
)

// Operation is the guarded call
type Operation func(ctx context.Context) (any, error)

// FallbackFunc is invoked instead of the operation while the circuit is open.
// err is the *OpenCircuitError that would otherwise be returned.
type FallbackFunc func(ctx context.Context, err error) (any, error)

// Snapshot is a point-in-time copy of the breaker state
type Snapshot struct {
	Name          string
	State         State
	FailureCount  int
	SuccessCount  int
	LastFailureAt time.Time // zero when no failure was recorded
	OpenedAt      time.Time // zero unless the circuit has been opened
}

// CircuitBreaker is safe for concurrent use; all state lives under mu
type CircuitBreaker struct {
	name    string
	config  Config
	monitor MonitorFunc

	mu            sync.Mutex
	state         State
	failureCount  int
	successCount  int
	lastFailureAt time.Time
	openedAt      time.Time

	now      func() time.Time
	eventBus EventBus
	metrics  *OTelMetrics
	logger   *logger.CtxZapLogger
}

// Option configures a CircuitBreaker
type Option func(*CircuitBreaker)

// WithLogger sets the logger
func WithLogger(l *logger.CtxZapLogger) Option {
	return func(cb *CircuitBreaker) {
		if l != nil {
			cb.logger = l
		}
	}
}

// WithEventBus publishes breaker events on bus
func WithEventBus(bus EventBus) Option {
	return func(cb *CircuitBreaker) {
		cb.eventBus = bus
	}
}

// WithMetrics records calls on m
func WithMetrics(m *OTelMetrics) Option {
	return func(cb *CircuitBreaker) {
		cb.metrics = m
	}
}

// WithMonitor overrides the monitored-error classifier
func WithMonitor(fn MonitorFunc) Option {
	return func(cb *CircuitBreaker) {
		if fn != nil {
			cb.monitor = fn
		}
	}
}

// New creates a closed breaker
func New(name string, cfg Config, opts ...Option) (*CircuitBreaker, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errcode.ErrValidation.Wrapf(err, "breaker %q: invalid config", name)
	}

	cb := &CircuitBreaker{
		name:    name,
		config:  cfg,
		monitor: cfg.monitor(),
		state:   StateClosed,
		now:     time.Now,
		logger:  logger.GetLogger("vectra"),
	}
	for _, opt := range opts {
		opt(cb)
	}
	return cb, nil
}

// Name returns the breaker name
func (cb *CircuitBreaker) Name() string {
	return cb.name
}

// Config returns the immutable configuration
func (cb *CircuitBreaker) Config() Config {
	return cb.config
}

type transition struct {
	from, to State
	reason   string
}

// Call runs op unless the circuit is open. While open, fallback (if any) is
// used instead; otherwise an *OpenCircuitError is returned. The error of op
// is always returned unchanged.
func (cb *CircuitBreaker) Call(ctx context.Context, fallback FallbackFunc, op Operation) (any, error) {
	cb.mu.Lock()
	probe, probed := cb.probeLocked()
	if cb.state == StateOpen {
		openErr := &OpenCircuitError{Name: cb.name, FailureCount: cb.failureCount, OpenedAt: cb.openedAt}
		cb.mu.Unlock()
		return cb.reject(ctx, openErr, fallback)
	}
	state := cb.state
	probeSnap := cb.snapshotLocked()
	cb.mu.Unlock()

	if probed {
		cb.publishTransitions(ctx, []transition{probe}, probeSnap)
	}

	cb.logger.DebugCtx(ctx, "🔍 [CircuitBreaker] Execute",
		zap.String("name", cb.name),
		zap.String("state", state.String()))

	start := time.Now()
	result, err := op(ctx)
	duration := time.Since(start)

	cb.mu.Lock()
	var (
		t         transition
		changed   bool
		monitored bool
	)
	switch {
	case err == nil:
		t, changed = cb.onSuccessLocked()
	case cb.monitor(err):
		monitored = true
		t, changed = cb.onFailureLocked()
	}
	snap := cb.snapshotLocked()
	cb.mu.Unlock()

	cb.recordCall(ctx, duration, err, monitored)
	if changed {
		cb.publishTransitions(ctx, []transition{t}, snap)
	}
	return result, err
}

// Execute is the typed form of Call; fallback may be nil
func Execute[T any](ctx context.Context, cb *CircuitBreaker, fallback func(ctx context.Context, err error) (T, error), op func(ctx context.Context) (T, error)) (T, error) {
	var fb FallbackFunc
	if fallback != nil {
		fb = func(ctx context.Context, err error) (any, error) {
			return fallback(ctx, err)
		}
	}
	result, err := cb.Call(ctx, fb, func(ctx context.Context) (any, error) {
		return op(ctx)
	})
	typed, _ := result.(T)
	return typed, err
}

// probeLocked moves open -> half_open once the recovery timeout elapsed
func (cb *CircuitBreaker) probeLocked() (transition, bool) {
	if cb.state != StateOpen || cb.now().Sub(cb.openedAt) < cb.config.RecoveryTimeout {
		return transition{}, false
	}
	cb.state = StateHalfOpen
	cb.successCount = 0
	return transition{from: StateOpen, to: StateHalfOpen, reason: "recovery timeout elapsed"}, true
}

func (cb *CircuitBreaker) onSuccessLocked() (transition, bool) {
	cb.successCount++
	if cb.state == StateHalfOpen && cb.successCount >= cb.config.SuccessThreshold {
		cb.state = StateClosed
		cb.failureCount = 0
		return transition{from: StateHalfOpen, to: StateClosed, reason: "success threshold reached"}, true
	}
	return transition{}, false
}

func (cb *CircuitBreaker) onFailureLocked() (transition, bool) {
	now := cb.now()
	cb.failureCount++
	cb.lastFailureAt = now

	switch cb.state {
	case StateHalfOpen:
		cb.state = StateOpen
		cb.openedAt = now
		return transition{from: StateHalfOpen, to: StateOpen, reason: "failure while half-open"}, true
	case StateClosed:
		if cb.failureCount >= cb.config.FailureThreshold {
			cb.state = StateOpen
			cb.openedAt = now
			return transition{from: StateClosed, to: StateOpen, reason: "failure threshold reached"}, true
		}
	}
	return transition{}, false
}

func (cb *CircuitBreaker) reject(ctx context.Context, openErr *OpenCircuitError, fallback FallbackFunc) (any, error) {
	cb.metrics.recordRejection(ctx, cb.name)
	cb.publish(&RejectedEvent{
		BaseEvent:    NewBaseEvent(EventCallRejected, cb.name, ctx),
		FailureCount: openErr.FailureCount,
		OpenedAt:     openErr.OpenedAt,
	})

	if fallback == nil {
		cb.logger.WarnCtx(ctx, "⛔ [CircuitBreaker] Request rejected",
			zap.String("name", cb.name),
			zap.Int("failure_count", openErr.FailureCount))
		return nil, openErr
	}

	cb.logger.InfoCtx(ctx, "↪️ [CircuitBreaker] Circuit open, using fallback",
		zap.String("name", cb.name),
		zap.Int("failure_count", openErr.FailureCount))

	start := time.Now()
	result, err := fallback(ctx, openErr)
	eventType := EventFallbackSuccess
	if err != nil {
		eventType = EventFallbackFailure
	}
	cb.publish(&FallbackEvent{
		BaseEvent: NewBaseEvent(eventType, cb.name, ctx),
		Success:   err == nil,
		Duration:  time.Since(start),
		Error:     err,
	})
	return result, err
}

func (cb *CircuitBreaker) recordCall(ctx context.Context, duration time.Duration, err error, monitored bool) {
	if err == nil {
		cb.metrics.recordSuccess(ctx, cb.name, duration)
		cb.publish(&CallEvent{
			BaseEvent: NewBaseEvent(EventCallSuccess, cb.name, ctx),
			Success:   true,
			Duration:  duration,
		})
		return
	}

	cb.logger.DebugCtx(ctx, "❌ [CircuitBreaker] Call failed",
		zap.String("name", cb.name),
		zap.Bool("monitored", monitored),
		zap.Duration("duration", duration),
		zap.Error(err))
	cb.metrics.recordFailure(ctx, cb.name, duration, errcode.KindOf(err).String(), monitored)
	cb.publish(&CallEvent{
		BaseEvent: NewBaseEvent(EventCallFailure, cb.name, ctx),
		Monitored: monitored,
		Duration:  duration,
		Error:     err,
	})
}

func (cb *CircuitBreaker) publishTransitions(ctx context.Context, transitions []transition, snap Snapshot) {
	for _, t := range transitions {
		cb.logger.InfoCtx(ctx, "🔄 [CircuitBreaker] State changed",
			zap.String("name", cb.name),
			zap.String("from", t.from.String()),
			zap.String("to", t.to.String()),
			zap.String("reason", t.reason),
			zap.Int("failure_count", snap.FailureCount))
		cb.publish(&StateChangedEvent{
			BaseEvent: NewBaseEvent(EventStateChanged, cb.name, ctx),
			FromState: t.from,
			ToState:   t.to,
			Reason:    t.reason,
			Snapshot:  snap,
		})
	}
}

func (cb *CircuitBreaker) publish(event Event) {
	if cb.eventBus != nil {
		cb.eventBus.Publish(event)
	}
}

// Trip forces the circuit open
func (cb *CircuitBreaker) Trip() {
	cb.mu.Lock()
	from := cb.state
	cb.state = StateOpen
	cb.openedAt = cb.now()
	snap := cb.snapshotLocked()
	cb.mu.Unlock()

	if from != StateOpen {
		cb.publishTransitions(context.Background(), []transition{{from: from, to: StateOpen, reason: "manual trip"}}, snap)
	}
}

// Reset forces the circuit closed and clears counters
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	from := cb.state
	cb.state = StateClosed
	cb.failureCount = 0
	cb.successCount = 0
	cb.lastFailureAt = time.Time{}
	cb.openedAt = time.Time{}
	snap := cb.snapshotLocked()
	cb.mu.Unlock()

	if from != StateClosed {
		cb.publishTransitions(context.Background(), []transition{{from: from, to: StateClosed, reason: "manual reset"}}, snap)
	}
}

// State returns the current state without applying the recovery timeout
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Snapshot returns a copy of the breaker state
func (cb *CircuitBreaker) Snapshot() Snapshot {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.snapshotLocked()
}

func (cb *CircuitBreaker) snapshotLocked() Snapshot {
	return Snapshot{
		Name:          cb.name,
		State:         cb.state,
		FailureCount:  cb.failureCount,
		SuccessCount:  cb.successCount,
		LastFailureAt: cb.lastFailureAt,
		OpenedAt:      cb.openedAt,
	}
}

// Check implements component.HealthChecker; an open circuit is unhealthy
func (cb *CircuitBreaker) Check(ctx context.Context) error {
	snap := cb.Snapshot()
	if snap.State == StateOpen {
		return &OpenCircuitError{Name: snap.Name, FailureCount: snap.FailureCount, OpenedAt: snap.OpenedAt}
	}
	return nil
}
