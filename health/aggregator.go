package health

import (
	"context"
	"sync"
	"time"

	"github.com/stokry/vectra/errcode"
	"github.com/stokry/vectra/logger"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Option configures the aggregator
type Option func(*Aggregator)

// WithLogger sets the logger
func WithLogger(l *logger.CtxZapLogger) Option {
	return func(a *Aggregator) {
		if l != nil {
			a.logger = l
		}
	}
}

// WithDegradedKinds replaces the error kinds reported as degraded instead of unhealthy
func WithDegradedKinds(kinds ...errcode.Kind) Option {
	return func(a *Aggregator) {
		a.degraded = kinds
	}
}

// Aggregator runs registered checkers concurrently under one timeout
type Aggregator struct {
	mu       sync.RWMutex
	checkers []Checker
	metadata map[string]interface{}
	timeout  time.Duration
	degraded []errcode.Kind
	logger   *logger.CtxZapLogger
}

// NewAggregator creates an aggregator; timeout <= 0 means 5s.
// By default an open circuit or a saturated pool is degraded, anything else unhealthy.
func NewAggregator(timeout time.Duration, opts ...Option) *Aggregator {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	a := &Aggregator{
		metadata: make(map[string]interface{}),
		timeout:  timeout,
		degraded: []errcode.Kind{errcode.KindOpenCircuit, errcode.KindPoolTimeout, errcode.KindRateLimit},
		logger:   logger.GetLogger("vectra"),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Register adds checkers; nil entries are ignored
func (a *Aggregator) Register(checkers ...Checker) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, c := range checkers {
		if c != nil {
			a.checkers = append(a.checkers, c)
		}
	}
}

// SetMetadata attaches a value to every report
func (a *Aggregator) SetMetadata(key string, value interface{}) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.metadata[key] = value
}

// Check runs every checker and aggregates the results
func (a *Aggregator) Check(ctx context.Context) *Response {
	start := time.Now()

	checkCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	a.mu.RLock()
	checkers := make([]Checker, len(a.checkers))
	copy(checkers, a.checkers)
	metadata := make(map[string]interface{}, len(a.metadata))
	for k, v := range a.metadata {
		metadata[k] = v
	}
	a.mu.RUnlock()

	results := make([]CheckResult, len(checkers))
	var g errgroup.Group
	for i, c := range checkers {
		g.Go(func() error {
			results[i] = a.checkOne(checkCtx, c)
			return nil
		})
	}
	_ = g.Wait()

	checks := make(map[string]CheckResult, len(results))
	for _, r := range results {
		checks[r.Name] = r
	}

	resp := &Response{
		Status:    overallStatus(checks),
		Timestamp: time.Now(),
		Duration:  time.Since(start),
		Checks:    checks,
		Metadata:  metadata,
	}
	if !resp.IsHealthy() {
		a.logger.WarnCtx(ctx, "🩺 [Health] not healthy",
			zap.String("status", string(resp.Status)),
			zap.Int("checks", len(checks)))
	}
	return resp
}

func (a *Aggregator) checkOne(ctx context.Context, checker Checker) CheckResult {
	start := time.Now()
	result := CheckResult{Name: checker.Name(), Timestamp: start}

	err := checker.Check(ctx)
	result.Duration = time.Since(start)

	switch {
	case err == nil:
		result.Status = StatusHealthy
		result.Message = "OK"
	case a.isDegraded(err):
		result.Status = StatusDegraded
		result.Error = err.Error()
		result.Kind = errcode.KindOf(err).String()
		result.Message = "degraded"
	default:
		result.Status = StatusUnhealthy
		result.Error = err.Error()
		result.Kind = errcode.KindOf(err).String()
		result.Message = "health check failed"
	}
	return result
}

func (a *Aggregator) isDegraded(err error) bool {
	kind := errcode.KindOf(err)
	for _, k := range a.degraded {
		if k == kind {
			return true
		}
	}
	return false
}

func overallStatus(checks map[string]CheckResult) Status {
	status := StatusHealthy
	for _, r := range checks {
		switch r.Status {
		case StatusUnhealthy:
			return StatusUnhealthy
		case StatusDegraded:
			status = StatusDegraded
		}
	}
	return status
}
