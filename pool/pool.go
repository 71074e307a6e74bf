// Package pool provides a bounded pool of reusable connections with health
// checking, warmup and blocking-with-timeout checkout.
//
// Invariant: idle + checked out never exceeds the capacity. A connection is
// owned by exactly one caller between Checkout and Checkin.
package pool

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/stokry/vectra/errcode"
	"github.com/stokry/vectra/logger"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Conn is a pooled connection. The pool never looks past these two methods.
type Conn interface {
	Healthy(ctx context.Context) bool
	Close() error
}

// Factory creates a new connection
type Factory[T Conn] func(ctx context.Context) (T, error)

// Stats point-in-time pool counters
type Stats struct {
	Name       string
	Capacity   int
	Available  int
	CheckedOut int
	Waiting    int
	Created    int64
	Closed     int64
	Shutdown   bool
}

// Pool is a bounded connection pool
type Pool[T Conn] struct {
	name    string
	factory Factory[T]
	config  Config

	mu         sync.Mutex
	idle       []T
	checkedOut int // includes slots reserved for in-flight factory calls
	waiting    int
	shutdown   bool
	notify     chan struct{} // closed and replaced whenever a slot may have freed up

	created atomic.Int64
	closed  atomic.Int64

	scheduler gocron.Scheduler
	logger    *logger.CtxZapLogger
}

// Option configures a Pool
type Option func(*options)

type options struct {
	name   string
	logger *logger.CtxZapLogger
}

// WithName names the pool in logs, stats and health checks
func WithName(name string) Option {
	return func(o *options) {
		if name != "" {
			o.name = name
		}
	}
}

// WithLogger sets the logger
func WithLogger(l *logger.CtxZapLogger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// New creates an empty pool; connections are created lazily or by Warmup
func New[T Conn](factory Factory[T], cfg Config, opts ...Option) (*Pool[T], error) {
	if factory == nil {
		return nil, errcode.ErrValidation.WithMsg("pool factory is required")
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := options{name: "default", logger: logger.GetLogger("vectra")}
	for _, opt := range opts {
		opt(&o)
	}

	return &Pool[T]{
		name:    o.name,
		factory: factory,
		config:  cfg,
		idle:    make([]T, 0, cfg.Capacity),
		notify:  make(chan struct{}),
		logger:  o.logger,
	}, nil
}

// Name returns the pool name
func (p *Pool[T]) Name() string {
	return p.name
}

// Config returns the pool configuration
func (p *Pool[T]) Config() Config {
	return p.config
}

// broadcastLocked wakes every waiter; must be called with mu held
func (p *Pool[T]) broadcastLocked() {
	close(p.notify)
	p.notify = make(chan struct{})
}

// Warmup pre-creates up to n connections, capped by the free capacity.
// It returns how many were created.
func (p *Pool[T]) Warmup(ctx context.Context, n int) (int, error) {
	p.mu.Lock()
	if p.shutdown {
		p.mu.Unlock()
		return 0, p.exhaustedErr()
	}
	free := p.config.Capacity - p.checkedOut - len(p.idle)
	n = min(n, free)
	if n <= 0 {
		p.mu.Unlock()
		return 0, nil
	}
	p.checkedOut += n
	p.mu.Unlock()

	var created atomic.Int32
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < n; i++ {
		g.Go(func() error {
			conn, err := p.factory(gctx)

			p.mu.Lock()
			defer p.mu.Unlock()
			p.checkedOut--
			if err != nil {
				p.broadcastLocked()
				return err
			}
			p.created.Add(1)
			if p.shutdown {
				p.closeConn(conn)
				return nil
			}
			p.idle = append(p.idle, conn)
			created.Add(1)
			p.broadcastLocked()
			return nil
		})
	}
	err := g.Wait()

	p.logger.DebugCtx(ctx, "🔥 [Pool] warmup finished",
		zap.String("pool", p.name),
		zap.Int("requested", n),
		zap.Int32("created", created.Load()),
		zap.Error(err))
	if err != nil {
		return int(created.Load()), connectionErr(err)
	}
	return int(created.Load()), nil
}

// Checkout returns a healthy connection. It waits for a free slot at most
// Config.Timeout (or until ctx is done) and then fails with
// errcode.ErrPoolTimeout; after Shutdown it fails with errcode.ErrPoolExhausted.
func (p *Pool[T]) Checkout(ctx context.Context) (T, error) {
	var zero T

	deadline := time.Now().Add(p.config.Timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	p.mu.Lock()
	for {
		if p.shutdown {
			p.mu.Unlock()
			return zero, p.exhaustedErr()
		}

		if len(p.idle) > 0 {
			conn := p.idle[0]
			p.idle = p.idle[1:]
			p.checkedOut++
			p.mu.Unlock()

			if conn.Healthy(ctx) {
				return conn, nil
			}

			p.logger.DebugCtx(ctx, "🩺 [Pool] discarding unhealthy idle connection", zap.String("pool", p.name))
			p.closeConn(conn)
			p.mu.Lock()
			p.checkedOut--
			p.broadcastLocked()
			continue
		}

		if p.checkedOut+len(p.idle) < p.config.Capacity {
			p.checkedOut++
			p.mu.Unlock()
			return p.create(ctx)
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			p.mu.Unlock()
			p.logger.WarnCtx(ctx, "⏱️ [Pool] checkout timed out",
				zap.String("pool", p.name),
				zap.Duration("timeout", p.config.Timeout))
			return zero, p.timeoutErr(nil)
		}

		wake := p.notify
		p.waiting++
		p.mu.Unlock()

		if timer == nil {
			timer = time.NewTimer(remaining)
		} else {
			timer.Reset(remaining)
		}

		var ctxErr error
		select {
		case <-wake:
		case <-timer.C:
		case <-ctx.Done():
			ctxErr = ctx.Err()
		}

		p.mu.Lock()
		p.waiting--
		if ctxErr != nil {
			p.mu.Unlock()
			return zero, p.timeoutErr(ctxErr)
		}
	}
}

// create runs the factory for a slot already reserved in checkedOut
func (p *Pool[T]) create(ctx context.Context) (T, error) {
	var zero T

	conn, err := p.factory(ctx)
	if err != nil {
		p.mu.Lock()
		p.checkedOut--
		p.broadcastLocked()
		p.mu.Unlock()

		p.logger.WarnCtx(ctx, "❌ [Pool] connection factory failed", zap.String("pool", p.name), zap.Error(err))
		return zero, connectionErr(err)
	}
	p.created.Add(1)

	p.mu.Lock()
	if p.shutdown {
		p.checkedOut--
		p.mu.Unlock()
		p.closeConn(conn)
		return zero, p.exhaustedErr()
	}
	p.mu.Unlock()
	return conn, nil
}

// Checkin returns a connection. Unhealthy connections, and every connection
// returned after Shutdown, are closed and free their slot. A connection that
// is already idle is ignored; one returned while nothing is checked out is
// closed without entering the pool.
func (p *Pool[T]) Checkin(conn T) {
	healthy := conn.Healthy(context.Background())

	p.mu.Lock()
	if p.isIdleLocked(conn) {
		p.mu.Unlock()
		p.logger.Warn("⚠️ [Pool] connection checked in twice", zap.String("pool", p.name))
		return
	}
	if p.checkedOut == 0 {
		p.mu.Unlock()
		p.logger.Warn("⚠️ [Pool] checkin without checkout, closing connection", zap.String("pool", p.name))
		p.closeConn(conn)
		return
	}
	p.checkedOut--
	keep := healthy && !p.shutdown
	if keep {
		p.idle = append(p.idle, conn)
	}
	p.broadcastLocked()
	p.mu.Unlock()

	if !keep {
		p.closeConn(conn)
	}
}

// isIdleLocked reports whether conn is already in the idle list.
// Connections of non-comparable dynamic types are never matched.
func (p *Pool[T]) isIdleLocked(conn T) bool {
	t := reflect.TypeOf(any(conn))
	if t == nil || !t.Comparable() {
		return false
	}
	for _, c := range p.idle {
		if any(c) == any(conn) {
			return true
		}
	}
	return false
}

// WithConnection checks out a connection for the duration of fn. The
// connection is checked in on every exit path, including a panic in fn.
func (p *Pool[T]) WithConnection(ctx context.Context, fn func(conn T) error) error {
	conn, err := p.Checkout(ctx)
	if err != nil {
		return err
	}
	defer p.Checkin(conn)
	return fn(conn)
}

// WithConnectionResult is WithConnection for functions returning a value
func WithConnectionResult[T Conn, R any](ctx context.Context, p *Pool[T], fn func(conn T) (R, error)) (R, error) {
	conn, err := p.Checkout(ctx)
	if err != nil {
		var zero R
		return zero, err
	}
	defer p.Checkin(conn)
	return fn(conn)
}

// Shutdown marks the pool terminal and closes idle connections. Checked out
// connections are closed when they are checked in. Safe to call twice.
func (p *Pool[T]) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if p.shutdown {
		p.mu.Unlock()
		return nil
	}
	p.shutdown = true
	idle := p.idle
	p.idle = nil
	p.broadcastLocked()
	p.mu.Unlock()

	var errs []error
	if p.scheduler != nil {
		if err := p.scheduler.Shutdown(); err != nil {
			errs = append(errs, err)
		}
	}
	for _, conn := range idle {
		if err := p.closeConn(conn); err != nil {
			errs = append(errs, err)
		}
	}

	p.logger.InfoCtx(ctx, "🛑 [Pool] shut down",
		zap.String("pool", p.name),
		zap.Int("closed_idle", len(idle)))
	return errors.Join(errs...)
}

// Stats returns the current counters
func (p *Pool[T]) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Stats{
		Name:       p.name,
		Capacity:   p.config.Capacity,
		Available:  len(p.idle),
		CheckedOut: p.checkedOut,
		Waiting:    p.waiting,
		Created:    p.created.Load(),
		Closed:     p.closed.Load(),
		Shutdown:   p.shutdown,
	}
}

func (p *Pool[T]) closeConn(conn T) error {
	p.closed.Add(1)
	if err := conn.Close(); err != nil {
		p.logger.Warn("⚠️ [Pool] close connection failed", zap.String("pool", p.name), zap.Error(err))
		return err
	}
	return nil
}

func (p *Pool[T]) timeoutErr(cause error) error {
	return errcode.ErrPoolTimeout.
		WithMsgf("pool %q: timed out after %s waiting for a connection", p.name, p.config.Timeout).
		WithFields(map[string]interface{}{
			"pool":     p.name,
			"timeout":  p.config.Timeout,
			"capacity": p.config.Capacity,
		}).
		Wrap(cause)
}

func (p *Pool[T]) exhaustedErr() error {
	return errcode.ErrPoolExhausted.
		WithMsgf("pool %q has been shut down", p.name).
		WithData("pool", p.name)
}

// connectionErr keeps classified factory errors and marks the rest as connection failures
func connectionErr(err error) error {
	if errcode.KindOf(err) != errcode.KindUnknown {
		return err
	}
	return errcode.ErrConnection.Wrap(err)
}
