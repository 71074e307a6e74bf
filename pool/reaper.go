package pool

import (
	"context"
	"fmt"

	"github.com/go-co-op/gocron/v2"
	"github.com/stokry/vectra/errcode"
	"go.uber.org/zap"
)

// Reap health-checks idle connections and closes the unhealthy ones.
// Idle connections are reserved while being checked so capacity is respected.
func (p *Pool[T]) Reap(ctx context.Context) int {
	p.mu.Lock()
	if p.shutdown || len(p.idle) == 0 {
		p.mu.Unlock()
		return 0
	}
	candidates := p.idle
	p.idle = make([]T, 0, p.config.Capacity)
	p.checkedOut += len(candidates)
	p.mu.Unlock()

	healthy := make([]T, 0, len(candidates))
	var unhealthy []T
	for _, conn := range candidates {
		if conn.Healthy(ctx) {
			healthy = append(healthy, conn)
		} else {
			unhealthy = append(unhealthy, conn)
		}
	}

	p.mu.Lock()
	p.checkedOut -= len(candidates)
	if p.shutdown {
		unhealthy = append(unhealthy, healthy...)
	} else {
		p.idle = append(p.idle, healthy...)
	}
	p.broadcastLocked()
	p.mu.Unlock()

	for _, conn := range unhealthy {
		_ = p.closeConn(conn)
	}
	if len(unhealthy) > 0 {
		p.logger.DebugCtx(ctx, "🧹 [Pool] reaped idle connections",
			zap.String("pool", p.name),
			zap.Int("closed", len(unhealthy)))
	}
	return len(unhealthy)
}

// StartReaper schedules Reap every Config.ReapInterval with gocron.
// It is a no-op when the interval is zero; the schedule stops on Shutdown.
func (p *Pool[T]) StartReaper() error {
	if p.config.ReapInterval <= 0 {
		return nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.shutdown {
		return p.exhaustedErr()
	}
	if p.scheduler != nil {
		return nil
	}

	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return fmt.Errorf("create reaper scheduler: %w", err)
	}
	_, err = scheduler.NewJob(
		gocron.DurationJob(p.config.ReapInterval),
		gocron.NewTask(func() { p.Reap(context.Background()) }),
		gocron.WithName("pool-reaper:"+p.name),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		_ = scheduler.Shutdown()
		return fmt.Errorf("schedule reaper: %w", err)
	}
	scheduler.Start()
	p.scheduler = scheduler

	p.logger.Debug("🧹 [Pool] reaper started",
		zap.String("pool", p.name),
		zap.Duration("interval", p.config.ReapInterval))
	return nil
}

// Check implements component.HealthChecker
func (p *Pool[T]) Check(ctx context.Context) error {
	stats := p.Stats()
	if stats.Shutdown {
		return p.exhaustedErr()
	}
	if stats.Available == 0 && stats.CheckedOut >= stats.Capacity && stats.Waiting > 0 {
		return errcode.ErrPoolTimeout.
			WithMsgf("pool %q saturated: %d waiting", p.name, stats.Waiting).
			WithData("waiting", stats.Waiting)
	}
	return nil
}
