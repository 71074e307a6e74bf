package health

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stokry/vectra/breaker"
	"github.com/stokry/vectra/errcode"
	"github.com/stokry/vectra/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockChecker struct {
	name string
	err  error
}

func (m *mockChecker) Name() string {
	return m.name
}

func (m *mockChecker) Check(ctx context.Context) error {
	return m.err
}

type slowChecker struct{}

func (slowChecker) Name() string { return "slow" }

func (slowChecker) Check(ctx context.Context) error {
	<-ctx.Done()
	return errcode.ErrTimeout.Wrap(ctx.Err())
}

func TestAggregator_Check(t *testing.T) {
	tests := []struct {
		name     string
		checkers []Checker
		want     Status
	}{
		{"no checkers", nil, StatusHealthy},
		{"all healthy", []Checker{&mockChecker{name: "pool"}, &mockChecker{name: "breaker"}}, StatusHealthy},
		{"open circuit is degraded", []Checker{
			&mockChecker{name: "pool"},
			&mockChecker{name: "breaker", err: errcode.ErrOpenCircuit},
		}, StatusDegraded},
		{"connection failure is unhealthy", []Checker{
			&mockChecker{name: "breaker", err: errcode.ErrOpenCircuit},
			&mockChecker{name: "backend", err: errcode.ErrConnection},
		}, StatusUnhealthy},
		{"plain error is unhealthy", []Checker{&mockChecker{name: "x", err: errors.New("down")}}, StatusUnhealthy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			agg := NewAggregator(time.Second, WithLogger(logger.NewNop()))
			agg.Register(tt.checkers...)

			resp := agg.Check(context.Background())
			assert.Equal(t, tt.want, resp.Status)
			assert.Len(t, resp.Checks, len(tt.checkers))
		})
	}
}

func TestAggregator_BreakerChecker(t *testing.T) {
	cb, err := breaker.New("backend", breaker.DefaultConfig())
	require.NoError(t, err)

	agg := NewAggregator(time.Second, WithLogger(logger.NewNop()))
	agg.Register(cb, nil)

	assert.True(t, agg.Check(context.Background()).IsHealthy())

	cb.Trip()
	resp := agg.Check(context.Background())
	assert.True(t, resp.IsDegraded())
	assert.Equal(t, string(errcode.KindOpenCircuit), resp.Checks["backend"].Kind)
	assert.Contains(t, resp.Checks["backend"].Error, "is open")
}

func TestAggregator_Timeout(t *testing.T) {
	agg := NewAggregator(20*time.Millisecond, WithLogger(logger.NewNop()))
	agg.Register(slowChecker{})

	start := time.Now()
	resp := agg.Check(context.Background())
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, StatusUnhealthy, resp.Status)
	assert.Equal(t, string(errcode.KindTimeout), resp.Checks["slow"].Kind)
}

func TestAggregator_DegradedKindsOverride(t *testing.T) {
	agg := NewAggregator(time.Second, WithLogger(logger.NewNop()), WithDegradedKinds(errcode.KindConnection))
	agg.Register(&mockChecker{name: "backend", err: errcode.ErrConnection})
	assert.Equal(t, StatusDegraded, agg.Check(context.Background()).Status)
}

func TestAggregator_SetMetadata(t *testing.T) {
	agg := NewAggregator(0)
	agg.SetMetadata("service", "vectra")

	resp := agg.Check(context.Background())
	assert.Equal(t, "vectra", resp.Metadata["service"])
}

func TestConfig(t *testing.T) {
	cfg := Config{}
	cfg.ApplyDefaults()
	assert.Equal(t, 5*time.Second, cfg.Timeout)
	assert.NoError(t, cfg.Validate())
	assert.Equal(t, DefaultConfig().Timeout, cfg.Timeout)
}
