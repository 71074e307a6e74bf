package telemetry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stokry/vectra/breaker"
	"github.com/stokry/vectra/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

type failingExporter struct {
	calls int
	err   error
}

func (f *failingExporter) ExportSpans(context.Context, []sdktrace.ReadOnlySpan) error {
	f.calls++
	return f.err
}

func (f *failingExporter) Shutdown(context.Context) error { return nil }

func spans(names ...string) []sdktrace.ReadOnlySpan {
	stubs := make(tracetest.SpanStubs, 0, len(names))
	for _, n := range names {
		stubs = append(stubs, tracetest.SpanStub{Name: n})
	}
	return stubs.Snapshots()
}

func TestGuardedExporter_FallsBackWhileOpen(t *testing.T) {
	primary := &failingExporter{err: errors.New("collector unreachable")}
	fallback := tracetest.NewInMemoryExporter()
	cb, err := breaker.New("exporter", breaker.Config{
		FailureThreshold: 2,
		SuccessThreshold: 1,
		RecoveryTimeout:  time.Hour,
	}, breaker.WithLogger(logger.NewNop()))
	require.NoError(t, err)

	g := NewGuardedExporter(primary, fallback, cb)
	ctx := context.Background()

	assert.Error(t, g.ExportSpans(ctx, spans("a")))
	assert.Error(t, g.ExportSpans(ctx, spans("b")))
	assert.Equal(t, breaker.StateOpen, cb.State())

	require.NoError(t, g.ExportSpans(ctx, spans("c", "d")))
	assert.Equal(t, 2, primary.calls)
	assert.Len(t, fallback.GetSpans(), 2)
	assert.Equal(t, "c", fallback.GetSpans()[0].Name)
}

func TestGuardedExporter_PassThroughWhenHealthy(t *testing.T) {
	primary := tracetest.NewInMemoryExporter()
	cb, err := breaker.New("exporter", breaker.DefaultConfig(), breaker.WithLogger(logger.NewNop()))
	require.NoError(t, err)

	g := NewGuardedExporter(primary, nil, cb)
	require.NoError(t, g.ExportSpans(context.Background(), spans("a")))
	assert.Len(t, primary.GetSpans(), 1)
	assert.Equal(t, cb, g.Breaker())
	assert.NoError(t, g.Shutdown(context.Background()))
}
