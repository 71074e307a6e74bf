package telemetry

import (
	"context"
	"errors"

	"github.com/stokry/vectra/breaker"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// GuardedExporter sends spans to the primary exporter through a circuit
// breaker. While the circuit is open spans go to the fallback exporter.
type GuardedExporter struct {
	primary  sdktrace.SpanExporter
	fallback sdktrace.SpanExporter
	breaker  *breaker.CircuitBreaker
}

var _ sdktrace.SpanExporter = (*GuardedExporter)(nil)

// NewGuardedExporter wraps primary; a nil fallback drops spans while open
func NewGuardedExporter(primary, fallback sdktrace.SpanExporter, cb *breaker.CircuitBreaker) *GuardedExporter {
	if fallback == nil {
		fallback = noopExporter{}
	}
	return &GuardedExporter{primary: primary, fallback: fallback, breaker: cb}
}

// ExportSpans implements sdktrace.SpanExporter
func (g *GuardedExporter) ExportSpans(ctx context.Context, spans []sdktrace.ReadOnlySpan) error {
	_, err := g.breaker.Call(ctx,
		func(ctx context.Context, _ error) (any, error) {
			return nil, g.fallback.ExportSpans(ctx, spans)
		},
		func(ctx context.Context) (any, error) {
			return nil, g.primary.ExportSpans(ctx, spans)
		})
	return err
}

// Shutdown shuts down both exporters
func (g *GuardedExporter) Shutdown(ctx context.Context) error {
	return errors.Join(g.primary.Shutdown(ctx), g.fallback.Shutdown(ctx))
}

// Breaker returns the guarding breaker
func (g *GuardedExporter) Breaker() *breaker.CircuitBreaker {
	return g.breaker
}
