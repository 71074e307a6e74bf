package middleware

import (
	"context"
	"time"

	"github.com/stokry/vectra/errcode"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Instrumentation records operation counts and latency
func Instrumentation(meter metric.Meter) (Middleware, error) {
	total, err := meter.Int64Counter("vectra_operations_total",
		metric.WithDescription("Operations handled by the pipeline"),
		metric.WithUnit("{operation}"))
	if err != nil {
		return nil, err
	}
	duration, err := meter.Float64Histogram("vectra_operation_duration_seconds",
		metric.WithDescription("Operation latency including retries"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}

	return Func(func(ctx context.Context, req *Request, next Handler) (*Response, error) {
		start := time.Now()
		resp, err := next(ctx, req)

		status, kind := "success", ""
		if failure := Outcome(resp, err); failure != nil {
			status, kind = "error", errcode.KindOf(failure).String()
		}
		attrs := metric.WithAttributes(
			attribute.String("operation", req.Operation.String()),
			attribute.String("status", status),
			attribute.String("error_kind", kind),
		)
		total.Add(ctx, 1, attrs)
		duration.Record(ctx, time.Since(start).Seconds(), attrs)
		return resp, err
	}), nil
}
