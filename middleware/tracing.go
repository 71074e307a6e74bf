package middleware

import (
	"context"

	"github.com/stokry/vectra/errcode"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Tracing wraps each operation in a span named vectra.<operation>
func Tracing(tracer trace.Tracer) Middleware {
	return Func(func(ctx context.Context, req *Request, next Handler) (*Response, error) {
		ctx, span := tracer.Start(ctx, "vectra."+req.Operation.String(),
			trace.WithSpanKind(trace.SpanKindClient),
			trace.WithAttributes(
				attribute.String("vectra.operation", req.Operation.String()),
				attribute.String("vectra.index", req.Index),
				attribute.String("vectra.namespace", req.Namespace),
			))
		defer span.End()

		resp, err := next(ctx, req)
		if resp != nil {
			span.SetAttributes(
				attribute.Int("vectra.retry_count", resp.RetryCount()),
				attribute.Bool("vectra.dry_run", resp.DryRun()))
		}
		if failure := Outcome(resp, err); failure != nil {
			span.RecordError(failure)
			span.SetAttributes(attribute.String("vectra.error_kind", errcode.KindOf(failure).String()))
			span.SetStatus(codes.Error, failure.Error())
		} else {
			span.SetStatus(codes.Ok, "")
		}
		return resp, err
	})
}
