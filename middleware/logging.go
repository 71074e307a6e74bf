package middleware

import (
	"context"

	"github.com/stokry/vectra/errcode"
	"github.com/stokry/vectra/logger"
	"go.uber.org/zap"
)

type loggingHooks struct {
	logger *logger.CtxZapLogger
}

// Logging logs every operation through HookMiddleware
func Logging(l *logger.CtxZapLogger) Middleware {
	if l == nil {
		l = logger.GetLogger("vectra")
	}
	return HookMiddleware(&loggingHooks{logger: l})
}

func (h *loggingHooks) Before(ctx context.Context, req *Request) {
	h.logger.DebugCtx(ctx, "➡️ [Pipeline] operation started",
		zap.String("operation", req.Operation.String()),
		zap.String("index", req.Index),
		zap.String("namespace", req.Namespace))
}

func (h *loggingHooks) After(ctx context.Context, req *Request, resp *Response) {
	h.logger.DebugCtx(ctx, "✅ [Pipeline] operation succeeded",
		zap.String("operation", req.Operation.String()),
		zap.String("index", req.Index),
		zap.Int("retry_count", resp.RetryCount()),
		zap.Bool("dry_run", resp.DryRun()))
}

func (h *loggingHooks) OnError(ctx context.Context, req *Request, err error) {
	fields := []zap.Field{
		zap.String("operation", req.Operation.String()),
		zap.String("index", req.Index),
		zap.String("error_kind", errcode.KindOf(err).String()),
		zap.Error(err),
	}
	if errcode.IsPermanent(err) {
		h.logger.WarnCtx(ctx, "⚠️ [Pipeline] operation rejected", fields...)
		return
	}
	h.logger.ErrorCtx(ctx, "❌ [Pipeline] operation failed", fields...)
}
