package middleware

import (
	"context"

	"github.com/stokry/vectra/errcode"
	"github.com/stokry/vectra/logger"
	"go.uber.org/zap"
)

// Recovery turns a panic below it into an errcode.ErrServer failure so a buggy
// adapter cannot crash the caller. The stack is logged, not returned.
func Recovery(l *logger.CtxZapLogger) Middleware {
	if l == nil {
		l = logger.GetLogger("vectra")
	}
	return Func(func(ctx context.Context, req *Request, next Handler) (resp *Response, err error) {
		defer func() {
			if rec := recover(); rec != nil {
				l.ErrorCtx(ctx, "💥 [Pipeline] panic recovered",
					zap.String("operation", req.Operation.String()),
					zap.Any("panic", rec),
					zap.String("stack", logger.CaptureStacktrace(3, 32)))
				err = errcode.ErrServer.
					WithMsgf("panic during %s: %v", req.Operation, rec).
					WithData("operation", req.Operation.String())
				resp = ErrorResponse(err)
			}
		}()
		return next(ctx, req)
	})
}
