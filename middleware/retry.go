package middleware

import (
	"context"

	"github.com/stokry/vectra/retry"
)

// Retry re-runs the rest of the pipeline with the retry executor and stamps
// retry_count (attempts - 1) on the response. Errors carried in Response.Err
// are retried like returned errors.
func Retry(opts ...retry.Option) Middleware {
	return Func(func(ctx context.Context, req *Request, next Handler) (*Response, error) {
		resp, attempts, err := retry.DoWithAttempts(ctx, func() (*Response, error) {
			resp, err := next(ctx, req)
			return resp, Outcome(resp, err)
		}, opts...)

		if resp == nil {
			resp = NewResponse(nil)
		}
		resp.SetMetadata(MetaRetryCount, attempts-1)
		if err != nil {
			resp.Result = nil
			resp.Err = err
		}
		return resp, err
	})
}
