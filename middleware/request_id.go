package middleware

import (
	"context"

	"github.com/google/uuid"
	"github.com/stokry/vectra/logger"
)

// RequestID makes sure every request carries an id. An id already present in
// the request metadata or the context is kept; otherwise a UUID is generated.
// The id is put in the context for logging and stamped on the response.
func RequestID() Middleware {
	return RequestIDWithGenerator(uuid.NewString)
}

// RequestIDWithGenerator is RequestID with a custom id generator
func RequestIDWithGenerator(generate func() string) Middleware {
	return Func(func(ctx context.Context, req *Request, next Handler) (*Response, error) {
		id, _ := req.Metadata[MetaRequestID].(string)
		if id == "" {
			id = logger.RequestIDFrom(ctx)
		}
		if id == "" {
			id = generate()
		}
		req.SetMetadata(MetaRequestID, id)

		resp, err := next(logger.WithRequestID(ctx, id), req)
		if resp != nil {
			resp.SetMetadata(MetaRequestID, id)
		}
		return resp, err
	})
}
