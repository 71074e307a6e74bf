package middleware

import "context"

// Handler handles a request; the innermost handler is the adapter call
type Handler func(ctx context.Context, req *Request) (*Response, error)

// Middleware wraps the next handler
type Middleware interface {
	Call(ctx context.Context, req *Request, next Handler) (*Response, error)
}

// Func adapts a function to Middleware
type Func func(ctx context.Context, req *Request, next Handler) (*Response, error)

// Call implements Middleware
func (f Func) Call(ctx context.Context, req *Request, next Handler) (*Response, error) {
	return f(ctx, req, next)
}

// Hooks observe a call without controlling it
type Hooks interface {
	Before(ctx context.Context, req *Request)
	After(ctx context.Context, req *Request, resp *Response)
	OnError(ctx context.Context, req *Request, err error)
}

// HookMiddleware runs Before, then next, then After on success or OnError
// when next returned an error or a response carrying one. The error is always
// propagated unchanged after OnError.
func HookMiddleware(h Hooks) Middleware {
	return Func(func(ctx context.Context, req *Request, next Handler) (*Response, error) {
		h.Before(ctx, req)
		resp, err := next(ctx, req)
		if failure := Outcome(resp, err); failure != nil {
			h.OnError(ctx, req, failure)
			return resp, err
		}
		h.After(ctx, req, resp)
		return resp, nil
	})
}

// Pipeline is an ordered middleware chain. The first middleware is outermost.
type Pipeline struct {
	middleware []Middleware
}

// NewPipeline creates a pipeline
func NewPipeline(mws ...Middleware) *Pipeline {
	p := &Pipeline{}
	p.Use(mws...)
	return p
}

// Use appends middleware; nil entries are skipped
func (p *Pipeline) Use(mws ...Middleware) *Pipeline {
	for _, mw := range mws {
		if mw != nil {
			p.middleware = append(p.middleware, mw)
		}
	}
	return p
}

// Len returns the number of middleware
func (p *Pipeline) Len() int {
	return len(p.middleware)
}

// Then builds the handler that runs every middleware around app
func (p *Pipeline) Then(app Handler) Handler {
	h := normalize(app)
	for i := len(p.middleware) - 1; i >= 0; i-- {
		mw, next := p.middleware[i], h
		h = func(ctx context.Context, req *Request) (*Response, error) {
			return mw.Call(ctx, req, next)
		}
	}
	return h
}

// Call runs req through the pipeline into app. The response is never nil
// and a failure is always returned as the error, whichever way it surfaced.
func (p *Pipeline) Call(ctx context.Context, req *Request, app Handler) (*Response, error) {
	if req.Metadata == nil {
		req.Metadata = map[string]any{}
	}
	resp, err := p.Then(app)(ctx, req)
	if resp == nil {
		resp = ErrorResponse(err)
	}
	if err == nil {
		err = resp.Err
	} else if resp.Err == nil {
		resp.Err = err
		resp.Result = nil
	}
	return resp, err
}

// normalize guarantees the app never yields a nil response without an error
func normalize(app Handler) Handler {
	return func(ctx context.Context, req *Request) (*Response, error) {
		resp, err := app(ctx, req)
		if err == nil && resp == nil {
			resp = NewResponse(nil)
		}
		return resp, err
	}
}
