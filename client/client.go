// Package client is the resilient front door of vectra. Every operation is
// gated by a token bucket, guarded by a circuit breaker and run through the
// middleware pipeline before it reaches the backend adapter.
package client

import (
	"context"
	"fmt"

	"github.com/stokry/vectra/backend"
	"github.com/stokry/vectra/batch"
	"github.com/stokry/vectra/breaker"
	"github.com/stokry/vectra/errcode"
	"github.com/stokry/vectra/health"
	"github.com/stokry/vectra/limiter"
	"github.com/stokry/vectra/logger"
	"github.com/stokry/vectra/middleware"
	"github.com/stokry/vectra/retry"
	"go.uber.org/zap"
)

// Request parameter keys understood by dispatch
const (
	ParamVectors = "vectors"
	ParamQuery   = "query"
	ParamIDs     = "ids"
	ParamUpdate  = "update"
	ParamDelete  = "delete"
	ParamSpec    = "spec"
	ParamName    = "name"
)

// Client runs operations against one backend adapter
type Client struct {
	name     string
	adapter  backend.Adapter
	limiter  *limiter.TokenBucket
	acquire  limiter.AcquireOptions
	breaker  *breaker.CircuitBreaker
	pipeline *middleware.Pipeline
	batch    batch.Config
	health   *health.Aggregator
	dryRun   bool
	logger   *logger.CtxZapLogger
}

// New builds a client around adapter. Without a limiter or breaker the
// corresponding gate is skipped.
func New(adapter backend.Adapter, opts ...Option) (*Client, error) {
	if adapter == nil {
		return nil, errcode.ErrValidation.WithMsg("client requires a backend adapter")
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.name == "" {
		o.name = adapter.Name()
	}
	if o.limiter == nil && o.limiters != nil {
		o.limiter = o.limiters.GetOrCreate(o.name)
	}
	if o.breaker == nil && o.breakers != nil {
		o.breaker = o.breakers.GetOrCreate(o.name)
	}
	o.batch.ApplyDefaults()
	if err := o.batch.Validate(); err != nil {
		return nil, fmt.Errorf("invalid batch config: %w", err)
	}

	pipeline, err := buildPipeline(&o)
	if err != nil {
		return nil, err
	}

	agg := health.NewAggregator(o.healthTimeout, health.WithLogger(o.logger))
	agg.SetMetadata("backend", adapter.Name())
	if o.breaker != nil {
		agg.Register(o.breaker)
	}
	if checker, ok := adapter.(health.Checker); ok {
		agg.Register(checker)
	}
	agg.Register(o.checkers...)

	c := &Client{
		name:     o.name,
		adapter:  adapter,
		limiter:  o.limiter,
		acquire:  o.acquire,
		breaker:  o.breaker,
		pipeline: pipeline,
		batch:    o.batch,
		health:   agg,
		dryRun:   o.dryRun,
		logger:   o.logger,
	}

	o.logger.Info("✅ [Client] ready",
		zap.String("name", c.name),
		zap.String("backend", adapter.Name()),
		zap.Bool("rate_limited", c.limiter != nil),
		zap.Bool("circuit_breaker", c.breaker != nil),
		zap.Bool("dry_run", c.dryRun),
		zap.Int("middleware", pipeline.Len()))
	return c, nil
}

// buildPipeline orders the middleware outermost first:
// request id, logging, tracing, instrumentation, recovery, extra, dry-run, retry
func buildPipeline(o *options) (*middleware.Pipeline, error) {
	p := middleware.NewPipeline()
	if o.requestID != nil {
		p.Use(middleware.RequestIDWithGenerator(o.requestID))
	} else {
		p.Use(middleware.RequestID())
	}
	p.Use(middleware.Logging(o.logger))
	if o.tracer != nil {
		p.Use(middleware.Tracing(o.tracer))
	}
	if o.meter != nil {
		mw, err := middleware.Instrumentation(o.meter)
		if err != nil {
			return nil, fmt.Errorf("create instrumentation middleware: %w", err)
		}
		p.Use(mw)
	}
	p.Use(middleware.Recovery(o.logger))
	p.Use(o.extra...)
	if o.dryRun {
		p.Use(middleware.DryRun(append([]middleware.DryRunOption{middleware.WithDryRunLogger(o.logger)}, o.dryRunOpts...)...))
	}

	retryOpts := append([]retry.Option{retry.WithPolicy(o.retryPolicy), retry.WithLogger(o.logger)}, o.retryOpts...)
	p.Use(middleware.Retry(retryOpts...))
	return p, nil
}

// Name returns the upstream name used for the limiter and breaker
func (c *Client) Name() string {
	return c.name
}

// Adapter returns the wrapped backend adapter
func (c *Client) Adapter() backend.Adapter {
	return c.adapter
}

// Breaker returns the circuit breaker, nil when the gate is disabled
func (c *Client) Breaker() *breaker.CircuitBreaker {
	return c.breaker
}

// Limiter returns the token bucket, nil when the gate is disabled
func (c *Client) Limiter() *limiter.TokenBucket {
	return c.limiter
}

// Capabilities lists the optional operations of the backend
func (c *Client) Capabilities() []string {
	return backend.Capabilities(c.adapter)
}

// Call runs req through the gates and the pipeline. The returned response is
// never nil; on failure its Err equals the returned error.
func (c *Client) Call(ctx context.Context, req *middleware.Request) (*middleware.Response, error) {
	if c.limiter != nil {
		if err := c.limiter.Acquire(ctx, c.acquire); err != nil {
			return middleware.ErrorResponse(err), err
		}
	}

	if c.breaker == nil {
		return c.pipeline.Call(ctx, req, c.dispatch)
	}

	resp, err := breaker.Execute(ctx, c.breaker, nil, func(ctx context.Context) (*middleware.Response, error) {
		return c.pipeline.Call(ctx, req, c.dispatch)
	})
	if resp == nil {
		resp = middleware.ErrorResponse(err)
	}
	return resp, err
}

// dispatch is the innermost handler: one adapter call per attempt
func (c *Client) dispatch(ctx context.Context, req *middleware.Request) (*middleware.Response, error) {
	var (
		result any
		err    error
	)

	switch req.Operation {
	case middleware.OpUpsert:
		var vectors []backend.Vector
		if vectors, err = param[[]backend.Vector](req, ParamVectors); err == nil {
			result, err = c.adapter.Upsert(ctx, req.Index, req.Namespace, vectors)
		}
	case middleware.OpQuery:
		var q backend.Query
		if q, err = param[backend.Query](req, ParamQuery); err == nil {
			result, err = c.adapter.Query(ctx, req.Index, req.Namespace, q)
		}
	case middleware.OpFetch:
		var ids []string
		if ids, err = param[[]string](req, ParamIDs); err == nil {
			result, err = c.adapter.Fetch(ctx, req.Index, req.Namespace, ids)
		}
	case middleware.OpUpdate:
		var u backend.Update
		if u, err = param[backend.Update](req, ParamUpdate); err == nil {
			err = c.adapter.Update(ctx, req.Index, req.Namespace, u)
		}
	case middleware.OpDelete:
		var d backend.DeleteRequest
		if d, err = param[backend.DeleteRequest](req, ParamDelete); err == nil {
			result, err = c.adapter.Delete(ctx, req.Index, req.Namespace, d)
		}
	case middleware.OpCreateIndex:
		var spec backend.IndexSpec
		if spec, err = param[backend.IndexSpec](req, ParamSpec); err == nil {
			err = c.adapter.CreateIndex(ctx, spec)
		}
	case middleware.OpDeleteIndex:
		err = c.adapter.DeleteIndex(ctx, req.Index)
	case middleware.OpListIndexes:
		result, err = c.adapter.ListIndexes(ctx)
	case middleware.OpDescribeIndex:
		result, err = c.adapter.DescribeIndex(ctx, req.Index)
	case middleware.OpStats:
		result, err = c.adapter.Stats(ctx, req.Index)
	case middleware.OpListNamespaces:
		lister, ok := c.adapter.(backend.NamespaceLister)
		if !ok {
			err = backend.Unsupported(c.adapter, req.Operation.String())
			break
		}
		result, err = lister.ListNamespaces(ctx, req.Index)
	case middleware.OpHybridSearch:
		searcher, ok := c.adapter.(backend.HybridSearcher)
		if !ok {
			err = backend.Unsupported(c.adapter, req.Operation.String())
			break
		}
		var q backend.HybridQuery
		if q, err = param[backend.HybridQuery](req, ParamQuery); err == nil {
			result, err = searcher.HybridSearch(ctx, req.Index, req.Namespace, q)
		}
	case middleware.OpTextSearch:
		searcher, ok := c.adapter.(backend.TextSearcher)
		if !ok {
			err = backend.Unsupported(c.adapter, req.Operation.String())
			break
		}
		var q backend.TextQuery
		if q, err = param[backend.TextQuery](req, ParamQuery); err == nil {
			result, err = searcher.TextSearch(ctx, req.Index, req.Namespace, q)
		}
	default:
		err = errcode.ErrValidation.WithMsgf("unknown operation %q", req.Operation).WithData("operation", string(req.Operation))
	}

	if err != nil {
		return middleware.ErrorResponse(err), err
	}
	return middleware.NewResponse(result), nil
}

// param reads a typed request parameter
func param[T any](req *middleware.Request, key string) (T, error) {
	v, ok := req.Params[key].(T)
	if !ok {
		var zero T
		return zero, errcode.ErrValidation.
			WithMsgf("%s: parameter %q is missing or has type %T", req.Operation, key, req.Params[key]).
			WithData("param", key)
	}
	return v, nil
}

// result extracts the typed result of a successful response
func result[T any](resp *middleware.Response) (T, error) {
	v, ok := resp.Result.(T)
	if !ok {
		var zero T
		return zero, errcode.ErrServer.WithMsgf("unexpected result type %T", resp.Result)
	}
	return v, nil
}

// Health checks the breaker, the adapter (when it can check itself) and any
// extra checkers
func (c *Client) Health(ctx context.Context) *health.Response {
	return c.health.Check(ctx)
}

// Close releases the adapter
func (c *Client) Close(ctx context.Context) error {
	var err error
	switch a := c.adapter.(type) {
	case interface{ Shutdown(context.Context) error }:
		err = a.Shutdown(ctx)
	case interface{ Close() error }:
		err = a.Close()
	}
	if err != nil {
		c.logger.ErrorCtx(ctx, "❌ [Client] close failed", zap.String("name", c.name), zap.Error(err))
		return err
	}
	c.logger.InfoCtx(ctx, "✅ [Client] closed", zap.String("name", c.name))
	return nil
}
