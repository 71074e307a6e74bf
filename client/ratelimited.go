package client

import (
	"context"

	"github.com/stokry/vectra/backend"
	"github.com/stokry/vectra/limiter"
	"github.com/stokry/vectra/middleware"
)

// RateLimitedClient adds a per-operation bucket in front of next. Buckets are
// named <prefix><operation> in the registry, so each operation can carry its
// own rate through limiter.Config.Resources.
type RateLimitedClient struct {
	Operations

	registry *limiter.Registry
	prefix   string
	acquire  limiter.AcquireOptions
}

// NewRateLimitedClient wraps next; prefix is typically "<upstream>."
func NewRateLimitedClient(next Operations, registry *limiter.Registry, prefix string, acquire limiter.AcquireOptions) *RateLimitedClient {
	return &RateLimitedClient{Operations: next, registry: registry, prefix: prefix, acquire: acquire}
}

func (c *RateLimitedClient) gate(ctx context.Context, op middleware.Operation) error {
	return c.registry.GetOrCreate(c.prefix+op.String()).Acquire(ctx, c.acquire)
}

func (c *RateLimitedClient) Upsert(ctx context.Context, index, namespace string, vectors []backend.Vector) (*backend.UpsertResult, error) {
	if err := c.gate(ctx, middleware.OpUpsert); err != nil {
		return nil, err
	}
	return c.Operations.Upsert(ctx, index, namespace, vectors)
}

func (c *RateLimitedClient) Query(ctx context.Context, index, namespace string, q backend.Query) (*backend.QueryResult, error) {
	if err := c.gate(ctx, middleware.OpQuery); err != nil {
		return nil, err
	}
	return c.Operations.Query(ctx, index, namespace, q)
}

func (c *RateLimitedClient) Fetch(ctx context.Context, index, namespace string, ids []string) (map[string]backend.Vector, error) {
	if err := c.gate(ctx, middleware.OpFetch); err != nil {
		return nil, err
	}
	return c.Operations.Fetch(ctx, index, namespace, ids)
}

func (c *RateLimitedClient) Update(ctx context.Context, index, namespace string, u backend.Update) error {
	if err := c.gate(ctx, middleware.OpUpdate); err != nil {
		return err
	}
	return c.Operations.Update(ctx, index, namespace, u)
}

func (c *RateLimitedClient) Delete(ctx context.Context, index, namespace string, d backend.DeleteRequest) (*backend.DeleteResult, error) {
	if err := c.gate(ctx, middleware.OpDelete); err != nil {
		return nil, err
	}
	return c.Operations.Delete(ctx, index, namespace, d)
}

func (c *RateLimitedClient) CreateIndex(ctx context.Context, spec backend.IndexSpec) error {
	if err := c.gate(ctx, middleware.OpCreateIndex); err != nil {
		return err
	}
	return c.Operations.CreateIndex(ctx, spec)
}

func (c *RateLimitedClient) DeleteIndex(ctx context.Context, name string) error {
	if err := c.gate(ctx, middleware.OpDeleteIndex); err != nil {
		return err
	}
	return c.Operations.DeleteIndex(ctx, name)
}

func (c *RateLimitedClient) ListIndexes(ctx context.Context) ([]string, error) {
	if err := c.gate(ctx, middleware.OpListIndexes); err != nil {
		return nil, err
	}
	return c.Operations.ListIndexes(ctx)
}

func (c *RateLimitedClient) DescribeIndex(ctx context.Context, name string) (*backend.IndexInfo, error) {
	if err := c.gate(ctx, middleware.OpDescribeIndex); err != nil {
		return nil, err
	}
	return c.Operations.DescribeIndex(ctx, name)
}

func (c *RateLimitedClient) Stats(ctx context.Context, index string) (*backend.IndexStats, error) {
	if err := c.gate(ctx, middleware.OpStats); err != nil {
		return nil, err
	}
	return c.Operations.Stats(ctx, index)
}

func (c *RateLimitedClient) ListNamespaces(ctx context.Context, index string) ([]string, error) {
	if err := c.gate(ctx, middleware.OpListNamespaces); err != nil {
		return nil, err
	}
	return c.Operations.ListNamespaces(ctx, index)
}

func (c *RateLimitedClient) HybridSearch(ctx context.Context, index, namespace string, q backend.HybridQuery) (*backend.QueryResult, error) {
	if err := c.gate(ctx, middleware.OpHybridSearch); err != nil {
		return nil, err
	}
	return c.Operations.HybridSearch(ctx, index, namespace, q)
}

func (c *RateLimitedClient) TextSearch(ctx context.Context, index, namespace string, q backend.TextQuery) (*backend.QueryResult, error) {
	if err := c.gate(ctx, middleware.OpTextSearch); err != nil {
		return nil, err
	}
	return c.Operations.TextSearch(ctx, index, namespace, q)
}
