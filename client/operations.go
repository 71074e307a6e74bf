package client

import (
	"context"

	"github.com/stokry/vectra/backend"
	"github.com/stokry/vectra/middleware"
	"github.com/stokry/vectra/validator"
)

// Operations is the typed operation set shared by Client and its decorators
type Operations interface {
	Upsert(ctx context.Context, index, namespace string, vectors []backend.Vector) (*backend.UpsertResult, error)
	Query(ctx context.Context, index, namespace string, q backend.Query) (*backend.QueryResult, error)
	Fetch(ctx context.Context, index, namespace string, ids []string) (map[string]backend.Vector, error)
	Update(ctx context.Context, index, namespace string, u backend.Update) error
	Delete(ctx context.Context, index, namespace string, d backend.DeleteRequest) (*backend.DeleteResult, error)

	CreateIndex(ctx context.Context, spec backend.IndexSpec) error
	DeleteIndex(ctx context.Context, name string) error
	ListIndexes(ctx context.Context) ([]string, error)
	DescribeIndex(ctx context.Context, name string) (*backend.IndexInfo, error)
	Stats(ctx context.Context, index string) (*backend.IndexStats, error)

	ListNamespaces(ctx context.Context, index string) ([]string, error)
	HybridSearch(ctx context.Context, index, namespace string, q backend.HybridQuery) (*backend.QueryResult, error)
	TextSearch(ctx context.Context, index, namespace string, q backend.TextQuery) (*backend.QueryResult, error)
}

var (
	_ Operations      = (*Client)(nil)
	_ backend.Adapter = (*Client)(nil)
)

func newRequest(op middleware.Operation, index, namespace string, params map[string]any) *middleware.Request {
	req := middleware.NewRequest(op, index, params)
	req.Namespace = namespace
	return req
}

// Upsert inserts or replaces vectors. In dry-run mode nothing is written and
// the result is empty.
func (c *Client) Upsert(ctx context.Context, index, namespace string, vectors []backend.Vector) (*backend.UpsertResult, error) {
	if err := backend.ValidateVectors(vectors, 0); err != nil {
		return nil, err
	}
	resp, err := c.Call(ctx, newRequest(middleware.OpUpsert, index, namespace, map[string]any{ParamVectors: vectors}))
	if err != nil {
		return nil, err
	}
	if resp.DryRun() {
		return &backend.UpsertResult{}, nil
	}
	return result[*backend.UpsertResult](resp)
}

// Query runs a similarity search
func (c *Client) Query(ctx context.Context, index, namespace string, q backend.Query) (*backend.QueryResult, error) {
	if err := validator.ValidateRequest(q); err != nil {
		return nil, err
	}
	resp, err := c.Call(ctx, newRequest(middleware.OpQuery, index, namespace, map[string]any{ParamQuery: q}))
	if err != nil {
		return nil, err
	}
	return result[*backend.QueryResult](resp)
}

// Fetch returns the stored vectors among ids; missing ids are absent from the map
func (c *Client) Fetch(ctx context.Context, index, namespace string, ids []string) (map[string]backend.Vector, error) {
	resp, err := c.Call(ctx, newRequest(middleware.OpFetch, index, namespace, map[string]any{ParamIDs: ids}))
	if err != nil {
		return nil, err
	}
	return result[map[string]backend.Vector](resp)
}

// Update replaces the values and merges the metadata of one vector
func (c *Client) Update(ctx context.Context, index, namespace string, u backend.Update) error {
	if err := validator.ValidateRequest(u); err != nil {
		return err
	}
	_, err := c.Call(ctx, newRequest(middleware.OpUpdate, index, namespace, map[string]any{ParamUpdate: u}))
	return err
}

// Delete removes vectors by id, by filter or the whole namespace
func (c *Client) Delete(ctx context.Context, index, namespace string, d backend.DeleteRequest) (*backend.DeleteResult, error) {
	if err := validator.ValidateRequest(d); err != nil {
		return nil, err
	}
	resp, err := c.Call(ctx, newRequest(middleware.OpDelete, index, namespace, map[string]any{ParamDelete: d}))
	if err != nil {
		return nil, err
	}
	if resp.DryRun() {
		return &backend.DeleteResult{}, nil
	}
	return result[*backend.DeleteResult](resp)
}

// CreateIndex creates an index
func (c *Client) CreateIndex(ctx context.Context, spec backend.IndexSpec) error {
	if err := validator.ValidateRequest(spec); err != nil {
		return err
	}
	_, err := c.Call(ctx, newRequest(middleware.OpCreateIndex, spec.Name, "", map[string]any{ParamSpec: spec}))
	return err
}

// DeleteIndex drops an index and everything in it
func (c *Client) DeleteIndex(ctx context.Context, name string) error {
	_, err := c.Call(ctx, newRequest(middleware.OpDeleteIndex, name, "", map[string]any{ParamName: name}))
	return err
}

// ListIndexes returns the index names
func (c *Client) ListIndexes(ctx context.Context) ([]string, error) {
	resp, err := c.Call(ctx, newRequest(middleware.OpListIndexes, "", "", nil))
	if err != nil {
		return nil, err
	}
	return result[[]string](resp)
}

// DescribeIndex returns the index definition
func (c *Client) DescribeIndex(ctx context.Context, name string) (*backend.IndexInfo, error) {
	resp, err := c.Call(ctx, newRequest(middleware.OpDescribeIndex, name, "", nil))
	if err != nil {
		return nil, err
	}
	return result[*backend.IndexInfo](resp)
}

// Stats returns vector counts of an index
func (c *Client) Stats(ctx context.Context, index string) (*backend.IndexStats, error) {
	resp, err := c.Call(ctx, newRequest(middleware.OpStats, index, "", nil))
	if err != nil {
		return nil, err
	}
	return result[*backend.IndexStats](resp)
}

// ListNamespaces fails with ErrUnsupported, without consuming a token, when
// the backend has no namespaces
func (c *Client) ListNamespaces(ctx context.Context, index string) ([]string, error) {
	if _, ok := c.adapter.(backend.NamespaceLister); !ok {
		return nil, backend.Unsupported(c.adapter, middleware.OpListNamespaces.String())
	}
	resp, err := c.Call(ctx, newRequest(middleware.OpListNamespaces, index, "", nil))
	if err != nil {
		return nil, err
	}
	return result[[]string](resp)
}

// HybridSearch fails with ErrUnsupported when the backend cannot mix scores
func (c *Client) HybridSearch(ctx context.Context, index, namespace string, q backend.HybridQuery) (*backend.QueryResult, error) {
	if _, ok := c.adapter.(backend.HybridSearcher); !ok {
		return nil, backend.Unsupported(c.adapter, middleware.OpHybridSearch.String())
	}
	if err := validator.ValidateRequest(q); err != nil {
		return nil, err
	}
	resp, err := c.Call(ctx, newRequest(middleware.OpHybridSearch, index, namespace, map[string]any{ParamQuery: q}))
	if err != nil {
		return nil, err
	}
	return result[*backend.QueryResult](resp)
}

// TextSearch fails with ErrUnsupported when the backend has no keyword search
func (c *Client) TextSearch(ctx context.Context, index, namespace string, q backend.TextQuery) (*backend.QueryResult, error) {
	if _, ok := c.adapter.(backend.TextSearcher); !ok {
		return nil, backend.Unsupported(c.adapter, middleware.OpTextSearch.String())
	}
	if err := validator.ValidateRequest(q); err != nil {
		return nil, err
	}
	resp, err := c.Call(ctx, newRequest(middleware.OpTextSearch, index, namespace, map[string]any{ParamQuery: q}))
	if err != nil {
		return nil, err
	}
	return result[*backend.QueryResult](resp)
}
