// Package backend defines the uniform operation interface every vector
// store adapter implements, the optional capability interfaces, and the
// value types shared by adapters and the client.
package backend

import (
	"context"

	"github.com/stokry/vectra/errcode"
)

// Adapter is the uniform operation set of a vector store.
// Calls block for their whole duration and fail with errcode taxonomy errors.
type Adapter interface {
	// Name identifies the backend in logs, breaker and limiter names
	Name() string

	Upsert(ctx context.Context, index, namespace string, vectors []Vector) (*UpsertResult, error)
	Query(ctx context.Context, index, namespace string, q Query) (*QueryResult, error)
	Fetch(ctx context.Context, index, namespace string, ids []string) (map[string]Vector, error)
	Update(ctx context.Context, index, namespace string, u Update) error
	Delete(ctx context.Context, index, namespace string, req DeleteRequest) (*DeleteResult, error)

	CreateIndex(ctx context.Context, spec IndexSpec) error
	DeleteIndex(ctx context.Context, name string) error
	ListIndexes(ctx context.Context) ([]string, error)
	DescribeIndex(ctx context.Context, name string) (*IndexInfo, error)
	Stats(ctx context.Context, index string) (*IndexStats, error)
}

// HybridSearcher is implemented by adapters that combine vector and keyword scoring
type HybridSearcher interface {
	HybridSearch(ctx context.Context, index, namespace string, q HybridQuery) (*QueryResult, error)
}

// TextSearcher is implemented by adapters with keyword search
type TextSearcher interface {
	TextSearch(ctx context.Context, index, namespace string, q TextQuery) (*QueryResult, error)
}

// NamespaceLister is implemented by adapters that partition indexes into namespaces
type NamespaceLister interface {
	ListNamespaces(ctx context.Context, index string) ([]string, error)
}

// Capability names reported by Capabilities
const (
	CapHybridSearch   = "hybrid_search"
	CapTextSearch     = "text_search"
	CapListNamespaces = "list_namespaces"
)

// Capabilities lists the optional operations an adapter opts into
func Capabilities(a Adapter) []string {
	var caps []string
	if _, ok := a.(HybridSearcher); ok {
		caps = append(caps, CapHybridSearch)
	}
	if _, ok := a.(TextSearcher); ok {
		caps = append(caps, CapTextSearch)
	}
	if _, ok := a.(NamespaceLister); ok {
		caps = append(caps, CapListNamespaces)
	}
	return caps
}

// Unsupported is returned for an optional operation the adapter does not implement
func Unsupported(a Adapter, op string) error {
	return errcode.ErrUnsupported.
		WithMsgf("backend %s does not support %s", a.Name(), op).
		WithData("backend", a.Name()).
		WithData("operation", op)
}

// Adapter errors
var (
	ErrIndexNotFound     = errcode.Register(errcode.New(errcode.ModuleBackend, 10, "backend", "error.backend.index_not_found", "index not found", errcode.KindNotFound))
	ErrIndexExists       = errcode.Register(errcode.New(errcode.ModuleBackend, 11, "backend", "error.backend.index_exists", "index already exists", errcode.KindValidation))
	ErrDimensionMismatch = errcode.Register(errcode.New(errcode.ModuleBackend, 12, "backend", "error.backend.dimension_mismatch", "vector dimension mismatch", errcode.KindValidation))
	ErrVectorNotFound    = errcode.Register(errcode.New(errcode.ModuleBackend, 13, "backend", "error.backend.vector_not_found", "vector not found", errcode.KindNotFound))
)

// IndexNotFound builds ErrIndexNotFound for name
func IndexNotFound(name string) error {
	return ErrIndexNotFound.WithMsgf("index %q not found", name).WithData("index", name)
}

// DimensionMismatch builds ErrDimensionMismatch
func DimensionMismatch(id string, want, got int) error {
	return ErrDimensionMismatch.
		WithMsgf("vector %q has dimension %d, index expects %d", id, got, want).
		WithFields(map[string]interface{}{"id": id, "expected": want, "actual": got})
}
