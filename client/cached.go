package client

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/stokry/vectra/backend"
	"github.com/stokry/vectra/cache"
	"github.com/stokry/vectra/logger"
	"go.uber.org/zap"
)

// indexesKey caches ListIndexes
const indexesKey = "_indexes"

// CachedClient caches read results in a cache.Store. Every write to an index
// drops the cached reads of that index; index creation and deletion also
// drop the index list. Failed reads are never cached.
type CachedClient struct {
	Operations

	store  cache.Store
	query  *cache.Typed[*backend.QueryResult]
	fetch  *cache.Typed[map[string]backend.Vector]
	info   *cache.Typed[*backend.IndexInfo]
	stats  *cache.Typed[*backend.IndexStats]
	names  *cache.Typed[[]string]
	logger *logger.CtxZapLogger
}

// NewCachedClient wraps next; entries live for ttl
func NewCachedClient(next Operations, store cache.Store, ttl time.Duration, l *logger.CtxZapLogger) *CachedClient {
	if l == nil {
		l = logger.GetLogger("vectra")
	}
	serializer := cache.NewJSONSerializer()
	return &CachedClient{
		Operations: next,
		store:      store,
		query:      cache.NewTyped[*backend.QueryResult](store, serializer, ttl),
		fetch:      cache.NewTyped[map[string]backend.Vector](store, serializer, ttl),
		info:       cache.NewTyped[*backend.IndexInfo](store, serializer, ttl),
		stats:      cache.NewTyped[*backend.IndexStats](store, serializer, ttl),
		names:      cache.NewTyped[[]string](store, serializer, ttl),
		logger:     l,
	}
}

// cacheKey <index>/<op>/<sha256 of the JSON encoded arguments>
func cacheKey(index, op string, args ...any) string {
	data, _ := json.Marshal(args)
	sum := sha256.Sum256(data)
	return index + "/" + op + "/" + hex.EncodeToString(sum[:])
}

func (c *CachedClient) invalidate(ctx context.Context, index string, indexList bool) {
	if err := c.store.DeleteByPrefix(ctx, index+"/"); err != nil {
		c.logger.WarnCtx(ctx, "⚠️ [CachedClient] invalidation failed", zap.String("index", index), zap.Error(err))
	}
	if indexList {
		if err := c.store.Delete(ctx, indexesKey); err != nil {
			c.logger.WarnCtx(ctx, "⚠️ [CachedClient] invalidation failed", zap.String("key", indexesKey), zap.Error(err))
		}
	}
}

func (c *CachedClient) Query(ctx context.Context, index, namespace string, q backend.Query) (*backend.QueryResult, error) {
	return c.query.Fetch(ctx, cacheKey(index, "query", namespace, q), func(ctx context.Context) (*backend.QueryResult, error) {
		return c.Operations.Query(ctx, index, namespace, q)
	})
}

func (c *CachedClient) HybridSearch(ctx context.Context, index, namespace string, q backend.HybridQuery) (*backend.QueryResult, error) {
	return c.query.Fetch(ctx, cacheKey(index, "hybrid_search", namespace, q), func(ctx context.Context) (*backend.QueryResult, error) {
		return c.Operations.HybridSearch(ctx, index, namespace, q)
	})
}

func (c *CachedClient) TextSearch(ctx context.Context, index, namespace string, q backend.TextQuery) (*backend.QueryResult, error) {
	return c.query.Fetch(ctx, cacheKey(index, "text_search", namespace, q), func(ctx context.Context) (*backend.QueryResult, error) {
		return c.Operations.TextSearch(ctx, index, namespace, q)
	})
}

func (c *CachedClient) Fetch(ctx context.Context, index, namespace string, ids []string) (map[string]backend.Vector, error) {
	return c.fetch.Fetch(ctx, cacheKey(index, "fetch", namespace, ids), func(ctx context.Context) (map[string]backend.Vector, error) {
		return c.Operations.Fetch(ctx, index, namespace, ids)
	})
}

func (c *CachedClient) DescribeIndex(ctx context.Context, name string) (*backend.IndexInfo, error) {
	return c.info.Fetch(ctx, cacheKey(name, "describe_index"), func(ctx context.Context) (*backend.IndexInfo, error) {
		return c.Operations.DescribeIndex(ctx, name)
	})
}

func (c *CachedClient) Stats(ctx context.Context, index string) (*backend.IndexStats, error) {
	return c.stats.Fetch(ctx, cacheKey(index, "stats"), func(ctx context.Context) (*backend.IndexStats, error) {
		return c.Operations.Stats(ctx, index)
	})
}

func (c *CachedClient) ListIndexes(ctx context.Context) ([]string, error) {
	return c.names.Fetch(ctx, indexesKey, c.Operations.ListIndexes)
}

func (c *CachedClient) Upsert(ctx context.Context, index, namespace string, vectors []backend.Vector) (*backend.UpsertResult, error) {
	defer c.invalidate(ctx, index, false)
	return c.Operations.Upsert(ctx, index, namespace, vectors)
}

func (c *CachedClient) Update(ctx context.Context, index, namespace string, u backend.Update) error {
	defer c.invalidate(ctx, index, false)
	return c.Operations.Update(ctx, index, namespace, u)
}

func (c *CachedClient) Delete(ctx context.Context, index, namespace string, d backend.DeleteRequest) (*backend.DeleteResult, error) {
	defer c.invalidate(ctx, index, false)
	return c.Operations.Delete(ctx, index, namespace, d)
}

func (c *CachedClient) CreateIndex(ctx context.Context, spec backend.IndexSpec) error {
	defer c.invalidate(ctx, spec.Name, true)
	return c.Operations.CreateIndex(ctx, spec)
}

func (c *CachedClient) DeleteIndex(ctx context.Context, name string) error {
	defer c.invalidate(ctx, name, true)
	return c.Operations.DeleteIndex(ctx, name)
}
