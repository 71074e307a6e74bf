package client

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stokry/vectra/backend"
	"github.com/stokry/vectra/cache"
	"github.com/stokry/vectra/errcode"
	"github.com/stokry/vectra/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingAdapter counts the reads reaching the backend
type countingAdapter struct {
	*backend.Memory
	queries atomic.Int32
	stats   atomic.Int32
	lists   atomic.Int32
}

func (a *countingAdapter) Query(ctx context.Context, index, namespace string, q backend.Query) (*backend.QueryResult, error) {
	a.queries.Add(1)
	return a.Memory.Query(ctx, index, namespace, q)
}

func (a *countingAdapter) Stats(ctx context.Context, index string) (*backend.IndexStats, error) {
	a.stats.Add(1)
	return a.Memory.Stats(ctx, index)
}

func (a *countingAdapter) ListIndexes(ctx context.Context) ([]string, error) {
	a.lists.Add(1)
	return a.Memory.ListIndexes(ctx)
}

func newCached(t *testing.T, store cache.Store) (*CachedClient, *countingAdapter) {
	t.Helper()
	adapter := &countingAdapter{Memory: newMemory(t)}
	c, err := New(adapter, WithLogger(logger.NewNop()))
	require.NoError(t, err)
	return NewCachedClient(c, store, time.Minute, logger.NewNop()), adapter
}

func exerciseCache(t *testing.T, cc *CachedClient, adapter *countingAdapter) {
	ctx := context.Background()
	_, err := cc.Upsert(ctx, "docs", "", []backend.Vector{{ID: "a", Values: []float32{1, 0}}})
	require.NoError(t, err)

	q := backend.Query{Vector: []float32{1, 0}, TopK: 3}
	first, err := cc.Query(ctx, "docs", "", q)
	require.NoError(t, err)
	second, err := cc.Query(ctx, "docs", "", q)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), adapter.queries.Load())

	// other arguments, other key
	_, err = cc.Query(ctx, "docs", "other", q)
	require.NoError(t, err)
	assert.Equal(t, int32(2), adapter.queries.Load())

	stats, err := cc.Stats(ctx, "docs")
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.TotalVectorCount)

	// a write drops every cached read of the index
	_, err = cc.Upsert(ctx, "docs", "", []backend.Vector{{ID: "b", Values: []float32{0, 1}}})
	require.NoError(t, err)

	after, err := cc.Query(ctx, "docs", "", q)
	require.NoError(t, err)
	assert.Len(t, after.Matches, 2)
	assert.Equal(t, int32(3), adapter.queries.Load())

	stats, err = cc.Stats(ctx, "docs")
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.TotalVectorCount)
	assert.Equal(t, int32(2), adapter.stats.Load())
}

func TestCachedClient_MemoryStore(t *testing.T) {
	store := cache.NewMemoryStore("memory", 100, cache.WithLogger(logger.NewNop()))
	defer store.Close()

	cc, adapter := newCached(t, store)
	exerciseCache(t, cc, adapter)
}

func TestCachedClient_RedisStore(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := cache.NewRedisStore("redis", rdb, "vectra-test:", cache.WithOwnedClient())
	defer store.Close()

	cc, adapter := newCached(t, store)
	exerciseCache(t, cc, adapter)
	assert.NotEmpty(t, mr.Keys())
}

func TestCachedClient_IndexListInvalidation(t *testing.T) {
	ctx := context.Background()
	store := cache.NewMemoryStore("memory", 100, cache.WithLogger(logger.NewNop()))
	defer store.Close()
	cc, adapter := newCached(t, store)

	names, err := cc.ListIndexes(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"docs"}, names)
	_, err = cc.ListIndexes(ctx)
	require.NoError(t, err)
	assert.Equal(t, int32(1), adapter.lists.Load())

	require.NoError(t, cc.CreateIndex(ctx, backend.IndexSpec{Name: "notes", Dimension: 3}))
	names, err = cc.ListIndexes(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"docs", "notes"}, names)
	assert.Equal(t, int32(2), adapter.lists.Load())

	info, err := cc.DescribeIndex(ctx, "notes")
	require.NoError(t, err)
	assert.Equal(t, 3, info.Dimension)

	require.NoError(t, cc.DeleteIndex(ctx, "notes"))
	_, err = cc.DescribeIndex(ctx, "notes")
	assert.ErrorIs(t, err, backend.ErrIndexNotFound)
	names, err = cc.ListIndexes(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"docs"}, names)
}

func TestCachedClient_ErrorsNotCached(t *testing.T) {
	ctx := context.Background()
	store := cache.NewMemoryStore("memory", 100, cache.WithLogger(logger.NewNop()))
	defer store.Close()
	cc, adapter := newCached(t, store)

	_, err := cc.Stats(ctx, "missing")
	require.ErrorIs(t, err, backend.ErrIndexNotFound)
	_, err = cc.Stats(ctx, "missing")
	require.ErrorIs(t, err, backend.ErrIndexNotFound)
	assert.Equal(t, int32(2), adapter.stats.Load())

	_, err = cc.Query(ctx, "docs", "", backend.Query{TopK: 1})
	assert.ErrorIs(t, err, errcode.ErrValidation)
}

func TestCacheKey(t *testing.T) {
	a := cacheKey("docs", "query", "", backend.Query{Vector: []float32{1}, TopK: 1})
	b := cacheKey("docs", "query", "", backend.Query{Vector: []float32{1}, TopK: 2})
	assert.NotEqual(t, a, b)
	assert.Equal(t, a, cacheKey("docs", "query", "", backend.Query{Vector: []float32{1}, TopK: 1}))
	assert.Regexp(t, `^docs/query/[0-9a-f]{64}$`, a)
}
