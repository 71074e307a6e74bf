// Package backendtest provides a behavioural contract shared by adapter tests.
package backendtest

import (
	"context"
	"testing"

	"github.com/stokry/vectra/backend"
	"github.com/stokry/vectra/errcode"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Factory returns a fresh, empty adapter for one subtest
type Factory func(t *testing.T) backend.Adapter

// Sample vectors used by the contract (dimension 3)
var Sample = []backend.Vector{
	{ID: "a", Values: []float32{1, 0, 0}, Metadata: map[string]any{"genre": "news", "title": "vector databases explained"}},
	{ID: "b", Values: []float32{0, 1, 0}, Metadata: map[string]any{"genre": "sport", "title": "football results"}},
	{ID: "c", Values: []float32{0.9, 0.1, 0}, Metadata: map[string]any{"genre": "news", "title": "database outage report"}},
}

func seed(t *testing.T, a backend.Adapter) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, a.CreateIndex(ctx, backend.IndexSpec{Name: "docs", Dimension: 3, Metric: backend.MetricCosine}))
	res, err := a.Upsert(ctx, "docs", "ns1", Sample)
	require.NoError(t, err)
	assert.Equal(t, len(Sample), res.UpsertedCount)
}

// Run executes the adapter contract
func Run(t *testing.T, factory Factory) {
	ctx := context.Background()

	t.Run("IndexLifecycle", func(t *testing.T) {
		a := factory(t)
		require.NoError(t, a.CreateIndex(ctx, backend.IndexSpec{Name: "b-index", Dimension: 4}))
		require.NoError(t, a.CreateIndex(ctx, backend.IndexSpec{Name: "a-index", Dimension: 2, Metric: backend.MetricDotProduct}))

		err := a.CreateIndex(ctx, backend.IndexSpec{Name: "a-index", Dimension: 2})
		assert.True(t, errcode.IsKind(err, errcode.KindValidation), "duplicate index: %v", err)

		names, err := a.ListIndexes(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"a-index", "b-index"}, names)

		info, err := a.DescribeIndex(ctx, "a-index")
		require.NoError(t, err)
		assert.Equal(t, 2, info.Dimension)
		assert.Equal(t, backend.MetricDotProduct, info.Metric)

		require.NoError(t, a.DeleteIndex(ctx, "a-index"))
		_, err = a.DescribeIndex(ctx, "a-index")
		assert.True(t, errcode.IsKind(err, errcode.KindNotFound), "deleted index: %v", err)
	})

	t.Run("UnknownIndex", func(t *testing.T) {
		a := factory(t)
		_, err := a.Upsert(ctx, "missing", "", Sample)
		assert.True(t, errcode.IsKind(err, errcode.KindNotFound))
		_, err = a.Stats(ctx, "missing")
		assert.True(t, errcode.IsKind(err, errcode.KindNotFound))
		assert.True(t, errcode.IsKind(a.DeleteIndex(ctx, "missing"), errcode.KindNotFound))
	})

	t.Run("UpsertAndFetch", func(t *testing.T) {
		a := factory(t)
		seed(t, a)

		got, err := a.Fetch(ctx, "docs", "ns1", []string{"a", "c", "zz"})
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, []float32{1, 0, 0}, got["a"].Values)
		assert.Equal(t, "news", got["c"].Metadata["genre"])

		// other namespaces are isolated
		got, err = a.Fetch(ctx, "docs", "ns2", []string{"a"})
		require.NoError(t, err)
		assert.Empty(t, got)

		// upsert overwrites
		_, err = a.Upsert(ctx, "docs", "ns1", []backend.Vector{{ID: "a", Values: []float32{0, 0, 1}}})
		require.NoError(t, err)
		got, err = a.Fetch(ctx, "docs", "ns1", []string{"a"})
		require.NoError(t, err)
		assert.Equal(t, []float32{0, 0, 1}, got["a"].Values)
	})

	t.Run("DimensionMismatch", func(t *testing.T) {
		a := factory(t)
		seed(t, a)
		_, err := a.Upsert(ctx, "docs", "ns1", []backend.Vector{{ID: "x", Values: []float32{1, 2}}})
		assert.True(t, errcode.IsKind(err, errcode.KindValidation), "got %v", err)
		_, err = a.Query(ctx, "docs", "ns1", backend.Query{Vector: []float32{1}, TopK: 1})
		assert.True(t, errcode.IsKind(err, errcode.KindValidation), "got %v", err)
	})

	t.Run("QueryRanking", func(t *testing.T) {
		a := factory(t)
		seed(t, a)

		res, err := a.Query(ctx, "docs", "ns1", backend.Query{Vector: []float32{1, 0, 0}, TopK: 2, IncludeMetadata: true})
		require.NoError(t, err)
		require.Len(t, res.Matches, 2)
		assert.Equal(t, "a", res.Matches[0].ID)
		assert.Equal(t, "c", res.Matches[1].ID)
		assert.InDelta(t, 1.0, res.Matches[0].Score, 1e-5)
		assert.Equal(t, "news", res.Matches[0].Metadata["genre"])
		assert.Nil(t, res.Matches[0].Values)

		res, err = a.Query(ctx, "docs", "ns1", backend.Query{Vector: []float32{1, 0, 0}, TopK: 5, Filter: map[string]any{"genre": "sport"}})
		require.NoError(t, err)
		require.Len(t, res.Matches, 1)
		assert.Equal(t, "b", res.Matches[0].ID)
	})

	t.Run("Update", func(t *testing.T) {
		a := factory(t)
		seed(t, a)

		require.NoError(t, a.Update(ctx, "docs", "ns1", backend.Update{ID: "b", Metadata: map[string]any{"rank": "1"}}))
		got, err := a.Fetch(ctx, "docs", "ns1", []string{"b"})
		require.NoError(t, err)
		assert.Equal(t, "sport", got["b"].Metadata["genre"])
		assert.Equal(t, "1", got["b"].Metadata["rank"])
		assert.Equal(t, []float32{0, 1, 0}, got["b"].Values)

		err = a.Update(ctx, "docs", "ns1", backend.Update{ID: "nope", Metadata: map[string]any{"x": "y"}})
		assert.True(t, errcode.IsKind(err, errcode.KindNotFound))
	})

	t.Run("Delete", func(t *testing.T) {
		a := factory(t)
		seed(t, a)

		res, err := a.Delete(ctx, "docs", "ns1", backend.DeleteRequest{IDs: []string{"a", "missing"}})
		require.NoError(t, err)
		assert.Equal(t, 1, res.DeletedCount)

		res, err = a.Delete(ctx, "docs", "ns1", backend.DeleteRequest{Filter: map[string]any{"genre": "news"}})
		require.NoError(t, err)
		assert.Equal(t, 1, res.DeletedCount)

		res, err = a.Delete(ctx, "docs", "ns1", backend.DeleteRequest{DeleteAll: true})
		require.NoError(t, err)
		assert.Equal(t, 1, res.DeletedCount)

		stats, err := a.Stats(ctx, "docs")
		require.NoError(t, err)
		assert.Equal(t, int64(0), stats.TotalVectorCount)
	})

	t.Run("Stats", func(t *testing.T) {
		a := factory(t)
		seed(t, a)
		_, err := a.Upsert(ctx, "docs", "ns2", Sample[:1])
		require.NoError(t, err)

		stats, err := a.Stats(ctx, "docs")
		require.NoError(t, err)
		assert.Equal(t, 3, stats.Dimension)
		assert.Equal(t, int64(4), stats.TotalVectorCount)
		assert.Equal(t, int64(3), stats.Namespaces["ns1"])
		assert.Equal(t, int64(1), stats.Namespaces["ns2"])
	})

	t.Run("Capabilities", func(t *testing.T) {
		a := factory(t)
		seed(t, a)

		if lister, ok := a.(backend.NamespaceLister); ok {
			_, err := a.Upsert(ctx, "docs", "ns0", Sample[:1])
			require.NoError(t, err)
			names, err := lister.ListNamespaces(ctx, "docs")
			require.NoError(t, err)
			assert.Equal(t, []string{"ns0", "ns1"}, names)
		}

		if searcher, ok := a.(backend.TextSearcher); ok {
			res, err := searcher.TextSearch(ctx, "docs", "ns1", backend.TextQuery{Text: "database", TopK: 10})
			require.NoError(t, err)
			ids := make([]string, 0, len(res.Matches))
			for _, m := range res.Matches {
				ids = append(ids, m.ID)
			}
			assert.ElementsMatch(t, []string{"a", "c"}, ids)
		}

		if searcher, ok := a.(backend.HybridSearcher); ok {
			res, err := searcher.HybridSearch(ctx, "docs", "ns1", backend.HybridQuery{
				Vector: []float32{0, 1, 0}, Text: "football", Alpha: 0.5, TopK: 3,
			})
			require.NoError(t, err)
			require.Len(t, res.Matches, 3)
			assert.Equal(t, "b", res.Matches[0].ID)
		}
	})
}
