package backend_test

import (
	"context"
	"testing"

	"github.com/stokry/vectra/backend"
	"github.com/stokry/vectra/backend/backendtest"
	"github.com/stokry/vectra/errcode"
	"github.com/stokry/vectra/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory_Contract(t *testing.T) {
	backendtest.Run(t, func(t *testing.T) backend.Adapter {
		return backend.NewMemory(backend.WithMemoryLogger(logger.NewNop()))
	})
}

func TestMemory_StoresCopies(t *testing.T) {
	ctx := context.Background()
	m := backend.NewMemory(backend.WithMemoryLogger(logger.NewNop()))
	require.NoError(t, m.CreateIndex(ctx, backend.IndexSpec{Name: "i", Dimension: 2}))

	values := []float32{1, 2}
	_, err := m.Upsert(ctx, "i", "", []backend.Vector{{ID: "x", Values: values}})
	require.NoError(t, err)
	values[0] = 99

	got, err := m.Fetch(ctx, "i", "", []string{"x"})
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 2}, got["x"].Values)
}

func TestCapabilities(t *testing.T) {
	assert.Equal(t,
		[]string{backend.CapHybridSearch, backend.CapTextSearch, backend.CapListNamespaces},
		backend.Capabilities(backend.NewMemory()))

	err := backend.Unsupported(backend.NewMemory(), "hybrid_search")
	assert.ErrorIs(t, err, errcode.ErrUnsupported)
	assert.Equal(t, "memory", errcode.DataOf(err)["backend"])
}

func TestValidateVectors(t *testing.T) {
	tests := []struct {
		name    string
		vectors []backend.Vector
		dim     int
		kind    errcode.Kind
	}{
		{"empty", nil, 0, errcode.KindValidation},
		{"missing id", []backend.Vector{{Values: []float32{1}}}, 0, errcode.KindValidation},
		{"missing values", []backend.Vector{{ID: "a"}}, 0, errcode.KindValidation},
		{"mixed dimensions", []backend.Vector{{ID: "a", Values: []float32{1}}, {ID: "b", Values: []float32{1, 2}}}, 0, errcode.KindValidation},
		{"index dimension", []backend.Vector{{ID: "a", Values: []float32{1}}}, 2, errcode.KindValidation},
		{"ok", []backend.Vector{{ID: "a", Values: []float32{1, 2}}}, 2, errcode.KindUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := backend.ValidateVectors(tt.vectors, tt.dim)
			if tt.kind == errcode.KindUnknown {
				assert.NoError(t, err)
				return
			}
			assert.Equal(t, tt.kind, errcode.KindOf(err), "err: %v", err)
		})
	}

	err := backend.ValidateVectors([]backend.Vector{{ID: "a", Values: []float32{1}}}, 3)
	assert.Equal(t, 3, errcode.DataOf(err)["expected"])
}

func TestDeleteRequest_Validate(t *testing.T) {
	assert.Error(t, backend.DeleteRequest{}.Validate())
	assert.Error(t, backend.DeleteRequest{IDs: []string{"a"}, DeleteAll: true}.Validate())
	assert.NoError(t, backend.DeleteRequest{Filter: map[string]any{"k": "v"}}.Validate())
}

func TestScore(t *testing.T) {
	assert.InDelta(t, 1.0, backend.Score(backend.MetricCosine, []float32{1, 1}, []float32{2, 2}), 1e-6)
	assert.InDelta(t, 4.0, backend.Score(backend.MetricDotProduct, []float32{1, 1}, []float32{2, 2}), 1e-6)
	assert.InDelta(t, -5.0, backend.Score(backend.MetricEuclidean, []float32{0, 0}, []float32{3, 4}), 1e-6)
	assert.Less(t, backend.Score(backend.MetricCosine, []float32{1}, []float32{1, 2}), float32(-1e30))
}

func TestTopK_TieBreakByID(t *testing.T) {
	got := backend.TopK([]backend.Match{{ID: "b", Score: 1}, {ID: "a", Score: 1}, {ID: "c", Score: 2}}, 2)
	require.Len(t, got, 2)
	assert.Equal(t, "c", got[0].ID)
	assert.Equal(t, "a", got[1].ID)
}

func TestMatchesFilter(t *testing.T) {
	meta := map[string]any{"year": float64(2024), "lang": "en"}
	assert.True(t, backend.MatchesFilter(meta, map[string]any{"year": 2024}))
	assert.False(t, backend.MatchesFilter(meta, map[string]any{"lang": "de"}))
	assert.False(t, backend.MatchesFilter(meta, map[string]any{"missing": "x"}))
	assert.True(t, backend.MatchesFilter(meta, nil))
}
