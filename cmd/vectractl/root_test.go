package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stokry/vectra/backend"
	"github.com/stokry/vectra/errcode"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type cli struct {
	t    *testing.T
	base []string
}

func newCLI(t *testing.T) *cli {
	dsn := filepath.Join(t.TempDir(), "vectors.db") + "?_busy_timeout=5000"
	return &cli{t: t, base: []string{"--backend", "sql", "--dsn", dsn, "--log-level", "error"}}
}

func (c *cli) run(stdin string, args ...string) (string, error) {
	c.t.Helper()
	cmd := newRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(append(append([]string{}, c.base...), args...))
	err := cmd.Execute()
	return out.String(), err
}

func (c *cli) mustRun(v any, args ...string) {
	c.t.Helper()
	out, err := c.run("", args...)
	require.NoError(c.t, err, out)
	if v != nil {
		require.NoError(c.t, json.Unmarshal([]byte(out), v), out)
	}
}

func writeVectors(t *testing.T, vectors []backend.Vector) string {
	t.Helper()
	data, err := json.Marshal(vectors)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "vectors.json")
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func TestCLI_IndexLifecycle(t *testing.T) {
	c := newCLI(t)

	var spec backend.IndexSpec
	c.mustRun(&spec, "indexes", "create", "docs", "--dimension", "2")
	assert.Equal(t, backend.MetricCosine, spec.Metric)

	var names []string
	c.mustRun(&names, "indexes", "list")
	assert.Equal(t, []string{"docs"}, names)

	var info backend.IndexInfo
	c.mustRun(&info, "indexes", "describe", "docs")
	assert.Equal(t, 2, info.Dimension)

	c.mustRun(nil, "indexes", "delete", "docs")
	c.mustRun(&names, "indexes", "list")
	assert.Empty(t, names)

	_, err := c.run("", "indexes", "describe", "docs")
	assert.Error(t, err)
}

func TestCLI_UpsertQueryDelete(t *testing.T) {
	c := newCLI(t)
	c.mustRun(nil, "indexes", "create", "docs", "--dimension", "2")

	path := writeVectors(t, []backend.Vector{
		{ID: "a", Values: []float32{1, 0}, Metadata: map[string]any{"text": "red apple"}},
		{ID: "b", Values: []float32{0, 1}, Metadata: map[string]any{"text": "green pear"}},
		{ID: "c", Values: []float32{0.7, 0.7}, Metadata: map[string]any{"text": "red pear"}},
	})

	var upserted map[string]int
	c.mustRun(&upserted, "upsert", "docs", "-f", path, "-q")
	assert.Equal(t, 3, upserted["upserted_count"])
	assert.Equal(t, 0, upserted["failed"])

	var res backend.QueryResult
	c.mustRun(&res, "query", "docs", "--vector", "1,0", "-k", "2")
	require.Len(t, res.Matches, 2)
	assert.Equal(t, "a", res.Matches[0].ID)
	assert.Equal(t, "c", res.Matches[1].ID)

	var stats backend.IndexStats
	c.mustRun(&stats, "stats", "docs")
	assert.Equal(t, int64(3), stats.TotalVectorCount)

	var fetched map[string]backend.Vector
	c.mustRun(&fetched, "fetch", "docs", "b", "missing")
	assert.Len(t, fetched, 1)
	assert.Contains(t, fetched, "b")

	var deleted backend.DeleteResult
	c.mustRun(&deleted, "delete", "docs", "a")
	assert.Equal(t, 1, deleted.DeletedCount)

	c.mustRun(&stats, "stats", "docs")
	assert.Equal(t, int64(2), stats.TotalVectorCount)
}

func TestCLI_UpsertFromStdinAndDryRun(t *testing.T) {
	c := newCLI(t)
	c.mustRun(nil, "indexes", "create", "docs", "--dimension", "2")

	out, err := c.run(`[{"id":"a","values":[1,0]}]`, "upsert", "docs", "--dry-run")
	require.NoError(t, err)
	var upserted map[string]int
	require.NoError(t, json.Unmarshal([]byte(out), &upserted))
	assert.Equal(t, 0, upserted["upserted_count"])

	var stats backend.IndexStats
	c.mustRun(&stats, "stats", "docs")
	assert.Equal(t, int64(0), stats.TotalVectorCount)

	_, err = c.run(`[{"id":"a","values":[1,0]}]`, "upsert", "docs", "-q")
	require.NoError(t, err)
	c.mustRun(&stats, "stats", "docs")
	assert.Equal(t, int64(1), stats.TotalVectorCount)
}

func TestCLI_InvalidInput(t *testing.T) {
	c := newCLI(t)
	c.mustRun(nil, "indexes", "create", "docs", "--dimension", "2")

	_, err := c.run("not json", "upsert", "docs")
	assert.True(t, errcode.IsKind(err, errcode.KindValidation), "got %v", err)

	_, err = c.run("", "query", "docs")
	assert.True(t, errcode.IsKind(err, errcode.KindValidation), "got %v", err)

	_, err = c.run("", "indexes", "create", "other")
	assert.Error(t, err, "dimension is required")
}

func TestCLI_BreakersAndHealth(t *testing.T) {
	c := newCLI(t)

	var views []breakerView
	c.mustRun(&views, "breakers")
	require.Len(t, views, 1)
	assert.Equal(t, "sql", views[0].Name)
	assert.Equal(t, "closed", views[0].State)
	assert.Nil(t, views[0].OpenedAt)

	var report map[string]any
	c.mustRun(&report, "health")
	assert.Equal(t, "healthy", report["status"])
}

func TestCLI_MemoryBackend(t *testing.T) {
	c := &cli{t: t, base: []string{"--backend", "memory", "--log-level", "error"}}
	var names []string
	c.mustRun(&names, "indexes", "list")
	assert.Empty(t, names)
}
