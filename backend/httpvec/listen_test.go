package httpvec

import (
	"context"
	"encoding/json"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stokry/vectra/backend"
	"github.com/stokry/vectra/health"
	"github.com/stokry/vectra/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServer_StartAndShutdown(t *testing.T) {
	handler := NewHandler(backend.NewMemory(), WithServerLogger(logger.NewNop()))
	srv := NewServer("127.0.0.1:0", handler, logger.NewNop())
	require.NoError(t, srv.Start())

	a := newAdapter(t, "http://"+srv.Addr(), "")
	require.NoError(t, a.CreateIndex(context.Background(), backend.IndexSpec{Name: "docs", Dimension: 2, Metric: backend.MetricCosine}))
	names, err := a.ListIndexes(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"docs"}, names)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, srv.Shutdown(ctx))

	_, err = a.ListIndexes(context.Background())
	assert.Error(t, err)
}

func TestServer_BindError(t *testing.T) {
	first := NewServer("127.0.0.1:0", http.NotFoundHandler(), logger.NewNop())
	require.NoError(t, first.Start())
	t.Cleanup(func() { _ = first.Shutdown(context.Background()) })

	second := NewServer(first.Addr(), http.NotFoundHandler(), logger.NewNop())
	assert.Error(t, second.Start())
	assert.NoError(t, second.Shutdown(context.Background()))
}

func TestNewHandler_HealthEndpoint(t *testing.T) {
	var status atomic.Value
	status.Store(health.StatusHealthy)
	report := func(context.Context) *health.Response {
		return &health.Response{Status: status.Load().(health.Status), Timestamp: time.Now()}
	}
	srv := newServer(t, backend.NewMemory(), WithAPIKey("", "secret"), WithHealthEndpoint(report))

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	var body health.Response
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, health.StatusHealthy, body.Status)

	status.Store(health.StatusUnhealthy)
	resp, err = http.Get(srv.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/indexes")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}
