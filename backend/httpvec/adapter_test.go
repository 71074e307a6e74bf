package httpvec

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stokry/vectra/backend"
	"github.com/stokry/vectra/backend/backendtest"
	"github.com/stokry/vectra/errcode"
	"github.com/stokry/vectra/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// plainAdapter hides every optional capability of the wrapped adapter
type plainAdapter struct {
	backend.Adapter
}

func newServer(t *testing.T, adapter backend.Adapter, opts ...ServerOption) *httptest.Server {
	t.Helper()
	opts = append([]ServerOption{WithServerLogger(logger.NewNop())}, opts...)
	srv := httptest.NewServer(NewHandler(adapter, opts...))
	t.Cleanup(srv.Close)
	return srv
}

func newAdapter(t *testing.T, baseURL, apiKey string) *Adapter {
	t.Helper()
	a, err := New(Config{BaseURL: baseURL, APIKey: apiKey}, WithLogger(logger.NewNop()))
	require.NoError(t, err)
	return a
}

func TestAdapter_Contract(t *testing.T) {
	backendtest.Run(t, func(t *testing.T) backend.Adapter {
		srv := newServer(t, backend.NewMemory())
		return newAdapter(t, srv.URL, "")
	})
}

func TestAdapter_RemoteErrorsKeepCode(t *testing.T) {
	srv := newServer(t, backend.NewMemory())
	a := newAdapter(t, srv.URL, "")
	ctx := context.Background()

	_, err := a.Stats(ctx, "missing")
	require.Error(t, err)
	assert.True(t, errors.Is(err, backend.ErrIndexNotFound), "got %v", err)
	assert.Equal(t, http.StatusNotFound, errcode.DataOf(err)["status"])

	require.NoError(t, a.CreateIndex(ctx, backend.IndexSpec{Name: "docs", Dimension: 2}))
	err = a.CreateIndex(ctx, backend.IndexSpec{Name: "docs", Dimension: 2})
	assert.True(t, errors.Is(err, backend.ErrIndexExists), "got %v", err)

	_, err = a.Upsert(ctx, "docs", "", []backend.Vector{{ID: "x", Values: []float32{1, 2, 3}}})
	assert.True(t, errors.Is(err, backend.ErrDimensionMismatch), "got %v", err)
	assert.False(t, errcode.IsTransient(err))
}

func TestAdapter_ValidationRejectedByServer(t *testing.T) {
	srv := newServer(t, backend.NewMemory())
	a := newAdapter(t, srv.URL, "")

	err := a.CreateIndex(context.Background(), backend.IndexSpec{Name: "", Dimension: 0})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errcode.ErrValidation), "got %v", err)
	assert.NotEmpty(t, errcode.DataOf(err)["fields"])
}

func TestAdapter_UnsupportedCapability(t *testing.T) {
	srv := newServer(t, plainAdapter{backend.NewMemory()})
	a := newAdapter(t, srv.URL, "")
	ctx := context.Background()

	_, err := a.HybridSearch(ctx, "docs", "", backend.HybridQuery{Vector: []float32{1}, Text: "x", Alpha: 0.5, TopK: 1})
	assert.True(t, errors.Is(err, errcode.ErrUnsupported), "got %v", err)

	_, err = a.ListNamespaces(ctx, "docs")
	assert.True(t, errors.Is(err, errcode.ErrUnsupported), "got %v", err)
}

func TestAdapter_APIKey(t *testing.T) {
	srv := newServer(t, backend.NewMemory(), WithAPIKey("", "secret"))
	ctx := context.Background()

	_, err := newAdapter(t, srv.URL, "wrong").ListIndexes(ctx)
	require.Error(t, err)
	assert.True(t, errcode.IsKind(err, errcode.KindAuthentication), "got %v", err)

	names, err := newAdapter(t, srv.URL, "secret").ListIndexes(ctx)
	require.NoError(t, err)
	assert.Empty(t, names)
	require.NoError(t, newAdapter(t, srv.URL, "secret").Check(ctx))
}

func TestAdapter_ConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := newAdapter(t, url, "").ListIndexes(context.Background())
	require.Error(t, err)
	assert.True(t, errcode.IsKind(err, errcode.KindConnection), "got %v", err)
	assert.True(t, errcode.IsTransient(err))
}

func TestNewHandler_Tracing(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))

	srv := newServer(t, backend.NewMemory(), WithServerTracing("vectra-test", tp))
	_, err := newAdapter(t, srv.URL, "").ListIndexes(context.Background())
	require.NoError(t, err)

	spans := recorder.Ended()
	require.NotEmpty(t, spans)
	assert.Contains(t, spans[0].Name(), "/indexes")
}

func TestStatusOf(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{errcode.ErrValidation, http.StatusBadRequest},
		{backend.ErrIndexExists, http.StatusConflict},
		{errcode.ErrUnsupported, http.StatusNotImplemented},
		{errcode.ErrAuthentication, http.StatusUnauthorized},
		{backend.ErrIndexNotFound, http.StatusNotFound},
		{errcode.ErrConflict, http.StatusConflict},
		{errcode.ErrTimeout, http.StatusGatewayTimeout},
		{errcode.ErrRateLimitExceeded, http.StatusTooManyRequests},
		{errcode.ErrOpenCircuit, http.StatusServiceUnavailable},
		{errcode.ErrPoolTimeout, http.StatusServiceUnavailable},
		{errcode.ErrConnection, http.StatusBadGateway},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusOf(tt.err), "%v", tt.err)
	}
}
