package sqlvec

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stokry/vectra/backend"
	"github.com/stokry/vectra/backend/backendtest"
	"github.com/stokry/vectra/errcode"
	"github.com/stokry/vectra/logger"
	"github.com/stokry/vectra/pool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"gorm.io/gorm"
)

func testConfig(t *testing.T) Config {
	t.Helper()
	cfg := DefaultConfig()
	cfg.DSN = filepath.Join(t.TempDir(), "vectors.db") + "?_busy_timeout=5000"
	cfg.Pool = pool.Config{Capacity: 2, Timeout: pool.DefaultConfig().Timeout}
	return cfg
}

func openTest(t *testing.T, opts ...Option) *Adapter {
	t.Helper()
	opts = append([]Option{WithLogger(logger.NewNop())}, opts...)
	a, err := Open(context.Background(), testConfig(t), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func TestAdapter_Contract(t *testing.T) {
	backendtest.Run(t, func(t *testing.T) backend.Adapter {
		return openTest(t)
	})
}

func TestAdapter_Capabilities(t *testing.T) {
	a := openTest(t)
	assert.Equal(t, []string{backend.CapTextSearch, backend.CapListNamespaces}, backend.Capabilities(a))
}

func TestAdapter_WarmupUsesPool(t *testing.T) {
	cfg := testConfig(t)
	cfg.Pool.Warmup = 2
	a, err := Open(context.Background(), cfg, WithLogger(logger.NewNop()), WithName("warm"))
	require.NoError(t, err)
	defer a.Close()

	stats := a.Pool().Stats()
	assert.Equal(t, "warm", stats.Name)
	assert.Equal(t, 2, stats.Available)
	assert.Equal(t, int64(2), stats.Created)

	_, err = a.ListIndexes(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), a.Pool().Stats().Created, "sessions are reused")
}

func TestAdapter_ConcurrentCallsBoundedByPool(t *testing.T) {
	a := openTest(t)
	ctx := context.Background()
	require.NoError(t, a.CreateIndex(ctx, backend.IndexSpec{Name: "docs", Dimension: 2}))

	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		go func(i int) {
			_, err := a.Upsert(ctx, "docs", "", []backend.Vector{{ID: fmt.Sprintf("v%d", i), Values: []float32{1, float32(i)}}})
			errs <- err
		}(i)
	}
	for i := 0; i < 8; i++ {
		assert.NoError(t, <-errs)
	}

	stats, err := a.Stats(ctx, "docs")
	require.NoError(t, err)
	assert.Equal(t, int64(8), stats.TotalVectorCount)
	assert.LessOrEqual(t, a.Pool().Stats().Created, int64(2))
}

func TestAdapter_CloseIsTerminal(t *testing.T) {
	cfg := testConfig(t)
	a, err := Open(context.Background(), cfg, WithLogger(logger.NewNop()))
	require.NoError(t, err)
	require.NoError(t, a.Close())

	_, err = a.ListIndexes(context.Background())
	assert.ErrorIs(t, err, errcode.ErrPoolExhausted)
}

func TestAdapter_Check(t *testing.T) {
	a := openTest(t)
	assert.NoError(t, a.Check(context.Background()))
	assert.Equal(t, "sqlvec", a.Name())
}

func TestAdapter_Tracing(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	a := openTest(t, WithTracerProvider(tp))

	require.NoError(t, a.CreateIndex(context.Background(), backend.IndexSpec{Name: "traced", Dimension: 2}))

	var names []string
	for _, span := range recorder.Ended() {
		names = append(names, span.Name())
	}
	assert.Contains(t, names, "sql.create vectra_indexes")
}

func TestAdapter_CreateIndexValidates(t *testing.T) {
	a := openTest(t)
	err := a.CreateIndex(context.Background(), backend.IndexSpec{Name: "bad", Dimension: 0})
	assert.ErrorIs(t, err, errcode.ErrValidation)
}

func TestConfig_Validate(t *testing.T) {
	cfg := DefaultConfig()
	assert.ErrorIs(t, cfg.Validate(), errcode.ErrValidation, "dsn required")

	cfg.DSN = "x"
	cfg.Driver = "oracle"
	assert.ErrorIs(t, cfg.Validate(), errcode.ErrValidation)

	cfg.Driver = DriverPostgres
	assert.NoError(t, cfg.Validate())
}

func TestDialector_Unsupported(t *testing.T) {
	_, err := dialector("oracle", "dsn", nil)
	assert.ErrorIs(t, err, ErrUnsupportedDriver)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		kind errcode.Kind
	}{
		{"deadline", context.DeadlineExceeded, errcode.KindTimeout},
		{"not found", gorm.ErrRecordNotFound, errcode.KindNotFound},
		{"duplicate", gorm.ErrDuplicatedKey, errcode.KindConflict},
		{"bad conn", driver.ErrBadConn, errcode.KindConnection},
		{"locked", errors.New("database is locked"), errcode.KindConflict},
		{"deadlock", errors.New("Error 1213: Deadlock found"), errcode.KindConflict},
		{"refused", errors.New("dial tcp: connection refused"), errcode.KindConnection},
		{"other", errors.New("syntax error"), errcode.KindServer},
		{"classified", backend.IndexNotFound("x"), errcode.KindNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.kind, errcode.KindOf(classify(tt.err)))
		})
	}
	assert.Nil(t, classify(nil))
	assert.ErrorIs(t, classify(context.Canceled), context.Canceled)
}
