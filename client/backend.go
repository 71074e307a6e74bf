package client

import (
	"context"

	"github.com/stokry/vectra/backend"
	"github.com/stokry/vectra/backend/httpvec"
	"github.com/stokry/vectra/backend/qdrantvec"
	"github.com/stokry/vectra/backend/sqlvec"
	"github.com/stokry/vectra/logger"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// OpenBackend builds the adapter selected by cfg. tp may be nil.
func OpenBackend(ctx context.Context, cfg BackendConfig, log *logger.CtxZapLogger, tp trace.TracerProvider) (backend.Adapter, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = logger.GetLogger("vectra")
	}

	var (
		adapter backend.Adapter
		err     error
	)
	switch cfg.Type {
	case BackendSQL:
		opts := []sqlvec.Option{sqlvec.WithName(cfg.Name), sqlvec.WithLogger(log)}
		if tp != nil {
			opts = append(opts, sqlvec.WithTracerProvider(tp))
		}
		adapter, err = sqlvec.Open(ctx, cfg.SQL, opts...)
	case BackendHTTP:
		adapter, err = httpvec.New(cfg.HTTP, httpvec.WithName(cfg.Name), httpvec.WithLogger(log))
	case BackendQdrant:
		adapter, err = qdrantvec.New(cfg.Qdrant, qdrantvec.WithName(cfg.Name), qdrantvec.WithLogger(log))
	default:
		adapter = backend.NewMemory(backend.WithMemoryName(cfg.Name), backend.WithMemoryLogger(log))
	}
	if err != nil {
		return nil, err
	}

	log.InfoCtx(ctx, "✅ [Client] backend opened",
		zap.String("type", cfg.Type),
		zap.String("name", adapter.Name()),
		zap.Strings("capabilities", backend.Capabilities(adapter)))
	return adapter, nil
}
