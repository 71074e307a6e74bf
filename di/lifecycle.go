package di

import (
	"context"

	"github.com/samber/do/v2"
	"github.com/stokry/vectra/client"
	"github.com/stokry/vectra/logger"
	"go.uber.org/zap"
)

// StartCoreComponents resolves the lazy providers up to the decorated client
// so that configuration and connection errors surface at startup
func StartCoreComponents(ctx context.Context, injector do.Injector, log *logger.CtxZapLogger) error {
	c, err := do.Invoke[*client.Client](injector)
	if err != nil {
		return err
	}
	if _, err := do.Invoke[client.Operations](injector); err != nil {
		return err
	}

	log.InfoCtx(ctx, "✅ Core components ready",
		zap.String("upstream", c.Name()),
		zap.String("backend", c.Adapter().Name()),
		zap.Strings("capabilities", c.Capabilities()))
	return nil
}
