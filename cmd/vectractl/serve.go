package main

import (
	"context"
	"time"

	"github.com/samber/do/v2"
	"github.com/spf13/cobra"
	"github.com/stokry/vectra/backend/httpvec"
	"github.com/stokry/vectra/client"
	"github.com/stokry/vectra/di"
	"github.com/stokry/vectra/flagx"
	"github.com/stokry/vectra/telemetry"
)

type serveFlags struct {
	Addr   string `flag:"addr" usage:"listen address" default:":8080"`
	APIKey string `flag:"server-api-key" usage:"require this key in the Api-Key header"`
}

// newServeCmd exposes the client over the httpvec REST API, so remote
// httpvec adapters share this process's limiter and breaker.
func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the REST API through the resilient client",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var req serveFlags
			if err := flagx.Parse(cmd, &req); err != nil {
				return err
			}

			var srv *httpvec.Server
			app := newApp(cmd,
				di.WithOnReady(func(app *di.DoApplication) error {
					c, err := do.Invoke[*client.Client](app.Injector())
					if err != nil {
						return err
					}
					opts := []httpvec.ServerOption{
						httpvec.WithServerLogger(app.Logger()),
						httpvec.WithHealthEndpoint(c.Health),
						httpvec.WithAPIKey("", req.APIKey),
					}
					if tm, err := do.Invoke[*telemetry.Manager](app.Injector()); err == nil && tm.IsEnabled() {
						opts = append(opts, httpvec.WithServerTracing("vectractl", tm.TracerProvider()))
					}
					srv = httpvec.NewServer(req.Addr, httpvec.NewHandler(c, opts...), app.Logger())
					return srv.Start()
				}),
				di.WithOnShutdown(func(ctx context.Context) error {
					if srv == nil {
						return nil
					}
					return srv.Shutdown(ctx)
				}),
			)

			if err := app.Run(); err != nil {
				ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				_ = app.Shutdown(ctx)
				return err
			}
			return nil
		},
	}
	flagx.MustBind(cmd, &serveFlags{})
	return cmd
}
