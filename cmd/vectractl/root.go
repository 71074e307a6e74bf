package main

import (
	"context"
	"encoding/json"
	"time"

	"github.com/spf13/cobra"
	"github.com/stokry/vectra/di"
)

var version = "dev"

// flagMapping maps persistent flags to configuration keys
var flagMapping = map[string]string{
	"backend":   "backend.type",
	"name":      "backend.name",
	"driver":    "backend.sql.driver",
	"dsn":       "backend.sql.dsn",
	"base-url":  "backend.http.base_url",
	"api-key":   "backend.http.api_key",
	"qdrant":    "backend.qdrant.host",
	"dry-run":   "gates.dry_run",
	"cache":     "cache.enabled",
	"log-level": "logger.level",
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "vectractl",
		Short:         "Operate a vector store through the resilient vectra client",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := root.PersistentFlags()
	flags.StringP("config", "c", "", "configuration file (yaml)")
	flags.String("backend", "", "backend type: memory, sql, http or qdrant")
	flags.String("name", "", "upstream name keying the limiter and breaker")
	flags.String("driver", "", "sql driver: sqlite, postgres or mysql")
	flags.String("dsn", "", "sql data source name")
	flags.String("base-url", "", "base url of the http backend")
	flags.String("api-key", "", "api key of the http backend")
	flags.String("qdrant", "", "host of the qdrant backend (grpc port from config, default 6334)")
	flags.Bool("dry-run", false, "plan writes without executing them")
	flags.Bool("cache", false, "cache read results")
	flags.String("log-level", "", "log level: debug, info, warn or error")

	root.AddCommand(
		newIndexesCmd(),
		newStatsCmd(),
		newUpsertCmd(),
		newQueryCmd(),
		newFetchCmd(),
		newDeleteCmd(),
		newBreakersCmd(),
		newHealthCmd(),
		newServeCmd(),
	)
	return root
}

// newApp builds the application from the command flags
func newApp(cmd *cobra.Command, opts ...di.DoAppOption) *di.DoApplication {
	configFile, _ := cmd.Flags().GetString("config")
	return di.NewDoApplication(append([]di.DoAppOption{
		di.WithName("vectractl"),
		di.WithVersion(version),
		di.WithConfigOptions(di.ConfigOptions{
			ConfigFile:  configFile,
			Defaults:    map[string]interface{}{"logger": map[string]interface{}{"level": "warn"}},
			Flags:       cmd.Flags(),
			FlagMapping: flagMapping,
		}),
	}, opts...)...)
}

// openApp builds and starts the application
func openApp(cmd *cobra.Command, opts ...di.DoAppOption) (*di.DoApplication, error) {
	app := newApp(cmd, opts...)
	if err := app.Setup(); err != nil {
		return nil, err
	}
	if err := app.Start(); err != nil {
		_ = app.Shutdown(context.Background())
		return nil, err
	}
	return app, nil
}

// withApp runs fn with a started application and shuts it down afterwards
func withApp(fn func(cmd *cobra.Command, args []string, app *di.DoApplication) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		app, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = app.Shutdown(ctx)
		}()
		return fn(cmd, args, app)
	}
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
