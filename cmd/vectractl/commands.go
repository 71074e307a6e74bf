package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/samber/do/v2"
	"github.com/spf13/cobra"
	"github.com/stokry/vectra/backend"
	"github.com/stokry/vectra/batch"
	"github.com/stokry/vectra/breaker"
	"github.com/stokry/vectra/client"
	"github.com/stokry/vectra/di"
	"github.com/stokry/vectra/errcode"
	"github.com/stokry/vectra/flagx"
)

type createFlags struct {
	Dimension int    `flag:"dimension" usage:"vector dimension" required:"true"`
	Metric    string `flag:"metric" usage:"cosine, dotproduct or euclidean" default:"cosine"`
}

type namespaceFlags struct {
	Namespace string `flag:"namespace,n" usage:"namespace"`
}

type upsertFlags struct {
	File      string `flag:"file,f" usage:"JSON file of vectors, - for stdin" default:"-"`
	Namespace string `flag:"namespace,n" usage:"target namespace"`
	Quiet     bool   `flag:"quiet,q" usage:"suppress chunk progress"`
}

type queryFlags struct {
	Vector        []float32 `flag:"vector" usage:"query vector, comma separated"`
	Text          string    `flag:"text" usage:"query text"`
	Fields        []string  `flag:"fields" usage:"metadata fields searched by --text"`
	Alpha         float64   `flag:"alpha" usage:"hybrid weight of the vector score" default:"0.5"`
	TopK          int       `flag:"top-k,k" usage:"number of matches" default:"10"`
	Namespace     string    `flag:"namespace,n" usage:"namespace"`
	IncludeValues bool      `flag:"include-values" usage:"return vector values"`
}

type deleteFlags struct {
	Namespace string `flag:"namespace,n" usage:"namespace"`
	All       bool   `flag:"all" usage:"delete every vector of the namespace"`
}

func operations(app *di.DoApplication) (client.Operations, error) {
	return do.Invoke[client.Operations](app.Injector())
}

func newIndexesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "indexes",
		Short: "Manage indexes",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List index names",
		Args:  cobra.NoArgs,
		RunE: withApp(func(cmd *cobra.Command, _ []string, app *di.DoApplication) error {
			ops, err := operations(app)
			if err != nil {
				return err
			}
			names, err := ops.ListIndexes(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd, names)
		}),
	}

	create := &cobra.Command{
		Use:   "create NAME",
		Short: "Create an index",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(cmd *cobra.Command, args []string, app *di.DoApplication) error {
			ops, err := operations(app)
			if err != nil {
				return err
			}
			var req createFlags
			if err := flagx.Parse(cmd, &req); err != nil {
				return err
			}
			spec := backend.IndexSpec{Name: args[0], Dimension: req.Dimension, Metric: backend.Metric(req.Metric)}
			if err := ops.CreateIndex(cmd.Context(), spec); err != nil {
				return err
			}
			return printJSON(cmd, spec)
		}),
	}
	flagx.MustBind(create, &createFlags{})

	describe := &cobra.Command{
		Use:   "describe NAME",
		Short: "Describe an index",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(cmd *cobra.Command, args []string, app *di.DoApplication) error {
			ops, err := operations(app)
			if err != nil {
				return err
			}
			info, err := ops.DescribeIndex(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd, info)
		}),
	}

	remove := &cobra.Command{
		Use:   "delete NAME",
		Short: "Delete an index",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(cmd *cobra.Command, args []string, app *di.DoApplication) error {
			ops, err := operations(app)
			if err != nil {
				return err
			}
			if err := ops.DeleteIndex(cmd.Context(), args[0]); err != nil {
				return err
			}
			return printJSON(cmd, map[string]string{"deleted": args[0]})
		}),
	}

	namespaces := &cobra.Command{
		Use:   "namespaces NAME",
		Short: "List the namespaces of an index",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(cmd *cobra.Command, args []string, app *di.DoApplication) error {
			ops, err := operations(app)
			if err != nil {
				return err
			}
			names, err := ops.ListNamespaces(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd, names)
		}),
	}

	cmd.AddCommand(list, create, describe, remove, namespaces)
	return cmd
}

func newStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats INDEX",
		Short: "Show index statistics",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(cmd *cobra.Command, args []string, app *di.DoApplication) error {
			ops, err := operations(app)
			if err != nil {
				return err
			}
			stats, err := ops.Stats(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd, stats)
		}),
	}
}

// readVectors decodes a JSON array of vectors from path, "-" reads stdin
func readVectors(cmd *cobra.Command, path string) ([]backend.Vector, error) {
	var r io.Reader
	if path == "-" {
		r = cmd.InOrStdin()
	} else {
		f, err := os.Open(path)
		if err != nil {
			return nil, errcode.ErrValidation.Wrapf(err, "open vectors file %s", path)
		}
		defer f.Close()
		r = f
	}

	var vectors []backend.Vector
	if err := json.NewDecoder(r).Decode(&vectors); err != nil {
		return nil, errcode.ErrValidation.Wrapf(err, "decode vectors")
	}
	return vectors, nil
}

func newUpsertCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "upsert INDEX",
		Short: "Upsert vectors from a JSON array in batches",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(cmd *cobra.Command, args []string, app *di.DoApplication) error {
			c, err := do.Invoke[*client.Client](app.Injector())
			if err != nil {
				return err
			}
			var req upsertFlags
			if err := flagx.Parse(cmd, &req); err != nil {
				return err
			}

			vectors, err := readVectors(cmd, req.File)
			if err != nil {
				return err
			}

			var progress batch.ProgressFunc
			if !req.Quiet {
				progress = func(p batch.Progress) {
					fmt.Fprintf(cmd.ErrOrStderr(), "chunk %d/%d: %d/%d items (%.2f%%)\n",
						p.ChunkIndex+1, p.TotalChunks, p.Processed, p.Total, p.Percentage)
				}
			}

			res, err := c.UpsertBatch(cmd.Context(), args[0], req.Namespace, vectors, progress)
			if res != nil {
				if perr := printJSON(cmd, map[string]int{
					"upserted_count": res.UpsertedCount,
					"succeeded":      res.Result.Succeeded,
					"failed":         res.Result.Failed,
				}); perr != nil {
					return perr
				}
			}
			return err
		}),
	}
	flagx.MustBind(cmd, &upsertFlags{})
	return cmd
}

func newQueryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "query INDEX",
		Short: "Search an index by vector, text or both",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(cmd *cobra.Command, args []string, app *di.DoApplication) error {
			ops, err := operations(app)
			if err != nil {
				return err
			}
			var req queryFlags
			if err := flagx.Parse(cmd, &req); err != nil {
				return err
			}

			var res *backend.QueryResult
			switch {
			case len(req.Vector) > 0 && req.Text != "":
				res, err = ops.HybridSearch(cmd.Context(), args[0], req.Namespace, backend.HybridQuery{
					Vector: req.Vector, Text: req.Text, Alpha: req.Alpha, TopK: req.TopK,
				})
			case req.Text != "":
				res, err = ops.TextSearch(cmd.Context(), args[0], req.Namespace, backend.TextQuery{
					Text: req.Text, Fields: req.Fields, TopK: req.TopK,
				})
			case len(req.Vector) > 0:
				res, err = ops.Query(cmd.Context(), args[0], req.Namespace, backend.Query{
					Vector: req.Vector, TopK: req.TopK, IncludeValues: req.IncludeValues, IncludeMetadata: true,
				})
			default:
				return errcode.ErrValidation.WithMsg("one of --vector or --text is required")
			}
			if err != nil {
				return err
			}
			return printJSON(cmd, res)
		}),
	}
	flagx.MustBind(cmd, &queryFlags{})
	return cmd
}

func newFetchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fetch INDEX ID...",
		Short: "Fetch vectors by id",
		Args:  cobra.MinimumNArgs(2),
		RunE: withApp(func(cmd *cobra.Command, args []string, app *di.DoApplication) error {
			ops, err := operations(app)
			if err != nil {
				return err
			}
			var req namespaceFlags
			if err := flagx.Parse(cmd, &req); err != nil {
				return err
			}
			vectors, err := ops.Fetch(cmd.Context(), args[0], req.Namespace, args[1:])
			if err != nil {
				return err
			}
			return printJSON(cmd, vectors)
		}),
	}
	flagx.MustBind(cmd, &namespaceFlags{})
	return cmd
}

func newDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete INDEX [ID...]",
		Short: "Delete vectors by id, or a whole namespace with --all",
		Args:  cobra.MinimumNArgs(1),
		RunE: withApp(func(cmd *cobra.Command, args []string, app *di.DoApplication) error {
			ops, err := operations(app)
			if err != nil {
				return err
			}
			var req deleteFlags
			if err := flagx.Parse(cmd, &req); err != nil {
				return err
			}
			res, err := ops.Delete(cmd.Context(), args[0], req.Namespace, backend.DeleteRequest{IDs: args[1:], DeleteAll: req.All})
			if err != nil {
				return err
			}
			return printJSON(cmd, res)
		}),
	}
	flagx.MustBind(cmd, &deleteFlags{})
	return cmd
}

type breakerView struct {
	Name          string     `json:"name"`
	State         string     `json:"state"`
	FailureCount  int        `json:"failure_count"`
	SuccessCount  int        `json:"success_count"`
	LastFailureAt *time.Time `json:"last_failure_at,omitempty"`
	OpenedAt      *time.Time `json:"opened_at,omitempty"`
}

func viewOf(s breaker.Snapshot) breakerView {
	v := breakerView{Name: s.Name, State: s.State.String(), FailureCount: s.FailureCount, SuccessCount: s.SuccessCount}
	if !s.LastFailureAt.IsZero() {
		v.LastFailureAt = &s.LastFailureAt
	}
	if !s.OpenedAt.IsZero() {
		v.OpenedAt = &s.OpenedAt
	}
	return v
}

func newBreakersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "breakers",
		Short: "Show circuit breaker states",
		Args:  cobra.NoArgs,
		RunE: withApp(func(cmd *cobra.Command, _ []string, app *di.DoApplication) error {
			registry, err := do.Invoke[*breaker.Registry](app.Injector())
			if err != nil {
				return err
			}
			views := make([]breakerView, 0)
			for _, s := range registry.Snapshots() {
				views = append(views, viewOf(s))
			}
			return printJSON(cmd, views)
		}),
	}
}

func newHealthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Run the health checks; fails when unhealthy",
		Args:  cobra.NoArgs,
		RunE: withApp(func(cmd *cobra.Command, _ []string, app *di.DoApplication) error {
			c, err := do.Invoke[*client.Client](app.Injector())
			if err != nil {
				return err
			}
			report := c.Health(cmd.Context())
			if err := printJSON(cmd, report); err != nil {
				return err
			}
			if !report.IsHealthy() && !report.IsDegraded() {
				return errcode.ErrServer.WithMsgf("health status %s", report.Status)
			}
			return nil
		}),
	}
}
