package middleware

import (
	"context"
	"fmt"
	"reflect"
	"slices"
	"strings"

	"github.com/stokry/vectra/logger"
	"go.uber.org/zap"
)

// Plan describes what a write would have done
type Plan struct {
	Operation   Operation      `json:"operation"`
	Index       string         `json:"index"`
	Namespace   string         `json:"namespace,omitempty"`
	ParamKeys   []string       `json:"param_keys"`
	Counts      map[string]int `json:"counts,omitempty"`
	Description string         `json:"description"`
}

// BuildPlan derives a plan from the request alone, so equal requests give equal plans.
// Counts holds the length of every slice, array or map parameter.
func BuildPlan(req *Request) Plan {
	keys := make([]string, 0, len(req.Params))
	for k := range req.Params {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	counts := map[string]int{}
	for _, k := range keys {
		if v := reflect.ValueOf(req.Params[k]); v.IsValid() {
			switch v.Kind() {
			case reflect.Slice, reflect.Array, reflect.Map:
				counts[k] = v.Len()
			}
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s index=%q", req.Operation, req.Index)
	if req.Namespace != "" {
		fmt.Fprintf(&b, " namespace=%q", req.Namespace)
	}
	for _, k := range keys {
		if n, ok := counts[k]; ok {
			fmt.Fprintf(&b, " %s=%d", k, n)
		} else {
			fmt.Fprintf(&b, " %s", k)
		}
	}

	if len(counts) == 0 {
		counts = nil
	}
	return Plan{
		Operation:   req.Operation,
		Index:       req.Index,
		Namespace:   req.Namespace,
		ParamKeys:   keys,
		Counts:      counts,
		Description: b.String(),
	}
}

// PlanRecorder receives every plan produced by DryRun
type PlanRecorder func(ctx context.Context, plan Plan)

// DryRunOption configures DryRun
type DryRunOption func(*dryRunConfig)

type dryRunConfig struct {
	logger   *logger.CtxZapLogger
	recorder PlanRecorder
}

// WithDryRunLogger sets the logger
func WithDryRunLogger(l *logger.CtxZapLogger) DryRunOption {
	return func(c *dryRunConfig) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithPlanRecorder records plans in addition to logging them
func WithPlanRecorder(r PlanRecorder) DryRunOption {
	return func(c *dryRunConfig) {
		c.recorder = r
	}
}

// DryRun answers write operations with their plan instead of calling the
// backend. Reads pass through unchanged.
func DryRun(opts ...DryRunOption) Middleware {
	cfg := dryRunConfig{logger: logger.GetLogger("vectra")}
	for _, opt := range opts {
		opt(&cfg)
	}

	return Func(func(ctx context.Context, req *Request, next Handler) (*Response, error) {
		if !req.Operation.IsWrite() {
			return next(ctx, req)
		}

		plan := BuildPlan(req)
		cfg.logger.InfoCtx(ctx, "🧪 [DryRun] skipped write",
			zap.String("operation", req.Operation.String()),
			zap.String("index", req.Index),
			zap.String("plan", plan.Description))
		if cfg.recorder != nil {
			cfg.recorder(ctx, plan)
		}

		resp := NewResponse(plan)
		resp.SetMetadata(MetaDryRun, true)
		resp.SetMetadata(MetaPlan, plan)
		return resp, nil
	})
}
