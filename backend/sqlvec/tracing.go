package sqlvec

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"
)

const (
	tracerName = "github.com/stokry/vectra/backend/sqlvec"
	spanKey    = "vectra:span"
)

// tracingPlugin is a gorm plugin opening one client span per statement
type tracingPlugin struct {
	tracer    trace.Tracer
	system    string
	traceSQL  bool
	sqlMaxLen int
}

func newTracingPlugin(tp trace.TracerProvider, system string, traceSQL bool, sqlMaxLen int) *tracingPlugin {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	return &tracingPlugin{
		tracer:    tp.Tracer(tracerName),
		system:    system,
		traceSQL:  traceSQL,
		sqlMaxLen: sqlMaxLen,
	}
}

// Name implements gorm.Plugin
func (p *tracingPlugin) Name() string {
	return "vectra:tracing"
}

// Initialize implements gorm.Plugin
func (p *tracingPlugin) Initialize(db *gorm.DB) error {
	cb := db.Callback()
	steps := []func() error{
		func() error { return cb.Create().Before("gorm:create").Register("vectra:before_create", p.before("create")) },
		func() error { return cb.Create().After("gorm:create").Register("vectra:after_create", p.after) },
		func() error { return cb.Query().Before("gorm:query").Register("vectra:before_query", p.before("query")) },
		func() error { return cb.Query().After("gorm:query").Register("vectra:after_query", p.after) },
		func() error { return cb.Update().Before("gorm:update").Register("vectra:before_update", p.before("update")) },
		func() error { return cb.Update().After("gorm:update").Register("vectra:after_update", p.after) },
		func() error { return cb.Delete().Before("gorm:delete").Register("vectra:before_delete", p.before("delete")) },
		func() error { return cb.Delete().After("gorm:delete").Register("vectra:after_delete", p.after) },
		func() error { return cb.Row().Before("gorm:row").Register("vectra:before_row", p.before("row")) },
		func() error { return cb.Row().After("gorm:row").Register("vectra:after_row", p.after) },
		func() error { return cb.Raw().Before("gorm:raw").Register("vectra:before_raw", p.before("raw")) },
		func() error { return cb.Raw().After("gorm:raw").Register("vectra:after_raw", p.after) },
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return err
		}
	}
	return nil
}

func (p *tracingPlugin) before(op string) func(*gorm.DB) {
	return func(db *gorm.DB) {
		ctx := db.Statement.Context
		name := "sql." + op
		if db.Statement.Table != "" {
			name += " " + db.Statement.Table
		}
		ctx, span := p.tracer.Start(ctx, name, trace.WithSpanKind(trace.SpanKindClient))
		span.SetAttributes(
			attribute.String("db.system", p.system),
			attribute.String("db.operation", op),
		)
		if db.Statement.Table != "" {
			span.SetAttributes(attribute.String("db.table", db.Statement.Table))
		}
		db.Statement.Context = ctx
		db.InstanceSet(spanKey, span)
	}
}

func (p *tracingPlugin) after(db *gorm.DB) {
	v, ok := db.InstanceGet(spanKey)
	if !ok {
		return
	}
	span, ok := v.(trace.Span)
	if !ok {
		return
	}
	defer span.End()

	if p.traceSQL {
		if stmt := db.Statement.SQL.String(); stmt != "" {
			if len(stmt) > p.sqlMaxLen {
				stmt = stmt[:p.sqlMaxLen] + "..."
			}
			span.SetAttributes(attribute.String("db.statement", stmt))
		}
	}
	span.SetAttributes(attribute.Int64("db.rows_affected", db.Statement.RowsAffected))

	if db.Error != nil && db.Error != gorm.ErrRecordNotFound {
		span.RecordError(db.Error)
		span.SetStatus(codes.Error, db.Error.Error())
		return
	}
	span.SetStatus(codes.Ok, "")
}
