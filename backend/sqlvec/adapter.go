package sqlvec

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"maps"
	"time"

	"github.com/stokry/vectra/backend"
	"github.com/stokry/vectra/logger"
	"github.com/stokry/vectra/pool"
	"github.com/stokry/vectra/validator"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
)

const upsertBatchSize = 500

// Option configures the adapter
type Option func(*options)

type options struct {
	name           string
	logger         *logger.CtxZapLogger
	tracerProvider trace.TracerProvider
}

// WithName names the adapter, its pool and its health check ("sqlvec")
func WithName(name string) Option {
	return func(o *options) {
		if name != "" {
			o.name = name
		}
	}
}

// WithLogger sets the logger; gorm statements are logged through it too
func WithLogger(l *logger.CtxZapLogger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithTracerProvider enables one span per SQL statement
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *options) {
		o.tracerProvider = tp
	}
}

// Adapter implements backend.Adapter, backend.TextSearcher and
// backend.NamespaceLister on a SQL database
type Adapter struct {
	name       string
	config     Config
	base       *gorm.DB
	sqlDB      *sql.DB
	pool       *pool.Pool[*Conn]
	gormLogger gormlogger.Interface
	tracing    *tracingPlugin
	logger     *logger.CtxZapLogger
}

var (
	_ backend.Adapter         = (*Adapter)(nil)
	_ backend.TextSearcher    = (*Adapter)(nil)
	_ backend.NamespaceLister = (*Adapter)(nil)
)

// Open connects, migrates the schema when configured and warms the pool
func Open(ctx context.Context, cfg Config, opts ...Option) (*Adapter, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := options{name: "sqlvec", logger: logger.GetLogger("vectra")}
	for _, opt := range opts {
		opt(&o)
	}

	a := &Adapter{
		name:   o.name,
		config: cfg,
		gormLogger: logger.NewGormLogger(o.logger, logger.GormLoggerConfig{
			SlowThreshold: cfg.SlowThreshold,
			LogLevel:      gormlogger.Warn,
			EnableAudit:   cfg.EnableAudit,
		}),
		logger: o.logger,
	}
	if o.tracerProvider != nil {
		a.tracing = newTracingPlugin(o.tracerProvider, cfg.Driver, cfg.TraceSQL, cfg.TraceSQLMaxLen)
	}

	base, err := a.openDB(cfg.DSN, nil)
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", cfg.Driver, classify(err))
	}
	sqlDB, err := base.DB()
	if err != nil {
		return nil, fmt.Errorf("get sql.DB: %w", err)
	}
	// pooled sessions plus one for schema work and health pings
	sqlDB.SetMaxOpenConns(cfg.Pool.Capacity + 1)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	a.base = base
	a.sqlDB = sqlDB

	if cfg.AutoMigrate {
		if err := base.WithContext(ctx).AutoMigrate(&indexRecord{}, &vectorRecord{}); err != nil {
			_ = sqlDB.Close()
			return nil, fmt.Errorf("migrate schema: %w", classify(err))
		}
	}

	p, err := pool.New(a.newConn, cfg.Pool, pool.WithName(a.name), pool.WithLogger(o.logger))
	if err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	a.pool = p

	if cfg.Pool.Warmup > 0 {
		if _, err := p.Warmup(ctx, cfg.Pool.Warmup); err != nil {
			_ = a.Close()
			return nil, err
		}
	}
	if err := p.StartReaper(); err != nil {
		_ = a.Close()
		return nil, err
	}

	a.logger.DebugCtx(ctx, "SQL backend connected",
		zap.String("name", a.name),
		zap.String("driver", cfg.Driver),
		zap.Int("pool_capacity", cfg.Pool.Capacity))
	return a, nil
}

func (a *Adapter) openDB(dsn string, conn gorm.ConnPool) (*gorm.DB, error) {
	d, err := dialector(a.config.Driver, dsn, conn)
	if err != nil {
		return nil, err
	}
	db, err := gorm.Open(d, &gorm.Config{
		Logger:         a.gormLogger,
		TranslateError: true,
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return nil, err
	}
	if a.tracing != nil {
		if err := db.Use(a.tracing); err != nil {
			return nil, fmt.Errorf("use tracing plugin: %w", err)
		}
	}
	return db, nil
}

// newConn is the pool factory
func (a *Adapter) newConn(ctx context.Context) (*Conn, error) {
	raw, err := a.sqlDB.Conn(ctx)
	if err != nil {
		return nil, classify(err)
	}
	db, err := a.openDB("", raw)
	if err != nil {
		_ = raw.Close()
		return nil, classify(err)
	}
	return &Conn{raw: raw, db: db}, nil
}

// run executes fn on a pooled session and classifies its error
func run[R any](ctx context.Context, a *Adapter, fn func(db *gorm.DB) (R, error)) (R, error) {
	return pool.WithConnectionResult(ctx, a.pool, func(c *Conn) (R, error) {
		r, err := fn(c.DB(ctx))
		if err != nil {
			c.observe(err)
			var zero R
			return zero, classify(err)
		}
		return r, nil
	})
}

func lookupIndex(db *gorm.DB, name string) (indexRecord, error) {
	var rec indexRecord
	err := db.Where("name = ?", name).Take(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return rec, backend.IndexNotFound(name)
	}
	return rec, err
}

func loadVectors(db *gorm.DB, index, namespace string) ([]backend.Vector, error) {
	var recs []vectorRecord
	if err := db.Where("index_name = ? AND namespace = ?", index, namespace).Order("id").Find(&recs).Error; err != nil {
		return nil, err
	}
	out := make([]backend.Vector, 0, len(recs))
	for _, rec := range recs {
		v, err := rec.vector()
		if err != nil {
			return nil, fmt.Errorf("decode vector %q: %w", rec.ID, err)
		}
		out = append(out, v)
	}
	return out, nil
}

// Name implements backend.Adapter
func (a *Adapter) Name() string {
	return a.name
}

// Pool exposes the session pool for metrics and health registration
func (a *Adapter) Pool() *pool.Pool[*Conn] {
	return a.pool
}

// Upsert implements backend.Adapter
func (a *Adapter) Upsert(ctx context.Context, index, namespace string, vectors []backend.Vector) (*backend.UpsertResult, error) {
	return run(ctx, a, func(db *gorm.DB) (*backend.UpsertResult, error) {
		idx, err := lookupIndex(db, index)
		if err != nil {
			return nil, err
		}
		if err := backend.ValidateVectors(vectors, idx.Dimension); err != nil {
			return nil, err
		}

		records := make([]vectorRecord, 0, len(vectors))
		for _, v := range vectors {
			rec, err := newVectorRecord(index, namespace, v)
			if err != nil {
				return nil, fmt.Errorf("encode vector %q: %w", v.ID, err)
			}
			records = append(records, rec)
		}

		err = db.Transaction(func(tx *gorm.DB) error {
			return tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "index_name"}, {Name: "namespace"}, {Name: "id"}},
				DoUpdates: clause.AssignmentColumns([]string{"embedding", "metadata", "updated_at"}),
			}).CreateInBatches(&records, upsertBatchSize).Error
		})
		if err != nil {
			return nil, err
		}
		return &backend.UpsertResult{UpsertedCount: len(records)}, nil
	})
}

// Query implements backend.Adapter; ranking happens in process
func (a *Adapter) Query(ctx context.Context, index, namespace string, q backend.Query) (*backend.QueryResult, error) {
	return run(ctx, a, func(db *gorm.DB) (*backend.QueryResult, error) {
		idx, err := lookupIndex(db, index)
		if err != nil {
			return nil, err
		}
		if len(q.Vector) != idx.Dimension {
			return nil, backend.DimensionMismatch("query", idx.Dimension, len(q.Vector))
		}
		vectors, err := loadVectors(db, index, namespace)
		if err != nil {
			return nil, err
		}

		matches := make([]backend.Match, 0, len(vectors))
		for _, v := range vectors {
			if !backend.MatchesFilter(v.Metadata, q.Filter) {
				continue
			}
			m := backend.Match{ID: v.ID, Score: backend.Score(backend.Metric(idx.Metric), q.Vector, v.Values)}
			if q.IncludeValues {
				m.Values = v.Values
			}
			if q.IncludeMetadata {
				m.Metadata = v.Metadata
			}
			matches = append(matches, m)
		}
		return &backend.QueryResult{Matches: backend.TopK(matches, q.TopK), Namespace: namespace}, nil
	})
}

// TextSearch implements backend.TextSearcher
func (a *Adapter) TextSearch(ctx context.Context, index, namespace string, q backend.TextQuery) (*backend.QueryResult, error) {
	return run(ctx, a, func(db *gorm.DB) (*backend.QueryResult, error) {
		if _, err := lookupIndex(db, index); err != nil {
			return nil, err
		}
		vectors, err := loadVectors(db, index, namespace)
		if err != nil {
			return nil, err
		}

		matches := make([]backend.Match, 0)
		for _, v := range vectors {
			if !backend.MatchesFilter(v.Metadata, q.Filter) {
				continue
			}
			if score := backend.TextScore(q.Text, v.Metadata, q.Fields); score > 0 {
				matches = append(matches, backend.Match{ID: v.ID, Score: score, Metadata: v.Metadata})
			}
		}
		return &backend.QueryResult{Matches: backend.TopK(matches, q.TopK), Namespace: namespace}, nil
	})
}

// Fetch implements backend.Adapter
func (a *Adapter) Fetch(ctx context.Context, index, namespace string, ids []string) (map[string]backend.Vector, error) {
	return run(ctx, a, func(db *gorm.DB) (map[string]backend.Vector, error) {
		if _, err := lookupIndex(db, index); err != nil {
			return nil, err
		}
		out := make(map[string]backend.Vector, len(ids))
		if len(ids) == 0 {
			return out, nil
		}

		var recs []vectorRecord
		err := db.Where("index_name = ? AND namespace = ? AND id IN ?", index, namespace, ids).Find(&recs).Error
		if err != nil {
			return nil, err
		}
		for _, rec := range recs {
			v, err := rec.vector()
			if err != nil {
				return nil, fmt.Errorf("decode vector %q: %w", rec.ID, err)
			}
			out[v.ID] = v
		}
		return out, nil
	})
}

// Update implements backend.Adapter
func (a *Adapter) Update(ctx context.Context, index, namespace string, u backend.Update) error {
	_, err := run(ctx, a, func(db *gorm.DB) (struct{}, error) {
		return struct{}{}, db.Transaction(func(tx *gorm.DB) error {
			idx, err := lookupIndex(tx, index)
			if err != nil {
				return err
			}

			var rec vectorRecord
			err = tx.Where("index_name = ? AND namespace = ? AND id = ?", index, namespace, u.ID).Take(&rec).Error
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return backend.ErrVectorNotFound.WithMsgf("vector %q not found", u.ID).WithData("id", u.ID)
			}
			if err != nil {
				return err
			}

			v, err := rec.vector()
			if err != nil {
				return fmt.Errorf("decode vector %q: %w", rec.ID, err)
			}
			if u.Values != nil {
				if len(u.Values) != idx.Dimension {
					return backend.DimensionMismatch(u.ID, idx.Dimension, len(u.Values))
				}
				v.Values = u.Values
			}
			if len(u.Metadata) > 0 {
				if v.Metadata == nil {
					v.Metadata = make(map[string]any, len(u.Metadata))
				}
				maps.Copy(v.Metadata, u.Metadata)
			}

			updated, err := newVectorRecord(index, namespace, v)
			if err != nil {
				return fmt.Errorf("encode vector %q: %w", v.ID, err)
			}
			return tx.Model(&vectorRecord{}).
				Where("index_name = ? AND namespace = ? AND id = ?", index, namespace, u.ID).
				Updates(map[string]any{
					"embedding":  updated.Embedding,
					"metadata":   updated.Metadata,
					"updated_at": time.Now().UTC(),
				}).Error
		})
	})
	return err
}

// Delete implements backend.Adapter
func (a *Adapter) Delete(ctx context.Context, index, namespace string, req backend.DeleteRequest) (*backend.DeleteResult, error) {
	return run(ctx, a, func(db *gorm.DB) (*backend.DeleteResult, error) {
		if _, err := lookupIndex(db, index); err != nil {
			return nil, err
		}
		var ids []string
		switch {
		case req.DeleteAll:
			res := db.Where("index_name = ? AND namespace = ?", index, namespace).Delete(&vectorRecord{})
			if res.Error != nil {
				return nil, res.Error
			}
			return &backend.DeleteResult{DeletedCount: int(res.RowsAffected)}, nil
		case len(req.IDs) > 0:
			ids = req.IDs
		default:
			vectors, err := loadVectors(db, index, namespace)
			if err != nil {
				return nil, err
			}
			for _, v := range vectors {
				if backend.MatchesFilter(v.Metadata, req.Filter) {
					ids = append(ids, v.ID)
				}
			}
			if len(ids) == 0 {
				return &backend.DeleteResult{}, nil
			}
		}

		res := db.Where("index_name = ? AND namespace = ? AND id IN ?", index, namespace, ids).Delete(&vectorRecord{})
		if res.Error != nil {
			return nil, res.Error
		}
		return &backend.DeleteResult{DeletedCount: int(res.RowsAffected)}, nil
	})
}

// CreateIndex implements backend.Adapter
func (a *Adapter) CreateIndex(ctx context.Context, spec backend.IndexSpec) error {
	if spec.Metric == "" {
		spec.Metric = backend.MetricCosine
	}
	if err := validator.ValidateRequest(spec); err != nil {
		return err
	}
	_, err := run(ctx, a, func(db *gorm.DB) (struct{}, error) {
		return struct{}{}, db.Transaction(func(tx *gorm.DB) error {
			var count int64
			if err := tx.Model(&indexRecord{}).Where("name = ?", spec.Name).Count(&count).Error; err != nil {
				return err
			}
			if count > 0 {
				return backend.ErrIndexExists.WithMsgf("index %q already exists", spec.Name).WithData("index", spec.Name)
			}
			return tx.Create(&indexRecord{Name: spec.Name, Dimension: spec.Dimension, Metric: string(spec.Metric)}).Error
		})
	})
	if err == nil {
		a.logger.InfoCtx(ctx, "SQL index created", zap.String("index", spec.Name), zap.Int("dimension", spec.Dimension))
	}
	return err
}

// DeleteIndex implements backend.Adapter; vectors of the index are removed with it
func (a *Adapter) DeleteIndex(ctx context.Context, name string) error {
	_, err := run(ctx, a, func(db *gorm.DB) (struct{}, error) {
		return struct{}{}, db.Transaction(func(tx *gorm.DB) error {
			res := tx.Where("name = ?", name).Delete(&indexRecord{})
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return backend.IndexNotFound(name)
			}
			return tx.Where("index_name = ?", name).Delete(&vectorRecord{}).Error
		})
	})
	return err
}

// ListIndexes implements backend.Adapter
func (a *Adapter) ListIndexes(ctx context.Context) ([]string, error) {
	return run(ctx, a, func(db *gorm.DB) ([]string, error) {
		names := make([]string, 0)
		err := db.Model(&indexRecord{}).Order("name").Pluck("name", &names).Error
		return names, err
	})
}

// DescribeIndex implements backend.Adapter
func (a *Adapter) DescribeIndex(ctx context.Context, name string) (*backend.IndexInfo, error) {
	return run(ctx, a, func(db *gorm.DB) (*backend.IndexInfo, error) {
		idx, err := lookupIndex(db, name)
		if err != nil {
			return nil, err
		}
		return idx.info(), nil
	})
}

// Stats implements backend.Adapter
func (a *Adapter) Stats(ctx context.Context, index string) (*backend.IndexStats, error) {
	return run(ctx, a, func(db *gorm.DB) (*backend.IndexStats, error) {
		idx, err := lookupIndex(db, index)
		if err != nil {
			return nil, err
		}

		var rows []namespaceCount
		err = db.Model(&vectorRecord{}).
			Select("namespace, count(*) AS count").
			Where("index_name = ?", index).
			Group("namespace").
			Scan(&rows).Error
		if err != nil {
			return nil, err
		}

		stats := &backend.IndexStats{Dimension: idx.Dimension, Namespaces: make(map[string]int64, len(rows))}
		for _, row := range rows {
			stats.Namespaces[row.Namespace] = row.Count
			stats.TotalVectorCount += row.Count
		}
		return stats, nil
	})
}

// ListNamespaces implements backend.NamespaceLister
func (a *Adapter) ListNamespaces(ctx context.Context, index string) ([]string, error) {
	return run(ctx, a, func(db *gorm.DB) ([]string, error) {
		if _, err := lookupIndex(db, index); err != nil {
			return nil, err
		}
		names := make([]string, 0)
		err := db.Model(&vectorRecord{}).
			Where("index_name = ?", index).
			Distinct().
			Order("namespace").
			Pluck("namespace", &names).Error
		return names, err
	})
}

// Check implements component.HealthChecker; it pings the database and reports pool saturation
func (a *Adapter) Check(ctx context.Context) error {
	if err := a.sqlDB.PingContext(ctx); err != nil {
		return classify(err)
	}
	return a.pool.Check(ctx)
}

// Close shuts the pool down and closes the database
func (a *Adapter) Close() error {
	return a.Shutdown(context.Background())
}

// Shutdown is Close bounded by ctx
func (a *Adapter) Shutdown(ctx context.Context) error {
	var errs []error
	if a.pool != nil {
		errs = append(errs, a.pool.Shutdown(ctx))
	}
	errs = append(errs, a.sqlDB.Close())
	return errors.Join(errs...)
}
