// Package qdrantvec is the Qdrant backend: an adapter speaking the Qdrant
// gRPC API through the official go-client. Indexes are collections with a
// single unnamed dense vector; namespaces are a payload field every request
// filters on.
package qdrantvec

import (
	"context"
	"maps"

	"github.com/qdrant/go-client/qdrant"
	"github.com/stokry/vectra/backend"
	"github.com/stokry/vectra/logger"
	"github.com/stokry/vectra/validator"
	"go.uber.org/zap"
)

// Option configures the adapter
type Option func(*options)

type options struct {
	name   string
	logger *logger.CtxZapLogger
}

// WithName names the adapter ("qdrant")
func WithName(name string) Option {
	return func(o *options) {
		if name != "" {
			o.name = name
		}
	}
}

// WithLogger sets the logger
func WithLogger(l *logger.CtxZapLogger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// Adapter implements backend.Adapter over a Qdrant server
type Adapter struct {
	name    string
	config  Config
	client  *qdrant.Client
	logger  *logger.CtxZapLogger
	waitFor bool
}

var _ backend.Adapter = (*Adapter)(nil)

// New dials the server. The gRPC connection is lazy, so an unreachable
// server surfaces on the first call.
func New(cfg Config, opts ...Option) (*Adapter, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := options{name: "qdrant", logger: logger.GetLogger("vectra")}
	for _, opt := range opts {
		opt(&o)
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:                   cfg.Host,
		Port:                   cfg.Port,
		APIKey:                 cfg.APIKey,
		UseTLS:                 cfg.UseTLS,
		SkipCompatibilityCheck: !cfg.CheckCompatibility,
	})
	if err != nil {
		return nil, classify(err)
	}

	o.logger.Debug("qdrant client created", zap.String("host", cfg.Host), zap.Int("port", cfg.Port))
	return &Adapter{name: o.name, config: cfg, client: client, logger: o.logger, waitFor: true}, nil
}

// Name implements backend.Adapter
func (a *Adapter) Name() string {
	return a.name
}

func (a *Adapter) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, a.config.Timeout)
}

type collection struct {
	dimension int
	metric    backend.Metric
	status    string
	points    int64
}

func (a *Adapter) collection(ctx context.Context, name string) (*collection, error) {
	exists, err := a.client.CollectionExists(ctx, name)
	if err != nil {
		return nil, classify(err)
	}
	if !exists {
		return nil, backend.IndexNotFound(name)
	}
	info, err := a.client.GetCollectionInfo(ctx, name)
	if err != nil {
		return nil, classify(err)
	}
	params := info.GetConfig().GetParams().GetVectorsConfig().GetParams()
	return &collection{
		dimension: int(params.GetSize()),
		metric:    fromDistance(params.GetDistance()),
		status:    info.GetStatus().String(),
		points:    int64(info.GetPointsCount()),
	}, nil
}

// Upsert implements backend.Adapter
func (a *Adapter) Upsert(ctx context.Context, index, namespace string, vectors []backend.Vector) (*backend.UpsertResult, error) {
	ctx, cancel := a.bound(ctx)
	defer cancel()

	c, err := a.collection(ctx, index)
	if err != nil {
		return nil, err
	}
	if err := backend.ValidateVectors(vectors, c.dimension); err != nil {
		return nil, err
	}

	points := make([]*qdrant.PointStruct, 0, len(vectors))
	for _, v := range vectors {
		p, err := toPoint(namespace, v)
		if err != nil {
			return nil, err
		}
		points = append(points, p)
	}

	if _, err := a.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: index,
		Points:         points,
		Wait:           &a.waitFor,
	}); err != nil {
		return nil, classify(err)
	}
	return &backend.UpsertResult{UpsertedCount: len(points)}, nil
}

// Query implements backend.Adapter
func (a *Adapter) Query(ctx context.Context, index, namespace string, q backend.Query) (*backend.QueryResult, error) {
	ctx, cancel := a.bound(ctx)
	defer cancel()

	c, err := a.collection(ctx, index)
	if err != nil {
		return nil, err
	}
	if len(q.Vector) != c.dimension {
		return nil, backend.DimensionMismatch("query", c.dimension, len(q.Vector))
	}
	filter, err := namespaceFilter(namespace, q.Filter)
	if err != nil {
		return nil, err
	}

	limit := uint64(q.TopK)
	points, err := a.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: index,
		Query:          qdrant.NewQuery(q.Vector...),
		Filter:         filter,
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(true),
		WithVectors:    qdrant.NewWithVectors(q.IncludeValues),
	})
	if err != nil {
		return nil, classify(err)
	}

	matches := make([]backend.Match, 0, len(points))
	for _, p := range points {
		id, metadata := fromPayload(p.GetPayload())
		m := backend.Match{ID: id, Score: score(c.metric, p.GetScore())}
		if q.IncludeValues {
			m.Values = vectorValues(p.GetVectors())
		}
		if q.IncludeMetadata {
			m.Metadata = metadata
		}
		matches = append(matches, m)
	}
	return &backend.QueryResult{Matches: matches, Namespace: namespace}, nil
}

func (a *Adapter) get(ctx context.Context, index, namespace string, ids []string) (map[string]backend.Vector, error) {
	points, err := a.client.Get(ctx, &qdrant.GetPoints{
		CollectionName: index,
		Ids:            pointIDs(namespace, ids),
		WithPayload:    qdrant.NewWithPayload(true),
		WithVectors:    qdrant.NewWithVectors(true),
	})
	if err != nil {
		return nil, classify(err)
	}
	out := make(map[string]backend.Vector, len(points))
	for _, p := range points {
		id, metadata := fromPayload(p.GetPayload())
		out[id] = backend.Vector{ID: id, Values: vectorValues(p.GetVectors()), Metadata: metadata}
	}
	return out, nil
}

// Fetch implements backend.Adapter; missing ids are absent from the result
func (a *Adapter) Fetch(ctx context.Context, index, namespace string, ids []string) (map[string]backend.Vector, error) {
	ctx, cancel := a.bound(ctx)
	defer cancel()

	if _, err := a.collection(ctx, index); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return map[string]backend.Vector{}, nil
	}
	return a.get(ctx, index, namespace, ids)
}

// Update implements backend.Adapter. Values are replaced and metadata is
// merged into the stored map.
func (a *Adapter) Update(ctx context.Context, index, namespace string, u backend.Update) error {
	ctx, cancel := a.bound(ctx)
	defer cancel()

	c, err := a.collection(ctx, index)
	if err != nil {
		return err
	}
	found, err := a.get(ctx, index, namespace, []string{u.ID})
	if err != nil {
		return err
	}
	current, ok := found[u.ID]
	if !ok {
		return backend.ErrVectorNotFound.WithMsgf("vector %q not found", u.ID).WithData("id", u.ID)
	}

	if u.Values != nil {
		if len(u.Values) != c.dimension {
			return backend.DimensionMismatch(u.ID, c.dimension, len(u.Values))
		}
		current.Values = u.Values
	}
	if len(u.Metadata) > 0 {
		if current.Metadata == nil {
			current.Metadata = make(map[string]any, len(u.Metadata))
		}
		maps.Copy(current.Metadata, u.Metadata)
	}

	p, err := toPoint(namespace, current)
	if err != nil {
		return err
	}
	_, err = a.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: index,
		Points:         []*qdrant.PointStruct{p},
		Wait:           &a.waitFor,
	})
	return classify(err)
}

// Delete implements backend.Adapter. Qdrant does not report how many points
// a delete removed, so matching points are counted first.
func (a *Adapter) Delete(ctx context.Context, index, namespace string, req backend.DeleteRequest) (*backend.DeleteResult, error) {
	ctx, cancel := a.bound(ctx)
	defer cancel()

	if _, err := a.collection(ctx, index); err != nil {
		return nil, err
	}

	var (
		selector *qdrant.PointsSelector
		count    int
	)
	if len(req.IDs) > 0 && !req.DeleteAll {
		found, err := a.get(ctx, index, namespace, req.IDs)
		if err != nil {
			return nil, err
		}
		selector = qdrant.NewPointsSelector(pointIDs(namespace, req.IDs)...)
		count = len(found)
	} else {
		var filter map[string]any
		if !req.DeleteAll {
			filter = req.Filter
		}
		f, err := namespaceFilter(namespace, filter)
		if err != nil {
			return nil, err
		}
		exact := true
		n, err := a.client.Count(ctx, &qdrant.CountPoints{CollectionName: index, Filter: f, Exact: &exact})
		if err != nil {
			return nil, classify(err)
		}
		selector = qdrant.NewPointsSelectorFilter(f)
		count = int(n)
	}
	if count == 0 {
		return &backend.DeleteResult{}, nil
	}

	if _, err := a.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: index,
		Points:         selector,
		Wait:           &a.waitFor,
	}); err != nil {
		return nil, classify(err)
	}
	return &backend.DeleteResult{DeletedCount: count}, nil
}

// CreateIndex implements backend.Adapter
func (a *Adapter) CreateIndex(ctx context.Context, spec backend.IndexSpec) error {
	if spec.Metric == "" {
		spec.Metric = backend.MetricCosine
	}
	if err := validator.ValidateRequest(spec); err != nil {
		return err
	}
	ctx, cancel := a.bound(ctx)
	defer cancel()

	exists, err := a.client.CollectionExists(ctx, spec.Name)
	if err != nil {
		return classify(err)
	}
	if exists {
		return backend.ErrIndexExists.WithMsgf("index %q already exists", spec.Name).WithData("index", spec.Name)
	}

	err = a.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: spec.Name,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(spec.Dimension),
			Distance: toDistance(spec.Metric),
		}),
	})
	if err != nil {
		return classify(err)
	}
	a.logger.InfoCtx(ctx, "Qdrant collection created", zap.String("index", spec.Name), zap.Int("dimension", spec.Dimension))
	return nil
}

// DeleteIndex implements backend.Adapter
func (a *Adapter) DeleteIndex(ctx context.Context, name string) error {
	ctx, cancel := a.bound(ctx)
	defer cancel()

	exists, err := a.client.CollectionExists(ctx, name)
	if err != nil {
		return classify(err)
	}
	if !exists {
		return backend.IndexNotFound(name)
	}
	return classify(a.client.DeleteCollection(ctx, name))
}

// ListIndexes implements backend.Adapter
func (a *Adapter) ListIndexes(ctx context.Context) ([]string, error) {
	ctx, cancel := a.bound(ctx)
	defer cancel()

	names, err := a.client.ListCollections(ctx)
	if err != nil {
		return nil, classify(err)
	}
	return names, nil
}

// DescribeIndex implements backend.Adapter
func (a *Adapter) DescribeIndex(ctx context.Context, name string) (*backend.IndexInfo, error) {
	ctx, cancel := a.bound(ctx)
	defer cancel()

	c, err := a.collection(ctx, name)
	if err != nil {
		return nil, err
	}
	return &backend.IndexInfo{Name: name, Dimension: c.dimension, Metric: c.metric, Status: c.status}, nil
}

// Stats implements backend.Adapter. Per-namespace counts would need a full
// scroll, so only the total is reported.
func (a *Adapter) Stats(ctx context.Context, index string) (*backend.IndexStats, error) {
	ctx, cancel := a.bound(ctx)
	defer cancel()

	c, err := a.collection(ctx, index)
	if err != nil {
		return nil, err
	}
	return &backend.IndexStats{
		Dimension:        c.dimension,
		TotalVectorCount: c.points,
		Namespaces:       map[string]int64{},
	}, nil
}

// Check implements component.HealthChecker
func (a *Adapter) Check(ctx context.Context) error {
	ctx, cancel := a.bound(ctx)
	defer cancel()

	_, err := a.client.HealthCheck(ctx)
	return classify(err)
}

// Close closes the gRPC connection
func (a *Adapter) Close() error {
	return a.client.Close()
}
