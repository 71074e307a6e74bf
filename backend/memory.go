package backend

import (
	"context"
	"maps"
	"slices"
	"sync"

	"github.com/stokry/vectra/logger"
	"go.uber.org/zap"
)

type memIndex struct {
	spec       IndexSpec
	namespaces map[string]map[string]Vector
}

// Memory is a process-local adapter implementing every capability.
// It backs tests, dry runs and the CLI's default backend.
type Memory struct {
	name    string
	mu      sync.RWMutex
	indexes map[string]*memIndex
	logger  *logger.CtxZapLogger
}

// MemoryOption configures Memory
type MemoryOption func(*Memory)

// WithMemoryName overrides the adapter name ("memory")
func WithMemoryName(name string) MemoryOption {
	return func(m *Memory) {
		if name != "" {
			m.name = name
		}
	}
}

// WithMemoryLogger sets the logger
func WithMemoryLogger(l *logger.CtxZapLogger) MemoryOption {
	return func(m *Memory) {
		if l != nil {
			m.logger = l
		}
	}
}

// NewMemory creates an empty in-memory adapter
func NewMemory(opts ...MemoryOption) *Memory {
	m := &Memory{
		name:    "memory",
		indexes: make(map[string]*memIndex),
		logger:  logger.GetLogger("vectra"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

var (
	_ Adapter         = (*Memory)(nil)
	_ HybridSearcher  = (*Memory)(nil)
	_ TextSearcher    = (*Memory)(nil)
	_ NamespaceLister = (*Memory)(nil)
)

// Name implements Adapter
func (m *Memory) Name() string {
	return m.name
}

// Check implements component.HealthChecker; memory is always reachable
func (m *Memory) Check(ctx context.Context) error {
	return ctx.Err()
}

func (m *Memory) indexLocked(name string) (*memIndex, error) {
	idx, ok := m.indexes[name]
	if !ok {
		return nil, IndexNotFound(name)
	}
	return idx, nil
}

// Upsert implements Adapter
func (m *Memory) Upsert(ctx context.Context, index, namespace string, vectors []Vector) (*UpsertResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	idx, err := m.indexLocked(index)
	if err != nil {
		return nil, err
	}
	if err := ValidateVectors(vectors, idx.spec.Dimension); err != nil {
		return nil, err
	}

	ns := idx.namespaces[namespace]
	if ns == nil {
		ns = make(map[string]Vector)
		idx.namespaces[namespace] = ns
	}
	for _, v := range vectors {
		ns[v.ID] = Vector{ID: v.ID, Values: slices.Clone(v.Values), Metadata: maps.Clone(v.Metadata)}
	}

	m.logger.DebugCtx(ctx, "memory upsert",
		zap.String("index", index), zap.String("namespace", namespace), zap.Int("count", len(vectors)))
	return &UpsertResult{UpsertedCount: len(vectors)}, nil
}

// Query implements Adapter
func (m *Memory) Query(ctx context.Context, index, namespace string, q Query) (*QueryResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	idx, err := m.indexLocked(index)
	if err != nil {
		return nil, err
	}
	if len(q.Vector) != idx.spec.Dimension {
		return nil, DimensionMismatch("query", idx.spec.Dimension, len(q.Vector))
	}

	matches := make([]Match, 0)
	for _, v := range idx.namespaces[namespace] {
		if !MatchesFilter(v.Metadata, q.Filter) {
			continue
		}
		match := Match{ID: v.ID, Score: Score(idx.spec.Metric, q.Vector, v.Values)}
		if q.IncludeValues {
			match.Values = slices.Clone(v.Values)
		}
		if q.IncludeMetadata {
			match.Metadata = maps.Clone(v.Metadata)
		}
		matches = append(matches, match)
	}
	return &QueryResult{Matches: TopK(matches, q.TopK), Namespace: namespace}, nil
}

// HybridSearch implements HybridSearcher
func (m *Memory) HybridSearch(ctx context.Context, index, namespace string, q HybridQuery) (*QueryResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	idx, err := m.indexLocked(index)
	if err != nil {
		return nil, err
	}
	if len(q.Vector) != idx.spec.Dimension {
		return nil, DimensionMismatch("query", idx.spec.Dimension, len(q.Vector))
	}

	matches := make([]Match, 0)
	for _, v := range idx.namespaces[namespace] {
		if !MatchesFilter(v.Metadata, q.Filter) {
			continue
		}
		dense := float64(Score(idx.spec.Metric, q.Vector, v.Values))
		text := float64(TextScore(q.Text, v.Metadata, nil))
		matches = append(matches, Match{
			ID:       v.ID,
			Score:    float32(q.Alpha*dense + (1-q.Alpha)*text),
			Metadata: maps.Clone(v.Metadata),
		})
	}
	return &QueryResult{Matches: TopK(matches, q.TopK), Namespace: namespace}, nil
}

// TextSearch implements TextSearcher; vectors without any term hit are skipped
func (m *Memory) TextSearch(ctx context.Context, index, namespace string, q TextQuery) (*QueryResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	idx, err := m.indexLocked(index)
	if err != nil {
		return nil, err
	}

	matches := make([]Match, 0)
	for _, v := range idx.namespaces[namespace] {
		if !MatchesFilter(v.Metadata, q.Filter) {
			continue
		}
		score := TextScore(q.Text, v.Metadata, q.Fields)
		if score == 0 {
			continue
		}
		matches = append(matches, Match{ID: v.ID, Score: score, Metadata: maps.Clone(v.Metadata)})
	}
	return &QueryResult{Matches: TopK(matches, q.TopK), Namespace: namespace}, nil
}

// Fetch implements Adapter; unknown ids are absent from the result
func (m *Memory) Fetch(ctx context.Context, index, namespace string, ids []string) (map[string]Vector, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	idx, err := m.indexLocked(index)
	if err != nil {
		return nil, err
	}
	out := make(map[string]Vector, len(ids))
	ns := idx.namespaces[namespace]
	for _, id := range ids {
		if v, ok := ns[id]; ok {
			out[id] = Vector{ID: v.ID, Values: slices.Clone(v.Values), Metadata: maps.Clone(v.Metadata)}
		}
	}
	return out, nil
}

// Update implements Adapter
func (m *Memory) Update(ctx context.Context, index, namespace string, u Update) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	idx, err := m.indexLocked(index)
	if err != nil {
		return err
	}
	v, ok := idx.namespaces[namespace][u.ID]
	if !ok {
		return ErrVectorNotFound.WithMsgf("vector %q not found", u.ID).WithData("id", u.ID)
	}
	if u.Values != nil {
		if len(u.Values) != idx.spec.Dimension {
			return DimensionMismatch(u.ID, idx.spec.Dimension, len(u.Values))
		}
		v.Values = slices.Clone(u.Values)
	}
	if len(u.Metadata) > 0 {
		if v.Metadata == nil {
			v.Metadata = make(map[string]any, len(u.Metadata))
		}
		maps.Copy(v.Metadata, u.Metadata)
	}
	idx.namespaces[namespace][u.ID] = v
	return nil
}

// Delete implements Adapter
func (m *Memory) Delete(ctx context.Context, index, namespace string, req DeleteRequest) (*DeleteResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	idx, err := m.indexLocked(index)
	if err != nil {
		return nil, err
	}
	ns := idx.namespaces[namespace]
	deleted := 0
	switch {
	case req.DeleteAll:
		deleted = len(ns)
		delete(idx.namespaces, namespace)
	case len(req.IDs) > 0:
		for _, id := range req.IDs {
			if _, ok := ns[id]; ok {
				delete(ns, id)
				deleted++
			}
		}
	default:
		for id, v := range ns {
			if MatchesFilter(v.Metadata, req.Filter) {
				delete(ns, id)
				deleted++
			}
		}
	}
	return &DeleteResult{DeletedCount: deleted}, nil
}

// CreateIndex implements Adapter
func (m *Memory) CreateIndex(ctx context.Context, spec IndexSpec) error {
	if spec.Metric == "" {
		spec.Metric = MetricCosine
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.indexes[spec.Name]; ok {
		return ErrIndexExists.WithMsgf("index %q already exists", spec.Name).WithData("index", spec.Name)
	}
	m.indexes[spec.Name] = &memIndex{spec: spec, namespaces: make(map[string]map[string]Vector)}
	m.logger.InfoCtx(ctx, "memory index created", zap.String("index", spec.Name), zap.Int("dimension", spec.Dimension))
	return nil
}

// DeleteIndex implements Adapter
func (m *Memory) DeleteIndex(ctx context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, err := m.indexLocked(name); err != nil {
		return err
	}
	delete(m.indexes, name)
	return nil
}

// ListIndexes implements Adapter; names are sorted
func (m *Memory) ListIndexes(ctx context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Sorted(maps.Keys(m.indexes)), nil
}

// DescribeIndex implements Adapter
func (m *Memory) DescribeIndex(ctx context.Context, name string) (*IndexInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	idx, err := m.indexLocked(name)
	if err != nil {
		return nil, err
	}
	return &IndexInfo{Name: name, Dimension: idx.spec.Dimension, Metric: idx.spec.Metric, Status: "ready"}, nil
}

// Stats implements Adapter
func (m *Memory) Stats(ctx context.Context, index string) (*IndexStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	idx, err := m.indexLocked(index)
	if err != nil {
		return nil, err
	}
	stats := &IndexStats{Dimension: idx.spec.Dimension, Namespaces: make(map[string]int64, len(idx.namespaces))}
	for ns, vectors := range idx.namespaces {
		stats.Namespaces[ns] = int64(len(vectors))
		stats.TotalVectorCount += int64(len(vectors))
	}
	return stats, nil
}

// ListNamespaces implements NamespaceLister; names are sorted
func (m *Memory) ListNamespaces(ctx context.Context, index string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	idx, err := m.indexLocked(index)
	if err != nil {
		return nil, err
	}
	return slices.Sorted(maps.Keys(idx.namespaces)), nil
}
