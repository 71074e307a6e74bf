package backend

// Metric similarity metric of an index
type Metric string

const (
	MetricCosine     Metric = "cosine"
	MetricDotProduct Metric = "dotproduct"
	MetricEuclidean  Metric = "euclidean"
)

// Vector a stored embedding with its metadata
type Vector struct {
	ID       string         `json:"id"`
	Values   []float32      `json:"values"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Query similarity search parameters
type Query struct {
	Vector          []float32      `json:"vector"`
	TopK            int            `json:"top_k"`
	Filter          map[string]any `json:"filter,omitempty"`
	IncludeValues   bool           `json:"include_values,omitempty"`
	IncludeMetadata bool           `json:"include_metadata,omitempty"`
}

// HybridQuery mixes a dense vector score with a text score.
// Alpha weights the vector side: 1 is pure vector, 0 is pure text.
type HybridQuery struct {
	Vector []float32      `json:"vector"`
	Text   string         `json:"text"`
	Alpha  float64        `json:"alpha"`
	TopK   int            `json:"top_k"`
	Filter map[string]any `json:"filter,omitempty"`
}

// TextQuery keyword search over metadata text fields
type TextQuery struct {
	Text   string         `json:"text"`
	Fields []string       `json:"fields,omitempty"`
	TopK   int            `json:"top_k"`
	Filter map[string]any `json:"filter,omitempty"`
}

// Match one search hit
type Match struct {
	ID       string         `json:"id"`
	Score    float32        `json:"score"`
	Values   []float32      `json:"values,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// QueryResult search hits ordered by descending score
type QueryResult struct {
	Matches   []Match `json:"matches"`
	Namespace string  `json:"namespace,omitempty"`
}

// Update replaces values and merges metadata of one vector.
// Nil Values keeps the stored values.
type Update struct {
	ID       string         `json:"id"`
	Values   []float32      `json:"values,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// DeleteRequest selects vectors by id, by metadata filter, or all of a namespace
type DeleteRequest struct {
	IDs       []string       `json:"ids,omitempty"`
	Filter    map[string]any `json:"filter,omitempty"`
	DeleteAll bool           `json:"delete_all,omitempty"`
}

// UpsertResult upsert outcome
type UpsertResult struct {
	UpsertedCount int `json:"upserted_count"`
}

// DeleteResult delete outcome
type DeleteResult struct {
	DeletedCount int `json:"deleted_count"`
}

// IndexSpec index creation parameters
type IndexSpec struct {
	Name      string `json:"name"`
	Dimension int    `json:"dimension"`
	Metric    Metric `json:"metric"`
}

// IndexInfo index description
type IndexInfo struct {
	Name      string `json:"name"`
	Dimension int    `json:"dimension"`
	Metric    Metric `json:"metric"`
	Status    string `json:"status"`
}

// IndexStats index statistics
type IndexStats struct {
	Dimension        int              `json:"dimension"`
	TotalVectorCount int64            `json:"total_vector_count"`
	Namespaces       map[string]int64 `json:"namespaces"`
}
