package sqlvec

import (
	"encoding/json"
	"time"

	"github.com/stokry/vectra/backend"
)

type indexRecord struct {
	Name      string `gorm:"primaryKey;size:191"`
	Dimension int    `gorm:"not null"`
	Metric    string `gorm:"size:32;not null"`
	CreatedAt time.Time
}

func (indexRecord) TableName() string {
	return "vectra_indexes"
}

func (r indexRecord) info() *backend.IndexInfo {
	return &backend.IndexInfo{
		Name:      r.Name,
		Dimension: r.Dimension,
		Metric:    backend.Metric(r.Metric),
		Status:    "ready",
	}
}

type vectorRecord struct {
	IndexName string `gorm:"primaryKey;size:191"`
	Namespace string `gorm:"primaryKey;size:191"`
	ID        string `gorm:"primaryKey;size:512"`
	Embedding string `gorm:"type:text;not null"` // JSON array of float32
	Metadata  string `gorm:"type:text"`          // JSON object
	UpdatedAt time.Time
}

func (vectorRecord) TableName() string {
	return "vectra_vectors"
}

func newVectorRecord(index, namespace string, v backend.Vector) (vectorRecord, error) {
	embedding, err := json.Marshal(v.Values)
	if err != nil {
		return vectorRecord{}, err
	}
	rec := vectorRecord{IndexName: index, Namespace: namespace, ID: v.ID, Embedding: string(embedding)}
	if len(v.Metadata) > 0 {
		meta, err := json.Marshal(v.Metadata)
		if err != nil {
			return vectorRecord{}, err
		}
		rec.Metadata = string(meta)
	}
	return rec, nil
}

func (r vectorRecord) vector() (backend.Vector, error) {
	v := backend.Vector{ID: r.ID}
	if err := json.Unmarshal([]byte(r.Embedding), &v.Values); err != nil {
		return v, err
	}
	if r.Metadata != "" {
		if err := json.Unmarshal([]byte(r.Metadata), &v.Metadata); err != nil {
			return v, err
		}
	}
	return v, nil
}

type namespaceCount struct {
	Namespace string
	Count     int64
}
