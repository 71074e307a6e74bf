package backend

import (
	"fmt"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/stokry/vectra/validator"
)

// Validate checks a single vector
func (v Vector) Validate() error {
	return validation.ValidateStruct(&v,
		validation.Field(&v.ID, validation.Required, validation.Length(1, 512)),
		validation.Field(&v.Values, validation.Required),
	)
}

// Validate checks query parameters
func (q Query) Validate() error {
	return validation.ValidateStruct(&q,
		validation.Field(&q.Vector, validation.Required),
		validation.Field(&q.TopK, validation.Required, validation.Min(1), validation.Max(10000)),
	)
}

// Validate checks hybrid query parameters
func (q HybridQuery) Validate() error {
	return validation.ValidateStruct(&q,
		validation.Field(&q.Vector, validation.Required),
		validation.Field(&q.Text, validation.Required),
		validation.Field(&q.Alpha, validation.Min(0.0), validation.Max(1.0)),
		validation.Field(&q.TopK, validation.Required, validation.Min(1), validation.Max(10000)),
	)
}

// Validate checks text query parameters
func (q TextQuery) Validate() error {
	return validation.ValidateStruct(&q,
		validation.Field(&q.Text, validation.Required),
		validation.Field(&q.TopK, validation.Required, validation.Min(1), validation.Max(10000)),
	)
}

// Validate checks update parameters
func (u Update) Validate() error {
	return validation.ValidateStruct(&u,
		validation.Field(&u.ID, validation.Required),
	)
}

// Validate requires exactly one selection mode
func (d DeleteRequest) Validate() error {
	modes := 0
	if len(d.IDs) > 0 {
		modes++
	}
	if len(d.Filter) > 0 {
		modes++
	}
	if d.DeleteAll {
		modes++
	}
	if modes != 1 {
		return validation.NewError("validation_delete_mode", "exactly one of ids, filter or delete_all must be set")
	}
	return nil
}

// Validate checks index creation parameters
func (s IndexSpec) Validate() error {
	return validation.ValidateStruct(&s,
		validation.Field(&s.Name, validation.Required, validation.Length(1, 255)),
		validation.Field(&s.Dimension, validation.Required, validation.Min(1), validation.Max(65536)),
		validation.Field(&s.Metric, validation.In(MetricCosine, MetricDotProduct, MetricEuclidean)),
	)
}

// ValidateVectors checks every vector and that all share one dimension.
// dimension 0 takes the dimension of the first vector.
func ValidateVectors(vectors []Vector, dimension int) error {
	if len(vectors) == 0 {
		return validator.Convert(validation.NewError("validation_vectors_empty", "at least one vector is required"))
	}
	for i, v := range vectors {
		if err := v.Validate(); err != nil {
			return validator.Convert(validation.Errors{fmt.Sprintf("vectors[%d]", i): err})
		}
		if dimension == 0 {
			dimension = len(v.Values)
		}
		if len(v.Values) != dimension {
			return DimensionMismatch(v.ID, dimension, len(v.Values))
		}
	}
	return nil
}
