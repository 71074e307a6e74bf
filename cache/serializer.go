package cache

import (
	"context"
	"encoding/json"
	"time"

	"golang.org/x/sync/singleflight"
)

// Serializer encodes cached values
type Serializer interface {
	Serialize(v any) ([]byte, error)
	Deserialize(data []byte, v any) error
	Name() string
}

// JSONSerializer encodes values with encoding/json
type JSONSerializer struct{}

// NewJSONSerializer creates a JSON serializer
func NewJSONSerializer() *JSONSerializer {
	return &JSONSerializer{}
}

func (s *JSONSerializer) Serialize(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (s *JSONSerializer) Deserialize(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

func (s *JSONSerializer) Name() string {
	return "json"
}

// Typed is a typed view over a Store
type Typed[T any] struct {
	store      Store
	serializer Serializer
	ttl        time.Duration
	group      singleflight.Group
}

// NewTyped creates a typed view; a nil serializer means JSON
func NewTyped[T any](store Store, serializer Serializer, ttl time.Duration) *Typed[T] {
	if serializer == nil {
		serializer = NewJSONSerializer()
	}
	return &Typed[T]{store: store, serializer: serializer, ttl: ttl}
}

// Get returns ErrCacheMiss, ErrDeserialize or a store error on failure
func (t *Typed[T]) Get(ctx context.Context, key string) (T, error) {
	var v T
	data, err := t.store.Get(ctx, key)
	if err != nil {
		return v, err
	}
	if err := t.serializer.Deserialize(data, &v); err != nil {
		return v, ErrDeserialize.Wrap(err)
	}
	return v, nil
}

// Set encodes and stores v
func (t *Typed[T]) Set(ctx context.Context, key string, v T) error {
	data, err := t.serializer.Serialize(v)
	if err != nil {
		return ErrSerialize.Wrap(err)
	}
	return t.store.Set(ctx, key, data, t.ttl)
}

// Fetch returns the cached value or computes and stores it. A failing store
// never fails the call: the computed value is returned regardless.
func (t *Typed[T]) Fetch(ctx context.Context, key string, compute func(ctx context.Context) (T, error)) (T, error) {
	if v, err := t.Get(ctx, key); err == nil {
		return v, nil
	}

	res, err, _ := t.group.Do(key, func() (interface{}, error) {
		v, err := compute(ctx)
		if err != nil {
			return nil, err
		}
		_ = t.Set(ctx, key, v)
		return v, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	v, _ := res.(T)
	return v, nil
}

// Store returns the underlying store
func (t *Typed[T]) Store() Store {
	return t.store
}
