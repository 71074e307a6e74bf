package cache

import (
	"context"
	"strings"
	"time"
)

// MemoryStore is a Store over a TTLCache of byte slices
type MemoryStore struct {
	name  string
	cache *TTLCache[[]byte]
}

// NewMemoryStore creates a process-local store holding at most maxSize entries
func NewMemoryStore(name string, maxSize int, opts ...Option) *MemoryStore {
	return &MemoryStore{
		name:  name,
		cache: NewTTLCache[[]byte](0, maxSize, opts...),
	}
}

func (s *MemoryStore) Name() string {
	return s.name
}

func (s *MemoryStore) Get(ctx context.Context, key string) ([]byte, error) {
	v, ok := s.cache.Get(key)
	if !ok {
		return nil, ErrCacheMiss
	}
	return v, nil
}

func (s *MemoryStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	s.cache.SetWithTTL(key, value, ttl)
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, key string) error {
	s.cache.Delete(key)
	return nil
}

func (s *MemoryStore) DeleteByPrefix(ctx context.Context, prefix string) error {
	s.cache.DeleteFunc(func(key string) bool { return strings.HasPrefix(key, prefix) })
	return nil
}

func (s *MemoryStore) Exists(ctx context.Context, key string) bool {
	return s.cache.Exists(key)
}

func (s *MemoryStore) Clear(ctx context.Context) error {
	s.cache.Clear()
	return nil
}

// Close stops the janitor and drops every entry
func (s *MemoryStore) Close() error {
	s.cache.Clear()
	return s.cache.Close()
}

// Stats returns the underlying cache counters
func (s *MemoryStore) Stats() Stats {
	return s.cache.Stats()
}
