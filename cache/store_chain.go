package cache

import (
	"context"
	"errors"
	"time"
)

// ChainStore layers stores front to back (typically memory in front of redis).
// A hit in a lower layer is copied into the layers above it with backfillTTL.
type ChainStore struct {
	name        string
	backfillTTL time.Duration
	stores      []Store
}

// NewChainStore creates a chain; backfillTTL <= 0 means one minute
func NewChainStore(name string, backfillTTL time.Duration, stores ...Store) *ChainStore {
	if backfillTTL <= 0 {
		backfillTTL = time.Minute
	}
	return &ChainStore{name: name, backfillTTL: backfillTTL, stores: stores}
}

func (s *ChainStore) Name() string {
	return s.name
}

// Get returns the first hit and backfills the layers above it.
// Layer errors other than a miss are treated as misses.
func (s *ChainStore) Get(ctx context.Context, key string) ([]byte, error) {
	for i, store := range s.stores {
		value, err := store.Get(ctx, key)
		if err != nil {
			continue
		}
		for _, upper := range s.stores[:i] {
			_ = upper.Set(ctx, key, value, s.backfillTTL)
		}
		return value, nil
	}
	return nil, ErrCacheMiss
}

// Set writes every layer
func (s *ChainStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return s.each(func(store Store) error { return store.Set(ctx, key, value, ttl) })
}

func (s *ChainStore) Delete(ctx context.Context, key string) error {
	return s.each(func(store Store) error { return store.Delete(ctx, key) })
}

func (s *ChainStore) DeleteByPrefix(ctx context.Context, prefix string) error {
	return s.each(func(store Store) error { return store.DeleteByPrefix(ctx, prefix) })
}

// Exists reports whether any layer holds key
func (s *ChainStore) Exists(ctx context.Context, key string) bool {
	for _, store := range s.stores {
		if store.Exists(ctx, key) {
			return true
		}
	}
	return false
}

func (s *ChainStore) Clear(ctx context.Context) error {
	return s.each(func(store Store) error { return store.Clear(ctx) })
}

func (s *ChainStore) Close() error {
	return s.each(func(store Store) error { return store.Close() })
}

// each applies fn to every layer and joins the errors
func (s *ChainStore) each(fn func(Store) error) error {
	var errs []error
	for _, store := range s.stores {
		if err := fn(store); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
