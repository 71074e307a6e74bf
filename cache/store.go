package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store is a byte cache with per-entry TTL. Get returns ErrCacheMiss for
// absent or expired keys.
type Store interface {
	Name() string
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	DeleteByPrefix(ctx context.Context, prefix string) error
	Exists(ctx context.Context, key string) bool
	Clear(ctx context.Context) error
	Close() error
}

// NewStore builds the store selected by cfg.Store. The redis and chain
// stores own the redis client they create and close it on Close.
func NewStore(cfg Config, opts ...Option) (Store, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	newMemory := func() (*MemoryStore, error) {
		m := NewMemoryStore("memory", cfg.MaxSize, opts...)
		if err := m.cache.StartJanitor(cfg.JanitorInterval); err != nil {
			return nil, fmt.Errorf("start cache janitor: %w", err)
		}
		return m, nil
	}
	newRedis := func() *RedisStore {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		return NewRedisStore("redis", client, cfg.KeyPrefix, WithOwnedClient())
	}

	switch cfg.Store {
	case StoreRedis:
		return newRedis(), nil
	case StoreChain:
		l1, err := newMemory()
		if err != nil {
			return nil, err
		}
		return NewChainStore("chain", cfg.BackfillTTL, l1, newRedis()), nil
	default:
		return newMemory()
	}
}
