package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// scanBatch keys requested per SCAN round trip
const scanBatch = 100

// RedisStore is a Store shared between processes through redis
type RedisStore struct {
	name       string
	client     redis.UniversalClient
	keyPrefix  string
	ownsClient bool
}

// RedisOption configures a RedisStore
type RedisOption func(*RedisStore)

// WithOwnedClient makes Close close the redis client
func WithOwnedClient() RedisOption {
	return func(s *RedisStore) {
		s.ownsClient = true
	}
}

// NewRedisStore wraps client; every key is stored under keyPrefix
func NewRedisStore(name string, client redis.UniversalClient, keyPrefix string, opts ...RedisOption) *RedisStore {
	s := &RedisStore{name: name, client: client, keyPrefix: keyPrefix}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisStore) Name() string {
	return s.name
}

func (s *RedisStore) buildKey(key string) string {
	return s.keyPrefix + key
}

func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	result, err := s.client.Get(ctx, s.buildKey(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrCacheMiss
		}
		return nil, ErrStore.WithMsg("redis get failed").Wrap(err)
	}
	return result, nil
}

// Set stores value; ttl <= 0 keeps the key without expiry
func (s *RedisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl < 0 {
		ttl = 0
	}
	if err := s.client.Set(ctx, s.buildKey(key), value, ttl).Err(); err != nil {
		return ErrStore.WithMsg("redis set failed").Wrap(err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.buildKey(key)).Err(); err != nil {
		return ErrStore.WithMsg("redis delete failed").Wrap(err)
	}
	return nil
}

// DeleteByPrefix removes matching keys with SCAN so redis is never blocked
func (s *RedisStore) DeleteByPrefix(ctx context.Context, prefix string) error {
	var cursor uint64
	for {
		keys, next, err := s.client.Scan(ctx, cursor, s.buildKey(prefix)+"*", scanBatch).Result()
		if err != nil {
			return ErrStore.WithMsg("redis scan failed").Wrap(err)
		}
		if len(keys) > 0 {
			if err := s.client.Del(ctx, keys...).Err(); err != nil {
				return ErrStore.WithMsg("redis delete failed").Wrap(err)
			}
		}
		if next == 0 {
			return nil
		}
		cursor = next
	}
}

func (s *RedisStore) Exists(ctx context.Context, key string) bool {
	n, err := s.client.Exists(ctx, s.buildKey(key)).Result()
	return err == nil && n > 0
}

// Clear removes every key under the store prefix
func (s *RedisStore) Clear(ctx context.Context) error {
	return s.DeleteByPrefix(ctx, "")
}

// Close closes the client only when the store owns it
func (s *RedisStore) Close() error {
	if s.ownsClient {
		return s.client.Close()
	}
	return nil
}

// Check implements component.HealthChecker
func (s *RedisStore) Check(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return ErrStore.WithMsg("redis ping failed").Wrap(err)
	}
	return nil
}
