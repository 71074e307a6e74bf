package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stokry/vectra/errcode"
	"github.com/stokry/vectra/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

// storeContract runs the behaviour every Store shares
func storeContract(t *testing.T, store Store) {
	ctx := context.Background()

	_, err := store.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrCacheMiss)

	require.NoError(t, store.Set(ctx, "idx:a", []byte("1"), time.Minute))
	require.NoError(t, store.Set(ctx, "idx:b", []byte("2"), 0))
	require.NoError(t, store.Set(ctx, "other", []byte("3"), time.Minute))

	v, err := store.Get(ctx, "idx:a")
	require.NoError(t, err)
	assert.Equal(t, []byte("1"), v)
	assert.True(t, store.Exists(ctx, "idx:b"))

	require.NoError(t, store.DeleteByPrefix(ctx, "idx:"))
	assert.False(t, store.Exists(ctx, "idx:a"))
	assert.False(t, store.Exists(ctx, "idx:b"))
	assert.True(t, store.Exists(ctx, "other"))

	require.NoError(t, store.Delete(ctx, "other"))
	assert.False(t, store.Exists(ctx, "other"))

	require.NoError(t, store.Set(ctx, "x", []byte("x"), time.Minute))
	require.NoError(t, store.Clear(ctx))
	assert.False(t, store.Exists(ctx, "x"))
}

func TestMemoryStore(t *testing.T) {
	store := NewMemoryStore("mem", 100, WithLogger(logger.NewNop()))
	defer store.Close()
	assert.Equal(t, "mem", store.Name())
	storeContract(t, store)
}

func TestMemoryStore_TTL(t *testing.T) {
	store := NewMemoryStore("mem", 10, WithLogger(logger.NewNop()))
	clock := newFakeClock()
	store.cache.now = clock.Now
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "k", []byte("v"), time.Second))
	clock.Advance(time.Second)
	_, err := store.Get(ctx, "k")
	require.NoError(t, err)

	clock.Advance(time.Millisecond)
	_, err = store.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestRedisStore(t *testing.T) {
	_, client := newTestRedis(t)
	store := NewRedisStore("redis", client, "test:")
	assert.Equal(t, "redis", store.Name())
	storeContract(t, store)
	require.NoError(t, store.Check(context.Background()))
}

func TestRedisStore_TTLAndPrefix(t *testing.T) {
	mr, client := newTestRedis(t)
	store := NewRedisStore("redis", client, "vectra:")
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "k", []byte("v"), time.Second))
	assert.True(t, mr.Exists("vectra:k"))

	mr.FastForward(2 * time.Second)
	_, err := store.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestRedisStore_ErrorsAreConnectionKind(t *testing.T) {
	mr, client := newTestRedis(t)
	store := NewRedisStore("redis", client, "")
	mr.Close()

	_, err := store.Get(context.Background(), "k")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStore)
	assert.Equal(t, errcode.KindConnection, errcode.KindOf(err))
	assert.Error(t, store.Check(context.Background()))
}

func TestRedisStore_CloseOwnedClient(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	require.NoError(t, NewRedisStore("shared", client, "").Close())
	require.NoError(t, client.Ping(context.Background()).Err(), "shared client stays open")

	require.NoError(t, NewRedisStore("owned", client, "", WithOwnedClient()).Close())
	assert.Error(t, client.Ping(context.Background()).Err())
}

func TestChainStore(t *testing.T) {
	_, client := newTestRedis(t)
	l1 := NewMemoryStore("l1", 100, WithLogger(logger.NewNop()))
	l2 := NewRedisStore("l2", client, "chain:")
	store := NewChainStore("chain", time.Minute, l1, l2)

	storeContract(t, store)
}

func TestChainStore_Backfill(t *testing.T) {
	_, client := newTestRedis(t)
	l1 := NewMemoryStore("l1", 100, WithLogger(logger.NewNop()))
	l2 := NewRedisStore("l2", client, "chain:")
	store := NewChainStore("chain", 0, l1, l2)
	ctx := context.Background()

	require.NoError(t, l2.Set(ctx, "k", []byte("v"), time.Minute))
	assert.False(t, l1.Exists(ctx, "k"))

	v, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), v)
	assert.True(t, l1.Exists(ctx, "k"), "L1 backfilled from L2")
}

func TestNewStore(t *testing.T) {
	mr, _ := newTestRedis(t)

	store, err := NewStore(Config{}, WithLogger(logger.NewNop()))
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, store)
	require.NoError(t, store.Close())

	store, err = NewStore(Config{Store: StoreRedis, Redis: RedisConfig{Addr: mr.Addr()}})
	require.NoError(t, err)
	assert.IsType(t, &RedisStore{}, store)
	require.NoError(t, store.Set(context.Background(), "k", []byte("v"), time.Minute))
	assert.True(t, mr.Exists("vectra:k"))
	require.NoError(t, store.Close())

	store, err = NewStore(Config{Store: StoreChain, JanitorInterval: time.Minute, Redis: RedisConfig{Addr: mr.Addr()}},
		WithLogger(logger.NewNop()))
	require.NoError(t, err)
	assert.IsType(t, &ChainStore{}, store)
	require.NoError(t, store.Close())

	_, err = NewStore(Config{Store: StoreRedis})
	assert.ErrorIs(t, err, errcode.ErrValidation)

	_, err = NewStore(Config{Store: "memcached"})
	assert.ErrorIs(t, err, errcode.ErrValidation)
}
