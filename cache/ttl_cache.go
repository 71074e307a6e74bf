// Package cache provides a TTL cache with oldest-first eviction and the
// byte stores (memory, redis, chain) used to cache client results.
package cache

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/stokry/vectra/logger"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// EvictionFraction share of MaxSize removed when the cache is full
const EvictionFraction = 0.1

type entry[V any] struct {
	value     V
	storedAt  time.Time
	expiresAt time.Time // zero: never
}

// Stats cache counters
type Stats struct {
	Size        int
	MaxSize     int
	Hits        int64
	Misses      int64
	Evictions   int64
	Expirations int64
}

// TTLCache maps string keys to values that expire TTL after they are stored.
// Every operation is serialized through one lock; Fetch computes outside it.
type TTLCache[V any] struct {
	ttl     time.Duration
	maxSize int

	mu      sync.Mutex
	entries map[string]*entry[V]
	stats   Stats

	group     singleflight.Group
	scheduler gocron.Scheduler
	now       func() time.Time
	logger    *logger.CtxZapLogger
}

// Option configures a TTLCache
type Option func(*options)

type options struct {
	logger *logger.CtxZapLogger
}

// WithLogger sets the logger
func WithLogger(l *logger.CtxZapLogger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// NewTTLCache creates a cache; ttl <= 0 keeps entries until evicted, maxSize < 1 means 1
func NewTTLCache[V any](ttl time.Duration, maxSize int, opts ...Option) *TTLCache[V] {
	o := options{logger: logger.GetLogger("vectra")}
	for _, opt := range opts {
		opt(&o)
	}
	return &TTLCache[V]{
		ttl:     ttl,
		maxSize: max(1, maxSize),
		entries: make(map[string]*entry[V]),
		now:     time.Now,
		logger:  o.logger,
	}
}

// Get returns the value, evicting it first if it has expired
func (c *TTLCache[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if ok && c.expiredLocked(e) {
		delete(c.entries, key)
		c.stats.Expirations++
		ok = false
	}
	if !ok {
		c.stats.Misses++
		var zero V
		return zero, false
	}
	c.stats.Hits++
	return e.value, true
}

// Set stores value with the cache TTL
func (c *TTLCache[V]) Set(key string, value V) {
	c.SetWithTTL(key, value, c.ttl)
}

// SetWithTTL stores value with its own TTL (<= 0: no expiry).
// Inserting a new key into a full cache first removes the
// floor(maxSize*0.1)+1 oldest entries.
func (c *TTLCache[V]) SetWithTTL(key string, value V, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.maxSize {
		c.evictOldestLocked(int(float64(c.maxSize)*EvictionFraction) + 1)
	}

	now := c.now()
	e := &entry[V]{value: value, storedAt: now}
	if ttl > 0 {
		e.expiresAt = now.Add(ttl)
	}
	c.entries[key] = e
}

// Fetch returns the cached value or computes, stores and returns a fresh one.
// compute runs without the cache lock; concurrent misses of one key share a
// single compute call. Errors are returned and not cached.
func (c *TTLCache[V]) Fetch(ctx context.Context, key string, compute func(ctx context.Context) (V, error)) (V, error) {
	if v, ok := c.Get(key); ok {
		return v, nil
	}

	res, err, shared := c.group.Do(key, func() (interface{}, error) {
		v, err := compute(ctx)
		if err != nil {
			return nil, err
		}
		c.Set(key, v)
		return v, nil
	})
	if err != nil {
		var zero V
		return zero, err
	}
	if shared {
		c.logger.DebugCtx(ctx, "🔍 [Cache] fetch shared in-flight compute", zap.String("key", key))
	}
	v, _ := res.(V)
	return v, nil
}

// Delete removes key and reports whether it was present
func (c *TTLCache[V]) Delete(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.entries[key]
	delete(c.entries, key)
	return ok
}

// DeleteFunc removes every key for which match returns true
func (c *TTLCache[V]) DeleteFunc(match func(key string) bool) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for key := range c.entries {
		if match(key) {
			delete(c.entries, key)
			n++
		}
	}
	return n
}

// Clear removes every entry
func (c *TTLCache[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	clear(c.entries)
}

// Exists reports whether key holds an unexpired value
func (c *TTLCache[V]) Exists(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	return ok && !c.expiredLocked(e)
}

// Len returns the number of stored entries, expired ones included until purged
func (c *TTLCache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Stats returns a copy of the counters
func (c *TTLCache[V]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.stats
	s.Size = len(c.entries)
	s.MaxSize = c.maxSize
	return s
}

// PurgeExpired removes every expired entry and returns how many were removed
func (c *TTLCache[V]) PurgeExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for key, e := range c.entries {
		if c.expiredLocked(e) {
			delete(c.entries, key)
			n++
		}
	}
	c.stats.Expirations += int64(n)
	return n
}

// StartJanitor purges expired entries every interval until Close
func (c *TTLCache[V]) StartJanitor(interval time.Duration) error {
	if interval <= 0 {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.scheduler != nil {
		return nil
	}

	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return err
	}
	_, err = scheduler.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			if n := c.PurgeExpired(); n > 0 {
				c.logger.Debug("🧹 [Cache] janitor purged expired entries", zap.Int("count", n))
			}
		}),
		gocron.WithName("cache-janitor"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		_ = scheduler.Shutdown()
		return err
	}
	scheduler.Start()
	c.scheduler = scheduler
	return nil
}

// Close stops the janitor
func (c *TTLCache[V]) Close() error {
	c.mu.Lock()
	scheduler := c.scheduler
	c.scheduler = nil
	c.mu.Unlock()

	if scheduler != nil {
		return scheduler.Shutdown()
	}
	return nil
}

// expiredLocked: an entry lives through its full ttl and is gone once the age exceeds it
func (c *TTLCache[V]) expiredLocked(e *entry[V]) bool {
	return !e.expiresAt.IsZero() && c.now().After(e.expiresAt)
}

// evictOldestLocked removes the n entries with the earliest storedAt
func (c *TTLCache[V]) evictOldestLocked(n int) {
	type aged struct {
		key      string
		storedAt time.Time
	}
	all := make([]aged, 0, len(c.entries))
	for key, e := range c.entries {
		all = append(all, aged{key: key, storedAt: e.storedAt})
	}
	slices.SortFunc(all, func(a, b aged) int { return a.storedAt.Compare(b.storedAt) })

	n = min(n, len(all))
	for _, a := range all[:n] {
		delete(c.entries, a.key)
	}
	c.stats.Evictions += int64(n)
	c.logger.Debug("🗑️ [Cache] evicted oldest entries", zap.Int("count", n), zap.Int("max_size", c.maxSize))
}
