// Package cache is a process-wide read-through cache with TTL expiry, a
// capacity bound and per-key hit/miss accounting.
//
// Values are loaded synchronously on miss. A loader that returns a nil value
// is cached like any other result so that confirmed absence is not looked up
// again until the entry expires or is invalidated. Callers invalidate keys
// after every mutation of the underlying data.
//
// When the cache is full the entry closest to its natural expiry is evicted.
// With a uniform TTL this approximates evicting the least recently loaded
// entry; it does not track reads.
package cache

import (
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	DefaultTTL      = 5 * time.Minute
	DefaultCapacity = 1000
)

var ErrTypeMismatch = errors.New("cache: value has unexpected type")

type entry struct {
	value     any
	expiresAt time.Time
}

// flight tracks loads in progress for a key. version is bumped by Invalidate
// so that a load started before the invalidation is not stored.
type flight struct {
	refs    int
	version uint64
}

type Cache struct {
	ttl      time.Duration
	capacity int
	now      func() time.Time
	logger   *zap.Logger

	mu       sync.Mutex
	entries  map[string]entry
	inflight map[string]*flight
	stats    map[string]*KeyStats
}

type Option func(*Cache)

func WithTTL(ttl time.Duration) Option {
	return func(c *Cache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

func WithCapacity(n int) Option {
	return func(c *Cache) {
		if n > 0 {
			c.capacity = n
		}
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

func WithLogger(logger *zap.Logger) Option {
	return func(c *Cache) { c.logger = logger }
}

func New(opts ...Option) *Cache {
	c := &Cache{
		ttl:      DefaultTTL,
		capacity: DefaultCapacity,
		now:      time.Now,
		logger:   zap.NewNop(),
		entries:  make(map[string]entry),
		inflight: make(map[string]*flight),
		stats:    make(map[string]*KeyStats),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the cached value for key, or runs loader and caches its result.
// Loader errors are returned unchanged and nothing is cached.
func (c *Cache) Get(key string, loader func() (any, error)) (any, error) {
	c.mu.Lock()
	st := c.statsFor(key)
	st.Gets++
	if e, ok := c.entries[key]; ok {
		if !c.now().After(e.expiresAt) {
			st.Hits++
			c.mu.Unlock()
			c.logger.Debug("cache hit", zap.String("key", key))
			return e.value, nil
		}
		delete(c.entries, key)
	}
	st.Misses++
	f := c.inflight[key]
	if f == nil {
		f = &flight{}
		c.inflight[key] = f
	}
	f.refs++
	version := f.version
	c.mu.Unlock()

	c.logger.Debug("cache miss", zap.String("key", key))
	value, err := loader()

	c.mu.Lock()
	defer c.mu.Unlock()
	f.refs--
	if f.refs == 0 {
		delete(c.inflight, key)
	}
	if err != nil {
		return nil, err
	}
	if f.version != version {
		// invalidated while loading; the value may predate the mutation
		c.logger.Debug("cache discard stale load", zap.String("key", key))
		return value, nil
	}
	c.store(key, value)
	return value, nil
}

// store must be called with c.mu held.
func (c *Cache) store(key string, value any) {
	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.capacity {
		c.evictOne()
	}
	c.entries[key] = entry{value: value, expiresAt: c.now().Add(c.ttl)}
}

// evictOne removes the entry with the earliest expiry. Must be called with c.mu held.
func (c *Cache) evictOne() {
	var (
		victim string
		oldest time.Time
		found  bool
	)
	for k, e := range c.entries {
		if !found || e.expiresAt.Before(oldest) {
			victim, oldest, found = k, e.expiresAt, true
		}
	}
	if !found {
		return
	}
	delete(c.entries, victim)
	c.statsFor(victim).Evictions++
	c.logger.Debug("cache evict", zap.String("key", victim))
}

// Invalidate removes key. It is a no-op for keys that are not cached.
func (c *Cache) Invalidate(key string) {
	c.mu.Lock()
	delete(c.entries, key)
	if f := c.inflight[key]; f != nil {
		f.version++
	}
	c.statsFor(key).Invalidations++
	c.mu.Unlock()
	c.logger.Debug("cache invalidate", zap.String("key", key))
}

// Len returns the number of resident entries, expired ones included until observed.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Close drops every entry. The cache stays usable.
func (c *Cache) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	clear(c.entries)
	for _, f := range c.inflight {
		f.version++
	}
}

// Get is the typed form of (*Cache).Get.
func Get[T any](c *Cache, key string, loader func() (T, error)) (T, error) {
	var zero T
	v, err := c.Get(key, func() (any, error) { return loader() })
	if err != nil {
		return zero, err
	}
	if v == nil {
		return zero, nil
	}
	t, ok := v.(T)
	if !ok {
		return zero, ErrTypeMismatch
	}
	return t, nil
}
