// Package querycache memoizes expensive derived results under
// caller-built keys with a time-to-live.
//
// The cache never invalidates on its own beyond TTL expiry; the caller's
// key must encode every input that affects the result. Storage is bounded
// by an LRU, concurrent misses on one key share a single computation, and
// failed computations are never stored.
package querycache

import (
	"context"
	"fmt"
	"hash/fnv"
	"strconv"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sourcegraph/conc/panics"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/mesh-intelligence/fooddiary/internal/logger"
	"github.com/mesh-intelligence/fooddiary/internal/scheduler"
	"github.com/mesh-intelligence/fooddiary/pkg/types"
)

type item struct {
	value     any
	expiresAt time.Time
}

// Cache is a TTL cache keyed by string.
type Cache struct {
	items *lru.Cache[string, item]
	group singleflight.Group
	clock scheduler.Clock
	ttl   time.Duration
	log   *zap.Logger
}

// Option configures a Cache.
type Option func(*Cache)

// WithClock sets the clock used for expiry.
func WithClock(c scheduler.Clock) Option {
	return func(q *Cache) { q.clock = c }
}

// WithLogger sets the cache logger.
func WithLogger(l *zap.Logger) Option {
	return func(q *Cache) { q.log = l }
}

// WithDefaultTTL sets the TTL used when a call passes a non-positive one.
func WithDefaultTTL(d time.Duration) Option {
	return func(q *Cache) { q.ttl = d }
}

// New creates a Cache holding at most maxEntries keys.
func New(maxEntries int, opts ...Option) (*Cache, error) {
	if maxEntries <= 0 {
		return nil, types.ErrCacheSizeInvalid
	}
	items, err := lru.New[string, item](maxEntries)
	if err != nil {
		return nil, fmt.Errorf("creating lru: %w", err)
	}
	c := &Cache{
		items: items,
		clock: scheduler.RealClock{},
		ttl:   types.DefaultCacheTTL,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.log = logger.OrNop(c.log).Named("querycache")
	return c, nil
}

// GetCachedData returns the live value cached under key, or runs compute,
// caches its result until now+ttl and returns it. A compute error or panic
// is returned as a *types.ComputeError and nothing is stored.
func GetCachedData[T any](ctx context.Context, c *Cache, key string, compute func(context.Context) (T, error), ttl time.Duration) (T, error) {
	if v, ok := lookup[T](c, key); ok {
		return v, nil
	}

	res, err, shared := c.group.Do(key, func() (any, error) {
		// Another caller may have filled the key while this one waited.
		if v, ok := lookup[T](c, key); ok {
			return v, nil
		}
		v, err := run(ctx, compute)
		if err != nil {
			return nil, &types.ComputeError{Key: key, Err: err}
		}
		c.store(key, v, ttl)
		return v, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	c.log.Debug("computed", zap.String("key", key), zap.Bool("shared", shared))
	v, ok := res.(T)
	if !ok {
		var zero T
		return zero, &types.ComputeError{Key: key, Err: fmt.Errorf("cached value has type %T", res)}
	}
	return v, nil
}

func run[T any](ctx context.Context, compute func(context.Context) (T, error)) (v T, err error) {
	var pc panics.Catcher
	pc.Try(func() { v, err = compute(ctx) })
	if r := pc.Recovered(); r != nil {
		return v, r.AsError()
	}
	return v, err
}

func lookup[T any](c *Cache, key string) (T, bool) {
	var zero T
	it, ok := c.items.Get(key)
	if !ok {
		return zero, false
	}
	if !c.clock.Now().Before(it.expiresAt) {
		c.items.Remove(key)
		return zero, false
	}
	v, ok := it.value.(T)
	if !ok {
		return zero, false
	}
	return v, true
}

func (c *Cache) store(key string, v any, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.ttl
	}
	if evicted := c.items.Add(key, item{value: v, expiresAt: c.clock.Now().Add(ttl)}); evicted {
		c.log.Debug("evicted oldest key")
	}
}

// Invalidate drops key.
func (c *Cache) Invalidate(key string) {
	c.items.Remove(key)
}

// Purge drops every key.
func (c *Cache) Purge() {
	c.items.Purge()
}

// Len returns the number of stored keys, expired ones included.
func (c *Cache) Len() int {
	return c.items.Len()
}

// SectionsKey builds the cache key for a sections computation. Besides the
// method, entry count and search text it folds every entry's ID and
// UpdatedAt into a fingerprint, so an edit that keeps the count unchanged
// still yields a new key. day is the calendar day relative titles were
// computed for, empty when the method has none.
func SectionsKey(method types.SortMethod, day string, entries []types.Entry, search string) string {
	h := fnv.New64a()
	for i := range entries {
		h.Write([]byte(entries[i].ID))
		h.Write([]byte{0})
		h.Write(strconv.AppendInt(nil, entries[i].UpdatedAt.UnixNano(), 36))
		h.Write([]byte{0})
	}
	return fmt.Sprintf("sections:%s:%s:%d:%016x:%s", method, day, len(entries), h.Sum64(), search)
}
