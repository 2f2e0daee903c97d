// Package cache memoizes score insights and dependency graphs behind a
// time-bounded, single-flight cache.
package cache

import (
	"context"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// DefaultTTL is used whenever a caller doesn't override the cache lifetime.
const DefaultTTL = 10 * time.Minute

type entry struct {
	value   any
	expires time.Time
}

// Cache is a process-local memoization table. Concurrent misses for the
// same key coalesce into a single factory invocation via
// golang.org/x/sync/singleflight, so no hand-rolled per-key mutex table is
// needed.
type Cache struct {
	ttl   time.Duration
	group singleflight.Group

	mu      sync.RWMutex
	entries map[string]entry
}

// New builds a Cache with the given time-to-live. ttl <= 0 uses DefaultTTL.
func New(ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{ttl: ttl, entries: make(map[string]entry)}
}

// ScoreKey builds the score:<PKG> cache key (upper-cased package name).
func ScoreKey(pkg string) string {
	return "score:" + strings.ToUpper(pkg)
}

// DependencyKey builds the deps:<PKG>:<VER>[:with-dev] cache key.
func DependencyKey(pkg, version string, includeDev bool) string {
	key := "deps:" + strings.ToUpper(pkg) + ":" + strings.ToUpper(version)
	if includeDev {
		key += ":with-dev"
	}
	return key
}

// Get returns the cached value for key, or false if absent or expired.
func (c *Cache) Get(key string) (any, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok || time.Now().After(e.expires) {
		return nil, false
	}
	return e.value, true
}

// GetOrLoad returns the cached value for key, or invokes factory exactly
// once across all concurrent callers sharing that key. A canceled context
// never populates the cache, and a failed factory invocation stores
// nothing.
func (c *Cache) GetOrLoad(ctx context.Context, key string, factory func(context.Context) (any, error)) (any, error) {
	if v, ok := c.Get(key); ok {
		return v, nil
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		value, ferr := factory(ctx)
		if ferr != nil {
			return nil, ferr
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		c.mu.Lock()
		c.entries[key] = entry{value: value, expires: time.Now().Add(c.ttl)}
		c.mu.Unlock()
		return value, nil
	})
	if err != nil {
		return nil, err
	}
	return v, nil
}

// Purge removes every entry.
func (c *Cache) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]entry)
}
