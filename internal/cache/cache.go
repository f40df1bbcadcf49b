// Package cache is the short-TTL read cache in front of the stats and
// incident computations, there to absorb dashboard polling. Misses fall
// through synchronously; there is no background refresh.
package cache

import (
	"fmt"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// Named computations fronted by the cache.
const (
	KeyStatusPage      = "status-page"
	KeyRecentIncidents = "recent-incidents"
)

// DefaultTTL is how long a computed read survives before the next caller
// recomputes it.
const DefaultTTL = 60 * time.Second

// Cache is a process-local TTL cache. All entries share one invalidation:
// InvalidateAll forces every named computation to recompute on next read.
type Cache struct {
	c   *gocache.Cache
	ttl time.Duration
}

// New creates a new cache with the given TTL
func New(ttl time.Duration) *Cache {
	return &Cache{
		c:   gocache.New(ttl, 2*ttl),
		ttl: ttl,
	}
}

// Get retrieves a cached value
func (c *Cache) Get(key string) (interface{}, bool) {
	return c.c.Get(key)
}

// Set stores a value under the cache's TTL
func (c *Cache) Set(key string, value interface{}) {
	c.c.Set(key, value, c.ttl)
}

// InvalidateAll drops every entry so the next read of each computation
// falls through to storage.
func (c *Cache) InvalidateAll() {
	c.c.Flush()
}

// IncidentsKey builds the cache key for an incidents read with the given
// (already clamped) limit. The key is independent of caller identity.
func IncidentsKey(limit int) string {
	return fmt.Sprintf("%s:%d", KeyRecentIncidents, limit)
}
