package tiles

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Tile is one fetched basemap tile.
type Tile struct {
	Data        []byte
	ContentType string
}

// Cache is a concurrent-safe LRU tile cache with TTL expiration.
type Cache struct {
	lru        *expirable.LRU[string, Tile]
	maxEntries int
	hits       atomic.Int64
	misses     atomic.Int64
}

// CacheStats contains cache performance statistics.
type CacheStats struct {
	Entries    int     `json:"entries"`
	MaxEntries int     `json:"max_entries"`
	Hits       int64   `json:"hits"`
	Misses     int64   `json:"misses"`
	HitRate    float64 `json:"hit_rate"`
}

// NewCache creates a Cache holding at most maxEntries tiles for ttl each.
func NewCache(maxEntries int, ttl time.Duration) *Cache {
	if maxEntries <= 0 {
		maxEntries = 1
	}
	return &Cache{
		lru:        expirable.NewLRU[string, Tile](maxEntries, nil, ttl),
		maxEntries: maxEntries,
	}
}

func tileKey(source string, z, x, y int) string {
	return fmt.Sprintf("%s|%d/%d/%d", source, z, x, y)
}

// Get returns a cached tile of source.
func (c *Cache) Get(source string, z, x, y int) (Tile, bool) {
	t, ok := c.lru.Get(tileKey(source, z, x, y))
	if !ok {
		c.misses.Add(1)
		return Tile{}, false
	}
	c.hits.Add(1)
	return t, true
}

// Put stores a tile, evicting the least recently used one at capacity.
func (c *Cache) Put(source string, z, x, y int, t Tile) {
	c.lru.Add(tileKey(source, z, x, y), t)
}

// Purge drops every entry.
func (c *Cache) Purge() {
	c.lru.Purge()
}

// Stats returns cache performance statistics.
func (c *Cache) Stats() CacheStats {
	hits := c.hits.Load()
	misses := c.misses.Load()
	var hitRate float64
	if total := hits + misses; total > 0 {
		hitRate = float64(hits) / float64(total)
	}
	return CacheStats{
		Entries:    c.lru.Len(),
		MaxEntries: c.maxEntries,
		Hits:       hits,
		Misses:     misses,
		HitRate:    hitRate,
	}
}
