package spatial

import (
	"strconv"
	"sync"
	"sync/atomic"
	"time"
)

// QueryCache is a concurrent-safe LRU cache of bounding-box query results
// with TTL expiration.
type QueryCache struct {
	mu         sync.Mutex
	entries    map[string]*queryCacheEntry
	order      []string // LRU order: front=oldest, back=newest
	maxEntries int
	ttl        time.Duration
	hits       atomic.Int64
	misses     atomic.Int64
	generation uint64
	now        func() time.Time
}

type queryCacheEntry struct {
	ids       []string
	createdAt time.Time
}

// CacheStats contains cache performance statistics.
type CacheStats struct {
	Entries    int     `json:"entries"`
	MaxEntries int     `json:"max_entries"`
	Hits       int64   `json:"hits"`
	Misses     int64   `json:"misses"`
	HitRate    float64 `json:"hit_rate"`
}

// NewQueryCache creates a QueryCache with the given capacity and TTL.
func NewQueryCache(maxEntries int, ttl time.Duration) *QueryCache {
	if maxEntries < 1 {
		maxEntries = 1
	}
	return &QueryCache{
		entries:    make(map[string]*queryCacheEntry),
		maxEntries: maxEntries,
		ttl:        ttl,
		now:        time.Now,
	}
}

func queryKey(bbox BBox, srid int) string {
	return strconv.Itoa(srid) + "|" + bbox.String()
}

// Get returns the cached IDs for a query. ok is false on miss or expiration.
func (c *QueryCache) Get(bbox BBox, srid int) ([]string, bool) {
	key := queryKey(bbox, srid)

	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		c.misses.Add(1)
		return nil, false
	}

	if c.now().Sub(entry.createdAt) > c.ttl {
		delete(c.entries, key)
		c.removeFromOrder(key)
		c.misses.Add(1)
		return nil, false
	}

	// Move to back (most recently used).
	c.removeFromOrder(key)
	c.order = append(c.order, key)
	c.hits.Add(1)
	return append([]string(nil), entry.ids...), true
}

// Generation returns a counter that Purge advances. Read it before querying
// the store and hand it to PutIfGeneration.
func (c *QueryCache) Generation() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generation
}

// Put stores a query result, evicting the oldest entry if at capacity.
func (c *QueryCache) Put(bbox BBox, srid int, ids []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.put(bbox, srid, ids)
}

// PutIfGeneration stores a query result only if no Purge ran since gen was
// read. It reports whether the result was stored.
func (c *QueryCache) PutIfGeneration(bbox BBox, srid int, ids []string, gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.generation != gen {
		return false
	}
	c.put(bbox, srid, ids)
	return true
}

func (c *QueryCache) put(bbox BBox, srid int, ids []string) {
	key := queryKey(bbox, srid)
	entry := &queryCacheEntry{ids: append([]string(nil), ids...), createdAt: c.now()}

	if _, ok := c.entries[key]; ok {
		c.entries[key] = entry
		c.removeFromOrder(key)
		c.order = append(c.order, key)
		return
	}

	for len(c.entries) >= c.maxEntries && len(c.order) > 0 {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.entries, oldest)
	}

	c.entries[key] = entry
	c.order = append(c.order, key)
}

// Purge drops every cached result. Any extent write can change any answer.
func (c *QueryCache) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]*queryCacheEntry)
	c.order = nil
	c.generation++
}

// Stats returns cache performance statistics.
func (c *QueryCache) Stats() CacheStats {
	c.mu.Lock()
	entries := len(c.entries)
	maxEntries := c.maxEntries
	c.mu.Unlock()

	hits := c.hits.Load()
	misses := c.misses.Load()

	var hitRate float64
	if total := hits + misses; total > 0 {
		hitRate = float64(hits) / float64(total)
	}

	return CacheStats{
		Entries:    entries,
		MaxEntries: maxEntries,
		Hits:       hits,
		Misses:     misses,
		HitRate:    hitRate,
	}
}

// removeFromOrder removes a key from the LRU order slice.
func (c *QueryCache) removeFromOrder(key string) {
	for i, k := range c.order {
		if k == key {
			c.order = append(c.order[:i], c.order[i+1:]...)
			return
		}
	}
}
