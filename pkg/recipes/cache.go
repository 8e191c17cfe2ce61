package recipes

import (
	"sync"
	"time"
)

// cacheEntry holds one fetched document with a timestamp for TTL expiry.
type cacheEntry struct {
	data      []byte
	fetchedAt time.Time
}

// cache is a thread-safe in-memory byte cache with TTL expiration.
// Expired entries are cleaned up lazily on get; no background goroutine.
type cache struct {
	mu      sync.RWMutex
	entries map[string]*cacheEntry
	ttl     time.Duration
}

func newCache(ttl time.Duration) *cache {
	return &cache{
		entries: make(map[string]*cacheEntry),
		ttl:     ttl,
	}
}

func (c *cache) get(key string) ([]byte, bool) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok {
		return nil, false
	}

	if time.Since(entry.fetchedAt) > c.ttl {
		// Re-check under the write lock: a concurrent set may have
		// replaced the entry with a fresh one in the meantime.
		c.mu.Lock()
		if cur, ok := c.entries[key]; ok && time.Since(cur.fetchedAt) > c.ttl {
			delete(c.entries, key)
		}
		c.mu.Unlock()
		return nil, false
	}

	return entry.data, true
}

func (c *cache) set(key string, data []byte) {
	c.mu.Lock()
	c.entries[key] = &cacheEntry{data: data, fetchedAt: time.Now()}
	c.mu.Unlock()
}
