package fetch

import (
	"sync"
	"time"
)

// Cache is a time-bounded response cache keyed by request identity (the
// normalized URL). Expired entries are evicted lazily on lookup; there is no
// background sweep and no size bound — for a session-scoped cache unbounded
// growth is an accepted limitation, not a bug to fix here.
type Cache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]cacheEntry
	now     func() time.Time
}

type cacheEntry struct {
	payload  []byte
	source   string
	storedAt time.Time
}

// NewCache builds a cache whose entries expire after ttl.
func NewCache(ttl time.Duration) *Cache {
	return &Cache{
		ttl:     ttl,
		entries: make(map[string]cacheEntry),
		now:     time.Now,
	}
}

// Get returns the cached payload and its source tag, or ok=false. A stale
// entry is removed before reporting a miss.
func (c *Cache) Get(key string) (payload []byte, source string, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, found := c.entries[key]
	if !found {
		return nil, "", false
	}
	if c.now().Sub(entry.storedAt) > c.ttl {
		delete(c.entries, key)
		return nil, "", false
	}
	return entry.payload, entry.source, true
}

// Set stores a payload under key with the producing source's tag.
func (c *Cache) Set(key string, payload []byte, source string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = cacheEntry{payload: payload, source: source, storedAt: c.now()}
}

// Clear drops every entry.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]cacheEntry)
}

// Stats reports the live entry count and keys, mostly for debug surfaces.
func (c *Cache) Stats() (size int, keys []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	keys = make([]string, 0, len(c.entries))
	for key := range c.entries {
		keys = append(keys, key)
	}
	return len(c.entries), keys
}
