package application

import (
	"sync"
	"time"
)

// linkCache keeps recently resolved short codes in memory. Codes never change
// their destination, so entries only leave through expiry or eviction.
type linkCache struct {
	mu         sync.RWMutex
	now        func() time.Time
	ttl        time.Duration
	maxEntries int
	entries    map[string]linkCacheEntry
}

type linkCacheEntry struct {
	destination string
	expiresAt   time.Time
}

func newLinkCache(ttl time.Duration, maxEntries int, now func() time.Time) *linkCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if maxEntries <= 0 {
		maxEntries = 1024
	}
	if now == nil {
		now = time.Now
	}
	return &linkCache{
		now:        now,
		ttl:        ttl,
		maxEntries: maxEntries,
		entries:    make(map[string]linkCacheEntry),
	}
}

func (c *linkCache) Get(code string) (string, bool) {
	if c == nil {
		return "", false
	}
	c.mu.RLock()
	entry, ok := c.entries[code]
	c.mu.RUnlock()
	if !ok {
		return "", false
	}
	now := c.now()
	if !now.After(entry.expiresAt) {
		return entry.destination, true
	}

	c.mu.Lock()
	// A concurrent Store may have refreshed the code since the read.
	if current, ok := c.entries[code]; ok && now.After(current.expiresAt) {
		delete(c.entries, code)
	}
	c.mu.Unlock()
	return "", false
}

func (c *linkCache) Store(code, destination string) {
	if c == nil {
		return
	}
	expiry := c.now().Add(c.ttl)

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.entries[code]; !ok && len(c.entries) >= c.maxEntries {
		c.cleanupLocked()
		if len(c.entries) >= c.maxEntries {
			c.evictOneLocked()
		}
	}
	c.entries[code] = linkCacheEntry{destination: destination, expiresAt: expiry}
}

func (c *linkCache) Len() int {
	if c == nil {
		return 0
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *linkCache) cleanupLocked() {
	now := c.now()
	for code, entry := range c.entries {
		if now.After(entry.expiresAt) {
			delete(c.entries, code)
		}
	}
}

// evictOneLocked drops the entry closest to expiry.
func (c *linkCache) evictOneLocked() {
	var (
		victim string
		oldest time.Time
	)
	for code, entry := range c.entries {
		if victim == "" || entry.expiresAt.Before(oldest) {
			victim, oldest = code, entry.expiresAt
		}
	}
	delete(c.entries, victim)
}
