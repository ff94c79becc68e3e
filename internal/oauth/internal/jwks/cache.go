package jwks

import (
	"sync"
	"time"
)

// cacheEntry represents a cached signing key with expiration.
type cacheEntry struct {
	key       *SigningKey
	expiresAt time.Time
}

// Cache provides an in-memory cache for signing keys with TTL.
// Entries are refreshed whenever a later JWKS download still contains them,
// so keys that were rotated out disappear once their TTL elapses.
// It is safe for concurrent use by multiple goroutines.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]*cacheEntry
	ttl     time.Duration
	now     func() time.Time
}

// NewCache creates a new signing key cache with the specified TTL.
func NewCache(ttl time.Duration) *Cache {
	return &Cache{
		entries: make(map[string]*cacheEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

// Get retrieves a key from the cache by key ID.
// Returns nil if the key is not found or has expired.
func (c *Cache) Get(keyID string) *SigningKey {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[keyID]
	if !ok {
		return nil
	}

	if !c.now().Before(entry.expiresAt) {
		return nil
	}

	return entry.key
}

// SetAll stores keys from one JWKS download with the configured TTL.
func (c *Cache) SetAll(keys []*SigningKey) {
	c.mu.Lock()
	defer c.mu.Unlock()

	expiresAt := c.now().Add(c.ttl)
	for _, key := range keys {
		c.entries[key.KeyID] = &cacheEntry{
			key:       key,
			expiresAt: expiresAt,
		}
	}
}

// Cleanup removes all expired entries from the cache.
func (c *Cache) Cleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for keyID, entry := range c.entries {
		if !now.Before(entry.expiresAt) {
			delete(c.entries, keyID)
		}
	}
}

// Size returns the number of entries currently in the cache.
// Note: This includes expired entries that haven't been cleaned up yet.
func (c *Cache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.entries)
}
