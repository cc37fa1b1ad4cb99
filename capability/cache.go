package capability

import (
	"context"
	"sync"
	"time"
)

// DefaultCacheTTL is how long a discovered profile is reused.
const DefaultCacheTTL = 15 * time.Minute

// Cache stores capability profiles keyed by agent URL.
type Cache interface {
	Get(ctx context.Context, agentURL string) (*Profile, bool)
	Set(ctx context.Context, agentURL string, profile *Profile)
	Delete(ctx context.Context, agentURL string)
}

// entry is a cached profile with its absolute expiry.
type entry struct {
	value     *Profile
	expiresAt time.Time
}

func (e entry) expired(now time.Time) bool {
	return !now.Before(e.expiresAt)
}

// MemoryCache is a process-local Cache with TTL expiry.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]entry
	ttl     time.Duration
	now     func() time.Time
}

// NewMemoryCache creates a cache. A nil clock uses time.Now.
func NewMemoryCache(ttl time.Duration, now func() time.Time) *MemoryCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	if now == nil {
		now = time.Now
	}
	return &MemoryCache{
		entries: make(map[string]entry),
		ttl:     ttl,
		now:     now,
	}
}

// Get returns a copy of the profile if present and not expired. Expired
// entries are evicted.
func (c *MemoryCache) Get(_ context.Context, agentURL string) (*Profile, bool) {
	c.mu.RLock()
	e, ok := c.entries[agentURL]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if e.expired(c.now()) {
		c.mu.Lock()
		if cur, ok := c.entries[agentURL]; ok && cur.expiresAt.Equal(e.expiresAt) {
			delete(c.entries, agentURL)
		}
		c.mu.Unlock()
		return nil, false
	}
	return e.value.Clone(), true
}

// Set stores a copy of the profile for one TTL.
func (c *MemoryCache) Set(_ context.Context, agentURL string, profile *Profile) {
	value := profile.Clone()
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[agentURL] = entry{value: value, expiresAt: c.now().Add(c.ttl)}
}

// Delete removes one entry.
func (c *MemoryCache) Delete(_ context.Context, agentURL string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, agentURL)
}

// Len counts entries, expired ones included.
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Purge drops every expired entry and returns how many were removed.
func (c *MemoryCache) Purge() int {
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for k, e := range c.entries {
		if e.expired(now) {
			delete(c.entries, k)
			n++
		}
	}
	return n
}
