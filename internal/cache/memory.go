package cache

import (
	"context"
	"sync"
	"time"
)

const maxTrackedKeys = 4096

type memEntry struct {
	value     string
	fields    map[string]string
	expiresAt time.Time // zero = no expiry
}

func (e *memEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

// MemoryCache is an in-process KV used in standalone mode.
// Safe for concurrent use; SetNX is atomic under the mutex.
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]*memEntry
	now     func() time.Time
}

// NewMemoryCache creates an empty in-process cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string]*memEntry), now: time.Now}
}

func expiryFor(now time.Time, ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return now.Add(ttl)
}

// lookup returns a live entry, dropping it if it has expired. Caller holds mu.
func (c *MemoryCache) lookup(key string, now time.Time) *memEntry {
	e, ok := c.entries[key]
	if !ok {
		return nil
	}
	if e.expired(now) {
		delete(c.entries, key)
		return nil
	}
	return e
}

// prune drops expired entries when at the cap, then evicts arbitrary
// entries until there is room for one more. Caller holds mu.
func (c *MemoryCache) prune(now time.Time) {
	if len(c.entries) < maxTrackedKeys {
		return
	}
	for k, e := range c.entries {
		if e.expired(now) {
			delete(c.entries, k)
		}
	}
	// Hard eviction if still at cap (FIFO-ish via map iteration)
	for len(c.entries) >= maxTrackedKeys {
		for k := range c.entries {
			delete(c.entries, k)
			break
		}
	}
}

func (c *MemoryCache) SetNX(_ context.Context, key, value string, ttl time.Duration) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if c.lookup(key, now) != nil {
		return false, nil
	}
	c.prune(now)
	c.entries[key] = &memEntry{value: value, expiresAt: expiryFor(now, ttl)}
	return true, nil
}

func (c *MemoryCache) HGet(_ context.Context, key, field string) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e := c.lookup(key, c.now())
	if e == nil || e.fields == nil {
		return "", false, nil
	}
	v, ok := e.fields[field]
	return v, ok, nil
}

func (c *MemoryCache) HSet(_ context.Context, key string, ttl time.Duration, fields map[string]string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	e := c.lookup(key, now)
	if e == nil {
		c.prune(now)
		e = &memEntry{}
		c.entries[key] = e
	}
	if e.fields == nil {
		e.fields = make(map[string]string, len(fields))
	}
	for k, v := range fields {
		e.fields[k] = v
	}
	e.expiresAt = expiryFor(now, ttl)
	return nil
}

func (c *MemoryCache) Ping(context.Context) error { return nil }

func (c *MemoryCache) Close() error { return nil }
