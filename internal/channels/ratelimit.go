package channels

import (
	"sync"
	"time"
)

const (
	// maxTrackedKeys caps the number of tracked senders to bound memory.
	maxTrackedKeys = 4096

	// DefaultCommandWindow is the sliding window duration for rate counting.
	DefaultCommandWindow = 60 * time.Second

	// DefaultCommandMaxHits is the max commands per sender within a window.
	DefaultCommandMaxHits = 20
)

type rateLimitEntry struct {
	windowStart time.Time
	count       int
}

// SenderRateLimiter throttles private commands per sender with a fixed window.
// Safe for concurrent use.
type SenderRateLimiter struct {
	mu      sync.Mutex
	entries map[int64]*rateLimitEntry
	window  time.Duration
	maxHits int
	now     func() time.Time
}

// NewSenderRateLimiter creates a bounded limiter; zero arguments use the defaults.
func NewSenderRateLimiter(window time.Duration, maxHits int) *SenderRateLimiter {
	if window <= 0 {
		window = DefaultCommandWindow
	}
	if maxHits <= 0 {
		maxHits = DefaultCommandMaxHits
	}
	return &SenderRateLimiter{
		entries: make(map[int64]*rateLimitEntry),
		window:  window,
		maxHits: maxHits,
		now:     time.Now,
	}
}

// Allow returns true if the sender is within limits.
// Automatically prunes stale entries and enforces a hard cap on tracked senders.
func (r *SenderRateLimiter) Allow(senderID int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()

	if len(r.entries) >= maxTrackedKeys {
		for k, e := range r.entries {
			if now.Sub(e.windowStart) >= r.window {
				delete(r.entries, k)
			}
		}
		// Hard eviction if still at cap (FIFO-ish via map iteration)
		for len(r.entries) >= maxTrackedKeys {
			for k := range r.entries {
				delete(r.entries, k)
				break
			}
		}
	}

	e, ok := r.entries[senderID]
	if !ok || now.Sub(e.windowStart) >= r.window {
		r.entries[senderID] = &rateLimitEntry{windowStart: now, count: 1}
		return true
	}

	e.count++
	return e.count <= r.maxHits
}
