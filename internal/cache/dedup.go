package cache

import (
	"context"
	"log/slog"
	"time"
)

// DefaultDedupTTL is how long a batch notification lock lives.
const DefaultDedupTTL = 10 * time.Second

// dedupSentinel is the fixed lock value: presence plus TTL is the whole
// contract, there is no holder identity, handoff or renewal.
const dedupSentinel = "1"

// Deduplicator lets exactly one of several concurrent evaluations of the same
// message batch (album) emit the warning notification.
type Deduplicator struct {
	kv     KV
	prefix string
	ttl    time.Duration
}

// NewDeduplicator creates a batch gate; ttl <= 0 falls back to DefaultDedupTTL.
func NewDeduplicator(kv KV, prefix string, ttl time.Duration) *Deduplicator {
	if ttl <= 0 {
		ttl = DefaultDedupTTL
	}
	return &Deduplicator{kv: kv, prefix: prefix, ttl: ttl}
}

func (d *Deduplicator) key(batchID string) string {
	return d.prefix + ":mediagroup:" + batchID
}

// TryAcquire returns true for the first caller per batch within the TTL window.
// Ungrouped messages (empty batchID) always get true without touching the store.
// A store failure also returns true: a duplicate notice beats a silent delete.
func (d *Deduplicator) TryAcquire(ctx context.Context, batchID string) bool {
	if batchID == "" {
		return true
	}
	ok, err := d.kv.SetNX(ctx, d.key(batchID), dedupSentinel, d.ttl)
	if err != nil {
		slog.Warn("dedup lock failed, notifying anyway", "batch_id", batchID, "error", err)
		return true
	}
	return ok
}
