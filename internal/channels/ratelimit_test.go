package channels

import (
	"testing"
	"time"
)

func TestSenderRateLimiter_WindowResets(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	r := NewSenderRateLimiter(time.Minute, 2)
	r.now = func() time.Time { return now }

	if !r.Allow(1) || !r.Allow(1) {
		t.Fatal("expected first two commands to pass")
	}
	if r.Allow(1) {
		t.Fatal("expected third command in window to be throttled")
	}
	if !r.Allow(2) {
		t.Fatal("expected another sender to be unaffected")
	}

	now = now.Add(time.Minute)
	if !r.Allow(1) {
		t.Fatal("expected window reset to allow again")
	}
}

func TestSenderRateLimiter_BoundedKeys(t *testing.T) {
	r := NewSenderRateLimiter(0, 0)
	for i := int64(0); i < maxTrackedKeys+10; i++ {
		r.Allow(i)
	}
	if n := len(r.entries); n > maxTrackedKeys {
		t.Fatalf("expected at most %d tracked senders, got %d", maxTrackedKeys, n)
	}
}

func TestTruncate(t *testing.T) {
	if got := Truncate("hello", 10); got != "hello" {
		t.Fatalf("expected unchanged, got %q", got)
	}
	if got := Truncate("hello world", 5); got != "hello..." {
		t.Fatalf("expected truncation, got %q", got)
	}
}
