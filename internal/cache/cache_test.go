package cache

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nextlevelbuilder/subgate/internal/store"
)

// failingKV returns err from every call.
type failingKV struct {
	*MemoryCache
	err error
}

func (f *failingKV) SetNX(context.Context, string, string, time.Duration) (bool, error) {
	return false, f.err
}

func (f *failingKV) HGet(context.Context, string, string) (string, bool, error) {
	return "", false, f.err
}

// fakeUsers is a minimal in-memory store.UserStore that counts reads.
type fakeUsers struct {
	mu    sync.Mutex
	users map[int64]*store.User
	reads int
}

func (f *fakeUsers) CreateUser(_ context.Context, chatID int64, username string) (*store.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u := &store.User{ID: int64(len(f.users) + 1), ChatID: chatID, Username: username, Active: true}
	f.users[u.ID] = u
	return u, nil
}

func (f *fakeUsers) GetUser(_ context.Context, id int64) (*store.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads++
	u, ok := f.users[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (f *fakeUsers) GetUserByChatID(context.Context, int64) (*store.User, error) {
	return nil, store.ErrNotFound
}

func (f *fakeUsers) SetUserActive(_ context.Context, id int64, active bool) (*store.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	u.Active = active
	cp := *u
	return &cp, nil
}

func (f *fakeUsers) ListUsers(context.Context, int, int) ([]store.User, int, error) {
	return nil, 0, nil
}

func TestDeduplicator_ConcurrentBatchSingleWinner(t *testing.T) {
	d := NewDeduplicator(NewMemoryCache(), "subgate", time.Minute)

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if d.TryAcquire(context.Background(), "g1") {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	if got := wins.Load(); got != 1 {
		t.Fatalf("expected exactly one winner, got %d", got)
	}
}

func TestDeduplicator_ExpiresAfterTTL(t *testing.T) {
	mc := NewMemoryCache()
	now := time.Unix(1_700_000_000, 0)
	mc.now = func() time.Time { return now }
	d := NewDeduplicator(mc, "subgate", 10*time.Second)
	ctx := context.Background()

	if !d.TryAcquire(ctx, "g1") {
		t.Fatal("expected first acquire to win")
	}
	now = now.Add(9 * time.Second)
	if d.TryAcquire(ctx, "g1") {
		t.Fatal("expected acquire inside TTL to lose")
	}
	now = now.Add(2 * time.Second)
	if !d.TryAcquire(ctx, "g1") {
		t.Fatal("expected acquire after TTL to win again")
	}
}

func TestDeduplicator_UngroupedAlwaysWins(t *testing.T) {
	d := NewDeduplicator(&failingKV{err: errors.New("must not be called")}, "subgate", 0)
	for i := 0; i < 3; i++ {
		if !d.TryAcquire(context.Background(), "") {
			t.Fatal("expected ungrouped message to always notify")
		}
	}
}

func TestDeduplicator_StoreErrorNotifies(t *testing.T) {
	d := NewDeduplicator(&failingKV{err: errors.New("connection refused")}, "subgate", 0)
	if !d.TryAcquire(context.Background(), "g1") {
		t.Fatal("expected store failure to fall back to notifying")
	}
}

func TestDeduplicator_SeparateBatches(t *testing.T) {
	d := NewDeduplicator(NewMemoryCache(), "subgate", time.Minute)
	ctx := context.Background()
	if !d.TryAcquire(ctx, "g1") || !d.TryAcquire(ctx, "g2") {
		t.Fatal("expected distinct batches to each win once")
	}
}

func TestActivationSwitch_CachesAfterMiss(t *testing.T) {
	users := &fakeUsers{users: map[int64]*store.User{7: {ID: 7, ChatID: 700, Active: true}}}
	a := NewActivationSwitch(NewMemoryCache(), users, "subgate", time.Minute)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		active, err := a.IsActive(ctx, 7)
		if err != nil {
			t.Fatalf("is active: %v", err)
		}
		if !active {
			t.Fatal("expected owner to be active")
		}
	}
	if users.reads != 1 {
		t.Fatalf("expected a single store read, got %d", users.reads)
	}
}

func TestActivationSwitch_SetActiveWritesThrough(t *testing.T) {
	users := &fakeUsers{users: map[int64]*store.User{7: {ID: 7, Active: true}}}
	a := NewActivationSwitch(NewMemoryCache(), users, "subgate", time.Minute)
	ctx := context.Background()

	if _, err := a.IsActive(ctx, 7); err != nil {
		t.Fatalf("warm cache: %v", err)
	}
	if _, err := a.SetActive(ctx, 7, false); err != nil {
		t.Fatalf("set active: %v", err)
	}

	active, err := a.IsActive(ctx, 7)
	if err != nil {
		t.Fatalf("is active: %v", err)
	}
	if active {
		t.Fatal("expected deactivation to be visible immediately")
	}
}

func TestActivationSwitch_UnknownOwner(t *testing.T) {
	users := &fakeUsers{users: map[int64]*store.User{}}
	a := NewActivationSwitch(NewMemoryCache(), users, "subgate", 0)

	if _, err := a.IsActive(context.Background(), 42); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestActivationSwitch_CacheErrorFallsBackToStore(t *testing.T) {
	users := &fakeUsers{users: map[int64]*store.User{7: {ID: 7, Active: false}}}
	a := NewActivationSwitch(&failingKV{MemoryCache: NewMemoryCache(), err: errors.New("down")}, users, "subgate", 0)

	active, err := a.IsActive(context.Background(), 7)
	if err != nil {
		t.Fatalf("is active: %v", err)
	}
	if active {
		t.Fatal("expected store value when cache is down")
	}
}

func TestMemoryCache_EvictsLiveEntriesAtCap(t *testing.T) {
	c := NewMemoryCache()
	ctx := context.Background()
	for i := 0; i < maxTrackedKeys+100; i++ {
		key := "batch:" + strconv.Itoa(i)
		if ok, err := c.SetNX(ctx, key, "1", time.Hour); err != nil || !ok {
			t.Fatalf("SetNX(%s): expected fresh key, got ok=%v err=%v", key, ok, err)
		}
	}
	c.mu.Lock()
	n := len(c.entries)
	c.mu.Unlock()
	if n > maxTrackedKeys {
		t.Fatalf("expected at most %d entries, got %d", maxTrackedKeys, n)
	}
	if ok, _ := c.SetNX(ctx, "batch:"+strconv.Itoa(maxTrackedKeys+99), "1", time.Hour); ok {
		t.Fatal("expected most recent key to survive eviction")
	}
}
