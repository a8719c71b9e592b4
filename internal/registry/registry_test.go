package registry

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/nextlevelbuilder/subgate/internal/store"
	"github.com/nextlevelbuilder/subgate/internal/store/sqlite"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	stores, err := sqlite.NewSQLiteStores(store.StoreConfig{
		SQLitePath: filepath.Join(t.TempDir(), "registry.db"),
	})
	if err != nil {
		t.Fatalf("open stores: %v", err)
	}
	t.Cleanup(func() { stores.Close() })
	return New(stores)
}

type fixture struct {
	owner   *store.User
	group   *store.MonitoredChat
	channel *store.MonitoredChat
}

func setup(t *testing.T, r *Registry) fixture {
	t.Helper()
	ctx := context.Background()
	owner, created, err := r.RegisterUser(ctx, 100, "owner")
	if err != nil || !created {
		t.Fatalf("register user: created=%v err=%v", created, err)
	}
	group, err := r.AddChat(ctx, owner.ID, -1001, " Main group ", store.ChatKindGroup)
	if err != nil {
		t.Fatalf("add group: %v", err)
	}
	channel, err := r.AddChat(ctx, owner.ID, -1002, "News", store.ChatKindChannel)
	if err != nil {
		t.Fatalf("add channel: %v", err)
	}
	return fixture{owner: owner, group: group, channel: channel}
}

func TestRegisterUser_Idempotent(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()

	first, created, err := r.RegisterUser(ctx, 100, "owner")
	if err != nil || !created {
		t.Fatalf("expected creation, got created=%v err=%v", created, err)
	}
	second, created, err := r.RegisterUser(ctx, 100, "owner")
	if err != nil {
		t.Fatalf("register again: %v", err)
	}
	if created {
		t.Fatal("expected existing user to be returned")
	}
	if second.ID != first.ID {
		t.Fatalf("expected same user id %d, got %d", first.ID, second.ID)
	}
}

func TestAddChat_TrimsTitleAndValidatesKind(t *testing.T) {
	r := newTestRegistry(t)
	f := setup(t, r)

	if f.group.Title != "Main group" {
		t.Fatalf("expected trimmed title, got %q", f.group.Title)
	}
	if _, err := r.AddChat(context.Background(), f.owner.ID, -1003, "x", "supergroup"); !errors.Is(err, ErrInvalidKind) {
		t.Fatalf("expected ErrInvalidKind, got %v", err)
	}
	if _, err := r.AddChat(context.Background(), 999, -1003, "x", store.ChatKindGroup); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown owner, got %v", err)
	}
}

func TestLink_Validation(t *testing.T) {
	r := newTestRegistry(t)
	f := setup(t, r)
	ctx := context.Background()

	tests := []struct {
		name     string
		target   int64
		required int64
		want     error
	}{
		{"self link", f.group.ID, f.group.ID, ErrSelfLink},
		{"channel target", f.channel.ID, f.group.ID, ErrTargetNotGroup},
		{"missing required", f.group.ID, 999, store.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := r.Link(ctx, tt.target, tt.required); !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestLink_OwnerMismatch(t *testing.T) {
	r := newTestRegistry(t)
	f := setup(t, r)
	ctx := context.Background()

	other, _, err := r.RegisterUser(ctx, 200, "other")
	if err != nil {
		t.Fatalf("register other: %v", err)
	}
	foreign, err := r.AddChat(ctx, other.ID, -2001, "Foreign", store.ChatKindChannel)
	if err != nil {
		t.Fatalf("add foreign chat: %v", err)
	}
	if _, err := r.Link(ctx, f.group.ID, foreign.ID); !errors.Is(err, ErrOwnerMismatch) {
		t.Fatalf("expected ErrOwnerMismatch, got %v", err)
	}
}

func TestLink_DuplicateRejected(t *testing.T) {
	r := newTestRegistry(t)
	f := setup(t, r)
	ctx := context.Background()

	if _, err := r.Link(ctx, f.group.ID, f.channel.ID); err != nil {
		t.Fatalf("link: %v", err)
	}
	if _, err := r.Link(ctx, f.group.ID, f.channel.ID); !errors.Is(err, store.ErrDuplicateLink) {
		t.Fatalf("expected ErrDuplicateLink, got %v", err)
	}

	required, err := r.RequiredChats(ctx, f.group.ID)
	if err != nil {
		t.Fatalf("required chats: %v", err)
	}
	if len(required) != 1 {
		t.Fatalf("expected link set unchanged (1 link), got %d", len(required))
	}
}

func TestLinkableChats_ExcludesLinkedAndSelf(t *testing.T) {
	r := newTestRegistry(t)
	f := setup(t, r)
	ctx := context.Background()

	before, err := r.LinkableChats(ctx, f.group.ID)
	if err != nil {
		t.Fatalf("linkable: %v", err)
	}
	if len(before) != 1 || before[0].ID != f.channel.ID {
		t.Fatalf("expected the channel to be linkable, got %+v", before)
	}

	if _, err := r.Link(ctx, f.group.ID, f.channel.ID); err != nil {
		t.Fatalf("link: %v", err)
	}
	after, err := r.LinkableChats(ctx, f.group.ID)
	if err != nil {
		t.Fatalf("linkable: %v", err)
	}
	if len(after) != 0 {
		t.Fatalf("expected nothing linkable, got %+v", after)
	}
}

func TestUnlink(t *testing.T) {
	r := newTestRegistry(t)
	f := setup(t, r)
	ctx := context.Background()

	if err := r.Unlink(ctx, f.group.ID, f.channel.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for missing link, got %v", err)
	}
	if _, err := r.Link(ctx, f.group.ID, f.channel.ID); err != nil {
		t.Fatalf("link: %v", err)
	}
	if err := r.Unlink(ctx, f.group.ID, f.channel.ID); err != nil {
		t.Fatalf("unlink: %v", err)
	}
}
