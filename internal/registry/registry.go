// Package registry is the link registry: read access to monitored chats and
// their required chats for the gate, plus validated write operations for the
// operator tooling.
package registry

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/nextlevelbuilder/subgate/internal/store"
)

var (
	// ErrSelfLink is returned when a chat is linked to itself.
	ErrSelfLink = errors.New("registry: a chat cannot require itself")

	// ErrTargetNotGroup is returned when the link target is a channel.
	ErrTargetNotGroup = errors.New("registry: only groups can require subscriptions")

	// ErrOwnerMismatch is returned when linking chats of different owners.
	ErrOwnerMismatch = errors.New("registry: both chats must belong to the same owner")

	// ErrInvalidKind is returned for an unknown chat kind.
	ErrInvalidKind = errors.New("registry: chat kind must be group or channel")
)

// Registry wraps the chat and user stores.
type Registry struct {
	chats store.ChatStore
	users store.UserStore
}

// New creates a registry over the given stores.
func New(stores *store.Stores) *Registry {
	return &Registry{chats: stores.Chats, users: stores.Users}
}

// ChatByExternalID resolves the monitored chat for a Telegram chat id.
func (r *Registry) ChatByExternalID(ctx context.Context, chatID int64) (*store.MonitoredChat, error) {
	return r.chats.GetChatByChatID(ctx, chatID)
}

// RequiredChats returns the chats a target requires, in link order.
func (r *Registry) RequiredChats(ctx context.Context, targetID int64) ([]store.MonitoredChat, error) {
	return r.chats.ListRequiredChats(ctx, targetID)
}

// RegisterUser returns the user for a private chat id, creating it on first contact.
// created reports whether a new row was inserted.
func (r *Registry) RegisterUser(ctx context.Context, chatID int64, username string) (u *store.User, created bool, err error) {
	u, err = r.users.GetUserByChatID(ctx, chatID)
	if err == nil {
		return u, false, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, false, err
	}

	u, err = r.users.CreateUser(ctx, chatID, username)
	if errors.Is(err, store.ErrDuplicateUser) {
		// Lost a race with a concurrent /start.
		u, err = r.users.GetUserByChatID(ctx, chatID)
		return u, false, err
	}
	if err != nil {
		return nil, false, err
	}
	return u, true, nil
}

// UserByChatID looks up a user by private chat id.
func (r *Registry) UserByChatID(ctx context.Context, chatID int64) (*store.User, error) {
	return r.users.GetUserByChatID(ctx, chatID)
}

// ListUsers returns one page of users and the page count.
func (r *Registry) ListUsers(ctx context.Context, page, limit int) ([]store.User, int, error) {
	return r.users.ListUsers(ctx, page, limit)
}

// AddChat registers a group or channel under an owner.
func (r *Registry) AddChat(ctx context.Context, ownerID, chatID int64, title string, kind store.ChatKind) (*store.MonitoredChat, error) {
	if !kind.Valid() {
		return nil, ErrInvalidKind
	}
	if _, err := r.users.GetUser(ctx, ownerID); err != nil {
		return nil, fmt.Errorf("owner %d: %w", ownerID, err)
	}
	chat := &store.MonitoredChat{
		ChatID:  chatID,
		OwnerID: ownerID,
		Title:   strings.TrimSpace(title),
		Kind:    kind,
	}
	if err := r.chats.CreateChat(ctx, chat); err != nil {
		return nil, err
	}
	return chat, nil
}

// Chats lists an owner's chats (ownerID 0 = all owners, kind "" = all kinds).
func (r *Registry) Chats(ctx context.Context, ownerID int64, kind store.ChatKind) ([]store.MonitoredChat, error) {
	return r.chats.ListChats(ctx, ownerID, kind)
}

// RemoveChat deletes a chat and every link referencing it.
func (r *Registry) RemoveChat(ctx context.Context, id int64) (*store.MonitoredChat, error) {
	return r.chats.DeleteChat(ctx, id)
}

// Link makes target require membership in required.
func (r *Registry) Link(ctx context.Context, targetID, requiredID int64) (*store.RequirementLink, error) {
	if targetID == requiredID {
		return nil, ErrSelfLink
	}
	target, err := r.chats.GetChat(ctx, targetID)
	if err != nil {
		return nil, fmt.Errorf("target chat %d: %w", targetID, err)
	}
	if target.Kind != store.ChatKindGroup {
		return nil, ErrTargetNotGroup
	}
	required, err := r.chats.GetChat(ctx, requiredID)
	if err != nil {
		return nil, fmt.Errorf("required chat %d: %w", requiredID, err)
	}
	if required.OwnerID != target.OwnerID {
		return nil, ErrOwnerMismatch
	}
	return r.chats.CreateLink(ctx, targetID, requiredID)
}

// Unlink removes a single requirement.
func (r *Registry) Unlink(ctx context.Context, targetID, requiredID int64) error {
	return r.chats.DeleteLink(ctx, targetID, requiredID)
}

// LinkableChats lists the target owner's chats that are not yet required by it.
func (r *Registry) LinkableChats(ctx context.Context, targetID int64) ([]store.MonitoredChat, error) {
	target, err := r.chats.GetChat(ctx, targetID)
	if err != nil {
		return nil, err
	}
	return r.chats.ListLinkableChats(ctx, target.ID, target.OwnerID)
}
