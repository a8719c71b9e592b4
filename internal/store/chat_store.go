package store

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned by point reads that match no row.
	ErrNotFound = errors.New("store: not found")

	// ErrDuplicateChat is returned when an owner registers the same external chat twice.
	ErrDuplicateChat = errors.New("store: chat already registered for this owner")

	// ErrDuplicateLink is returned when a (target, required) pair already exists.
	ErrDuplicateLink = errors.New("store: chat link already exists")

	// ErrDuplicateUser is returned when a user with the same external chat id exists.
	ErrDuplicateUser = errors.New("store: user already exists")
)

// ChatKind distinguishes groups (which can be gated) from channels.
type ChatKind string

const (
	ChatKindGroup   ChatKind = "group"
	ChatKindChannel ChatKind = "channel"
)

// Valid reports whether k is one of the known chat kinds.
func (k ChatKind) Valid() bool {
	return k == ChatKindGroup || k == ChatKindChannel
}

// Role names stored in User.Roles.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// User is a bot-facing account, created on the first private interaction.
type User struct {
	ID        int64     `json:"id"`
	ChatID    int64     `json:"chat_id"` // Telegram private chat id
	Username  string    `json:"username"`
	Roles     []string  `json:"roles"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// HasRole reports whether the user carries the given role.
func (u *User) HasRole(role string) bool {
	for _, r := range u.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// MonitoredChat is a group or channel registered by an owner.
type MonitoredChat struct {
	ID        int64     `json:"id"`
	ChatID    int64     `json:"chat_id"` // Telegram chat id
	OwnerID   int64     `json:"owner_id"`
	Title     string    `json:"title"`
	Kind      ChatKind  `json:"kind"`
	CreatedAt time.Time `json:"created_at"`
}

// RequirementLink says "TargetID requires membership in RequiredID".
type RequirementLink struct {
	ID         int64 `json:"id"`
	TargetID   int64 `json:"target_id"`
	RequiredID int64 `json:"required_id"`
}

// UserStore manages bot users.
type UserStore interface {
	CreateUser(ctx context.Context, chatID int64, username string) (*User, error)
	GetUser(ctx context.Context, id int64) (*User, error)
	GetUserByChatID(ctx context.Context, chatID int64) (*User, error)
	SetUserActive(ctx context.Context, id int64, active bool) (*User, error)
	// ListUsers returns one page (1-based) and the total page count.
	ListUsers(ctx context.Context, page, limit int) ([]User, int, error)
}

// ChatStore manages monitored chats and the links between them.
type ChatStore interface {
	CreateChat(ctx context.Context, chat *MonitoredChat) error
	GetChat(ctx context.Context, id int64) (*MonitoredChat, error)
	// GetChatByChatID returns the oldest registration of an external chat id.
	GetChatByChatID(ctx context.Context, chatID int64) (*MonitoredChat, error)
	ListChats(ctx context.Context, ownerID int64, kind ChatKind) ([]MonitoredChat, error)
	// DeleteChat removes the chat and every link that references it.
	DeleteChat(ctx context.Context, id int64) (*MonitoredChat, error)

	CreateLink(ctx context.Context, targetID, requiredID int64) (*RequirementLink, error)
	DeleteLink(ctx context.Context, targetID, requiredID int64) error
	// ListRequiredChats returns the required chats of a target in link order.
	ListRequiredChats(ctx context.Context, targetID int64) ([]MonitoredChat, error)
	// ListLinkableChats returns the owner's chats that the target could still require.
	ListLinkableChats(ctx context.Context, targetID, ownerID int64) ([]MonitoredChat, error)
}
