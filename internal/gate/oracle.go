package gate

import (
	"context"
	"errors"
	"fmt"
)

// Directory error kinds. Oracle implementations wrap one of these so the
// evaluator can tell a broken integration from a real membership answer.
var (
	ErrPermissionDenied     = errors.New("directory: permission denied")
	ErrNotFound             = errors.New("directory: not found")
	ErrDirectoryUnavailable = errors.New("directory: unavailable")
)

// MembershipStatus is a user's standing in a chat as reported by the directory.
type MembershipStatus string

const (
	StatusMember        MembershipStatus = "member"
	StatusAdministrator MembershipStatus = "administrator"
	StatusCreator       MembershipStatus = "creator"
	StatusLeft          MembershipStatus = "left"
	StatusKicked        MembershipStatus = "kicked"
	StatusRestricted    MembershipStatus = "restricted"
	StatusLookupError   MembershipStatus = "lookup-error"
)

// ParseMembershipStatus maps a raw directory status; unknown values become StatusLookupError.
func ParseMembershipStatus(raw string) MembershipStatus {
	switch s := MembershipStatus(raw); s {
	case StatusMember, StatusAdministrator, StatusCreator,
		StatusLeft, StatusKicked, StatusRestricted:
		return s
	default:
		return StatusLookupError
	}
}

// Satisfied reports whether the status meets a subscription requirement.
func (s MembershipStatus) Satisfied() bool {
	switch s {
	case StatusMember, StatusAdministrator, StatusCreator:
		return true
	}
	return false
}

// ChatInfo is the live public metadata of a chat.
type ChatInfo struct {
	ID         int64
	Title      string
	Username   string // public handle without "@", empty for private chats
	InviteLink string // primary invite link, visible to admin bots
}

// InviteURL prefers the public handle and falls back to the invite link.
func (c ChatInfo) InviteURL() string {
	if c.Username != "" {
		return "https://t.me/" + c.Username
	}
	return c.InviteLink
}

// Oracle answers chat and membership lookups against the external directory.
// Implementations must not retry or cache: every call reflects the live state.
type Oracle interface {
	ChatInfo(ctx context.Context, chatID int64) (ChatInfo, error)
	MembershipStatus(ctx context.Context, chatID, userID int64) (MembershipStatus, error)
}

// LookupError records which required chat a directory call failed on.
type LookupError struct {
	ChatID int64
	Title  string
	Op     string
	Err    error
}

func (e *LookupError) Error() string {
	return fmt.Sprintf("%s %d (%s): %v", e.Op, e.ChatID, e.Title, e.Err)
}

func (e *LookupError) Unwrap() error { return e.Err }
