package cache

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/nextlevelbuilder/subgate/internal/store"
)

// DefaultActivationTTL bounds how stale a cached activation flag may get.
const DefaultActivationTTL = 5 * time.Minute

const statusField = "status"

// ActivationSwitch answers "is enforcement on for this owner" from the KV
// cache, falling back to the user store on a miss. Toggles made through
// SetActive write through; toggles made elsewhere show up within the TTL.
type ActivationSwitch struct {
	kv     KV
	users  store.UserStore
	prefix string
	ttl    time.Duration
}

// NewActivationSwitch creates the switch; ttl <= 0 falls back to DefaultActivationTTL.
func NewActivationSwitch(kv KV, users store.UserStore, prefix string, ttl time.Duration) *ActivationSwitch {
	if ttl <= 0 {
		ttl = DefaultActivationTTL
	}
	return &ActivationSwitch{kv: kv, users: users, prefix: prefix, ttl: ttl}
}

func (a *ActivationSwitch) key(ownerID int64) string {
	return fmt.Sprintf("%s:user:%d", a.prefix, ownerID)
}

// IsActive reports the owner's activation flag.
func (a *ActivationSwitch) IsActive(ctx context.Context, ownerID int64) (bool, error) {
	raw, ok, err := a.kv.HGet(ctx, a.key(ownerID), statusField)
	if err != nil {
		slog.Warn("activation cache read failed", "owner_id", ownerID, "error", err)
	} else if ok {
		if active, perr := strconv.ParseBool(raw); perr == nil {
			return active, nil
		}
	}

	u, err := a.users.GetUser(ctx, ownerID)
	if err != nil {
		return false, fmt.Errorf("load owner %d: %w", ownerID, err)
	}
	a.Refresh(ctx, u)
	return u.Active, nil
}

// Refresh copies the user's flag into the cache. Failures are logged only.
func (a *ActivationSwitch) Refresh(ctx context.Context, u *store.User) {
	fields := map[string]string{
		statusField: strconv.FormatBool(u.Active),
		"chat_id":   strconv.FormatInt(u.ChatID, 10),
		"username":  u.Username,
	}
	if err := a.kv.HSet(ctx, a.key(u.ID), a.ttl, fields); err != nil {
		slog.Warn("activation cache write failed", "owner_id", u.ID, "error", err)
	}
}

// SetActive persists the toggle and writes it through to the cache.
func (a *ActivationSwitch) SetActive(ctx context.Context, ownerID int64, active bool) (*store.User, error) {
	u, err := a.users.SetUserActive(ctx, ownerID, active)
	if err != nil {
		return nil, err
	}
	a.Refresh(ctx, u)
	slog.Info("owner activation changed", "owner_id", ownerID, "active", active)
	return u, nil
}
