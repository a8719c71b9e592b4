package telegram

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/mymmrac/telego"
	"github.com/mymmrac/telego/telegoapi"
	tu "github.com/mymmrac/telego/telegoutil"

	"github.com/nextlevelbuilder/subgate/internal/gate"
)

// Oracle answers chat and membership lookups via the Bot API.
// Every call goes to Telegram; nothing is cached or retried here.
type Oracle struct {
	bot *telego.Bot
}

// NewOracle creates a Bot API backed oracle.
func NewOracle(bot *telego.Bot) *Oracle {
	return &Oracle{bot: bot}
}

// ChatInfo fetches the chat's public metadata (getChat).
func (o *Oracle) ChatInfo(ctx context.Context, chatID int64) (gate.ChatInfo, error) {
	chat, err := o.bot.GetChat(ctx, &telego.GetChatParams{ChatID: tu.ID(chatID)})
	if err != nil {
		return gate.ChatInfo{}, classifyError(err)
	}
	return gate.ChatInfo{
		ID:         chat.ID,
		Title:      chat.Title,
		Username:   chat.Username,
		InviteLink: chat.InviteLink,
	}, nil
}

// MembershipStatus fetches the user's standing in the chat (getChatMember).
func (o *Oracle) MembershipStatus(ctx context.Context, chatID, userID int64) (gate.MembershipStatus, error) {
	member, err := o.bot.GetChatMember(ctx, &telego.GetChatMemberParams{
		ChatID: tu.ID(chatID),
		UserID: userID,
	})
	if err != nil {
		return gate.StatusLookupError, classifyError(err)
	}
	return gate.ParseMembershipStatus(member.MemberStatus()), nil
}

// classifyError maps Bot API failures onto the gate's directory error kinds.
func classifyError(err error) error {
	var apiErr *telegoapi.Error
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode {
		case http.StatusForbidden:
			return fmt.Errorf("%w: %s", gate.ErrPermissionDenied, apiErr.Description)
		case http.StatusBadRequest:
			return fmt.Errorf("%w: %s", gate.ErrNotFound, apiErr.Description)
		}
	}
	return fmt.Errorf("%w: %v", gate.ErrDirectoryUnavailable, err)
}
