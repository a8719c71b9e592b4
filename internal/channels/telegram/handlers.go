package telegram

import (
	"context"
	"log/slog"
	"strings"

	"github.com/mymmrac/telego"

	"github.com/nextlevelbuilder/subgate/internal/channels"
	"github.com/nextlevelbuilder/subgate/internal/gate"
)

// handleGroupMessage runs the gate for one group message.
func (c *Channel) handleGroupMessage(ctx context.Context, message *telego.Message) {
	msg, ok := toGateMessage(message)
	if !ok {
		return
	}

	slog.Debug("telegram group message received",
		"chat_id", msg.ChatID,
		"message_id", msg.MessageID,
		"user_id", msg.Author.ID,
		"username", msg.Author.Username,
		"media_group_id", msg.BatchID,
		"text_preview", channels.Truncate(message.Text, 60),
	)

	c.gate.Handle(ctx, msg)
}

// toGateMessage converts a Telegram message into the gate's view of it.
// Messages without a sender (channel posts) are not evaluated.
func toGateMessage(message *telego.Message) (gate.Message, bool) {
	if message == nil || message.From == nil {
		return gate.Message{}, false
	}
	user := message.From
	return gate.Message{
		ChatID:    message.Chat.ID,
		ChatTitle: message.Chat.Title,
		MessageID: message.MessageID,
		BatchID:   message.MediaGroupID,
		Author: gate.Author{
			ID:       user.ID,
			Username: user.Username,
			FullName: fullName(user),
		},
	}, true
}

func fullName(u *telego.User) string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

func isGroupChat(chat telego.Chat) bool {
	return chat.Type == "group" || chat.Type == "supergroup"
}

// isServiceMessage reports whether a message carries no user content
// (member added/removed, title changed, pinned message, etc.).
func isServiceMessage(msg *telego.Message) bool {
	// Has text or caption → user message
	if msg.Text != "" || msg.Caption != "" {
		return false
	}

	// Has media → user message (photo, audio, video, document, sticker, etc.)
	if msg.Photo != nil || msg.Audio != nil || msg.Video != nil ||
		msg.Document != nil || msg.Voice != nil || msg.VideoNote != nil ||
		msg.Sticker != nil || msg.Animation != nil || msg.Contact != nil ||
		msg.Location != nil || msg.Venue != nil || msg.Poll != nil ||
		msg.Dice != nil || msg.Story != nil {
		return false
	}

	return true
}
