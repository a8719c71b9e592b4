package telegram

import (
	"context"
	"fmt"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"
	"golang.org/x/time/rate"

	"github.com/nextlevelbuilder/subgate/internal/gate"
)

// Messenger posts notices and deletes messages, throttled by a shared limiter.
type Messenger struct {
	bot     *telego.Bot
	limiter *rate.Limiter
}

// NewMessenger creates a throttled messenger; rps <= 0 disables throttling.
func NewMessenger(bot *telego.Bot, rps float64, burst int) *Messenger {
	limit := rate.Inf
	if rps > 0 {
		limit = rate.Limit(rps)
	}
	if burst <= 0 {
		burst = 1
	}
	return &Messenger{bot: bot, limiter: rate.NewLimiter(limit, burst)}
}

// Send posts an HTML notice with optional URL buttons and link previews off.
func (m *Messenger) Send(ctx context.Context, chatID int64, n gate.Notice) error {
	if err := m.limiter.Wait(ctx); err != nil {
		return err
	}
	if _, err := m.bot.SendMessage(ctx, buildSendParams(chatID, n)); err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	return nil
}

// Delete removes a message from the chat.
func (m *Messenger) Delete(ctx context.Context, chatID int64, messageID int) error {
	if err := m.limiter.Wait(ctx); err != nil {
		return err
	}
	if err := m.bot.DeleteMessage(ctx, &telego.DeleteMessageParams{
		ChatID:    tu.ID(chatID),
		MessageID: messageID,
	}); err != nil {
		return fmt.Errorf("delete message: %w", err)
	}
	return nil
}

func buildSendParams(chatID int64, n gate.Notice) *telego.SendMessageParams {
	msg := tu.Message(tu.ID(chatID), n.Text)
	msg.ParseMode = telego.ModeHTML
	msg.LinkPreviewOptions = &telego.LinkPreviewOptions{IsDisabled: true}
	if len(n.Buttons) > 0 {
		rows := make([][]telego.InlineKeyboardButton, 0, len(n.Buttons))
		for _, b := range n.Buttons {
			rows = append(rows, []telego.InlineKeyboardButton{{Text: b.Text, URL: b.URL}})
		}
		msg.ReplyMarkup = &telego.InlineKeyboardMarkup{InlineKeyboard: rows}
	}
	return msg
}
