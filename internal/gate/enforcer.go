package gate

import (
	"context"
	"fmt"
	"html"
	"log/slog"
	"strings"
)

// Button is an inline URL button under a notice.
type Button struct {
	Text string
	URL  string
}

// Notice is an HTML-formatted message posted into the group.
type Notice struct {
	Text    string
	Buttons []Button
}

// Messenger is the outbound transport. Both calls are best-effort.
type Messenger interface {
	Send(ctx context.Context, chatID int64, n Notice) error
	Delete(ctx context.Context, chatID int64, messageID int) error
}

// BatchGate lets one notification through per message batch.
type BatchGate interface {
	TryAcquire(ctx context.Context, batchID string) bool
}

// AnonymousNotice is posted when someone writes as a channel or anonymously.
const AnonymousNotice = "Posting on behalf of a channel is not allowed in this chat. " +
	"Switch to sending messages as yourself to keep them from being removed."

// BotProfile identifies the bot in the promo line of warnings.
type BotProfile struct {
	Username  string
	FirstName string
}

// Enforcer applies decisions: it warns the author and removes the message.
type Enforcer struct {
	messenger Messenger
	batches   BatchGate
	bot       BotProfile
}

// NewEnforcer creates an enforcer.
func NewEnforcer(messenger Messenger, batches BatchGate, bot BotProfile) *Enforcer {
	return &Enforcer{messenger: messenger, batches: batches, bot: bot}
}

// Result reports the side effects that actually happened.
type Result struct {
	Notified bool
	Deleted  bool
}

// Enforce carries out a decision. Allow and Abort have no side effects.
func (e *Enforcer) Enforce(ctx context.Context, msg Message, d Decision) Result {
	switch d.Outcome {
	case OutcomeRestrict:
		return e.restrict(ctx, msg, d)
	case OutcomeAnonymousBlock:
		return Result{Notified: e.notify(ctx, msg, Notice{Text: AnonymousNotice})}
	}
	return Result{}
}

func (e *Enforcer) restrict(ctx context.Context, msg Message, d Decision) Result {
	var res Result
	res.Notified = e.notify(ctx, msg, e.warning(msg.Author, d.Missing))

	if err := e.messenger.Delete(ctx, msg.ChatID, msg.MessageID); err != nil {
		slog.Error("failed to delete restricted message",
			"eval_id", EvalID(ctx), "chat_id", msg.ChatID, "message_id", msg.MessageID, "error", err)
	} else {
		res.Deleted = true
	}

	attrs := []any{
		"eval_id", EvalID(ctx),
		"chat_id", msg.ChatID,
		"message_id", msg.MessageID,
		"user_id", msg.Author.ID,
		"username", msg.Author.Username,
		"full_name", msg.Author.FullName,
		"missing", len(d.Missing),
		"notified", res.Notified,
	}
	if d.Chat != nil {
		attrs = append(attrs, "chat_title", d.Chat.Title, "owner_id", d.Chat.OwnerID)
	}
	slog.Warn("message restricted", attrs...)
	return res
}

// notify sends n unless another message of the same batch already did.
func (e *Enforcer) notify(ctx context.Context, msg Message, n Notice) bool {
	if !e.batches.TryAcquire(ctx, msg.BatchID) {
		return false
	}
	if err := e.messenger.Send(ctx, msg.ChatID, n); err != nil {
		slog.Error("failed to send gate notice", "eval_id", EvalID(ctx), "chat_id", msg.ChatID, "batch_id", msg.BatchID, "error", err)
		return false
	}
	return true
}

func (e *Enforcer) warning(a Author, missing []InviteTarget) Notice {
	var b strings.Builder
	b.WriteString(Mention(a))
	b.WriteString(", subscribe to the channels and chats below to post in this chat.")
	if e.bot.Username != "" {
		name := e.bot.FirstName
		if name == "" {
			name = e.bot.Username
		}
		fmt.Fprintf(&b, "\n\n❔ Want to check subscriptions in your own chat? Open <a href=\"https://t.me/%s\">%s</a>. It's simple and free 😉",
			html.EscapeString(e.bot.Username), html.EscapeString(name))
	}

	n := Notice{Text: b.String()}
	for _, m := range missing {
		if m.URL == "" {
			continue
		}
		n.Buttons = append(n.Buttons, Button{Text: "Subscribe to " + m.Title, URL: m.URL})
	}
	return n
}

// Mention renders an HTML mention: @handle when available, otherwise a tg:// link.
func Mention(a Author) string {
	if a.Username != "" {
		return "@" + a.Username
	}
	name := a.FullName
	if name == "" {
		name = fmt.Sprintf("%d", a.ID)
	}
	return fmt.Sprintf(`<a href="tg://user?id=%d">%s</a>`, a.ID, html.EscapeString(name))
}
