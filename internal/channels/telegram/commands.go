package telegram

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"strings"

	"github.com/mymmrac/telego"

	"github.com/nextlevelbuilder/subgate/internal/channels"
	"github.com/nextlevelbuilder/subgate/internal/gate"
	"github.com/nextlevelbuilder/subgate/internal/store"
)

// Accounts is the registry surface used by private commands.
type Accounts interface {
	RegisterUser(ctx context.Context, chatID int64, username string) (*store.User, bool, error)
	UserByChatID(ctx context.Context, chatID int64) (*store.User, error)
	Chats(ctx context.Context, ownerID int64, kind store.ChatKind) ([]store.MonitoredChat, error)
	RequiredChats(ctx context.Context, targetID int64) ([]store.MonitoredChat, error)
}

// ActivationCache is the owner status cache.
type ActivationCache interface {
	IsActive(ctx context.Context, ownerID int64) (bool, error)
	Refresh(ctx context.Context, u *store.User)
}

// Replier sends a notice into a chat.
type Replier interface {
	Send(ctx context.Context, chatID int64, n gate.Notice) error
}

const (
	restrictedText = "⛔ Access restricted. Ask the administrator to activate your account."
	unknownText    = "Send /start to register first."
	welcomeText    = "👋 Welcome! Add me to your group as an administrator and to every channel " +
		"you want to require, then ask the administrator to link them.\n\n" +
		"/chats shows your chats and their requirements."
	helpText = "Available commands:\n" +
		"/start - Register and check your access\n" +
		"/chats - List your chats and required subscriptions\n" +
		"/help - Show this help message"
)

// Commands handles private chats with the bot: registration and self-service listings.
type Commands struct {
	bot        *telego.Bot
	accounts   Accounts
	activation ActivationCache
	replier    Replier
	limiter    *channels.SenderRateLimiter
}

// NewCommands creates the private command handler. bot is only used to sync the menu.
func NewCommands(bot *telego.Bot, accounts Accounts, activation ActivationCache, replier Replier) *Commands {
	return &Commands{
		bot:        bot,
		accounts:   accounts,
		activation: activation,
		replier:    replier,
		limiter:    channels.NewSenderRateLimiter(0, 0),
	}
}

// Handle processes one private message.
func (c *Commands) Handle(ctx context.Context, message *telego.Message) {
	if message.From == nil {
		return
	}
	chatID := message.Chat.ID
	if !c.limiter.Allow(message.From.ID) {
		slog.Debug("telegram command throttled", "user_id", message.From.ID)
		return
	}

	cmd := parseCommand(message.Text)
	if cmd == "/start" {
		c.start(ctx, chatID, message.From.Username)
		return
	}

	u, err := c.accounts.UserByChatID(ctx, chatID)
	if errors.Is(err, store.ErrNotFound) {
		c.reply(ctx, chatID, unknownText)
		return
	}
	if err != nil {
		slog.Error("failed to load user", "chat_id", chatID, "error", err)
		return
	}
	active, err := c.activation.IsActive(ctx, u.ID)
	if err != nil {
		slog.Error("failed to check user activation", "user_id", u.ID, "error", err)
		return
	}
	if !active {
		c.reply(ctx, chatID, restrictedText)
		return
	}

	switch cmd {
	case "/chats":
		c.chats(ctx, chatID, u)
	default:
		c.reply(ctx, chatID, helpText)
	}
}

func (c *Commands) start(ctx context.Context, chatID int64, username string) {
	u, created, err := c.accounts.RegisterUser(ctx, chatID, username)
	if err != nil {
		slog.Error("failed to register user", "chat_id", chatID, "error", err)
		return
	}
	if created {
		slog.Info("user registered", "user_id", u.ID, "chat_id", chatID, "username", username)
	}
	c.activation.Refresh(ctx, u)

	if !u.Active {
		c.reply(ctx, chatID, restrictedText)
		return
	}
	c.reply(ctx, chatID, welcomeText)
}

func (c *Commands) chats(ctx context.Context, chatID int64, u *store.User) {
	owned, err := c.accounts.Chats(ctx, u.ID, "")
	if err != nil {
		slog.Error("failed to list chats", "user_id", u.ID, "error", err)
		return
	}
	required := make(map[int64][]store.MonitoredChat)
	for _, ch := range owned {
		if ch.Kind != store.ChatKindGroup {
			continue
		}
		reqs, err := c.accounts.RequiredChats(ctx, ch.ID)
		if err != nil {
			slog.Error("failed to list required chats", "chat_id", ch.ID, "error", err)
			return
		}
		required[ch.ID] = reqs
	}
	c.reply(ctx, chatID, chatsReport(owned, required))
}

// chatsReport renders the owner's chats as HTML.
func chatsReport(owned []store.MonitoredChat, required map[int64][]store.MonitoredChat) string {
	if len(owned) == 0 {
		return "You have no chats yet."
	}

	var groups, chans []store.MonitoredChat
	for _, ch := range owned {
		if ch.Kind == store.ChatKindGroup {
			groups = append(groups, ch)
		} else {
			chans = append(chans, ch)
		}
	}

	var b strings.Builder
	if len(groups) > 0 {
		b.WriteString("<b>Groups</b>\n")
		for _, g := range groups {
			fmt.Fprintf(&b, "• %s", html.EscapeString(g.Title))
			reqs := required[g.ID]
			if len(reqs) == 0 {
				b.WriteString(" (no requirements)\n")
				continue
			}
			titles := make([]string, len(reqs))
			for i, r := range reqs {
				titles[i] = html.EscapeString(r.Title)
			}
			fmt.Fprintf(&b, "\n   requires: %s\n", strings.Join(titles, ", "))
		}
	}
	if len(chans) > 0 {
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString("<b>Channels</b>\n")
		for _, ch := range chans {
			fmt.Fprintf(&b, "• %s\n", html.EscapeString(ch.Title))
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func (c *Commands) reply(ctx context.Context, chatID int64, text string) {
	if err := c.replier.Send(ctx, chatID, gate.Notice{Text: text}); err != nil {
		slog.Warn("failed to send command reply", "chat_id", chatID, "error", err)
	}
}

// parseCommand extracts the lower-cased command, stripping any @botname suffix.
func parseCommand(text string) string {
	if len(text) == 0 || text[0] != '/' {
		return ""
	}
	cmd := strings.SplitN(text, " ", 2)[0]
	cmd = strings.SplitN(cmd, "@", 2)[0]
	return strings.ToLower(cmd)
}

// SyncMenu registers the private command menu with Telegram via setMyCommands.
func (c *Commands) SyncMenu(ctx context.Context) error {
	if c.bot == nil {
		return nil
	}
	return c.bot.SetMyCommands(ctx, &telego.SetMyCommandsParams{
		Commands: MenuCommands(),
	})
}

// MenuCommands returns the bot menu commands.
func MenuCommands() []telego.BotCommand {
	return []telego.BotCommand{
		{Command: "start", Description: "Register and check your access"},
		{Command: "chats", Description: "List your chats and required subscriptions"},
		{Command: "help", Description: "Show available commands"},
	}
}
