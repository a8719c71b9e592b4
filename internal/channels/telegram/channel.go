package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/mymmrac/telego"
	"golang.org/x/sync/semaphore"

	"github.com/nextlevelbuilder/subgate/internal/channels"
	"github.com/nextlevelbuilder/subgate/internal/config"
	"github.com/nextlevelbuilder/subgate/internal/gate"
)

// DefaultWorkers bounds concurrently evaluated group messages.
const DefaultWorkers = 64

// stopTimeout is how long Stop waits for in-flight messages.
const stopTimeout = 10 * time.Second

// Gate handles one group message end to end.
type Gate interface {
	Handle(ctx context.Context, msg gate.Message) (gate.Decision, gate.Result)
}

// NewBot creates a telego bot from config, honouring the optional proxy.
func NewBot(cfg config.TelegramConfig) (*telego.Bot, error) {
	var opts []telego.BotOption

	if cfg.Proxy != "" {
		proxyURL, parseErr := url.Parse(cfg.Proxy)
		if parseErr != nil {
			return nil, fmt.Errorf("invalid proxy URL %q: %w", cfg.Proxy, parseErr)
		}
		opts = append(opts, telego.WithHTTPClient(&http.Client{
			Transport: &http.Transport{
				Proxy: http.ProxyURL(proxyURL),
			},
		}))
	}

	bot, err := telego.NewBot(cfg.Token, opts...)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}
	return bot, nil
}

var _ channels.Channel = (*Channel)(nil)

// Channel connects to Telegram via the Bot API using long polling.
// Every group message is evaluated in its own goroutine, bounded by a semaphore.
type Channel struct {
	*channels.BaseChannel
	bot        *telego.Bot
	config     config.TelegramConfig
	gate       Gate
	commands   *Commands
	workers    *semaphore.Weighted
	inflight   sync.WaitGroup
	pollCancel context.CancelFunc // cancels the long polling context
	pollDone   chan struct{}      // closed when polling goroutine exits
	workCtx    context.Context    // outlives polling so in-flight messages can finish
	workCancel context.CancelFunc
}

// New creates a new Telegram channel. commands may be nil to ignore private chats.
func New(bot *telego.Bot, cfg config.TelegramConfig, g Gate, commands *Commands, workers int) *Channel {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	return &Channel{
		BaseChannel: channels.NewBaseChannel("telegram"),
		bot:         bot,
		config:      cfg,
		gate:        g,
		commands:    commands,
		workers:     semaphore.NewWeighted(int64(workers)),
	}
}

// Start begins long polling for Telegram updates.
func (c *Channel) Start(ctx context.Context) error {
	slog.Info("starting telegram bot (polling mode)")

	// Stop() cancels this context to cleanly shut down long polling.
	pollCtx, cancel := context.WithCancel(ctx)
	c.pollCancel = cancel
	c.pollDone = make(chan struct{})
	c.workCtx, c.workCancel = context.WithCancel(context.WithoutCancel(ctx))

	timeout := c.config.PollTimeout
	if timeout <= 0 {
		timeout = 30
	}
	updates, err := c.bot.UpdatesViaLongPolling(pollCtx, &telego.GetUpdatesParams{
		Timeout:        timeout,
		AllowedUpdates: []string{"message"},
	})
	if err != nil {
		cancel()
		c.workCancel()
		return fmt.Errorf("start long polling: %w", err)
	}

	c.SetRunning(true)
	slog.Info("telegram bot connected", "username", c.bot.Username())

	if c.commands != nil {
		// Register bot menu commands with retry.
		go func() {
			for attempt := 1; attempt <= 3; attempt++ {
				if err := c.commands.SyncMenu(pollCtx); err != nil {
					slog.Warn("failed to sync telegram menu commands", "error", err, "attempt", attempt)
					select {
					case <-pollCtx.Done():
						return
					case <-time.After(time.Duration(attempt*5) * time.Second):
					}
					continue
				}
				slog.Info("telegram menu commands synced")
				return
			}
		}()
	}

	go func() {
		defer close(c.pollDone)
		for {
			select {
			case <-pollCtx.Done():
				return
			case update, ok := <-updates:
				if !ok {
					slog.Info("telegram updates channel closed")
					return
				}
				if update.Message == nil {
					slog.Debug("telegram update skipped (no message)", "update_id", update.UpdateID)
					continue
				}
				c.dispatch(pollCtx, update.Message)
			}
		}
	}()

	return nil
}

// dispatch routes a message to its handler. Group messages run concurrently
// under the worker semaphore; private messages are handled inline.
func (c *Channel) dispatch(ctx context.Context, message *telego.Message) {
	switch {
	case isGroupChat(message.Chat):
		if isServiceMessage(message) {
			slog.Debug("telegram service message skipped",
				"chat_id", message.Chat.ID,
				"new_members", len(message.NewChatMembers),
				"left_member", message.LeftChatMember != nil,
			)
			return
		}
		if err := c.workers.Acquire(ctx, 1); err != nil {
			return
		}
		c.inflight.Add(1)
		go func() {
			defer c.inflight.Done()
			defer c.workers.Release(1)
			defer func() {
				if r := recover(); r != nil {
					slog.Error("panic while evaluating group message",
						"chat_id", message.Chat.ID, "message_id", message.MessageID, "panic", r)
				}
			}()
			c.handleGroupMessage(c.workCtx, message)
		}()
	case message.Chat.Type == "private":
		if c.commands != nil {
			c.commands.Handle(ctx, message)
		}
	}
}

// Stop shuts down the Telegram bot by cancelling the long polling context
// and waiting for the polling goroutine and in-flight messages.
func (c *Channel) Stop(_ context.Context) error {
	slog.Info("stopping telegram bot")
	c.SetRunning(false)

	if c.pollCancel != nil {
		c.pollCancel()
	}

	done := make(chan struct{})
	go func() {
		if c.pollDone != nil {
			<-c.pollDone
		}
		c.inflight.Wait()
		close(done)
	}()

	select {
	case <-done:
		slog.Info("telegram bot stopped")
	case <-time.After(stopTimeout):
		slog.Warn("telegram workers did not exit within timeout")
	}
	if c.workCancel != nil {
		c.workCancel()
	}
	return nil
}
