package telegram

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/mymmrac/telego"
	"github.com/mymmrac/telego/telegoapi"

	"github.com/nextlevelbuilder/subgate/internal/gate"
	"github.com/nextlevelbuilder/subgate/internal/store"
)

func TestToGateMessage(t *testing.T) {
	m := &telego.Message{
		MessageID:    55,
		Chat:         telego.Chat{ID: -1001, Type: "supergroup", Title: "Main"},
		From:         &telego.User{ID: 42, Username: "alice", FirstName: "Alice", LastName: "Doe"},
		MediaGroupID: "album-1",
		Text:         "hi",
	}
	got, ok := toGateMessage(m)
	if !ok {
		t.Fatal("expected conversion to succeed")
	}
	want := gate.Message{
		ChatID:    -1001,
		ChatTitle: "Main",
		MessageID: 55,
		BatchID:   "album-1",
		Author:    gate.Author{ID: 42, Username: "alice", FullName: "Alice Doe"},
	}
	if got != want {
		t.Fatalf("expected %+v, got %+v", want, got)
	}

	if _, ok := toGateMessage(&telego.Message{Chat: telego.Chat{ID: -1}}); ok {
		t.Fatal("expected message without sender to be skipped")
	}
}

func TestIsServiceMessage(t *testing.T) {
	tests := []struct {
		name string
		msg  *telego.Message
		want bool
	}{
		{"text", &telego.Message{Text: "hello"}, false},
		{"caption", &telego.Message{Caption: "pic"}, false},
		{"photo", &telego.Message{Photo: []telego.PhotoSize{{FileID: "x"}}}, false},
		{"sticker", &telego.Message{Sticker: &telego.Sticker{FileID: "s"}}, false},
		{"member joined", &telego.Message{NewChatMembers: []telego.User{{ID: 1}}}, true},
		{"title changed", &telego.Message{NewChatTitle: "New"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isServiceMessage(tt.msg); got != tt.want {
				t.Fatalf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestIsGroupChat(t *testing.T) {
	for typ, want := range map[string]bool{"group": true, "supergroup": true, "private": false, "channel": false} {
		if got := isGroupChat(telego.Chat{Type: typ}); got != want {
			t.Fatalf("%s: expected %v, got %v", typ, want, got)
		}
	}
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"forbidden", &telegoapi.Error{ErrorCode: 403, Description: "Forbidden: bot is not a member"}, gate.ErrPermissionDenied},
		{"bad request", &telegoapi.Error{ErrorCode: 400, Description: "Bad Request: chat not found"}, gate.ErrNotFound},
		{"server error", &telegoapi.Error{ErrorCode: 502, Description: "Bad Gateway"}, gate.ErrDirectoryUnavailable},
		{"network", errors.New("dial tcp: timeout"), gate.ErrDirectoryUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := classifyError(tt.err); !errors.Is(got, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestBuildSendParams(t *testing.T) {
	p := buildSendParams(-1001, gate.Notice{
		Text:    "@alice, subscribe",
		Buttons: []gate.Button{{Text: "Subscribe to News", URL: "https://t.me/news"}, {Text: "Subscribe to Chat", URL: "https://t.me/+x"}},
	})
	if p.ParseMode != telego.ModeHTML {
		t.Fatalf("expected HTML parse mode, got %q", p.ParseMode)
	}
	if p.LinkPreviewOptions == nil || !p.LinkPreviewOptions.IsDisabled {
		t.Fatal("expected link previews disabled")
	}
	kb, ok := p.ReplyMarkup.(*telego.InlineKeyboardMarkup)
	if !ok {
		t.Fatalf("expected inline keyboard, got %T", p.ReplyMarkup)
	}
	if len(kb.InlineKeyboard) != 2 || kb.InlineKeyboard[1][0].URL != "https://t.me/+x" {
		t.Fatalf("expected one button per row, got %+v", kb.InlineKeyboard)
	}

	if p := buildSendParams(-1001, gate.Notice{Text: "plain"}); p.ReplyMarkup != nil {
		t.Fatalf("expected no keyboard, got %+v", p.ReplyMarkup)
	}
}

func TestParseCommand(t *testing.T) {
	tests := map[string]string{
		"/start":             "/start",
		"/Chats@subgate_bot": "/chats",
		"/help me":           "/help",
		"hello":              "",
		"":                   "",
	}
	for in, want := range tests {
		if got := parseCommand(in); got != want {
			t.Fatalf("parseCommand(%q): expected %q, got %q", in, want, got)
		}
	}
}

// --- private commands ---

type fakeAccounts struct {
	users    map[int64]*store.User // keyed by chat id
	chats    []store.MonitoredChat
	required map[int64][]store.MonitoredChat
}

func (f *fakeAccounts) RegisterUser(_ context.Context, chatID int64, username string) (*store.User, bool, error) {
	if u, ok := f.users[chatID]; ok {
		return u, false, nil
	}
	u := &store.User{ID: int64(len(f.users) + 1), ChatID: chatID, Username: username, Active: true}
	f.users[chatID] = u
	return u, true, nil
}

func (f *fakeAccounts) UserByChatID(_ context.Context, chatID int64) (*store.User, error) {
	if u, ok := f.users[chatID]; ok {
		return u, nil
	}
	return nil, store.ErrNotFound
}

func (f *fakeAccounts) Chats(context.Context, int64, store.ChatKind) ([]store.MonitoredChat, error) {
	return f.chats, nil
}

func (f *fakeAccounts) RequiredChats(_ context.Context, targetID int64) ([]store.MonitoredChat, error) {
	return f.required[targetID], nil
}

type fakeActivation struct {
	refreshed []int64
	active    map[int64]bool
}

func (f *fakeActivation) IsActive(_ context.Context, ownerID int64) (bool, error) {
	return f.active[ownerID], nil
}

func (f *fakeActivation) Refresh(_ context.Context, u *store.User) {
	f.refreshed = append(f.refreshed, u.ID)
	f.active[u.ID] = u.Active
}

type fakeReplier struct {
	mu    sync.Mutex
	texts []string
}

func (f *fakeReplier) Send(_ context.Context, _ int64, n gate.Notice) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.texts = append(f.texts, n.Text)
	return nil
}

func (f *fakeReplier) last() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.texts) == 0 {
		return ""
	}
	return f.texts[len(f.texts)-1]
}

func privateMessage(text string) *telego.Message {
	return &telego.Message{
		Chat: telego.Chat{ID: 500, Type: "private"},
		From: &telego.User{ID: 500, Username: "owner"},
		Text: text,
	}
}

func newTestCommands() (*Commands, *fakeAccounts, *fakeActivation, *fakeReplier) {
	accounts := &fakeAccounts{users: map[int64]*store.User{}, required: map[int64][]store.MonitoredChat{}}
	activation := &fakeActivation{active: map[int64]bool{}}
	replier := &fakeReplier{}
	return NewCommands(nil, accounts, activation, replier), accounts, activation, replier
}

func TestCommands_StartRegistersAndRefreshesCache(t *testing.T) {
	c, accounts, activation, replier := newTestCommands()
	ctx := context.Background()

	c.Handle(ctx, privateMessage("/start"))
	if _, ok := accounts.users[500]; !ok {
		t.Fatal("expected user to be registered")
	}
	if len(activation.refreshed) != 1 {
		t.Fatalf("expected cache refresh, got %v", activation.refreshed)
	}
	if replier.last() != welcomeText {
		t.Fatalf("expected welcome reply, got %q", replier.last())
	}
}

func TestCommands_InactiveUserRestricted(t *testing.T) {
	c, accounts, activation, replier := newTestCommands()
	ctx := context.Background()
	accounts.users[500] = &store.User{ID: 1, ChatID: 500, Active: false}

	c.Handle(ctx, privateMessage("/start"))
	if replier.last() != restrictedText {
		t.Fatalf("expected restricted reply on /start, got %q", replier.last())
	}
	activation.active[1] = false
	c.Handle(ctx, privateMessage("/chats"))
	if replier.last() != restrictedText {
		t.Fatalf("expected restricted reply on /chats, got %q", replier.last())
	}
}

func TestCommands_UnknownUserAskedToStart(t *testing.T) {
	c, _, _, replier := newTestCommands()
	c.Handle(context.Background(), privateMessage("/chats"))
	if replier.last() != unknownText {
		t.Fatalf("expected start hint, got %q", replier.last())
	}
}

func TestCommands_ChatsListsRequirements(t *testing.T) {
	c, accounts, _, replier := newTestCommands()
	ctx := context.Background()
	c.Handle(ctx, privateMessage("/start"))

	accounts.chats = []store.MonitoredChat{
		{ID: 10, Title: "Main <group>", Kind: store.ChatKindGroup},
		{ID: 11, Title: "News", Kind: store.ChatKindChannel},
	}
	accounts.required[10] = []store.MonitoredChat{{ID: 11, Title: "News", Kind: store.ChatKindChannel}}

	c.Handle(ctx, privateMessage("/chats"))
	out := replier.last()
	for _, want := range []string{"Main &lt;group&gt;", "requires: News", "<b>Channels</b>"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in report, got %q", want, out)
		}
	}
}

func TestChatsReport_Empty(t *testing.T) {
	if got := chatsReport(nil, nil); got != "You have no chats yet." {
		t.Fatalf("unexpected empty report: %q", got)
	}
}
