package gate

import (
	"context"
	"strings"

	"github.com/nextlevelbuilder/subgate/internal/store"
)

// Telegram service accounts that relay posts made "as the chat" or "as a channel".
const (
	GroupAnonymousBotID       int64 = 1087968824
	ChannelBotID              int64 = 136817688
	groupAnonymousBotUsername       = "groupanonymousbot"
	channelBotUsernameMarker        = "channel_bot"
)

// Author is the sender of a group message.
type Author struct {
	ID       int64
	Username string
	FullName string
}

// IsRelayIdentity reports whether the author is a reserved relay account
// rather than a person, so membership cannot be checked.
func (a Author) IsRelayIdentity() bool {
	if a.ID == GroupAnonymousBotID || a.ID == ChannelBotID {
		return true
	}
	u := strings.ToLower(a.Username)
	return u == groupAnonymousBotUsername || strings.Contains(u, channelBotUsernameMarker)
}

// Message is one inbound group message under evaluation.
type Message struct {
	ChatID    int64
	ChatTitle string
	MessageID int
	BatchID   string // media group id; empty when the message is not part of an album
	Author    Author
}

// Outcome is a terminal state of the evaluation.
type Outcome int

const (
	OutcomeAllow Outcome = iota
	OutcomeRestrict
	OutcomeAnonymousBlock
	// OutcomeAbort behaves like Allow but records that evaluation could not complete.
	OutcomeAbort
)

func (o Outcome) String() string {
	switch o {
	case OutcomeAllow:
		return "allow"
	case OutcomeRestrict:
		return "restrict"
	case OutcomeAnonymousBlock:
		return "anonymous_block"
	case OutcomeAbort:
		return "abort"
	}
	return "unknown"
}

// Reasons attached to decisions.
const (
	ReasonAnonymous      = "anonymous"
	ReasonNotMonitored   = "not_monitored"
	ReasonOwnerInactive  = "owner_inactive"
	ReasonNoRequirements = "no_requirements"
	ReasonSatisfied      = "satisfied"
	ReasonUnsatisfied    = "unsatisfied"
	ReasonDirectoryError = "directory_error"
	ReasonRegistryError  = "registry_error"
)

// InviteTarget is a required chat the author still has to join.
type InviteTarget struct {
	ChatID int64
	Title  string
	URL    string
	Status MembershipStatus
}

// Decision is the result of evaluating one message.
type Decision struct {
	Outcome Outcome
	Reason  string
	Chat    *store.MonitoredChat // nil until OWNER_CHECK resolved it
	Missing []InviteTarget       // non-empty only for OutcomeRestrict
	Err     error                // set for OutcomeAbort
	EvalID  string               // correlates the span and log lines of one evaluation
}

// Allowed reports whether the message stays untouched.
func (d Decision) Allowed() bool {
	return d.Outcome == OutcomeAllow || d.Outcome == OutcomeAbort
}

type evalIDKey struct{}

// WithEvalID returns a context carrying the evaluation correlation id.
func WithEvalID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, evalIDKey{}, id)
}

// EvalID returns the correlation id stored by WithEvalID, or "".
func EvalID(ctx context.Context) string {
	id, _ := ctx.Value(evalIDKey{}).(string)
	return id
}
