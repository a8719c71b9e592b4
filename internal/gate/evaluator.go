// Package gate implements the subscription gate: for every group message it
// decides whether the author is subscribed to all chats the group requires,
// and carries out the restriction when they are not.
//
// Evaluation is a short state machine:
//
//	RECEIVED -> OWNER_CHECK -> REQUIREMENT_FETCH -> PER_REQUIREMENT_CHECK -> DECISION
//
// Relay identities (anonymous admins, channel posts) are only blocked in
// monitored chats whose owner is active; elsewhere they pass like anyone else.
//
// Infrastructure failures (registry, directory) end in OutcomeAbort, which
// lets the message through.
package gate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/nextlevelbuilder/subgate/internal/store"
)

// DefaultMaxParallelChecks bounds concurrent directory lookups per message.
const DefaultMaxParallelChecks = 4

// ChatRegistry is the read side of the link registry.
type ChatRegistry interface {
	ChatByExternalID(ctx context.Context, chatID int64) (*store.MonitoredChat, error)
	RequiredChats(ctx context.Context, targetID int64) ([]store.MonitoredChat, error)
}

// ActivationChecker is the per-owner kill switch.
type ActivationChecker interface {
	IsActive(ctx context.Context, ownerID int64) (bool, error)
}

// Evaluator turns a Message into a Decision. Safe for concurrent use.
type Evaluator struct {
	registry    ChatRegistry
	activation  ActivationChecker
	oracle      Oracle
	maxParallel int
	debug       bool
	tracer      trace.Tracer
}

// EvaluatorConfig tunes the evaluator.
type EvaluatorConfig struct {
	MaxParallelChecks int  // <= 0 uses DefaultMaxParallelChecks
	Debug             bool // log messages from unmonitored chats
}

// NewEvaluator creates an evaluator over its collaborators.
func NewEvaluator(registry ChatRegistry, activation ActivationChecker, oracle Oracle, cfg EvaluatorConfig) *Evaluator {
	maxParallel := cfg.MaxParallelChecks
	if maxParallel <= 0 {
		maxParallel = DefaultMaxParallelChecks
	}
	return &Evaluator{
		registry:    registry,
		activation:  activation,
		oracle:      oracle,
		maxParallel: maxParallel,
		debug:       cfg.Debug,
		tracer:      otel.Tracer("github.com/nextlevelbuilder/subgate/internal/gate"),
	}
}

// Evaluate runs the state machine for one message.
// A correlation id is taken from ctx (see WithEvalID) or generated.
func (e *Evaluator) Evaluate(ctx context.Context, msg Message) Decision {
	evalID := EvalID(ctx)
	if evalID == "" {
		evalID = uuid.NewString()
		ctx = WithEvalID(ctx, evalID)
	}
	ctx, span := e.tracer.Start(ctx, "gate.evaluate", trace.WithAttributes(
		attribute.String("gate.eval_id", evalID),
		attribute.Int64("chat.id", msg.ChatID),
		attribute.Int64("user.id", msg.Author.ID),
		attribute.Int("message.id", msg.MessageID),
	))
	defer span.End()

	d := e.evaluate(ctx, msg)
	d.EvalID = evalID

	span.SetAttributes(
		attribute.String("gate.outcome", d.Outcome.String()),
		attribute.String("gate.reason", d.Reason),
		attribute.Int("gate.missing", len(d.Missing)),
	)
	if d.Err != nil {
		span.RecordError(d.Err)
		span.SetStatus(codes.Error, d.Reason)
	}
	return d
}

func (e *Evaluator) evaluate(ctx context.Context, msg Message) Decision {
	// OWNER_CHECK
	chat, err := e.registry.ChatByExternalID(ctx, msg.ChatID)
	if errors.Is(err, store.ErrNotFound) {
		if e.debug {
			slog.Warn("chat not found in registry", "chat_id", msg.ChatID, "chat_title", msg.ChatTitle)
		}
		return Decision{Outcome: OutcomeAllow, Reason: ReasonNotMonitored}
	}
	if err != nil {
		return e.abort(ctx, msg, nil, ReasonRegistryError, fmt.Errorf("resolve chat: %w", err))
	}

	active, err := e.activation.IsActive(ctx, chat.OwnerID)
	if err != nil {
		return e.abort(ctx, msg, chat, ReasonRegistryError, fmt.Errorf("owner activation: %w", err))
	}
	if !active {
		return Decision{Outcome: OutcomeAllow, Reason: ReasonOwnerInactive, Chat: chat}
	}

	// Relay accounts carry no person whose membership could be checked.
	if msg.Author.IsRelayIdentity() {
		return Decision{Outcome: OutcomeAnonymousBlock, Reason: ReasonAnonymous, Chat: chat}
	}

	// REQUIREMENT_FETCH
	required, err := e.registry.RequiredChats(ctx, chat.ID)
	if err != nil {
		return e.abort(ctx, msg, chat, ReasonRegistryError, fmt.Errorf("load requirements: %w", err))
	}
	if len(required) == 0 {
		return Decision{Outcome: OutcomeAllow, Reason: ReasonNoRequirements, Chat: chat}
	}

	// PER_REQUIREMENT_CHECK
	missing, err := e.checkRequirements(ctx, msg.Author.ID, required)
	if err != nil {
		return e.abort(ctx, msg, chat, ReasonDirectoryError, err)
	}

	// DECISION
	if len(missing) > 0 {
		return Decision{Outcome: OutcomeRestrict, Reason: ReasonUnsatisfied, Chat: chat, Missing: missing}
	}
	slog.Debug("message approved",
		"eval_id", EvalID(ctx),
		"chat_id", chat.ChatID, "chat_title", chat.Title, "owner_id", chat.OwnerID,
		"user_id", msg.Author.ID, "username", msg.Author.Username,
	)
	return Decision{Outcome: OutcomeAllow, Reason: ReasonSatisfied, Chat: chat}
}

// checkRequirements looks up every required chat concurrently. The first
// directory error cancels the rest and is returned; otherwise the unsatisfied
// chats come back in registry order.
func (e *Evaluator) checkRequirements(ctx context.Context, userID int64, required []store.MonitoredChat) ([]InviteTarget, error) {
	type result struct {
		info   ChatInfo
		status MembershipStatus
	}
	results := make([]result, len(required))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.maxParallel)
	for i := range required {
		req := required[i]
		g.Go(func() error {
			info, err := e.oracle.ChatInfo(gctx, req.ChatID)
			if err != nil {
				return &LookupError{ChatID: req.ChatID, Title: req.Title, Op: "get chat", Err: err}
			}
			status, err := e.oracle.MembershipStatus(gctx, req.ChatID, userID)
			if err != nil {
				return &LookupError{ChatID: req.ChatID, Title: req.Title, Op: "get chat member", Err: err}
			}
			results[i] = result{info: info, status: status}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var missing []InviteTarget
	for i, r := range results {
		if r.status.Satisfied() {
			continue
		}
		title := required[i].Title
		if title == "" {
			title = r.info.Title
		}
		missing = append(missing, InviteTarget{
			ChatID: required[i].ChatID,
			Title:  title,
			URL:    r.info.InviteURL(),
			Status: r.status,
		})
	}
	return missing, nil
}

func (e *Evaluator) abort(ctx context.Context, msg Message, chat *store.MonitoredChat, reason string, err error) Decision {
	attrs := []any{
		"eval_id", EvalID(ctx),
		"reason", reason,
		"chat_id", msg.ChatID,
		"user_id", msg.Author.ID,
		"error", err,
	}
	var lookupErr *LookupError
	if errors.As(err, &lookupErr) {
		attrs = append(attrs, "required_chat_id", lookupErr.ChatID, "required_chat_title", lookupErr.Title)
	}
	switch {
	case errors.Is(err, ErrPermissionDenied):
		slog.Warn("bot lost access to a required chat, letting message through", attrs...)
	case errors.Is(err, ErrNotFound):
		slog.Warn("required chat or member not found, letting message through", attrs...)
	default:
		slog.Warn("gate evaluation aborted, letting message through", attrs...)
	}
	return Decision{Outcome: OutcomeAbort, Reason: reason, Chat: chat, Err: err}
}
