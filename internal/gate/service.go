package gate

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
)

// Service evaluates a group message and enforces the result.
type Service struct {
	evaluator *Evaluator
	enforcer  *Enforcer
}

// NewService wires an evaluator to an enforcer.
func NewService(evaluator *Evaluator, enforcer *Enforcer) *Service {
	return &Service{evaluator: evaluator, enforcer: enforcer}
}

// Handle processes one message end to end. Every log line and the span it
// produces share one eval_id.
func (s *Service) Handle(ctx context.Context, msg Message) (Decision, Result) {
	ctx = WithEvalID(ctx, uuid.NewString())
	d := s.evaluator.Evaluate(ctx, msg)
	if d.Allowed() {
		return d, Result{}
	}
	res := s.enforcer.Enforce(ctx, msg, d)
	slog.Debug("gate enforced",
		"eval_id", d.EvalID,
		"outcome", d.Outcome.String(),
		"reason", d.Reason,
		"chat_id", msg.ChatID,
		"message_id", msg.MessageID,
		"notified", res.Notified,
		"deleted", res.Deleted,
	)
	return d, res
}
