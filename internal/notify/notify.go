package notify

import (
	"context"
	"log/slog"

	"dealflow/internal/domain"
)

// DealTransition is published after a transition has committed. Consumers
// see the deal as it looks after the move.
type DealTransition struct {
	Deal   domain.Deal
	From   domain.Stage
	To     domain.Stage
	Record domain.TransitionRecord
}

// Notifier receives committed transitions. Delivery is best effort and must
// never block the engine for long; failures are the notifier's problem.
type Notifier interface {
	DealTransitioned(ctx context.Context, t DealTransition)
}

// Multi fans a transition out to several notifiers in order.
type Multi []Notifier

func (m Multi) DealTransitioned(ctx context.Context, t DealTransition) {
	for _, n := range m {
		n.DealTransitioned(ctx, t)
	}
}

// LogNotifier writes committed transitions to the structured log.
type LogNotifier struct {
	Log *slog.Logger
}

func (n LogNotifier) DealTransitioned(_ context.Context, t DealTransition) {
	log := n.Log
	if log == nil {
		log = slog.Default()
	}
	log.Info("deal transitioned",
		"deal_id", t.Deal.ID,
		"from", t.From.Name,
		"to", t.To.Name,
		"actor_kind", string(t.Record.ActorKind),
		"actor_id", t.Record.ActorID,
	)
}
