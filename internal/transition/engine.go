// Package transition is the status transition engine: the only component
// allowed to mutate an order's status.
package transition

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"quickbite/internal/domain"
	"quickbite/internal/logger"
	"quickbite/internal/metrics"
)

// Store must apply the status update and the event append as one atomic unit,
// linearized per order.
type Store interface {
	ApplyTransition(ctx context.Context, orderID uuid.UUID, to domain.Status, actor domain.Actor) (domain.Order, bool, error)
	HasTransition(ctx context.Context, orderID uuid.UUID, to domain.Status) (bool, error)
}

type Engine struct {
	store Store
	lg    *logger.Logger
	met   *metrics.Metrics
}

func NewEngine(store Store, lg *logger.Logger, met *metrics.Metrics) *Engine {
	return &Engine{store: store, lg: lg, met: met}
}

// Transition moves the order to target. Fails with domain.ErrInvalidTransition
// when the edge is not in the allowed set and domain.ErrNotFound for an
// unknown order. Re-applying a transition the order already sits at is a
// no-op success (applied=false), which is what makes at-least-once delivery
// safe to drive through here.
func (e *Engine) Transition(ctx context.Context, orderID uuid.UUID, target domain.Status, actor domain.Actor) (domain.Order, bool, error) {
	if !target.Valid() {
		return domain.Order{}, false, fmt.Errorf("%w: unknown status %q", domain.ErrValidation, target)
	}

	o, applied, err := e.store.ApplyTransition(ctx, orderID, target, actor)
	if err != nil {
		return domain.Order{}, false, err
	}
	if applied {
		e.met.Transitions.WithLabelValues(string(target)).Inc()
		e.lg.Info("status_transition_applied", map[string]any{
			"order_id": orderID.String(), "to_status": string(target), "actor_role": actor.Role,
		})
	} else {
		e.lg.Debug("status_transition_noop", map[string]any{
			"order_id": orderID.String(), "to_status": string(target),
		})
	}
	return o, applied, nil
}

// AlreadyApplied is the consumer's dedup check against the append-only event
// log: true once any event recorded the order reaching target.
func (e *Engine) AlreadyApplied(ctx context.Context, orderID uuid.UUID, target domain.Status) (bool, error) {
	return e.store.HasTransition(ctx, orderID, target)
}
