package transition

import (
	"context"
	"fmt"
	"io"
	"testing"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quickbite/internal/domain"
	"quickbite/internal/logger"
	"quickbite/internal/metrics"
)

// memStore mirrors the repository contract: status update and event append
// happen together, same-status is a no-op, bad edges fail.
type memStore struct {
	orders map[uuid.UUID]*domain.Order
	events []domain.StatusTransitionEvent
}

func newMemStore(orders ...*domain.Order) *memStore {
	s := &memStore{orders: map[uuid.UUID]*domain.Order{}}
	for _, o := range orders {
		s.orders[o.ID] = o
	}
	return s
}

func (s *memStore) ApplyTransition(_ context.Context, orderID uuid.UUID, to domain.Status, actor domain.Actor) (domain.Order, bool, error) {
	o, ok := s.orders[orderID]
	if !ok {
		return domain.Order{}, false, fmt.Errorf("order %s: %w", orderID, domain.ErrNotFound)
	}
	if o.Status == to {
		return *o, false, nil
	}
	if !o.Status.CanTransitionTo(to) {
		return domain.Order{}, false, fmt.Errorf("%s -> %s: %w", o.Status, to, domain.ErrInvalidTransition)
	}
	from := o.Status
	o.Status = to
	s.events = append(s.events, domain.StatusTransitionEvent{
		OrderID: orderID, FromStatus: &from, ToStatus: to, ActorRole: actor.Role,
	})
	return *o, true, nil
}

func (s *memStore) HasTransition(_ context.Context, orderID uuid.UUID, to domain.Status) (bool, error) {
	for _, e := range s.events {
		if e.OrderID == orderID && e.ToStatus == to {
			return true, nil
		}
	}
	return false, nil
}

func newTestEngine(t *testing.T, store Store) *Engine {
	t.Helper()
	lg := logger.NewWriter("test", io.Discard)
	return NewEngine(store, lg, metrics.New(prometheus.NewRegistry()))
}

func TestTransitionAppliesOnce(t *testing.T) {
	o := &domain.Order{ID: uuid.New(), Status: domain.StatusPlaced}
	store := newMemStore(o)
	eng := newTestEngine(t, store)
	ctx := context.Background()

	got, applied, err := eng.Transition(ctx, o.ID, domain.StatusAcknowledged, domain.Actor{Role: domain.RoleStaff})
	require.NoError(t, err)
	assert.True(t, applied)
	assert.Equal(t, domain.StatusAcknowledged, got.Status)
	require.Len(t, store.events, 1)
	assert.Equal(t, domain.StatusPlaced, *store.events[0].FromStatus)

	// Redelivered transition to the current status: success, no new event.
	got, applied, err = eng.Transition(ctx, o.ID, domain.StatusAcknowledged, domain.Actor{Role: domain.RoleStaff})
	require.NoError(t, err)
	assert.False(t, applied)
	assert.Equal(t, domain.StatusAcknowledged, got.Status)
	assert.Len(t, store.events, 1)
}

func TestTransitionRejectsBadEdge(t *testing.T) {
	o := &domain.Order{ID: uuid.New(), Status: domain.StatusReady}
	store := newMemStore(o)
	eng := newTestEngine(t, store)

	_, _, err := eng.Transition(context.Background(), o.ID, domain.StatusCancelled, domain.Actor{Role: domain.RoleStaff})
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	assert.Equal(t, domain.StatusReady, o.Status, "order must be untouched")
	assert.Empty(t, store.events)
}

func TestTransitionUnknownOrder(t *testing.T) {
	eng := newTestEngine(t, newMemStore())
	_, _, err := eng.Transition(context.Background(), uuid.New(), domain.StatusAcknowledged, domain.Actor{Role: domain.RoleSystem})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestTransitionUnknownStatus(t *testing.T) {
	eng := newTestEngine(t, newMemStore())
	_, _, err := eng.Transition(context.Background(), uuid.New(), domain.Status("cooking"), domain.Actor{Role: domain.RoleSystem})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestAlreadyApplied(t *testing.T) {
	o := &domain.Order{ID: uuid.New(), Status: domain.StatusPlaced}
	store := newMemStore(o)
	eng := newTestEngine(t, store)
	ctx := context.Background()

	ok, err := eng.AlreadyApplied(ctx, o.ID, domain.StatusAcknowledged)
	require.NoError(t, err)
	assert.False(t, ok)

	_, _, err = eng.Transition(ctx, o.ID, domain.StatusAcknowledged, domain.Actor{Role: domain.RoleStaff})
	require.NoError(t, err)

	ok, err = eng.AlreadyApplied(ctx, o.ID, domain.StatusAcknowledged)
	require.NoError(t, err)
	assert.True(t, ok)
}
