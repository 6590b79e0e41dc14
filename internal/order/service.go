package order

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"quickbite/internal/domain"
	"quickbite/internal/logger"
	"quickbite/internal/metrics"
	"quickbite/internal/money"
)

// Store is the durable order repository the service writes through.
type Store interface {
	CreateOrder(ctx context.Context, o *domain.Order) error
	GetOrder(ctx context.Context, id uuid.UUID) (domain.Order, error)
	ListActive(ctx context.Context, restaurantID uuid.UUID) ([]domain.Order, error)
	ListEvents(ctx context.Context, orderID uuid.UUID) ([]domain.StatusTransitionEvent, error)
}

// Catalog resolves tables and restaurant settings.
type Catalog interface {
	FindTable(ctx context.Context, restaurantID uuid.UUID, code string) (domain.Table, error)
	GetRestaurant(ctx context.Context, id uuid.UUID) (domain.Restaurant, error)
}

// TaskPublisher enqueues order-processing work for the consumer.
type TaskPublisher interface {
	PublishTask(ctx context.Context, task domain.Task) error
}

type CreateLineInput struct {
	ItemID    *uuid.UUID
	Name      string
	Quantity  int
	BasePrice int64
	Options   []domain.LineOption
}

type CreateOrderInput struct {
	RestaurantID uuid.UUID
	TableCode    string
	Locale       string
	Lines        []CreateLineInput
	Notes        string
	TaxRateBps   *int64 // overrides the restaurant's configured rate
}

type Service struct {
	store   Store
	catalog Catalog
	tasks   TaskPublisher
	lg      *logger.Logger
	met     *metrics.Metrics
}

func NewService(store Store, catalog Catalog, tasks TaskPublisher, lg *logger.Logger, met *metrics.Metrics) *Service {
	return &Service{store: store, catalog: catalog, tasks: tasks, lg: lg, met: met}
}

// Create validates the request, prices it, persists order + lines + initial
// event atomically with status placed, then enqueues the processing task.
// Safe under concurrent invocation for different orders.
func (s *Service) Create(ctx context.Context, in CreateOrderInput) (uuid.UUID, error) {
	if len(in.Lines) == 0 {
		return uuid.Nil, domain.ErrEmptyOrder
	}

	table, err := s.catalog.FindTable(ctx, in.RestaurantID, in.TableCode)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return uuid.Nil, fmt.Errorf("table %q: %w", in.TableCode, domain.ErrInvalidTable)
		}
		return uuid.Nil, err
	}

	rest, err := s.catalog.GetRestaurant(ctx, in.RestaurantID)
	if err != nil {
		return uuid.Nil, err
	}
	taxRate := rest.TaxRateBps
	if in.TaxRateBps != nil {
		taxRate = *in.TaxRateBps
	}

	lines := make([]domain.OrderLine, 0, len(in.Lines))
	lineTotals := make([]int64, 0, len(in.Lines))
	for _, li := range in.Lines {
		if li.Name == "" {
			return uuid.Nil, fmt.Errorf("%w: line is missing a name", domain.ErrValidation)
		}
		deltas := make([]int64, 0, len(li.Options))
		for _, opt := range li.Options {
			deltas = append(deltas, opt.PriceDelta)
		}
		total, err := money.LineTotal(li.BasePrice, li.Quantity, deltas)
		if err != nil {
			return uuid.Nil, fmt.Errorf("line %q: %w", li.Name, err)
		}
		lines = append(lines, domain.OrderLine{
			ItemID:    li.ItemID,
			Name:      li.Name,
			Quantity:  li.Quantity,
			BasePrice: li.BasePrice,
			LineTotal: total,
			Options:   li.Options,
		})
		lineTotals = append(lineTotals, total)
	}

	totals, err := money.Compute(lineTotals, taxRate, rest.ServiceRateBps, 0)
	if err != nil {
		return uuid.Nil, err
	}

	locale := in.Locale
	if locale == "" {
		locale = rest.LocaleDefault
	}

	o := domain.Order{
		ID:            uuid.New(),
		RestaurantID:  in.RestaurantID,
		TableID:       table.ID,
		TableCode:     table.Code,
		Locale:        locale,
		Status:        domain.StatusPlaced,
		Subtotal:      totals.Subtotal,
		Tax:           totals.Tax,
		ServiceCharge: totals.ServiceCharge,
		Total:         totals.Total,
		Notes:         in.Notes,
		Lines:         lines,
	}
	if err := s.store.CreateOrder(ctx, &o); err != nil {
		return uuid.Nil, err
	}
	s.met.OrdersCreated.Inc()
	s.lg.Info("order_created", map[string]any{
		"order_id": o.ID.String(), "restaurant_id": in.RestaurantID.String(),
		"table_code": table.Code, "total": o.Total,
	})

	task := domain.Task{Type: domain.TaskOrderPlaced, OrderID: o.ID}
	if err := s.tasks.PublishTask(ctx, task); err != nil {
		// The order is durable; only the processing task is missing. Surface
		// the error so the caller knows confirmation may lag.
		return o.ID, fmt.Errorf("order %s created but task publish failed: %w", o.ID, err)
	}
	return o.ID, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (domain.Order, error) {
	return s.store.GetOrder(ctx, id)
}

func (s *Service) ListActive(ctx context.Context, restaurantID uuid.UUID) ([]domain.Order, error) {
	return s.store.ListActive(ctx, restaurantID)
}

func (s *Service) Timeline(ctx context.Context, orderID uuid.UUID) ([]domain.StatusTransitionEvent, error) {
	return s.store.ListEvents(ctx, orderID)
}

// RequestTransition enqueues a status-change task. The transition itself is
// applied asynchronously by the consumer through the engine; this is the only
// write path besides creation.
func (s *Service) RequestTransition(ctx context.Context, orderID uuid.UUID, target domain.Status, actor domain.Actor) error {
	if !target.Valid() || target == domain.StatusPlaced {
		return fmt.Errorf("%w: cannot request transition to %q", domain.ErrValidation, target)
	}
	if _, err := s.store.GetOrder(ctx, orderID); err != nil {
		return err
	}
	var actorID *string
	if actor.ID != nil {
		s := actor.ID.String()
		actorID = &s
	}
	task := domain.Task{
		Type:         domain.TaskStatusChange,
		OrderID:      orderID,
		TargetStatus: target,
		ActorRole:    actor.Role,
		ActorID:      actorID,
	}
	if err := s.tasks.PublishTask(ctx, task); err != nil {
		return fmt.Errorf("enqueue transition: %w", err)
	}
	s.lg.Debug("transition_enqueued", map[string]any{
		"order_id": orderID.String(), "target_status": string(target), "actor_role": actor.Role,
	})
	return nil
}
