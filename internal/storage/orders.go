package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"quickbite/internal/domain"
)

// OrderRepository owns durable order, order-line and transition-event storage.
// All mutation goes through CreateOrder and ApplyTransition; both are atomic.
type OrderRepository struct {
	db *pgxpool.Pool
}

func NewOrderRepository(db *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{db: db}
}

// CreateOrder persists the order, its lines and the initial null->placed
// transition event as one transaction. Partial persistence is never visible.
func (r *OrderRepository) CreateOrder(ctx context.Context, o *domain.Order) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin create order: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `
		INSERT INTO orders
		    (id, restaurant_id, table_id, table_code, locale, status,
		     subtotal, tax, service_charge, total, notes, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,now(),now())
	`, o.ID, o.RestaurantID, o.TableID, o.TableCode, o.Locale, string(o.Status),
		o.Subtotal, o.Tax, o.ServiceCharge, o.Total, nullIfEmpty(o.Notes))
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}

	for i := range o.Lines {
		ln := &o.Lines[i]
		if ln.ID == uuid.Nil {
			ln.ID = uuid.New()
		}
		ln.OrderID = o.ID
		_, err = tx.Exec(ctx, `
			INSERT INTO order_lines (id, order_id, item_id, name_snapshot, quantity, base_price, line_total)
			VALUES ($1,$2,$3,$4,$5,$6,$7)
		`, ln.ID, o.ID, ln.ItemID, ln.Name, ln.Quantity, ln.BasePrice, ln.LineTotal)
		if err != nil {
			return fmt.Errorf("insert order line %q: %w", ln.Name, err)
		}
		for _, opt := range ln.Options {
			_, err = tx.Exec(ctx, `
				INSERT INTO order_line_options (order_line_id, name_snapshot, price_delta)
				VALUES ($1,$2,$3)
			`, ln.ID, opt.Name, opt.PriceDelta)
			if err != nil {
				return fmt.Errorf("insert line option %q: %w", opt.Name, err)
			}
		}
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO order_events (order_id, from_status, to_status, actor_role, actor_id, created_at)
		VALUES ($1, NULL, $2, $3, NULL, now())
	`, o.ID, string(domain.StatusPlaced), domain.RoleCustomer)
	if err != nil {
		return fmt.Errorf("insert initial event: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit create order: %w", err)
	}
	return nil
}

// GetOrder loads one order with its lines. Returns domain.ErrNotFound for an
// unknown id.
func (r *OrderRepository) GetOrder(ctx context.Context, id uuid.UUID) (domain.Order, error) {
	var o domain.Order
	var status string
	err := r.db.QueryRow(ctx, `
		SELECT id, restaurant_id, table_id, table_code, locale, status,
		       subtotal, tax, service_charge, total, COALESCE(notes,''), created_at, updated_at
		FROM orders WHERE id=$1
	`, id).Scan(&o.ID, &o.RestaurantID, &o.TableID, &o.TableCode, &o.Locale, &status,
		&o.Subtotal, &o.Tax, &o.ServiceCharge, &o.Total, &o.Notes, &o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Order{}, fmt.Errorf("order %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Order{}, fmt.Errorf("get order: %w", err)
	}
	o.Status = domain.Status(status)

	rows, err := r.db.Query(ctx, `
		SELECT id, item_id, name_snapshot, quantity, base_price, line_total
		FROM order_lines WHERE order_id=$1 ORDER BY id
	`, id)
	if err != nil {
		return domain.Order{}, fmt.Errorf("get order lines: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var ln domain.OrderLine
		if err := rows.Scan(&ln.ID, &ln.ItemID, &ln.Name, &ln.Quantity, &ln.BasePrice, &ln.LineTotal); err != nil {
			return domain.Order{}, fmt.Errorf("scan order line: %w", err)
		}
		ln.OrderID = id
		o.Lines = append(o.Lines, ln)
	}
	return o, rows.Err()
}

// ListActive returns a restaurant's orders whose status is non-terminal,
// newest first.
func (r *OrderRepository) ListActive(ctx context.Context, restaurantID uuid.UUID) ([]domain.Order, error) {
	active := domain.ActiveStatuses()
	statuses := make([]string, len(active))
	for i, s := range active {
		statuses[i] = string(s)
	}

	rows, err := r.db.Query(ctx, `
		SELECT id, restaurant_id, table_id, table_code, locale, status,
		       subtotal, tax, service_charge, total, COALESCE(notes,''), created_at, updated_at
		FROM orders
		WHERE restaurant_id=$1 AND status = ANY($2)
		ORDER BY created_at DESC
	`, restaurantID, statuses)
	if err != nil {
		return nil, fmt.Errorf("list active orders: %w", err)
	}
	defer rows.Close()

	var out []domain.Order
	for rows.Next() {
		var o domain.Order
		var status string
		if err := rows.Scan(&o.ID, &o.RestaurantID, &o.TableID, &o.TableCode, &o.Locale, &status,
			&o.Subtotal, &o.Tax, &o.ServiceCharge, &o.Total, &o.Notes, &o.CreatedAt, &o.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		o.Status = domain.Status(status)
		out = append(out, o)
	}
	return out, rows.Err()
}

// ApplyTransition moves an order along one state-machine edge. The status
// update and the event append commit as a single transaction; the row lock
// linearizes concurrent transitions per order. Re-applying a transition the
// order already reached is a no-op success (applied=false).
func (r *OrderRepository) ApplyTransition(ctx context.Context, orderID uuid.UUID, to domain.Status, actor domain.Actor) (domain.Order, bool, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return domain.Order{}, false, fmt.Errorf("begin transition: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var cur string
	err = tx.QueryRow(ctx, `SELECT status FROM orders WHERE id=$1 FOR UPDATE`, orderID).Scan(&cur)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Order{}, false, fmt.Errorf("order %s: %w", orderID, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Order{}, false, fmt.Errorf("lock order: %w", err)
	}

	from := domain.Status(cur)
	if from == to {
		// Redelivered work item; nothing to change.
		if err := tx.Commit(ctx); err != nil {
			return domain.Order{}, false, fmt.Errorf("commit noop transition: %w", err)
		}
		o, err := r.GetOrder(ctx, orderID)
		return o, false, err
	}
	if !from.CanTransitionTo(to) {
		return domain.Order{}, false, fmt.Errorf("%s -> %s: %w", from, to, domain.ErrInvalidTransition)
	}

	_, err = tx.Exec(ctx, `UPDATE orders SET status=$2, updated_at=now() WHERE id=$1`, orderID, string(to))
	if err != nil {
		return domain.Order{}, false, fmt.Errorf("update status: %w", err)
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO order_events (order_id, from_status, to_status, actor_role, actor_id, created_at)
		VALUES ($1,$2,$3,$4,$5,now())
	`, orderID, string(from), string(to), actor.Role, actor.ID)
	if err != nil {
		return domain.Order{}, false, fmt.Errorf("append event: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return domain.Order{}, false, fmt.Errorf("commit transition: %w", err)
	}

	o, err := r.GetOrder(ctx, orderID)
	return o, true, err
}

// HasTransition reports whether the append-only log already records the order
// reaching the given status. This is the dedup check for queue redelivery.
func (r *OrderRepository) HasTransition(ctx context.Context, orderID uuid.UUID, to domain.Status) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `
		SELECT EXISTS(SELECT 1 FROM order_events WHERE order_id=$1 AND to_status=$2)
	`, orderID, string(to)).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check transition: %w", err)
	}
	return exists, nil
}

// ListEvents returns the order's transition timeline, oldest first.
func (r *OrderRepository) ListEvents(ctx context.Context, orderID uuid.UUID) ([]domain.StatusTransitionEvent, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, order_id, from_status, to_status, actor_role, actor_id, created_at
		FROM order_events WHERE order_id=$1 ORDER BY id ASC
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var out []domain.StatusTransitionEvent
	for rows.Next() {
		var ev domain.StatusTransitionEvent
		var from *string
		var to string
		if err := rows.Scan(&ev.ID, &ev.OrderID, &from, &to, &ev.ActorRole, &ev.ActorID, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		if from != nil {
			s := domain.Status(*from)
			ev.FromStatus = &s
		}
		ev.ToStatus = domain.Status(to)
		out = append(out, ev)
	}
	return out, rows.Err()
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
