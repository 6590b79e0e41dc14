package domain

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// Task is the queue message payload for one unit of order processing.
// Deliveries are at-least-once and may arrive out of order across orders, so
// everything a task triggers must be idempotent.
type Task struct {
	Type         string    `json:"type"`
	OrderID      uuid.UUID `json:"order_id"`
	TargetStatus Status    `json:"target_status,omitempty"`
	ActorRole    string    `json:"actor_role,omitempty"`
	ActorID      *string   `json:"actor_id,omitempty"`
}

const (
	TaskOrderPlaced  = "order_placed"
	TaskStatusChange = "status_change"
)

// ParseTask validates the opaque queue payload. A payload that fails here is a
// candidate poison message, never a transient error.
func ParseTask(body []byte) (Task, error) {
	var t Task
	if err := json.Unmarshal(body, &t); err != nil {
		return Task{}, fmt.Errorf("%w: malformed task payload: %v", ErrValidation, err)
	}
	if t.OrderID == uuid.Nil {
		return Task{}, fmt.Errorf("%w: task missing order_id", ErrValidation)
	}
	switch t.Type {
	case TaskOrderPlaced:
	case TaskStatusChange:
		if !t.TargetStatus.Valid() {
			return Task{}, fmt.Errorf("%w: task has invalid target status %q", ErrValidation, t.TargetStatus)
		}
		if t.ActorRole == "" {
			t.ActorRole = RoleSystem
		}
	default:
		return Task{}, fmt.Errorf("%w: unknown task type %q", ErrValidation, t.Type)
	}
	return t, nil
}

// NotificationEventType selects which channels a domain event fans out to.
type NotificationEventType string

const (
	EventOrderConfirmed     NotificationEventType = "order_confirmed"
	EventOrderStatusChanged NotificationEventType = "order_status_changed"
	EventKitchenAlert       NotificationEventType = "kitchen_alert"
)

// NotificationEvent is the dispatcher input. CustomerEmail is optional; the
// email channel is skipped when it is empty.
type NotificationEvent struct {
	Type          NotificationEventType `json:"type"`
	OrderID       uuid.UUID             `json:"order_id"`
	RestaurantID  uuid.UUID             `json:"restaurant_id"`
	TableCode     string                `json:"table_code"`
	Status        Status                `json:"status"`
	Total         int64                 `json:"total"`
	Locale        string                `json:"locale"`
	CustomerEmail string                `json:"customer_email,omitempty"`
}

// DedupKey identifies this event in the notification send log. Status-change
// events embed the status so each transition notifies independently.
func (ev NotificationEvent) DedupKey() string {
	if ev.Type == EventOrderStatusChanged {
		return string(ev.Type) + ":" + string(ev.Status)
	}
	return string(ev.Type)
}

// ChannelKind names a delivery channel behind the notification port. The
// dispatcher has no knowledge of the transport bound to each kind.
type ChannelKind string

const (
	ChannelCustomerPush  ChannelKind = "customer_push"
	ChannelCustomerEmail ChannelKind = "customer_email"
	ChannelKitchenPush   ChannelKind = "kitchen_push"
	ChannelStaffPush     ChannelKind = "staff_push"
)
