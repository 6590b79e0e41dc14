package domain

import (
	"time"

	"github.com/google/uuid"
)

// Restaurant carries the settings order creation needs; tax and service-charge
// rates are kept in basis points (hundredths of a percent) so 10.00% stays
// integer-exact.
type Restaurant struct {
	ID             uuid.UUID
	Name           string
	LocaleDefault  string
	TaxRateBps     int64
	ServiceRateBps int64
}

type Table struct {
	ID           uuid.UUID
	RestaurantID uuid.UUID
	Code         string
	DisplayName  string
}

// Order is the durable order row. All monetary amounts are integer minor
// currency units. Invariant: Total = Subtotal + Tax + ServiceCharge, all
// components non-negative; the amounts are fixed at creation and never drift.
type Order struct {
	ID            uuid.UUID
	RestaurantID  uuid.UUID
	TableID       uuid.UUID
	TableCode     string
	Locale        string
	Status        Status
	Subtotal      int64
	Tax           int64
	ServiceCharge int64
	Total         int64
	Notes         string
	CreatedAt     time.Time
	UpdatedAt     time.Time
	Lines         []OrderLine
}

// OrderLine stores a name/price snapshot taken at order time, so the order
// stays evidence of what was charged even if the menu changes later.
type OrderLine struct {
	ID        uuid.UUID
	OrderID   uuid.UUID
	ItemID    *uuid.UUID // nil when the catalog item was deleted or never existed
	Name      string
	Quantity  int
	BasePrice int64
	LineTotal int64
	Options   []LineOption
}

type LineOption struct {
	Name       string
	PriceDelta int64
}

// Actor identifies who drove a status change.
type Actor struct {
	Role string
	ID   *uuid.UUID
}

const (
	RoleCustomer = "customer"
	RoleStaff    = "staff"
	RoleKitchen  = "kitchen"
	RoleSystem   = "system"
)

// StatusTransitionEvent is one row of the append-only audit log. FromStatus is
// nil for the initial placed event. One event exists per realized transition;
// the log doubles as the dedup source for queue redelivery.
type StatusTransitionEvent struct {
	ID         int64
	OrderID    uuid.UUID
	FromStatus *Status
	ToStatus   Status
	ActorRole  string
	ActorID    *uuid.UUID
	CreatedAt  time.Time
}
