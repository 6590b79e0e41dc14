package domain

import "fmt"

// Status is an order's fulfillment state. The zero value is not a valid status.
type Status string

const (
	StatusPlaced       Status = "placed"
	StatusAcknowledged Status = "acknowledged"
	StatusInKitchen    Status = "in_kitchen"
	StatusReady        Status = "ready"
	StatusServed       Status = "served"
	StatusCancelled    Status = "cancelled"
)

// transitions is the full edge table of the fulfillment state machine.
// cancelled is reachable only before the food is ready.
var transitions = map[Status][]Status{
	StatusPlaced:       {StatusAcknowledged, StatusCancelled},
	StatusAcknowledged: {StatusInKitchen, StatusCancelled},
	StatusInKitchen:    {StatusReady, StatusCancelled},
	StatusReady:        {StatusServed},
	StatusServed:       {},
	StatusCancelled:    {},
}

func (s Status) Valid() bool {
	_, ok := transitions[s]
	return ok
}

// Terminal reports whether s has no outgoing edges.
func (s Status) Terminal() bool {
	return len(transitions[s]) == 0 && s.Valid()
}

// CanTransitionTo reports whether the edge s -> to is in the allowed set.
func (s Status) CanTransitionTo(to Status) bool {
	for _, t := range transitions[s] {
		if t == to {
			return true
		}
	}
	return false
}

func ParseStatus(s string) (Status, error) {
	st := Status(s)
	if !st.Valid() {
		return "", fmt.Errorf("%w: unknown status %q", ErrValidation, s)
	}
	return st, nil
}

// ActiveStatuses lists every non-terminal status, for "active orders" queries.
func ActiveStatuses() []Status {
	return []Status{StatusPlaced, StatusAcknowledged, StatusInKitchen, StatusReady}
}
