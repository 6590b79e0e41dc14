package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusEdges(t *testing.T) {
	allowed := []struct{ from, to Status }{
		{StatusPlaced, StatusAcknowledged},
		{StatusPlaced, StatusCancelled},
		{StatusAcknowledged, StatusInKitchen},
		{StatusAcknowledged, StatusCancelled},
		{StatusInKitchen, StatusReady},
		{StatusInKitchen, StatusCancelled},
		{StatusReady, StatusServed},
	}
	all := []Status{StatusPlaced, StatusAcknowledged, StatusInKitchen, StatusReady, StatusServed, StatusCancelled}

	isAllowed := func(from, to Status) bool {
		for _, e := range allowed {
			if e.from == from && e.to == to {
				return true
			}
		}
		return false
	}

	// Exhaustive check of the full from x to grid against the edge list.
	for _, from := range all {
		for _, to := range all {
			assert.Equal(t, isAllowed(from, to), from.CanTransitionTo(to), "%s -> %s", from, to)
		}
	}
}

func TestCancelledUnreachableFromLateStatuses(t *testing.T) {
	assert.False(t, StatusReady.CanTransitionTo(StatusCancelled))
	assert.False(t, StatusServed.CanTransitionTo(StatusCancelled))
}

func TestTerminal(t *testing.T) {
	assert.True(t, StatusServed.Terminal())
	assert.True(t, StatusCancelled.Terminal())
	for _, s := range ActiveStatuses() {
		assert.False(t, s.Terminal(), s)
	}
}

func TestEveryStatusReachableFromPlaced(t *testing.T) {
	reached := map[Status]bool{StatusPlaced: true}
	frontier := []Status{StatusPlaced}
	for len(frontier) > 0 {
		next := []Status{}
		for _, s := range frontier {
			for _, to := range transitions[s] {
				if !reached[to] {
					reached[to] = true
					next = append(next, to)
				}
			}
		}
		frontier = next
	}
	for s := range transitions {
		assert.True(t, reached[s], "status %s unreachable from placed", s)
	}
}

func TestParseStatus(t *testing.T) {
	s, err := ParseStatus("in_kitchen")
	assert.NoError(t, err)
	assert.Equal(t, StatusInKitchen, s)

	_, err = ParseStatus("cooking")
	assert.ErrorIs(t, err, ErrValidation)

	_, err = ParseStatus("")
	assert.ErrorIs(t, err, ErrValidation)
}
