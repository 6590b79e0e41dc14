package domain

import "errors"

// Error taxonomy. Callers classify with errors.Is; anything that does not match
// one of these sentinels is treated as a transient infrastructure failure and
// retried by the caller rather than surfaced to the end user.
var (
	ErrValidation        = errors.New("validation failed")
	ErrInvalidAmount     = errors.New("invalid amount")
	ErrEmptyOrder        = errors.New("order has no lines")
	ErrInvalidTable      = errors.New("invalid table")
	ErrNotFound          = errors.New("not found")
	ErrInvalidTransition = errors.New("invalid status transition")
)
