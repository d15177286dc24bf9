package court

import "errors"

// Sentinel kinds for court errors.
var (
	// ErrInvalidCourt means the index is out of range or the slot is in the
	// wrong state for the operation.
	ErrInvalidCourt = errors.New("invalid court")
	ErrGroupSize    = errors.New("court takes zero or exactly players-per-match ids")
	ErrNotWaiting   = errors.New("attendee is not waiting")
)
