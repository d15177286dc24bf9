package fairness

import "errors"

// Sentinel kinds for queue errors.
var (
	// ErrInsufficient means fewer attendees are waiting than a court needs.
	ErrInsufficient = errors.New("insufficient waiting attendees")
	ErrInvalidCount = errors.New("pick count must be positive")
)
