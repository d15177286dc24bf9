package session

import (
	"errors"

	"github.com/okian/rally/internal/domain/court"
	"github.com/okian/rally/internal/domain/fairness"
)

// Sentinel kinds for scheduler errors. A transition that returns one of these
// has changed nothing.
var (
	ErrValidation       = errors.New("validation failed")
	ErrNotFound         = errors.New("attendee not found")
	ErrBlocked          = errors.New("attendee is on court")
	ErrNotPaused        = errors.New("attendee is not paused")
	ErrAlreadyAttending = errors.New("attendee already in session")
	ErrAlreadyRunning   = errors.New("session already running")

	// ErrInvalidCourt is returned for a bad or idle court index, or any court
	// operation before the session starts.
	ErrInvalidCourt = court.ErrInvalidCourt

	// ErrInsufficient is never returned by a transition. A court that cannot
	// be refilled is reported with Refilled=false instead.
	ErrInsufficient = fairness.ErrInsufficient
)
