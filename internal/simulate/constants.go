package simulate

import "time"

// Retry configuration for backpressured requests.
const (
	maxRetries   = 5
	retryBackoff = 20 * time.Millisecond
)

// Runner configuration constants.
const (
	PercentageMultiplier = 100
	// fairSpread is the largest games-played gap between active attendees
	// that is reported without a warning.
	fairSpread = 2
)
