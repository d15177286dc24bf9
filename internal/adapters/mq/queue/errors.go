package queue

import "errors"

// Sentinel kinds for queue errors.
var (
	ErrClosed = errors.New("command queue closed")
	ErrFull   = errors.New("command queue full")
)
