package service

import "errors"

var (
	// ErrNotStarted is returned when the service is used before Start.
	ErrNotStarted = errors.New("service not started")
	// ErrSessionNotFound is returned for unknown, deleted or expired sessions.
	ErrSessionNotFound = errors.New("session not found")
	// ErrBackpressure is returned when a session's command queue is full.
	ErrBackpressure = errors.New("session busy, retry later")
)
