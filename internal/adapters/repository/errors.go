package repository

import "errors"

// Sentinel kinds for registry errors.
var (
	ErrNotFound      = errors.New("player not found")
	ErrInvalidPlayer = errors.New("invalid player")
	ErrDuplicate     = errors.New("player already exists")
)
