package compose

import "errors"

// ErrGroupSize is returned when a group does not fill exactly one court.
var ErrGroupSize = errors.New("group size does not match format")
