package crono

import "errors"

var (
	// ErrInvalidDuration is returned when a countdown is not positive or
	// exceeds MaxDuration.
	ErrInvalidDuration = errors.New("crono duration must be between 1 second and 7 days")
)
