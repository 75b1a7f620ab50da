package schedule

import "errors"

// Domain errors for schedule operations.
var (
	// ErrScheduleNotFound is returned when a device has no stored plan.
	ErrScheduleNotFound = errors.New("schedule not found")

	// ErrInvalidSchedule is returned when days or slots do not validate.
	ErrInvalidSchedule = errors.New("invalid schedule")
)
