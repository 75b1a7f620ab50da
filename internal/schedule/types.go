package schedule

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"
)

// DayCodes maps time.Weekday to the single-letter codes stored in
// Schedule.Days: D (Sunday), L, M, X, J, V, S (Saturday).
var DayCodes = [7]string{"D", "L", "M", "X", "J", "V", "S"}

// DayCode returns the code for t's weekday.
func DayCode(t time.Time) string {
	return DayCodes[t.Weekday()]
}

// Slot is a daily on-window. Both bounds are inclusive, to the minute.
// A slot whose end is before its start never matches.
type Slot struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// Contains reports whether minuteOfDay falls inside the slot. Unparseable
// slots contain nothing.
func (s Slot) Contains(minuteOfDay int) bool {
	start, err := parseClock(s.Start)
	if err != nil {
		return false
	}
	end, err := parseClock(s.End)
	if err != nil {
		return false
	}
	return minuteOfDay >= start && minuteOfDay <= end
}

// Schedule is a device's weekly plan.
type Schedule struct {
	DeviceID string   `json:"deviceId"`
	Days     []string `json:"days"`
	Slots    []Slot   `json:"slots"`

	// EnforceOutsideSlot turns the device off outside every slot even when
	// the evaluator did not turn it on.
	EnforceOutsideSlot bool `json:"enforceOutsideSlot"`

	UpdatedAt time.Time `json:"updatedAt,omitzero"`
}

// DefaultSchedule is what a device without a stored plan reports.
func DefaultSchedule(deviceID string) Schedule {
	return Schedule{
		DeviceID: deviceID,
		Days:     []string{},
		Slots:    []Slot{},
	}
}

// Validate checks day codes and slot times.
func (s *Schedule) Validate() error {
	if s.DeviceID == "" {
		return fmt.Errorf("%w: device id is required", ErrInvalidSchedule)
	}
	for _, d := range s.Days {
		if !slices.Contains(DayCodes[:], d) {
			return fmt.Errorf("%w: unknown day code %q", ErrInvalidSchedule, d)
		}
	}
	for i, slot := range s.Slots {
		if _, err := parseClock(slot.Start); err != nil {
			return fmt.Errorf("%w: slot %d start: %w", ErrInvalidSchedule, i, err)
		}
		if _, err := parseClock(slot.End); err != nil {
			return fmt.Errorf("%w: slot %d end: %w", ErrInvalidSchedule, i, err)
		}
	}
	return nil
}

// ActiveOn reports whether the plan applies on day.
func (s *Schedule) ActiveOn(day string) bool {
	return slices.Contains(s.Days, day)
}

// InSlot reports whether minuteOfDay is inside any slot.
func (s *Schedule) InSlot(minuteOfDay int) bool {
	for _, slot := range s.Slots {
		if slot.Contains(minuteOfDay) {
			return true
		}
	}
	return false
}

// ActiveAt reports whether t, already in the site timezone, is on an
// active day and inside a slot.
func (s *Schedule) ActiveAt(t time.Time) bool {
	return s.ActiveOn(DayCode(t)) && s.InSlot(minuteOfDay(t))
}

func minuteOfDay(t time.Time) int {
	return t.Hour()*60 + t.Minute()
}

// parseClock turns "HH:MM" into minutes after midnight.
func parseClock(v string) (int, error) {
	hh, mm, ok := strings.Cut(v, ":")
	if !ok {
		return 0, fmt.Errorf("%q is not HH:MM", v)
	}
	h, err := strconv.Atoi(hh)
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("%q has an invalid hour", v)
	}
	m, err := strconv.Atoi(mm)
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("%q has an invalid minute", v)
	}
	return h*60 + m, nil
}
