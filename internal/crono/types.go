package crono

import "time"

// EventUpdate is the push event sent whenever a countdown starts or ends.
const EventUpdate = "crono:update"

// MaxDuration is the longest countdown, in seconds.
const MaxDuration int64 = 7 * 24 * 60 * 60

// Timer is a running countdown that switches a device off when it ends.
type Timer struct {
	DeviceID  string    `json:"deviceId"`
	StartedAt time.Time `json:"startedAt"`

	// Duration is in whole seconds.
	Duration int64 `json:"duration"`

	// IsCustom marks a duration the user typed rather than a preset.
	IsCustom bool `json:"isCustom"`
}

// EndAt is when the countdown expires.
func (t Timer) EndAt() time.Time {
	return t.StartedAt.Add(time.Duration(t.Duration) * time.Second)
}

// Remaining is the whole seconds left at now, never negative.
func (t Timer) Remaining(now time.Time) int64 {
	left := t.EndAt().Sub(now)
	if left <= 0 {
		return 0
	}
	return int64(left / time.Second)
}

// Expired reports whether now has reached EndAt.
func (t Timer) Expired(now time.Time) bool {
	return !now.Before(t.EndAt())
}

// Update is the crono:update payload. Inactive updates carry only the
// device id.
type Update struct {
	DeviceID  string `json:"deviceId"`
	Active    bool   `json:"active"`
	Remaining int64  `json:"remaining,omitempty"`
	Duration  int64  `json:"duration,omitempty"`
	IsCustom  *bool  `json:"isCustom,omitempty"`
}

func activeUpdate(t Timer, now time.Time) Update {
	custom := t.IsCustom
	return Update{
		DeviceID:  t.DeviceID,
		Active:    true,
		Remaining: t.Remaining(now),
		Duration:  t.Duration,
		IsCustom:  &custom,
	}
}

func inactiveUpdate(deviceID string) Update {
	return Update{DeviceID: deviceID}
}
