package schedule

import (
	"errors"
	"testing"
	"time"
)

func TestDayCode(t *testing.T) {
	// 2026-10-18 is a Sunday.
	sunday := time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)
	want := []string{"D", "L", "M", "X", "J", "V", "S"}
	for i, code := range want {
		if got := DayCode(sunday.AddDate(0, 0, i)); got != code {
			t.Errorf("DayCode(+%d days) = %q, want %q", i, got, code)
		}
	}
}

func TestSlotContains(t *testing.T) {
	tests := []struct {
		name   string
		slot   Slot
		minute int
		want   bool
	}{
		{"start is inclusive", Slot{"08:00", "10:00"}, 8 * 60, true},
		{"end is inclusive", Slot{"08:00", "10:00"}, 10 * 60, true},
		{"inside", Slot{"08:00", "10:00"}, 9 * 60, true},
		{"before", Slot{"08:00", "10:00"}, 7*60 + 59, false},
		{"after", Slot{"08:00", "10:00"}, 10*60 + 1, false},
		{"crossing midnight never matches", Slot{"22:00", "02:00"}, 23 * 60, false},
		{"garbage", Slot{"soon", "later"}, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.slot.Contains(tt.minute); got != tt.want {
				t.Errorf("Contains(%d) = %v, want %v", tt.minute, got, tt.want)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		s       Schedule
		wantErr bool
	}{
		{"default", DefaultSchedule("SWITCH_1"), false},
		{"full week", Schedule{DeviceID: "a", Days: DayCodes[:], Slots: []Slot{{"00:00", "23:59"}}}, false},
		{"missing id", Schedule{}, true},
		{"english day", Schedule{DeviceID: "a", Days: []string{"Mon"}}, true},
		{"lowercase day", Schedule{DeviceID: "a", Days: []string{"l"}}, true},
		{"hour out of range", Schedule{DeviceID: "a", Slots: []Slot{{"24:00", "25:00"}}}, true},
		{"minute out of range", Schedule{DeviceID: "a", Slots: []Slot{{"08:60", "09:00"}}}, true},
		{"no colon", Schedule{DeviceID: "a", Slots: []Slot{{"0800", "0900"}}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.s.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidSchedule) {
				t.Errorf("error %v does not wrap ErrInvalidSchedule", err)
			}
		})
	}
}

func TestActiveAt(t *testing.T) {
	s := Schedule{DeviceID: "a", Days: []string{"L"}, Slots: []Slot{{"08:00", "10:00"}, {"18:00", "18:30"}}}

	monday := time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC)
	cases := map[string]struct {
		at   time.Time
		want bool
	}{
		"monday 09:00":  {monday.Add(9 * time.Hour), true},
		"monday 18:15":  {monday.Add(18*time.Hour + 15*time.Minute), true},
		"monday 12:00":  {monday.Add(12 * time.Hour), false},
		"tuesday 09:00": {monday.Add(33 * time.Hour), false},
	}
	for name, c := range cases {
		if got := s.ActiveAt(c.at); got != c.want {
			t.Errorf("%s: ActiveAt = %v, want %v", name, got, c.want)
		}
	}
}
