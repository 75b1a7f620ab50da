package schedule

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Repository persists schedules.
type Repository interface {
	Get(ctx context.Context, deviceID string) (*Schedule, error)
	List(ctx context.Context) ([]Schedule, error)
	Upsert(ctx context.Context, s *Schedule) error
	Delete(ctx context.Context, deviceID string) error
}

const scheduleColumns = `device_id, days, slots, enforce_outside_slot, updated_at`

// SQLiteRepository implements Repository on the device_schedules table.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a SQLite-backed repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Get returns the device's schedule or ErrScheduleNotFound.
func (r *SQLiteRepository) Get(ctx context.Context, deviceID string) (*Schedule, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+scheduleColumns+` FROM device_schedules WHERE device_id = ?`, deviceID)
	s, err := scanSchedule(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrScheduleNotFound
		}
		return nil, fmt.Errorf("querying schedule: %w", err)
	}
	return s, nil
}

// List returns every stored schedule ordered by device id.
func (r *SQLiteRepository) List(ctx context.Context) ([]Schedule, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+scheduleColumns+` FROM device_schedules ORDER BY device_id`)
	if err != nil {
		return nil, fmt.Errorf("querying schedules: %w", err)
	}
	defer rows.Close()

	var out []Schedule
	for rows.Next() {
		s, err := scanSchedule(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning schedule: %w", err)
		}
		out = append(out, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating schedules: %w", err)
	}
	return out, nil
}

// Upsert validates s and replaces any stored plan for its device. UpdatedAt
// is set to now.
func (r *SQLiteRepository) Upsert(ctx context.Context, s *Schedule) error {
	if err := s.Validate(); err != nil {
		return err
	}
	if s.Days == nil {
		s.Days = []string{}
	}
	if s.Slots == nil {
		s.Slots = []Slot{}
	}
	days, err := json.Marshal(s.Days)
	if err != nil {
		return fmt.Errorf("marshalling days: %w", err)
	}
	slots, err := json.Marshal(s.Slots)
	if err != nil {
		return fmt.Errorf("marshalling slots: %w", err)
	}
	s.UpdatedAt = time.Now().UTC().Truncate(time.Second)

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO device_schedules (device_id, days, slots, enforce_outside_slot, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(device_id) DO UPDATE SET
			days = excluded.days,
			slots = excluded.slots,
			enforce_outside_slot = excluded.enforce_outside_slot,
			updated_at = excluded.updated_at`,
		s.DeviceID,
		string(days),
		string(slots),
		boolToInt(s.EnforceOutsideSlot),
		s.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("upserting schedule: %w", err)
	}
	return nil
}

// Delete removes the device's plan. Deleting a missing plan is not an error.
func (r *SQLiteRepository) Delete(ctx context.Context, deviceID string) error {
	if _, err := r.db.ExecContext(ctx,
		`DELETE FROM device_schedules WHERE device_id = ?`, deviceID); err != nil {
		return fmt.Errorf("deleting schedule: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSchedule(row scanner) (*Schedule, error) {
	var (
		s         Schedule
		days      string
		slots     string
		enforce   int
		updatedAt string
	)
	if err := row.Scan(&s.DeviceID, &days, &slots, &enforce, &updatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(days), &s.Days); err != nil {
		return nil, fmt.Errorf("decoding days: %w", err)
	}
	if err := json.Unmarshal([]byte(slots), &s.Slots); err != nil {
		return nil, fmt.Errorf("decoding slots: %w", err)
	}
	if s.Days == nil {
		s.Days = []string{}
	}
	if s.Slots == nil {
		s.Slots = []Slot{}
	}
	s.EnforceOutsideSlot = enforce != 0
	if t, err := time.Parse(time.RFC3339, updatedAt); err == nil {
		s.UpdatedAt = t
	}
	return &s, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
