package crono

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Repository persists running countdowns so they survive a restart.
type Repository interface {
	List(ctx context.Context) ([]Timer, error)
	Upsert(ctx context.Context, t Timer) error
	Delete(ctx context.Context, deviceID string) error
}

// SQLiteRepository implements Repository on the device_cronos table.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a SQLite-backed repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// List returns every stored countdown, expired ones included.
func (r *SQLiteRepository) List(ctx context.Context) ([]Timer, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT device_id, started_at, duration_seconds, is_custom FROM device_cronos ORDER BY device_id`)
	if err != nil {
		return nil, fmt.Errorf("querying cronos: %w", err)
	}
	defer rows.Close()

	var out []Timer
	for rows.Next() {
		var (
			t         Timer
			startedAt string
			custom    int
		)
		if err := rows.Scan(&t.DeviceID, &startedAt, &t.Duration, &custom); err != nil {
			return nil, fmt.Errorf("scanning crono: %w", err)
		}
		t.StartedAt, err = time.Parse(time.RFC3339Nano, startedAt)
		if err != nil {
			return nil, fmt.Errorf("parsing started_at for %s: %w", t.DeviceID, err)
		}
		t.IsCustom = custom != 0
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating cronos: %w", err)
	}
	return out, nil
}

// Upsert stores t, replacing any countdown already on the device.
func (r *SQLiteRepository) Upsert(ctx context.Context, t Timer) error {
	custom := 0
	if t.IsCustom {
		custom = 1
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO device_cronos (device_id, started_at, duration_seconds, is_custom)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(device_id) DO UPDATE SET
			started_at = excluded.started_at,
			duration_seconds = excluded.duration_seconds,
			is_custom = excluded.is_custom`,
		t.DeviceID,
		t.StartedAt.UTC().Format(time.RFC3339Nano),
		t.Duration,
		custom,
	)
	if err != nil {
		return fmt.Errorf("upserting crono: %w", err)
	}
	return nil
}

// Delete removes the device's countdown. A missing row is not an error.
func (r *SQLiteRepository) Delete(ctx context.Context, deviceID string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM device_cronos WHERE device_id = ?`, deviceID); err != nil {
		return fmt.Errorf("deleting crono: %w", err)
	}
	return nil
}
