// Package database opens the gateway's SQLite file and applies the
// embedded migrations.
//
// Tables: device_schedules (weekly on/off windows), device_cronos (running
// countdowns, so they survive a restart) and audit_log (operator actions).
// The connection runs in WAL mode with a busy timeout.
//
//	db, err := database.Open(cfg.Database)
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//	err = db.Migrate(ctx, migrations.FS)
//
// Migrations only add. Every .up.sql has a .down.sql beside it.
package database
