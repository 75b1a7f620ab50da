// Package crono runs per-device countdowns ("turn this off in 30 minutes").
//
// A countdown is stored in SQLite when it starts and removed when it ends or
// is cancelled, so a restart picks up where it left off. Every second the
// Manager sweeps for countdowns that have run out and switches the device
// off, unless the device's weekly schedule wants it on right now; the
// schedule wins.
//
// Each start and end is broadcast to push clients as crono:update.
package crono
