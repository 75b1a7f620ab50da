package schedule

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/homegate/internal/device"
)

// Defaults applied when Config leaves a duration zero.
const (
	DefaultInterval       = time.Minute
	DefaultOverrideWindow = time.Hour
)

// Switcher sends an on/off command without waiting for the device to
// confirm it. *correlation.Engine satisfies it.
type Switcher interface {
	SendSwitch(d device.Device, on bool, source string) error
}

// Metrics counts issued commands. *metrics.Recorder satisfies it.
type Metrics interface {
	ScheduleCommand(command string)
}

// Logger defines the logging interface used by the Evaluator.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Config holds the Evaluator's collaborators.
type Config struct {
	Repository Repository
	Registry   *device.Registry
	Switcher   Switcher

	// Location is the site timezone days and slots are read in. Defaults to
	// time.Local.
	Location       *time.Location
	Interval       time.Duration
	OverrideWindow time.Duration

	Logger  Logger
	Metrics Metrics
}

// Evaluator reconciles devices against their weekly plans.
//
// Two pieces of per-device memory live only in the process: manual
// overrides, which suppress correction for OverrideWindow after a human
// command, and auto-on marks, which let a later sweep tell "the evaluator
// turned this on" from "a person turned this on". Both reset on restart.
type Evaluator struct {
	repo     Repository
	registry *device.Registry
	switcher Switcher

	loc            *time.Location
	interval       time.Duration
	overrideWindow time.Duration
	now            func() time.Time

	mu        sync.Mutex
	overrides map[string]time.Time
	autoOn    map[string]time.Time

	logger  Logger
	metrics Metrics
}

// NewEvaluator creates an Evaluator.
func NewEvaluator(cfg Config) *Evaluator {
	e := &Evaluator{
		repo:           cfg.Repository,
		registry:       cfg.Registry,
		switcher:       cfg.Switcher,
		loc:            cfg.Location,
		interval:       cfg.Interval,
		overrideWindow: cfg.OverrideWindow,
		now:            time.Now,
		overrides:      make(map[string]time.Time),
		autoOn:         make(map[string]time.Time),
		logger:         cfg.Logger,
		metrics:        cfg.Metrics,
	}
	if e.loc == nil {
		e.loc = time.Local
	}
	if e.interval <= 0 {
		e.interval = DefaultInterval
	}
	if e.overrideWindow <= 0 {
		e.overrideWindow = DefaultOverrideWindow
	}
	if e.logger == nil {
		e.logger = noopLogger{}
	}
	return e
}

// Run ticks every Interval until ctx is done.
func (e *Evaluator) Run(ctx context.Context) {
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	e.logger.Info("schedule evaluator started", "interval", e.interval.String())
	for {
		select {
		case <-ctx.Done():
			e.logger.Info("schedule evaluator stopped")
			return
		case <-ticker.C:
			if err := e.Tick(ctx); err != nil {
				e.logger.Error("schedule sweep failed", "error", err)
			}
		}
	}
}

// Tick runs one sweep. The only error is failing to list schedules; a
// problem with one device is logged and the sweep moves on.
func (e *Evaluator) Tick(ctx context.Context) error {
	schedules, err := e.repo.List(ctx)
	if err != nil {
		return fmt.Errorf("listing schedules: %w", err)
	}

	now := e.now().In(e.loc)
	today := DayCode(now)
	minute := minuteOfDay(now)
	e.logger.Debug("evaluating schedules", "day", today, "time", now.Format("15:04"), "count", len(schedules))

	for i := range schedules {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		e.evaluate(&schedules[i], today, minute)
	}
	return nil
}

func (e *Evaluator) evaluate(s *Schedule, today string, minute int) {
	d, ok := e.registry.LookupByID(s.DeviceID)
	if !ok {
		e.logger.Warn("scheduled device not in registry", "device_id", s.DeviceID)
		return
	}
	if d.Topic(device.TopicRelaySet) == "" && d.Topic(device.TopicBacklog) == "" {
		e.logger.Warn("scheduled device has no command topic", "device_id", d.ID)
		return
	}
	if !s.ActiveOn(today) {
		return
	}

	inSlot := s.InSlot(minute)
	var desired bool
	switch {
	case inSlot:
		desired = true
	case e.wasAutoOn(d.ID) || s.EnforceOutsideSlot:
		desired = false
	default:
		return
	}

	if e.OverrideActive(d.ID) {
		e.logger.Debug("manual override active, skipping", "device_id", d.ID)
		return
	}
	if current, known := e.registry.CurrentOnOff(d.ID); known && current == desired {
		return
	}
	if d.Protocol != device.DefaultProtocol {
		e.logger.Warn("scheduled device uses an unsupported protocol", "device_id", d.ID, "protocol", d.Protocol)
		return
	}

	if err := e.switcher.SendSwitch(d, desired, "schedule"); err != nil {
		e.logger.Warn("schedule command not sent", "device_id", d.ID, "on", desired, "error", err)
		return
	}

	command := "off"
	e.mu.Lock()
	if desired {
		command = "on"
		e.autoOn[d.ID] = e.now()
	} else {
		delete(e.autoOn, d.ID)
	}
	e.mu.Unlock()

	if e.metrics != nil {
		e.metrics.ScheduleCommand(command)
	}
	e.logger.Info("schedule command sent", "device_id", d.ID, "command", command)
}

func (e *Evaluator) wasAutoOn(deviceID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.autoOn[deviceID]
	return ok
}

// SetManualOverride suppresses correction of deviceID for OverrideWindow
// from now. Calling it again restarts the window.
func (e *Evaluator) SetManualOverride(deviceID string) {
	e.mu.Lock()
	e.overrides[deviceID] = e.now()
	e.mu.Unlock()
}

// OverrideActive reports whether a manual override on deviceID is still
// within its window. Expired entries are dropped.
func (e *Evaluator) OverrideActive(deviceID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	at, ok := e.overrides[deviceID]
	if !ok {
		return false
	}
	if e.now().Sub(at) >= e.overrideWindow {
		delete(e.overrides, deviceID)
		return false
	}
	return true
}

// IsActiveNow reports whether deviceID's plan covers the current minute.
// A device without a plan is never active.
func (e *Evaluator) IsActiveNow(ctx context.Context, deviceID string) (bool, error) {
	s, err := e.repo.Get(ctx, deviceID)
	if errors.Is(err, ErrScheduleNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return s.ActiveAt(e.now().In(e.loc)), nil
}
