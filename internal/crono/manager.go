package crono

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/homegate/internal/device"
)

// DefaultInterval is how often Run sweeps for expired countdowns.
const DefaultInterval = time.Second

// Expiry outcomes reported to Metrics.CronoExpired.
const (
	ExpiredOff        = "off"
	ExpiredInSchedule = "in_schedule"
	ExpiredNoDevice   = "no_device"
	ExpiredSendFailed = "send_failed"
)

// ScheduleChecker reports whether a device's weekly plan wants it on now.
// *schedule.Evaluator satisfies it.
type ScheduleChecker interface {
	IsActiveNow(ctx context.Context, deviceID string) (bool, error)
}

// Switcher sends an on/off command. *correlation.Engine satisfies it.
type Switcher interface {
	SendSwitch(d device.Device, on bool, source string) error
}

// Broadcaster pushes an event to every interactive client.
type Broadcaster interface {
	Broadcast(event string, payload any)
}

// Metrics tracks countdowns. *metrics.Recorder satisfies it.
type Metrics interface {
	SetCronosActive(n int)
	CronoExpired(action string)
}

// Logger defines the logging interface used by the Manager.
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

// Config holds the Manager's collaborators.
type Config struct {
	Repository  Repository
	Registry    *device.Registry
	Schedules   ScheduleChecker
	Switcher    Switcher
	Broadcaster Broadcaster
	Interval    time.Duration

	Logger  Logger
	Metrics Metrics
}

// Manager owns the running countdowns, one per device at most.
//
// Every change is written to the Repository before the in-memory table, so
// a countdown the API acknowledged is never lost on restart. The lock is
// held across the store call to keep the two in the same order.
type Manager struct {
	repo        Repository
	registry    *device.Registry
	schedules   ScheduleChecker
	switcher    Switcher
	broadcaster Broadcaster
	interval    time.Duration
	now         func() time.Time

	mu     sync.Mutex
	timers map[string]Timer

	logger  Logger
	metrics Metrics
}

// NewManager creates a Manager. Call Load before Run.
func NewManager(cfg Config) *Manager {
	m := &Manager{
		repo:        cfg.Repository,
		registry:    cfg.Registry,
		schedules:   cfg.Schedules,
		switcher:    cfg.Switcher,
		broadcaster: cfg.Broadcaster,
		interval:    cfg.Interval,
		now:         time.Now,
		timers:      make(map[string]Timer),
		logger:      cfg.Logger,
		metrics:     cfg.Metrics,
	}
	if m.interval <= 0 {
		m.interval = DefaultInterval
	}
	if m.logger == nil {
		m.logger = noopLogger{}
	}
	return m
}

// Load fills the table from the store. Countdowns that ended while the
// process was down are deleted and not switched off: the device state at
// that point is unknown.
func (m *Manager) Load(ctx context.Context) error {
	stored, err := m.repo.List(ctx)
	if err != nil {
		return fmt.Errorf("loading cronos: %w", err)
	}

	now := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, t := range stored {
		if t.Expired(now) {
			if err := m.repo.Delete(ctx, t.DeviceID); err != nil {
				m.logger.Warn("could not delete stale crono", "device_id", t.DeviceID, "error", err)
			}
			continue
		}
		m.timers[t.DeviceID] = t
	}
	m.reportActive()
	m.logger.Info("cronos loaded", "active", len(m.timers), "stale", len(stored)-len(m.timers))
	return nil
}

// Start begins (or restarts) a countdown of durationSeconds on deviceID.
func (m *Manager) Start(ctx context.Context, deviceID string, durationSeconds int64, isCustom bool) (Timer, error) {
	if durationSeconds <= 0 || durationSeconds > MaxDuration {
		return Timer{}, ErrInvalidDuration
	}
	t := Timer{
		DeviceID:  deviceID,
		StartedAt: m.now().UTC(),
		Duration:  durationSeconds,
		IsCustom:  isCustom,
	}

	m.mu.Lock()
	if err := m.repo.Upsert(ctx, t); err != nil {
		m.mu.Unlock()
		return Timer{}, err
	}
	m.timers[deviceID] = t
	m.reportActive()
	m.mu.Unlock()

	m.broadcast(activeUpdate(t, t.StartedAt))
	m.logger.Info("crono started", "device_id", deviceID, "duration_s", durationSeconds, "custom", isCustom)
	return t, nil
}

// Get returns the device's countdown.
func (m *Manager) Get(deviceID string) (Timer, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.timers[deviceID]
	return t, ok
}

// Remaining returns the seconds left on the device's countdown, 0 when
// none is running.
func (m *Manager) Remaining(deviceID string) int64 {
	t, ok := m.Get(deviceID)
	if !ok {
		return 0
	}
	return t.Remaining(m.now())
}

// Count returns the number of running countdowns.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.timers)
}

// Cancel stops the device's countdown without switching it. Cancelling a
// device with no countdown succeeds and still broadcasts.
func (m *Manager) Cancel(ctx context.Context, deviceID string) error {
	m.mu.Lock()
	if err := m.repo.Delete(ctx, deviceID); err != nil {
		m.mu.Unlock()
		return err
	}
	delete(m.timers, deviceID)
	m.reportActive()
	m.mu.Unlock()

	m.broadcast(inactiveUpdate(deviceID))
	return nil
}

// Run sweeps every Interval until ctx is done.
func (m *Manager) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Sweep(ctx)
		}
	}
}

// Sweep handles every countdown that has reached its end. A device still
// inside a scheduled slot is left on; otherwise it is switched off. Either
// way the countdown is discarded.
func (m *Manager) Sweep(ctx context.Context) {
	now := m.now()

	m.mu.Lock()
	var expired []Timer
	for _, t := range m.timers {
		if t.Expired(now) {
			expired = append(expired, t)
		}
	}
	m.mu.Unlock()

	for _, t := range expired {
		if ctx.Err() != nil {
			return
		}
		action := m.expire(ctx, t)
		if m.metrics != nil {
			m.metrics.CronoExpired(action)
		}
		m.discard(ctx, t)
	}
}

func (m *Manager) expire(ctx context.Context, t Timer) string {
	d, ok := m.registry.LookupByID(t.DeviceID)
	if !ok {
		m.logger.Warn("crono expired for unknown device", "device_id", t.DeviceID)
		return ExpiredNoDevice
	}

	if m.schedules != nil {
		active, err := m.schedules.IsActiveNow(ctx, t.DeviceID)
		if err != nil {
			m.logger.Warn("schedule lookup failed, switching off", "device_id", t.DeviceID, "error", err)
		} else if active {
			m.logger.Info("crono expired inside a scheduled slot, leaving on", "device_id", t.DeviceID)
			return ExpiredInSchedule
		}
	}

	if err := m.switcher.SendSwitch(d, false, "crono"); err != nil {
		m.logger.Warn("crono off command not sent", "device_id", t.DeviceID, "error", err)
		return ExpiredSendFailed
	}
	m.logger.Info("crono expired, device switched off", "device_id", t.DeviceID)
	return ExpiredOff
}

// discard removes t unless it was replaced by a newer Start meanwhile. A
// failed store delete is logged and the entry still leaves memory; Load
// drops the stale row on the next start.
func (m *Manager) discard(ctx context.Context, t Timer) {
	m.mu.Lock()
	current, ok := m.timers[t.DeviceID]
	if !ok || !current.StartedAt.Equal(t.StartedAt) {
		m.mu.Unlock()
		return
	}
	if err := m.repo.Delete(ctx, t.DeviceID); err != nil {
		m.logger.Error("deleting expired crono failed", "device_id", t.DeviceID, "error", err)
	}
	delete(m.timers, t.DeviceID)
	m.reportActive()
	m.mu.Unlock()

	m.broadcast(inactiveUpdate(t.DeviceID))
}

// reportActive must be called with mu held.
func (m *Manager) reportActive() {
	if m.metrics != nil {
		m.metrics.SetCronosActive(len(m.timers))
	}
}

func (m *Manager) broadcast(u Update) {
	if m.broadcaster != nil {
		m.broadcaster.Broadcast(EventUpdate, u)
	}
}
