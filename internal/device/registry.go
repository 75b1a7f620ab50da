package device

import (
	"sort"
	"sync"
	"time"
)

// Logger defines the logging interface used by the Registry.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Metrics receives the catalog size after every Load.
type Metrics interface {
	SetDevices(n int)
}

// Registry is the in-memory device catalog plus the last-observed state of
// every device.
//
// The catalog is replaced wholesale by Load; state is merged field by field
// by RecordState. All public methods are thread-safe and every returned
// value is a copy.
type Registry struct {
	mu      sync.RWMutex
	order   []string          // catalog order, for List and topic collisions
	devices map[string]Device // by ID
	byTopic map[string]string // resolved topic -> device ID
	states  map[string]State  // by device ID

	logger  Logger
	metrics Metrics
	now     func() time.Time
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		devices: make(map[string]Device),
		byTopic: make(map[string]string),
		states:  make(map[string]State),
		logger:  noopLogger{},
		now:     time.Now,
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// SetMetrics sets the metrics sink for the registry.
func (r *Registry) SetMetrics(m Metrics) {
	r.metrics = m
}

// Load replaces the catalog with entries.
//
// Topic templates are expanded here once. Entries without topics are kept
// with an empty topic set. State survives for IDs still present and is
// dropped for IDs that left the catalog. Entries without an ID, or repeating
// an earlier ID, are skipped.
func (r *Registry) Load(entries []CatalogEntry) {
	order := make([]string, 0, len(entries))
	devices := make(map[string]Device, len(entries))
	byTopic := make(map[string]string)

	for _, e := range entries {
		if e.ID == "" {
			r.logger.Warn("catalog entry without id skipped", "name", e.Name)
			continue
		}
		if _, dup := devices[e.ID]; dup {
			r.logger.Warn("duplicate catalog entry skipped", "device_id", e.ID)
			continue
		}

		if len(e.Topics) == 0 {
			r.logger.Warn("device has no topics", "device_id", e.ID, "firmware", e.Firmware)
		}
		topics, problems := expandTopics(e)
		for _, p := range problems {
			r.logger.Warn("topic template skipped", "device_id", e.ID, "problem", p)
		}

		protocol := e.Protocol
		if protocol == "" {
			protocol = DefaultProtocol
		}

		d := Device{
			ID:       e.ID,
			Name:     e.Name,
			Firmware: e.Firmware,
			Protocol: protocol,
			Topics:   topics,
		}
		devices[d.ID] = d
		order = append(order, d.ID)

		// Topics within one device are indexed in sorted role order so a
		// collision resolves the same way on every load.
		for _, role := range sortedRoles(topics) {
			topic := topics[role]
			if owner, taken := byTopic[topic]; taken {
				if owner != d.ID {
					r.logger.Warn("topic shared by two devices", "topic", topic, "kept", owner, "ignored", d.ID)
				}
				continue
			}
			byTopic[topic] = d.ID
		}
	}

	r.mu.Lock()
	for id := range r.states {
		if _, keep := devices[id]; !keep {
			delete(r.states, id)
		}
	}
	r.order = order
	r.devices = devices
	r.byTopic = byTopic
	r.mu.Unlock()

	if r.metrics != nil {
		r.metrics.SetDevices(len(order))
	}
	r.logger.Info("device catalog loaded", "count", len(order))
}

// LookupByID returns the device with id.
func (r *Registry) LookupByID(id string) (Device, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.devices[id]
	if !ok {
		return Device{}, false
	}
	return d.clone(), true
}

// LookupByTopic returns the device owning topic.
func (r *Registry) LookupByTopic(topic string) (Device, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byTopic[topic]
	if !ok {
		return Device{}, false
	}
	return r.devices[id].clone(), true
}

// List returns every device in catalog order.
func (r *Registry) List() []Device {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Device, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.devices[id].clone())
	}
	return out
}

// ByFirmware returns the devices of one firmware family in catalog order.
func (r *Registry) ByFirmware(fw Firmware) []Device {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Device
	for _, id := range r.order {
		if d := r.devices[id]; d.Firmware == fw {
			out = append(out, d.clone())
		}
	}
	return out
}

// Count returns the number of devices in the catalog.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// RecordState merges patch into the device's snapshot, last write wins per
// field. IDs not in the catalog are recorded too.
func (r *Registry) RecordState(id string, patch StatePatch) State {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := r.states[id]
	s.merge(patch, r.now())
	r.states[id] = s
	return s.clone()
}

// ReadState returns a copy of the device's snapshot; the zero State when
// nothing was ever recorded.
func (r *Registry) ReadState(id string) State {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.states[id].clone()
}

// CurrentOnOff returns the device's on/off state from relay, falling back to
// power. ok is false when neither is known.
func (r *Registry) CurrentOnOff(id string) (on bool, ok bool) {
	return r.ReadState(id).OnOff()
}

// SubscriptionTopics returns the inbound topics the dispatch loop listens on:
// espurna status and relay, tasmota result, and state for everything else.
func (r *Registry) SubscriptionTopics() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]bool)
	var out []string
	add := func(t string) {
		if t != "" && !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}

	for _, id := range r.order {
		d := r.devices[id]
		switch d.Firmware {
		case FirmwareEspurna:
			add(d.Topic(TopicStatus))
			add(d.Topic(TopicRelay))
		case FirmwareTasmota:
			add(d.Topic(TopicResult))
		default:
			add(d.Topic(TopicState))
		}
	}
	return out
}

func sortedRoles(topics map[TopicRole]string) []TopicRole {
	roles := make([]TopicRole, 0, len(topics))
	for role := range topics {
		roles = append(roles, role)
	}
	sort.Slice(roles, func(i, j int) bool { return roles[i] < roles[j] })
	return roles
}
