package device

import (
	"encoding/json"
	"time"
)

// Firmware identifies the device-side software, which decides both topic
// naming and command vocabulary.
type Firmware string

// Known firmware families. Anything else is accepted and handled like
// FirmwareCustom.
const (
	FirmwareEspurna     Firmware = "espurna"
	FirmwareTasmota     Firmware = "tasmota"
	FirmwareZigbee2MQTT Firmware = "zigbee2mqtt"
	FirmwareCustom      Firmware = "custom"
)

// TopicRole names a logical topic on a device. The catalog may carry roles
// beyond these; they are kept as-is.
type TopicRole string

const (
	TopicState    TopicRole = "state"
	TopicResult   TopicRole = "result"
	TopicRelay    TopicRole = "relay"
	TopicRelaySet TopicRole = "relaySet"
	TopicStatus   TopicRole = "status"
	TopicBacklog  TopicRole = "backlog"
	TopicHSBColor TopicRole = "hsbColor"
	TopicPower    TopicRole = "power"
)

// DefaultProtocol is assumed when a catalog entry omits its protocol.
const DefaultProtocol = "mqtt"

// CatalogEntry is one device as served by the orchestration service at
// GET /config/devices. Topic values are firmware-dependent templates:
//
//	espurna:            "/relay/0"               -> ID + path
//	tasmota:            ["cmnd/", "/Backlog"]    -> prefix + ID + suffix
//	zigbee2mqtt/custom: "zigbee2mqtt/lamp"       -> verbatim
type CatalogEntry struct {
	ID       string                     `json:"id"`
	Name     string                     `json:"name"`
	Firmware Firmware                   `json:"firmware"`
	Protocol string                     `json:"protocol,omitempty"`
	Topics   map[string]json.RawMessage `json:"topics,omitempty"`
}

// Device is a catalog entry with every topic template resolved.
type Device struct {
	ID       string               `json:"id"`
	Name     string               `json:"name"`
	Firmware Firmware             `json:"firmware"`
	Protocol string               `json:"protocol"`
	Topics   map[TopicRole]string `json:"topics"`
}

// Topic returns the resolved topic for role, or "" when absent.
func (d Device) Topic(role TopicRole) string {
	return d.Topics[role]
}

// clone returns a copy with its own topic map.
func (d Device) clone() Device {
	topics := make(map[TopicRole]string, len(d.Topics))
	for k, v := range d.Topics {
		topics[k] = v
	}
	d.Topics = topics
	return d
}

// State is the last-observed snapshot of a device. Nil fields are unknown,
// which callers must not read as "off".
type State struct {
	Relay     *bool     `json:"relay,omitempty"`
	Power     *bool     `json:"power,omitempty"`
	IsOnline  *bool     `json:"isOnline,omitempty"`
	UpdatedAt time.Time `json:"updatedAt,omitempty"`
}

// StatePatch is merged into a State field by field; nil fields are left alone.
type StatePatch struct {
	Relay    *bool
	Power    *bool
	IsOnline *bool
}

// Bool returns a pointer to v, for building patches.
func Bool(v bool) *bool {
	return &v
}

// OnOff returns relay, falling back to power. ok is false when neither is known.
func (s State) OnOff() (on bool, ok bool) {
	if s.Relay != nil {
		return *s.Relay, true
	}
	if s.Power != nil {
		return *s.Power, true
	}
	return false, false
}

func (s *State) merge(p StatePatch, at time.Time) {
	if p.Relay != nil {
		s.Relay = Bool(*p.Relay)
	}
	if p.Power != nil {
		s.Power = Bool(*p.Power)
	}
	if p.IsOnline != nil {
		s.IsOnline = Bool(*p.IsOnline)
	}
	s.UpdatedAt = at
}

func (s State) clone() State {
	out := State{UpdatedAt: s.UpdatedAt}
	if s.Relay != nil {
		out.Relay = Bool(*s.Relay)
	}
	if s.Power != nil {
		out.Power = Bool(*s.Power)
	}
	if s.IsOnline != nil {
		out.IsOnline = Bool(*s.IsOnline)
	}
	return out
}
