package correlation

// Push events emitted by the dispatch loop.
const (
	EventSwitchStatus = "switch-status"
	EventBulbStatus   = "bulb-status"
)

// SwitchStatus is the payload of switch-status. Exactly one of State and
// IsOnline is set: relay messages carry State, status messages and
// transition timeouts carry IsOnline.
type SwitchStatus struct {
	DeviceID string `json:"deviceId"`
	State    *bool  `json:"state,omitempty"`
	IsOnline *bool  `json:"isOnline,omitempty"`
}

// BulbStatus is the payload of bulb-status.
type BulbStatus struct {
	DeviceID string `json:"deviceId"`
	State    bool   `json:"state"`
}
