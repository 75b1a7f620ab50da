package camera

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"sync"
)

// Defaults for the MQTT wake-up trigger.
const (
	DefaultTriggerTopic   = "esp01s/camara"
	DefaultTriggerPayload = "activar"
)

// Push events sent to interactive clients.
const (
	EventFrame       = "camera_frame"
	EventBulbStatus  = "bulb-status"
	EventAlarmStatus = "alarm-status"
)

// Camera work modes returned to get_mode.
const (
	ModeIdle       = "idle"
	ModeStream     = "stream"
	ModeAlarm      = "alarm"
	ModeStopStream = "stop-stream"
)

// statusProbe is the camera's plain-text liveness check and statusReply
// the answer it expects.
const (
	statusProbe = "STATUS"
	statusReply = "BACKEND WS OK"
)

// Viewer receives frames. session.Conn and the push hub's clients satisfy it.
type Viewer interface {
	Send(event string, payload any) error
}

// Publisher sends a fire-and-forget MQTT message. *correlation.Engine
// satisfies it.
type Publisher interface {
	Publish(topic, payload string)
}

// Broadcaster pushes an event to every interactive client.
type Broadcaster interface {
	Broadcast(event string, payload any)
}

// Logger defines the logging interface used by the Relay.
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

// Config holds the Relay's collaborators.
type Config struct {
	Publisher      Publisher
	Broadcaster    Broadcaster
	TriggerTopic   string
	TriggerPayload string
	Logger         Logger
}

// Relay sits between the camera's own websocket link and the push clients
// watching it.
//
// The camera polls get_mode to learn whether anyone is watching. Frames it
// sends are forwarded to viewers only; with no viewers left it is told to
// stop streaming.
type Relay struct {
	publisher      Publisher
	broadcaster    Broadcaster
	triggerTopic   string
	triggerPayload string

	mu        sync.Mutex
	viewers   map[string]Viewer
	streaming bool
	alarm     bool

	logger Logger
}

// NewRelay creates a Relay.
func NewRelay(cfg Config) *Relay {
	r := &Relay{
		publisher:      cfg.Publisher,
		broadcaster:    cfg.Broadcaster,
		triggerTopic:   cfg.TriggerTopic,
		triggerPayload: cfg.TriggerPayload,
		viewers:        make(map[string]Viewer),
		logger:         cfg.Logger,
	}
	if r.triggerTopic == "" {
		r.triggerTopic = DefaultTriggerTopic
	}
	if r.triggerPayload == "" {
		r.triggerPayload = DefaultTriggerPayload
	}
	if r.logger == nil {
		r.logger = noopLogger{}
	}
	return r
}

// RequestStream adds id as a viewer and wakes the camera over MQTT.
func (r *Relay) RequestStream(id string, v Viewer) {
	r.mu.Lock()
	r.viewers[id] = v
	r.streaming = true
	n := len(r.viewers)
	r.mu.Unlock()

	if r.publisher != nil {
		r.publisher.Publish(r.triggerTopic, r.triggerPayload)
	}
	r.logger.Info("camera viewer added", "viewer", id, "viewers", n)
}

// RemoveViewer drops id. Streaming stops with the last viewer.
func (r *Relay) RemoveViewer(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.viewers[id]; !ok {
		return
	}
	delete(r.viewers, id)
	if len(r.viewers) == 0 {
		r.streaming = false
	}
	r.logger.Info("camera viewer removed", "viewer", id, "viewers", len(r.viewers))
}

// ViewerCount returns the number of viewers.
func (r *Relay) ViewerCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.viewers)
}

// Streaming reports whether a viewer has asked for the stream.
func (r *Relay) Streaming() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.streaming
}

// Mode returns what the camera should do next. A pending alarm is reported
// once and then cleared.
func (r *Relay) Mode() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch {
	case r.alarm:
		r.alarm = false
		return ModeAlarm
	case r.streaming:
		return ModeStream
	default:
		return ModeIdle
	}
}

type modeReply struct {
	Action string `json:"action"`
	Mode   string `json:"mode"`
}

// HandleDeviceMessage processes one message from the camera link and
// returns the reply to send back, or nil. Text that is neither the status
// probe nor a JSON object is treated as frame data, like binary messages.
func (r *Relay) HandleDeviceMessage(data []byte, text bool) []byte {
	if text {
		trimmed := bytes.TrimSpace(data)
		if string(trimmed) == statusProbe {
			return []byte(statusReply)
		}
		if len(trimmed) > 1 && trimmed[0] == '{' && trimmed[len(trimmed)-1] == '}' {
			reply, ok := r.handleCommand(trimmed)
			if ok {
				return reply
			}
		}
	}
	return r.handleFrame(data)
}

// handleCommand returns ok=false only when the JSON does not parse.
func (r *Relay) handleCommand(raw []byte) ([]byte, bool) {
	// Decoded once; bulb-status forwards the whole object.
	var msg map[string]any
	if err := json.Unmarshal(raw, &msg); err != nil {
		r.logger.Warn("camera sent malformed JSON", "error", err)
		return nil, false
	}
	action, _ := msg["action"].(string) //nolint:errcheck // a missing action is reported below

	switch action {
	case "get_mode":
		return r.modeReply(r.Mode()), true
	case "alarm-triggered":
		r.mu.Lock()
		r.alarm = true
		r.mu.Unlock()
		r.logger.Warn("camera reported an alarm")
	case "bulb-status":
		r.broadcast(EventBulbStatus, map[string]any{"data": msg})
	case "alarm-status":
		r.broadcast(EventAlarmStatus, map[string]any{"status": msg["status"]})
	default:
		r.logger.Warn("camera sent unknown action", "action", action)
	}
	return nil, true
}

// handleFrame forwards an image to the viewers, or tells the camera to stop
// when nobody is watching.
func (r *Relay) handleFrame(frame []byte) []byte {
	r.mu.Lock()
	if len(r.viewers) == 0 {
		r.streaming = false
		r.mu.Unlock()
		r.logger.Debug("frame with no viewers, stopping stream")
		return r.modeReply(ModeStopStream)
	}
	viewers := make(map[string]Viewer, len(r.viewers))
	for id, v := range r.viewers {
		viewers[id] = v
	}
	r.mu.Unlock()

	encoded := base64.StdEncoding.EncodeToString(frame)
	for id, v := range viewers {
		if err := v.Send(EventFrame, encoded); err != nil {
			r.logger.Debug("frame not delivered", "viewer", id, "error", err)
		}
	}
	return nil
}

func (r *Relay) modeReply(mode string) []byte {
	b, _ := json.Marshal(modeReply{Action: "mode", Mode: mode})
	return b
}

func (r *Relay) broadcast(event string, payload any) {
	if r.broadcaster != nil {
		r.broadcaster.Broadcast(event, payload)
	}
}
