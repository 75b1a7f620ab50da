package correlation

import (
	"encoding/json"
	"strings"

	"github.com/nerrad567/homegate/internal/device"
)

// tasmotaResult is the part of a Tasmota stat/<id>/RESULT message we read.
type tasmotaResult struct {
	Power *string `json:"POWER"`
}

// stateMessage is the part of a zigbee2mqtt or custom state message we read.
type stateMessage struct {
	State *string `json:"state"`
}

// HandleMessage is the single inbound dispatch routine. Every subscription
// is registered with it.
//
// A malformed payload is logged and dropped; nothing here returns an error
// or panics back into the transport.
func (e *Engine) HandleMessage(topic string, payload []byte) {
	msg := string(payload)

	if d, ok := e.registry.LookupByTopic(topic); ok {
		e.dispatchDevice(d, topic, msg)
	} else {
		e.metrics.MQTTMessage("unmatched")
	}

	e.resolveReply(topic, payload)
	e.resolveTransition(topic, msg)
}

func (e *Engine) dispatchDevice(d device.Device, topic, msg string) {
	switch {
	case d.Firmware == device.FirmwareEspurna && topic == d.Topic(device.TopicStatus):
		online := msg == "1"
		e.metrics.MQTTMessage("status")
		e.record(d, device.StatePatch{IsOnline: device.Bool(online)})
		e.broadcast(EventSwitchStatus, SwitchStatus{DeviceID: d.ID, IsOnline: device.Bool(online)})

	case d.Firmware == device.FirmwareEspurna && topic == d.Topic(device.TopicRelay):
		on := msg == "1"
		e.metrics.MQTTMessage("relay")
		e.record(d, device.StatePatch{Relay: device.Bool(on), IsOnline: device.Bool(true)})
		e.broadcast(EventSwitchStatus, SwitchStatus{DeviceID: d.ID, State: device.Bool(on)})

	case d.Firmware == device.FirmwareTasmota && topic == d.Topic(device.TopicResult):
		var res tasmotaResult
		if err := json.Unmarshal([]byte(msg), &res); err != nil {
			e.metrics.MQTTMessage("malformed")
			e.logger.Warn("dropping malformed tasmota result", "device_id", d.ID, "topic", topic, "error", err)
			return
		}
		// A RESULT without POWER (a colour-only change) reads as off.
		on := res.Power != nil && strings.EqualFold(*res.Power, "ON")
		e.metrics.MQTTMessage("result")
		e.record(d, device.StatePatch{Power: device.Bool(on), IsOnline: device.Bool(true)})
		e.broadcast(EventBulbStatus, BulbStatus{DeviceID: d.ID, State: on})

	case d.Firmware != device.FirmwareEspurna && d.Firmware != device.FirmwareTasmota &&
		topic == d.Topic(device.TopicState):
		var st stateMessage
		if err := json.Unmarshal([]byte(msg), &st); err != nil || st.State == nil {
			e.metrics.MQTTMessage("malformed")
			e.logger.Warn("dropping state message without state field", "device_id", d.ID, "topic", topic)
			return
		}
		on := strings.EqualFold(*st.State, "ON")
		e.metrics.MQTTMessage("state")
		e.record(d, device.StatePatch{Power: device.Bool(on), IsOnline: device.Bool(true)})
		e.broadcast(EventBulbStatus, BulbStatus{DeviceID: d.ID, State: on})

	default:
		e.metrics.MQTTMessage("other")
		e.logger.Debug("message on unhandled device topic", "device_id", d.ID, "topic", topic)
	}
}

// record merges patch into the registry and mirrors it to telemetry.
func (e *Engine) record(d device.Device, patch device.StatePatch) {
	s := e.registry.RecordState(d.ID, patch)

	online := s.IsOnline != nil && *s.IsOnline
	if patch.IsOnline != nil {
		e.metrics.DeviceOnline(d.ID, online)
	}
	if e.sink != nil {
		var on *bool
		if v, ok := s.OnOff(); ok && (patch.Relay != nil || patch.Power != nil) {
			on = device.Bool(v)
		}
		e.sink.WriteDeviceState(d.ID, string(d.Firmware), on, online)
	}
}

// resolveReply hands the raw payload to a pending RequestReply or
// ReadRetained on topic. The entry is removed here so a second message
// cannot be delivered to the same waiter.
func (e *Engine) resolveReply(topic string, payload []byte) {
	e.mu.Lock()
	p, ok := e.replies[topic]
	if ok {
		delete(e.replies, topic)
	}
	e.mu.Unlock()

	if ok {
		buf := make([]byte, len(payload))
		copy(buf, payload)
		p.done <- buf
	}
}

// resolveTransition completes a pending AwaitStateTransition when the relay
// topic reports the expected value.
func (e *Engine) resolveTransition(topic, msg string) {
	e.mu.Lock()
	p, ok := e.transitions[topic]
	if !ok {
		e.mu.Unlock()
		return
	}
	got := msg == "1"
	if got != p.expected {
		e.mu.Unlock()
		e.logger.Warn("relay reported unexpected value, still waiting",
			"topic", topic, "expected", p.expected, "got", got)
		return
	}
	delete(e.transitions, topic)
	e.mu.Unlock()

	p.done <- struct{}{}
}
