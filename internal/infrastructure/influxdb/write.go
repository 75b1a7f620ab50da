package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names.
const (
	measurementDeviceState   = "device_state"
	measurementDeviceCommand = "device_command"
)

// WriteDeviceState records a device's observed state after an inbound
// status or relay message.
//
// on is nil when the message carried only reachability (espurna status
// topic); the point then has only the online field.
//
//	client.WriteDeviceState("SWITCH_1", "espurna", ptr(true), true)
func (c *Client) WriteDeviceState(deviceID, firmware string, on *bool, online bool) {
	if !c.IsConnected() {
		return
	}

	fields := map[string]any{
		"online": online,
	}
	if on != nil {
		fields["on"] = *on
	}

	c.writeAPI.WritePoint(write.NewPoint(
		measurementDeviceState,
		map[string]string{
			"device_id": deviceID,
			"firmware":  firmware,
		},
		fields,
		time.Now(),
	))
}

// WriteDeviceCommand records an outbound command and who issued it
// (api, schedule, crono).
func (c *Client) WriteDeviceCommand(deviceID, source, payload string) {
	if !c.IsConnected() {
		return
	}

	c.writeAPI.WritePoint(write.NewPoint(
		measurementDeviceCommand,
		map[string]string{
			"device_id": deviceID,
			"source":    source,
		},
		map[string]any{
			"payload": payload,
		},
		time.Now(),
	))
}
