package device

// SwitchCommand returns the topic and payload that turn d on or off.
//
// The topic is relaySet, falling back to backlog. Payloads follow the
// firmware: espurna "1"/"0", tasmota "Backlog Power ON|OFF", anything else
// "ON"/"OFF". ok is false when the device has neither topic.
func (d Device) SwitchCommand(on bool) (topic, payload string, ok bool) {
	topic = d.Topic(TopicRelaySet)
	if topic == "" {
		topic = d.Topic(TopicBacklog)
	}
	if topic == "" {
		return "", "", false
	}
	return topic, SwitchPayload(d.Firmware, on), true
}

// SwitchPayload is the firmware-specific on/off payload.
func SwitchPayload(fw Firmware, on bool) string {
	switch fw {
	case FirmwareEspurna:
		if on {
			return "1"
		}
		return "0"
	case FirmwareTasmota:
		if on {
			return "Backlog Power ON"
		}
		return "Backlog Power OFF"
	default:
		if on {
			return "ON"
		}
		return "OFF"
	}
}
