package device

import (
	"encoding/json"
	"fmt"
)

// expandTopics resolves the catalog templates of one entry. Roles whose
// template does not fit the firmware's shape are skipped and reported in
// problems; the rest of the device still loads.
func expandTopics(e CatalogEntry) (topics map[TopicRole]string, problems []string) {
	topics = make(map[TopicRole]string, len(e.Topics))

	for role, raw := range e.Topics {
		var (
			resolved string
			err      error
		)
		switch e.Firmware {
		case FirmwareEspurna:
			resolved, err = expandEspurna(e.ID, raw)
		case FirmwareTasmota:
			resolved, err = expandTasmota(e.ID, raw)
		default:
			resolved, err = expandVerbatim(raw)
		}
		if err != nil {
			problems = append(problems, fmt.Sprintf("%s: %v", role, err))
			continue
		}
		topics[TopicRole(role)] = resolved
	}
	return topics, problems
}

// expandEspurna: the template is a path appended to the device ID.
func expandEspurna(id string, raw json.RawMessage) (string, error) {
	var path string
	if err := json.Unmarshal(raw, &path); err != nil {
		return "", fmt.Errorf("espurna template must be a string: %w", err)
	}
	return id + path, nil
}

// expandTasmota: the template is a [prefix, suffix] pair around the ID.
func expandTasmota(id string, raw json.RawMessage) (string, error) {
	var pair []string
	if err := json.Unmarshal(raw, &pair); err != nil {
		return "", fmt.Errorf("tasmota template must be [prefix, suffix]: %w", err)
	}
	if len(pair) != 2 {
		return "", fmt.Errorf("tasmota template must have 2 parts, got %d", len(pair))
	}
	return pair[0] + id + pair[1], nil
}

// expandVerbatim: zigbee2mqtt and custom devices carry complete topics.
func expandVerbatim(raw json.RawMessage) (string, error) {
	var topic string
	if err := json.Unmarshal(raw, &topic); err != nil {
		return "", fmt.Errorf("topic must be a string: %w", err)
	}
	return topic, nil
}
