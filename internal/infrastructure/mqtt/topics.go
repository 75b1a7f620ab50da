package mqtt

import "fmt"

// TopicPrefixSystem is the base for the gateway's own topics. Device topics
// are owned by the device firmware and come from the catalog instead.
const TopicPrefixSystem = "homegate/system"

// Topics provides builders for the gateway's own MQTT topics.
type Topics struct{}

// SystemStatus returns the retained online/offline status topic.
//
// Example: homegate/system/status
func (Topics) SystemStatus() string {
	return fmt.Sprintf("%s/status", TopicPrefixSystem)
}

// SystemEvent returns the topic the gateway mirrors push events on, for
// flows in the orchestration service that want them.
//
// Example: homegate/system/event/crono:update
func (Topics) SystemEvent(event string) string {
	return fmt.Sprintf("%s/event/%s", TopicPrefixSystem, event)
}
