// Package device provides the Device Registry for homegate.
//
// The registry is the in-memory catalogue of every relay, bulb and sensor
// the gateway can reach, together with the last state each one reported.
// It is rebuilt wholesale from the orchestration service's catalog and is
// never persisted by the gateway.
//
// # Architecture
//
//	┌──────────────────┐  GET /config/devices   ┌──────────────────────┐
//	│  CatalogLoader   │───────────────────────▶│ orchestration service │
//	│  (catalog.go)    │   backoff retry        └──────────────────────┘
//	└────────┬─────────┘
//	         │ Load
//	         ▼
//	┌──────────────────┐  LookupByTopic / RecordState   ┌───────────────┐
//	│     Registry     │◀──────────────────────────────▶│ MQTT dispatch │
//	│  (registry.go)   │                                └───────────────┘
//	│ • topic index    │  LookupByID / CurrentOnOff     ┌───────────────┐
//	│ • state snapshot │◀──────────────────────────────▶│ API, schedule,│
//	└──────────────────┘                                │ crono         │
//	                                                    └───────────────┘
//
// # Topic templates
//
// Each firmware family names its topics differently. The catalog sends
// templates and Load expands them once:
//
//   - espurna: "/relay/0" becomes "ESPURNA-SWITCH1/relay/0"
//   - tasmota: ["stat/", "/RESULT"] becomes "stat/TASMOTA-BULB1/RESULT"
//   - zigbee2mqtt and custom: topics are used as given
//
// # State
//
// State fields are pointers. A nil field means the device never reported
// it; callers treat that as unknown, never as off.
//
// # Usage
//
//	registry := device.NewRegistry()
//	registry.SetLogger(log)
//
//	loader := device.NewCatalogLoader(cfg.Catalog)
//	if err := loader.LoadWithRetry(ctx, registry); err != nil {
//	    return err
//	}
//
//	d, ok := registry.LookupByTopic("ESPURNA-SWITCH1/relay/0")
package device
