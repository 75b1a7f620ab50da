package device

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sync"
	"testing"
)

// raw builds a CatalogEntry topics map from plain Go values.
func raw(t *testing.T, topics map[string]any) map[string]json.RawMessage {
	t.Helper()
	out := make(map[string]json.RawMessage, len(topics))
	for k, v := range topics {
		b, err := json.Marshal(v)
		if err != nil {
			t.Fatalf("marshal %s: %v", k, err)
		}
		out[k] = b
	}
	return out
}

func testCatalog(t *testing.T) []CatalogEntry {
	t.Helper()
	return []CatalogEntry{
		{
			ID: "ESPURNA-SWITCH1", Name: "Hall light", Firmware: FirmwareEspurna,
			Topics: raw(t, map[string]any{
				"relay":    "/relay/0",
				"relaySet": "/relay/0/set",
				"status":   "/status",
			}),
		},
		{
			ID: "TASMOTA-BULB1", Name: "Lamp", Firmware: FirmwareTasmota, Protocol: "mqtt",
			Topics: raw(t, map[string]any{
				"state":   []string{"cmnd/", "/STATE"},
				"result":  []string{"stat/", "/RESULT"},
				"backlog": []string{"cmnd/", "/Backlog"},
			}),
		},
		{
			ID: "z-lamp", Name: "Zigbee lamp", Firmware: FirmwareZigbee2MQTT,
			Topics: raw(t, map[string]any{
				"state":    "zigbee2mqtt/lamp",
				"relaySet": "zigbee2mqtt/lamp/set",
			}),
		},
		{ID: "bare", Name: "No topics", Firmware: FirmwareCustom},
	}
}

func loadedRegistry(t *testing.T) *Registry {
	t.Helper()
	r := NewRegistry()
	r.Load(testCatalog(t))
	return r
}

// =============================================================================
// Load / lookup
// =============================================================================

func TestLoadExpandsTopics(t *testing.T) {
	r := loadedRegistry(t)

	tests := []struct {
		id    string
		role  TopicRole
		topic string
	}{
		{"ESPURNA-SWITCH1", TopicRelay, "ESPURNA-SWITCH1/relay/0"},
		{"ESPURNA-SWITCH1", TopicRelaySet, "ESPURNA-SWITCH1/relay/0/set"},
		{"ESPURNA-SWITCH1", TopicStatus, "ESPURNA-SWITCH1/status"},
		{"TASMOTA-BULB1", TopicResult, "stat/TASMOTA-BULB1/RESULT"},
		{"TASMOTA-BULB1", TopicBacklog, "cmnd/TASMOTA-BULB1/Backlog"},
		{"z-lamp", TopicState, "zigbee2mqtt/lamp"},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s/%s", tt.id, tt.role), func(t *testing.T) {
			d, ok := r.LookupByID(tt.id)
			if !ok {
				t.Fatalf("LookupByID(%q) not found", tt.id)
			}
			if got := d.Topic(tt.role); got != tt.topic {
				t.Errorf("Topic(%s) = %q, want %q", tt.role, got, tt.topic)
			}
		})
	}
}

func TestLoadDefaultsAndEmptyTopics(t *testing.T) {
	r := loadedRegistry(t)

	d, ok := r.LookupByID("bare")
	if !ok {
		t.Fatal("device without topics should still load")
	}
	if len(d.Topics) != 0 {
		t.Errorf("Topics = %v, want empty", d.Topics)
	}
	if d.Protocol != DefaultProtocol {
		t.Errorf("Protocol = %q, want %q", d.Protocol, DefaultProtocol)
	}
}

func TestLoadSkipsBadTemplates(t *testing.T) {
	r := NewRegistry()
	r.Load([]CatalogEntry{
		{ID: "T1", Firmware: FirmwareTasmota, Topics: raw(t, map[string]any{
			"result": []string{"stat/", "/RESULT"},
			"state":  "not-a-pair",
			"power":  []string{"only-one"},
		})},
		{ID: "E1", Firmware: FirmwareEspurna, Topics: raw(t, map[string]any{
			"relay":  []string{"/relay/0"},
			"status": "/status",
		})},
		{ID: "", Name: "no id"},
		{ID: "T1", Firmware: FirmwareCustom},
	})

	if r.Count() != 2 {
		t.Fatalf("Count() = %d, want 2", r.Count())
	}
	t1, _ := r.LookupByID("T1")
	if !reflect.DeepEqual(t1.Topics, map[TopicRole]string{TopicResult: "stat/T1/RESULT"}) {
		t.Errorf("T1 topics = %v", t1.Topics)
	}
	if t1.Firmware != FirmwareTasmota {
		t.Errorf("duplicate entry overwrote first: firmware = %q", t1.Firmware)
	}
	e1, _ := r.LookupByID("E1")
	if !reflect.DeepEqual(e1.Topics, map[TopicRole]string{TopicStatus: "E1/status"}) {
		t.Errorf("E1 topics = %v", e1.Topics)
	}
}

func TestLookupByTopic(t *testing.T) {
	r := loadedRegistry(t)

	d, ok := r.LookupByTopic("stat/TASMOTA-BULB1/RESULT")
	if !ok || d.ID != "TASMOTA-BULB1" {
		t.Errorf("LookupByTopic(result) = %q, %v", d.ID, ok)
	}
	if _, ok := r.LookupByTopic("nobody/listens/here"); ok {
		t.Error("LookupByTopic(unknown) should miss")
	}
}

func TestLookupByTopicCollisionKeepsFirst(t *testing.T) {
	r := NewRegistry()
	r.Load([]CatalogEntry{
		{ID: "a", Firmware: FirmwareCustom, Topics: raw(t, map[string]any{"state": "shared/topic"})},
		{ID: "b", Firmware: FirmwareCustom, Topics: raw(t, map[string]any{"state": "shared/topic"})},
	})

	d, ok := r.LookupByTopic("shared/topic")
	if !ok || d.ID != "a" {
		t.Errorf("LookupByTopic(shared) = %q, want a", d.ID)
	}
}

func TestListAndByFirmware(t *testing.T) {
	r := loadedRegistry(t)

	var ids []string
	for _, d := range r.List() {
		ids = append(ids, d.ID)
	}
	want := []string{"ESPURNA-SWITCH1", "TASMOTA-BULB1", "z-lamp", "bare"}
	if !reflect.DeepEqual(ids, want) {
		t.Errorf("List() order = %v, want %v", ids, want)
	}

	esp := r.ByFirmware(FirmwareEspurna)
	if len(esp) != 1 || esp[0].ID != "ESPURNA-SWITCH1" {
		t.Errorf("ByFirmware(espurna) = %v", esp)
	}
	if got := r.ByFirmware("shelly"); len(got) != 0 {
		t.Errorf("ByFirmware(shelly) = %v, want none", got)
	}
}

func TestReturnedDevicesAreCopies(t *testing.T) {
	r := loadedRegistry(t)

	d, _ := r.LookupByID("ESPURNA-SWITCH1")
	d.Topics[TopicRelay] = "mutated"

	again, _ := r.LookupByID("ESPURNA-SWITCH1")
	if again.Topic(TopicRelay) != "ESPURNA-SWITCH1/relay/0" {
		t.Error("mutating a returned device changed the registry")
	}
}

func TestSubscriptionTopics(t *testing.T) {
	r := loadedRegistry(t)

	got := r.SubscriptionTopics()
	want := []string{
		"ESPURNA-SWITCH1/status",
		"ESPURNA-SWITCH1/relay/0",
		"stat/TASMOTA-BULB1/RESULT",
		"zigbee2mqtt/lamp",
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("SubscriptionTopics() = %v, want %v", got, want)
	}
}

// =============================================================================
// State
// =============================================================================

func TestRecordStateMergesPerField(t *testing.T) {
	r := loadedRegistry(t)

	r.RecordState("ESPURNA-SWITCH1", StatePatch{Relay: Bool(true), IsOnline: Bool(true)})
	r.RecordState("ESPURNA-SWITCH1", StatePatch{IsOnline: Bool(false)})

	s := r.ReadState("ESPURNA-SWITCH1")
	if s.Relay == nil || !*s.Relay {
		t.Error("Relay should survive a patch that did not touch it")
	}
	if s.IsOnline == nil || *s.IsOnline {
		t.Error("IsOnline should be the most recent value (false)")
	}
	if s.Power != nil {
		t.Error("Power was never written and should stay nil")
	}
	if s.UpdatedAt.IsZero() {
		t.Error("UpdatedAt should be set")
	}
}

func TestReadStateUnknownIsZero(t *testing.T) {
	r := loadedRegistry(t)

	s := r.ReadState("never-seen")
	if s.Relay != nil || s.Power != nil || s.IsOnline != nil {
		t.Errorf("ReadState(unknown) = %+v, want zero", s)
	}
	if _, ok := r.CurrentOnOff("never-seen"); ok {
		t.Error("CurrentOnOff(unknown) should report not ok")
	}
}

func TestReadStateIsCopy(t *testing.T) {
	r := loadedRegistry(t)
	r.RecordState("z-lamp", StatePatch{Power: Bool(true)})

	s := r.ReadState("z-lamp")
	*s.Power = false

	if on, _ := r.CurrentOnOff("z-lamp"); !on {
		t.Error("writing through a returned pointer changed the registry")
	}
}

func TestCurrentOnOffPrefersRelay(t *testing.T) {
	r := loadedRegistry(t)

	r.RecordState("x", StatePatch{Power: Bool(true)})
	if on, ok := r.CurrentOnOff("x"); !ok || !on {
		t.Errorf("CurrentOnOff(power only) = %v, %v", on, ok)
	}

	r.RecordState("x", StatePatch{Relay: Bool(false)})
	if on, ok := r.CurrentOnOff("x"); !ok || on {
		t.Errorf("CurrentOnOff(relay false, power true) = %v, %v; relay should win", on, ok)
	}
}

func TestReloadKeepsStateOfSurvivors(t *testing.T) {
	r := loadedRegistry(t)
	r.RecordState("ESPURNA-SWITCH1", StatePatch{Relay: Bool(true)})
	r.RecordState("z-lamp", StatePatch{Power: Bool(true)})

	catalog := testCatalog(t)
	r.Load(catalog[:1])

	if s := r.ReadState("ESPURNA-SWITCH1"); s.Relay == nil {
		t.Error("state of a device still in the catalog was dropped")
	}
	if s := r.ReadState("z-lamp"); s.Power != nil {
		t.Error("state of a removed device should be dropped")
	}
	if _, ok := r.LookupByTopic("zigbee2mqtt/lamp"); ok {
		t.Error("topic index still resolves a removed device")
	}
}

func TestConcurrentRecordAndRead(t *testing.T) {
	r := loadedRegistry(t)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			r.RecordState("ESPURNA-SWITCH1", StatePatch{Relay: Bool(i%2 == 0)})
		}(i)
		go func() {
			defer wg.Done()
			_ = r.ReadState("ESPURNA-SWITCH1")
			_ = r.List()
		}()
	}
	wg.Wait()

	r.RecordState("ESPURNA-SWITCH1", StatePatch{Relay: Bool(true)})
	if on, _ := r.CurrentOnOff("ESPURNA-SWITCH1"); !on {
		t.Error("last write should win")
	}
}

type countingMetrics struct{ n int }

func (m *countingMetrics) SetDevices(n int) { m.n = n }

func TestLoadReportsCount(t *testing.T) {
	r := NewRegistry()
	m := &countingMetrics{}
	r.SetMetrics(m)
	r.Load(testCatalog(t))

	if m.n != 4 {
		t.Errorf("SetDevices got %d, want 4", m.n)
	}
}

// =============================================================================
// Commands
// =============================================================================

func TestSwitchCommand(t *testing.T) {
	r := loadedRegistry(t)

	tests := []struct {
		id      string
		on      bool
		topic   string
		payload string
		ok      bool
	}{
		{"ESPURNA-SWITCH1", true, "ESPURNA-SWITCH1/relay/0/set", "1", true},
		{"ESPURNA-SWITCH1", false, "ESPURNA-SWITCH1/relay/0/set", "0", true},
		{"TASMOTA-BULB1", true, "cmnd/TASMOTA-BULB1/Backlog", "Backlog Power ON", true},
		{"TASMOTA-BULB1", false, "cmnd/TASMOTA-BULB1/Backlog", "Backlog Power OFF", true},
		{"z-lamp", true, "zigbee2mqtt/lamp/set", "ON", true},
		{"bare", false, "", "", false},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s/%v", tt.id, tt.on), func(t *testing.T) {
			d, _ := r.LookupByID(tt.id)
			topic, payload, ok := d.SwitchCommand(tt.on)
			if topic != tt.topic || payload != tt.payload || ok != tt.ok {
				t.Errorf("SwitchCommand(%v) = (%q, %q, %v), want (%q, %q, %v)",
					tt.on, topic, payload, ok, tt.topic, tt.payload, tt.ok)
			}
		})
	}
}
