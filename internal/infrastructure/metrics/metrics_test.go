package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scrape(t *testing.T, r *Recorder) string {
	t.Helper()
	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	return string(body)
}

func TestRecorderExposesValues(t *testing.T) {
	r := New()

	r.MQTTMessage("relay")
	r.MQTTMessage("relay")
	r.MQTTPublish(nil)
	r.MQTTPublish(errors.New("offline"))
	r.Correlation("transition", "timeout")
	r.SetDevices(4)
	r.DeviceOnline("SWITCH_1", true)
	r.ScheduleCommand("on")
	r.SetCronosActive(2)
	r.CronoExpired("off")
	r.SetSessions(3)
	r.ForcedLogouts(2)
	r.ForcedLogouts(0)
	r.SetPushClients(5)
	r.HTTPRequest(http.MethodPost, http.StatusServiceUnavailable)
	r.CatalogFetchFailed()

	out := scrape(t, r)

	for _, want := range []string{
		`homegate_mqtt_messages_received_total{kind="relay"} 2`,
		`homegate_mqtt_publishes_total{result="error"} 1`,
		`homegate_mqtt_publishes_total{result="ok"} 1`,
		`homegate_correlations_total{kind="transition",outcome="timeout"} 1`,
		`homegate_devices 4`,
		`homegate_device_online{device_id="SWITCH_1"} 1`,
		`homegate_schedule_commands_total{command="on"} 1`,
		`homegate_cronos_active 2`,
		`homegate_crono_expirations_total{action="off"} 1`,
		`homegate_sessions 3`,
		`homegate_forced_logouts_total 2`,
		`homegate_push_clients 5`,
		`homegate_http_requests_total{code="5xx",method="POST"} 1`,
		`homegate_catalog_fetch_failures_total 1`,
		`go_goroutines`,
	} {
		assert.True(t, strings.Contains(out, want), "scrape missing %q", want)
	}
}

func TestNilRecorderIsNoop(t *testing.T) {
	var r *Recorder

	assert.NotPanics(t, func() {
		r.MQTTMessage("x")
		r.MQTTPublish(nil)
		r.Correlation("a", "b")
		r.SetDevices(1)
		r.DeviceOnline("x", false)
		r.ScheduleCommand("off")
		r.SetCronosActive(1)
		r.CronoExpired("discard")
		r.SetSessions(1)
		r.ForcedLogouts(1)
		r.SetPushClients(1)
		r.HTTPRequest(http.MethodGet, 200)
		r.CatalogFetchFailed()
	})

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStatusClass(t *testing.T) {
	assert.Equal(t, "2xx", statusClass(204))
	assert.Equal(t, "3xx", statusClass(302))
	assert.Equal(t, "4xx", statusClass(404))
	assert.Equal(t, "5xx", statusClass(503))
}
