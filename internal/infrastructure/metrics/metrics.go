// Package metrics exposes gateway counters and gauges for Prometheus.
//
// A nil *Recorder is valid and records nothing, so components take one
// unconditionally and tests pass nil.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "homegate"

// Recorder owns the gateway's collectors on a private registry.
type Recorder struct {
	registry *prometheus.Registry

	mqttMessages      *prometheus.CounterVec
	mqttPublishes     *prometheus.CounterVec
	correlations      *prometheus.CounterVec
	devices           prometheus.Gauge
	deviceOnline      *prometheus.GaugeVec
	scheduleCommands  *prometheus.CounterVec
	cronoActive       prometheus.Gauge
	cronoExpired      *prometheus.CounterVec
	sessions          prometheus.Gauge
	forcedLogouts     prometheus.Counter
	pushClients       prometheus.Gauge
	httpRequests      *prometheus.CounterVec
	catalogFetchFails prometheus.Counter
}

// New builds a Recorder and registers its collectors plus the Go and
// process collectors.
func New() *Recorder {
	reg := prometheus.NewRegistry()
	r := &Recorder{
		registry: reg,
		mqttMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mqtt_messages_received_total",
			Help:      "Inbound MQTT messages by handling kind.",
		}, []string{"kind"}),
		mqttPublishes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mqtt_publishes_total",
			Help:      "Outbound MQTT publishes by result.",
		}, []string{"result"}),
		correlations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "correlations_total",
			Help:      "Request/reply and state-transition waits by outcome.",
		}, []string{"kind", "outcome"}),
		devices: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "devices",
			Help:      "Devices in the registry.",
		}),
		deviceOnline: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "device_online",
			Help:      "1 when the device last reported online.",
		}, []string{"device_id"}),
		scheduleCommands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "schedule_commands_total",
			Help:      "Commands issued by the schedule evaluator.",
		}, []string{"command"}),
		cronoActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "cronos_active",
			Help:      "Countdowns currently running.",
		}),
		cronoExpired: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "crono_expirations_total",
			Help:      "Expired countdowns by what the sweep did.",
		}, []string{"action"}),
		sessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions",
			Help:      "Authenticated push connections.",
		}),
		forcedLogouts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "forced_logouts_total",
			Help:      "Connections closed by supersession or administrator.",
		}),
		pushClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "push_clients",
			Help:      "Open websocket push connections.",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method and status class.",
		}, []string{"method", "code"}),
		catalogFetchFails: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "catalog_fetch_failures_total",
			Help:      "Failed attempts to fetch the device catalog.",
		}),
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		r.mqttMessages,
		r.mqttPublishes,
		r.correlations,
		r.devices,
		r.deviceOnline,
		r.scheduleCommands,
		r.cronoActive,
		r.cronoExpired,
		r.sessions,
		r.forcedLogouts,
		r.pushClients,
		r.httpRequests,
		r.catalogFetchFails,
	)
	return r
}

// Handler serves the registry in the Prometheus text format.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

func (r *Recorder) MQTTMessage(kind string) {
	if r == nil {
		return
	}
	r.mqttMessages.WithLabelValues(kind).Inc()
}

func (r *Recorder) MQTTPublish(err error) {
	if r == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	r.mqttPublishes.WithLabelValues(result).Inc()
}

// Correlation counts one finished wait. outcome is one of ok, timeout,
// rejected, cancelled.
func (r *Recorder) Correlation(kind, outcome string) {
	if r == nil {
		return
	}
	r.correlations.WithLabelValues(kind, outcome).Inc()
}

func (r *Recorder) SetDevices(n int) {
	if r == nil {
		return
	}
	r.devices.Set(float64(n))
}

func (r *Recorder) DeviceOnline(deviceID string, online bool) {
	if r == nil {
		return
	}
	v := 0.0
	if online {
		v = 1
	}
	r.deviceOnline.WithLabelValues(deviceID).Set(v)
}

func (r *Recorder) ScheduleCommand(command string) {
	if r == nil {
		return
	}
	r.scheduleCommands.WithLabelValues(command).Inc()
}

func (r *Recorder) SetCronosActive(n int) {
	if r == nil {
		return
	}
	r.cronoActive.Set(float64(n))
}

func (r *Recorder) CronoExpired(action string) {
	if r == nil {
		return
	}
	r.cronoExpired.WithLabelValues(action).Inc()
}

func (r *Recorder) SetSessions(n int) {
	if r == nil {
		return
	}
	r.sessions.Set(float64(n))
}

func (r *Recorder) ForcedLogouts(n int) {
	if r == nil || n <= 0 {
		return
	}
	r.forcedLogouts.Add(float64(n))
}

func (r *Recorder) SetPushClients(n int) {
	if r == nil {
		return
	}
	r.pushClients.Set(float64(n))
}

func (r *Recorder) HTTPRequest(method string, status int) {
	if r == nil {
		return
	}
	r.httpRequests.WithLabelValues(method, statusClass(status)).Inc()
}

func (r *Recorder) CatalogFetchFailed() {
	if r == nil {
		return
	}
	r.catalogFetchFails.Inc()
}

func statusClass(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
