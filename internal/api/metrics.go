package api

import (
	"context"
	"net/http"
	"runtime"
	"time"
)

// healthCheckTimeout bounds all component probes together.
const healthCheckTimeout = 3 * time.Second

// SystemMetrics is the JSON snapshot served at /api/v1/system. Prometheus
// series live at the metrics path instead.
type SystemMetrics struct {
	Timestamp     string          `json:"timestamp"`
	Version       string          `json:"version"`
	UptimeSeconds int64           `json:"uptime_seconds"`
	Runtime       RuntimeMetrics  `json:"runtime"`
	Push          PushMetrics     `json:"push"`
	MQTT          MQTTMetrics     `json:"mqtt"`
	Devices       DeviceMetrics   `json:"devices"`
	Cronos        int             `json:"cronos"`
	Database      DatabaseMetrics `json:"database"`
}

// RuntimeMetrics contains Go runtime statistics.
type RuntimeMetrics struct {
	Goroutines    int     `json:"goroutines"`
	MemoryAllocMB float64 `json:"memory_alloc_mb"`
	MemoryTotalMB float64 `json:"memory_total_mb"`
	NumGC         uint32  `json:"num_gc"`
}

// PushMetrics contains push hub and session statistics.
type PushMetrics struct {
	ConnectedClients int `json:"connected_clients"`
	SessionUsers     int `json:"session_users"`
	CameraViewers    int `json:"camera_viewers"`
}

// MQTTMetrics contains broker link statistics.
type MQTTMetrics struct {
	Connected       bool `json:"connected"`
	PendingRequests int  `json:"pending_requests"`
}

// DeviceMetrics contains device registry statistics.
type DeviceMetrics struct {
	Total      int            `json:"total"`
	Online     int            `json:"online"`
	ByFirmware map[string]int `json:"by_firmware"`
}

// DatabaseMetrics contains database connection pool statistics.
type DatabaseMetrics struct {
	OpenConnections int   `json:"open_connections"`
	InUse           int   `json:"in_use"`
	Idle            int   `json:"idle"`
	WaitCount       int64 `json:"wait_count"`
}

// handleHealth reports liveness plus each registered probe. Any failing
// probe turns the response into a 503.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	status := "ok"
	components := make(map[string]string, len(s.checks))
	for name, check := range s.checks {
		if err := check.HealthCheck(ctx); err != nil {
			components[name] = err.Error()
			status = "degraded"
			continue
		}
		components[name] = "ok"
	}

	code := http.StatusOK
	if status != "ok" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]any{
		"status":     status,
		"version":    s.version,
		"components": components,
	})
}

// handleSystem returns a JSON snapshot of the gateway's internals.
func (s *Server) handleSystem(w http.ResponseWriter, _ *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	metrics := SystemMetrics{
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Runtime: RuntimeMetrics{
			Goroutines:    runtime.NumGoroutine(),
			MemoryAllocMB: float64(memStats.Alloc) / 1024 / 1024,
			MemoryTotalMB: float64(memStats.TotalAlloc) / 1024 / 1024,
			NumGC:         memStats.NumGC,
		},
		Push: PushMetrics{
			ConnectedClients: s.hub.ClientCount(),
			SessionUsers:     len(s.sessions.ConnectedUserIDs()),
		},
		MQTT: MQTTMetrics{
			Connected:       s.commands.IsConnected(),
			PendingRequests: s.commands.PendingCount(),
		},
		Devices: DeviceMetrics{
			ByFirmware: make(map[string]int),
		},
	}
	if s.camera != nil {
		metrics.Push.CameraViewers = s.camera.ViewerCount()
	}
	if s.cronos != nil {
		metrics.Cronos = s.cronos.Count()
	}

	for _, d := range s.registry.List() {
		metrics.Devices.Total++
		metrics.Devices.ByFirmware[string(d.Firmware)]++
		if st := s.registry.ReadState(d.ID); st.IsOnline != nil && *st.IsOnline {
			metrics.Devices.Online++
		}
	}

	if s.db != nil {
		dbStats := s.db.Stats()
		metrics.Database = DatabaseMetrics{
			OpenConnections: dbStats.OpenConnections,
			InUse:           dbStats.InUse,
			Idle:            dbStats.Idle,
			WaitCount:       dbStats.WaitCount,
		}
	}

	writeJSON(w, http.StatusOK, metrics)
}
