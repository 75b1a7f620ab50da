package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/homegate/internal/audit"
	"github.com/nerrad567/homegate/internal/correlation"
	"github.com/nerrad567/homegate/internal/device"
)

// DeviceView is a catalog device with its live state.
type DeviceView struct {
	device.Device
	State device.State `json:"state"`
}

// HSB is a colour in the hue/saturation/brightness form the bulbs use.
type HSB struct {
	H int `json:"h"`
	S int `json:"s"`
	B int `json:"b"`
}

// valid reports whether every component is in range.
func (c HSB) valid() bool {
	return c.H >= 0 && c.H <= 360 && c.S >= 0 && c.S <= 100 && c.B >= 0 && c.B <= 100
}

func (c HSB) String() string {
	return fmt.Sprintf("%d,%d,%d", c.H, c.S, c.B)
}

// parseHSB reads the "h,s,b" form bulbs report in HSBColor.
func parseHSB(v any) (HSB, bool) {
	s, ok := v.(string)
	if !ok {
		return HSB{}, false
	}
	parts := strings.Split(s, ",")
	if len(parts) != 3 {
		return HSB{}, false
	}
	var n [3]int
	for i, p := range parts {
		val, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return HSB{}, false
		}
		n[i] = val
	}
	return HSB{H: n[0], S: n[1], B: n[2]}, true
}

// PowerRequest is the body of POST /devices/{id}/power.
type PowerRequest struct {
	On       *bool `json:"on"`
	HSBColor *HSB  `json:"hsbColor,omitempty"`
}

func (s *Server) deviceView(d device.Device) DeviceView {
	return DeviceView{Device: d, State: s.registry.ReadState(d.ID)}
}

// lookupDevice writes a 404 and returns false when id is not in the catalog.
func (s *Server) lookupDevice(w http.ResponseWriter, id string) (device.Device, bool) {
	d, ok := s.registry.LookupByID(id)
	if !ok {
		writeNotFound(w, "device not found")
		return device.Device{}, false
	}
	return d, true
}

// handleListDevices returns every catalog device with its state.
func (s *Server) handleListDevices(w http.ResponseWriter, _ *http.Request) {
	devices := s.registry.List()
	views := make([]DeviceView, 0, len(devices))
	for _, d := range devices {
		views = append(views, s.deviceView(d))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"devices": views,
		"count":   len(views),
	})
}

// handleGetDevice returns one device with its state.
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	d, ok := s.lookupDevice(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"device":  s.deviceView(d),
	})
}

// handleGetSwitch returns the last relay state seen on the bus.
func (s *Server) handleGetSwitch(w http.ResponseWriter, r *http.Request) {
	d, ok := s.lookupDevice(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}
	on, known := s.registry.CurrentOnOff(d.ID)
	if !known {
		writeUnavailable(w, "relay state not available yet")
		return
	}
	state := s.registry.ReadState(d.ID)
	writeJSON(w, http.StatusOK, map[string]any{
		"success":     true,
		"deviceId":    d.ID,
		"relayStatus": on,
		"isOnline":    state.IsOnline != nil && *state.IsOnline,
	})
}

// handleToggleSwitch flips the relay and waits for the device to confirm.
func (s *Server) handleToggleSwitch(w http.ResponseWriter, r *http.Request) {
	d, ok := s.lookupDevice(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}
	current, known := s.registry.CurrentOnOff(d.ID)
	if !known {
		writeUnavailable(w, "relay state not available yet")
		return
	}
	next := !current

	s.recordOverride(d.ID)
	if err := s.commands.AwaitStateTransition(r.Context(), d.ID, next, s.cmdTimeout); err != nil {
		s.logger.Warn("toggle failed", "device_id", d.ID, "expected", next, "error", err)
		writeCommandError(w, err)
		return
	}

	s.logger.Info("device toggled", "device_id", d.ID, "on", next)
	s.recordAudit(r, audit.ActionSwitch, audit.EntityDevice, d.ID, map[string]any{"on": next, "via": "toggle"})
	writeJSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"deviceId": d.ID,
		"newState": next,
	})
}

// handleSetPower sends an on/off command without waiting for confirmation.
// Bulbs may carry a colour, applied in the same backlog.
func (s *Server) handleSetPower(w http.ResponseWriter, r *http.Request) {
	d, ok := s.lookupDevice(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	var req PowerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.On == nil {
		writeError(w, http.StatusBadRequest, ErrCodeValidation, "on is required")
		return
	}
	if req.HSBColor != nil && !req.HSBColor.valid() {
		writeError(w, http.StatusBadRequest, ErrCodeValidation, "hsbColor out of range")
		return
	}

	s.recordOverride(d.ID)

	var err error
	if *req.On && req.HSBColor != nil && d.Firmware == device.FirmwareTasmota && d.Topic(device.TopicBacklog) != "" {
		err = s.commands.PublishErr(d.Topic(device.TopicBacklog),
			fmt.Sprintf("Backlog Power ON; HSBColor %s", req.HSBColor))
	} else {
		err = s.commands.SendSwitch(d, *req.On, "api")
	}
	if err != nil {
		s.logger.Warn("power command failed", "device_id", d.ID, "on", *req.On, "error", err)
		writeCommandError(w, err)
		return
	}
	details := map[string]any{"on": *req.On, "via": "power"}
	if req.HSBColor != nil {
		details["hsbColor"] = req.HSBColor.String()
	}
	s.recordAudit(r, audit.ActionSwitch, audit.EntityDevice, d.ID, details)

	writeJSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"deviceId": d.ID,
		"on":       *req.On,
	})
}

// handleSetColor changes a bulb's colour, which also turns it on.
func (s *Server) handleSetColor(w http.ResponseWriter, r *http.Request) {
	d, ok := s.lookupDevice(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}
	topic := d.Topic(device.TopicHSBColor)
	if topic == "" {
		writeBadRequest(w, "device has no colour topic")
		return
	}

	var color HSB
	if err := json.NewDecoder(r.Body).Decode(&color); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if !color.valid() {
		writeError(w, http.StatusBadRequest, ErrCodeValidation, "hsbColor out of range")
		return
	}

	s.recordOverride(d.ID)
	if err := s.commands.PublishErr(topic, color.String()); err != nil {
		writeCommandError(w, err)
		return
	}
	s.recordAudit(r, audit.ActionColor, audit.EntityDevice, d.ID, map[string]any{"hsbColor": color.String()})
	writeJSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"deviceId": d.ID,
		"hsbColor": color,
	})
}

// handleQueryDevice asks a bulb for its full state and returns the reply.
func (s *Server) handleQueryDevice(w http.ResponseWriter, r *http.Request) {
	d, ok := s.lookupDevice(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}
	cmdTopic, respTopic := d.Topic(device.TopicState), d.Topic(device.TopicResult)
	if cmdTopic == "" || respTopic == "" {
		writeBadRequest(w, "device does not answer state queries")
		return
	}

	reply, err := s.commands.RequestReply(r.Context(), cmdTopic, respTopic, "", s.cmdTimeout)
	if err != nil {
		s.logger.Warn("device query failed", "device_id", d.ID, "error", err)
		writeCommandError(w, err)
		return
	}

	resp := map[string]any{
		"success":  true,
		"deviceId": d.ID,
		"reply":    reply,
	}
	if color, ok := parseHSB(reply["HSBColor"]); ok {
		resp["hsbColor"] = color
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) recordOverride(deviceID string) {
	if s.overrides != nil {
		s.overrides.SetManualOverride(deviceID)
	}
}

// writeCommandError maps a correlation failure to an HTTP status.
func writeCommandError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, correlation.ErrNotConnected):
		writeUnavailable(w, "broker not connected")
	case errors.Is(err, correlation.ErrTimeout),
		errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusGatewayTimeout, ErrCodeTimeout, "device did not respond")
	case errors.Is(err, correlation.ErrDuplicateRequest):
		writeError(w, http.StatusConflict, ErrCodeConflict, "a command for this device is already in flight")
	case errors.Is(err, correlation.ErrMissingTopic):
		writeBadRequest(w, "device does not support this command")
	case errors.Is(err, correlation.ErrUnknownDevice):
		writeNotFound(w, "device not found")
	case errors.Is(err, correlation.ErrMalformedReply):
		writeError(w, http.StatusBadGateway, ErrCodeInternal, "device sent an unreadable reply")
	default:
		writeInternalError(w, "command failed")
	}
}
