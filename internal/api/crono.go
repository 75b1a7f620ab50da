package api

import (
	"encoding/json"
	"math"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/homegate/internal/audit"
	"github.com/nerrad567/homegate/internal/crono"
)

// CronoRequest is the body of POST /devices/{id}/crono. Duration is in
// minutes and may be fractional.
type CronoRequest struct {
	Duration float64 `json:"duration"`
	IsCustom bool    `json:"isCustom"`
}

// handleGetCrono reports the device's countdown, if any.
func (s *Server) handleGetCrono(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	t, ok := s.cronos.Get(id)
	if !ok {
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "active": false})
		return
	}
	remaining := s.cronos.Remaining(id)
	if remaining <= 0 {
		// Expired, not swept yet.
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "active": false})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"active":    true,
		"remaining": remaining,
		"startedAt": t.StartedAt,
		"duration":  t.Duration,
		"isCustom":  t.IsCustom,
	})
}

// handleStartCrono starts or restarts the device's countdown.
func (s *Server) handleStartCrono(w http.ResponseWriter, r *http.Request) {
	d, ok := s.lookupDevice(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	var req CronoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Duration <= 0 || req.Duration > float64(crono.MaxDuration)/60 {
		writeError(w, http.StatusBadRequest, ErrCodeValidation, "duration must be between 0 and 10080 minutes")
		return
	}
	seconds := int64(math.Round(req.Duration * 60))
	if seconds <= 0 {
		writeError(w, http.StatusBadRequest, ErrCodeValidation, "duration must be at least one second")
		return
	}

	t, err := s.cronos.Start(r.Context(), d.ID, seconds, req.IsCustom)
	if err != nil {
		s.logger.Error("starting crono failed", "device_id", d.ID, "error", err)
		writeInternalError(w, "failed to save crono")
		return
	}
	s.recordAudit(r, audit.ActionCronoStart, audit.EntityDevice, d.ID, map[string]any{
		"seconds":  t.Duration,
		"isCustom": t.IsCustom,
	})
	writeJSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"deviceId": t.DeviceID,
		"duration": t.Duration,
		"endAt":    t.EndAt(),
	})
}

// handleCancelCrono stops the device's countdown. Cancelling when none runs
// succeeds.
func (s *Server) handleCancelCrono(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.cronos.Cancel(r.Context(), id); err != nil {
		s.logger.Error("cancelling crono failed", "device_id", id, "error", err)
		writeInternalError(w, "failed to remove crono")
		return
	}
	s.recordAudit(r, audit.ActionCronoCancel, audit.EntityDevice, id, nil)
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}
