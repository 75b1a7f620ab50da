package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/homegate/internal/audit"
	"github.com/nerrad567/homegate/internal/schedule"
)

// ScheduleRequest is the body of PUT /schedules/{id}. Days and Slots must
// be present; send empty arrays to clear them.
type ScheduleRequest struct {
	Days               []string        `json:"days"`
	Slots              []schedule.Slot `json:"slots"`
	EnforceOutsideSlot bool            `json:"enforceOutsideSlot"`
}

// handleListSchedules returns every stored plan.
func (s *Server) handleListSchedules(w http.ResponseWriter, r *http.Request) {
	list, err := s.schedules.List(r.Context())
	if err != nil {
		s.logger.Error("listing schedules failed", "error", err)
		writeInternalError(w, "failed to list schedules")
		return
	}
	if list == nil {
		list = []schedule.Schedule{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"schedules": list,
	})
}

// handleGetSchedule returns the device's plan, or an empty default.
func (s *Server) handleGetSchedule(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	sched, err := s.schedules.Get(r.Context(), id)
	if errors.Is(err, schedule.ErrScheduleNotFound) {
		def := schedule.DefaultSchedule(id)
		sched, err = &def, nil
	}
	if err != nil {
		s.logger.Error("reading schedule failed", "device_id", id, "error", err)
		writeInternalError(w, "failed to read schedule")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"schedule": sched,
	})
}

// handlePutSchedule creates or replaces the device's plan.
func (s *Server) handlePutSchedule(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req ScheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Days == nil || req.Slots == nil {
		writeError(w, http.StatusBadRequest, ErrCodeValidation, "days and slots must be arrays")
		return
	}

	sched := &schedule.Schedule{
		DeviceID:           id,
		Days:               req.Days,
		Slots:              req.Slots,
		EnforceOutsideSlot: req.EnforceOutsideSlot,
	}
	if err := s.schedules.Upsert(r.Context(), sched); err != nil {
		if errors.Is(err, schedule.ErrInvalidSchedule) {
			writeError(w, http.StatusBadRequest, ErrCodeValidation, err.Error())
			return
		}
		s.logger.Error("saving schedule failed", "device_id", id, "error", err)
		writeInternalError(w, "failed to save schedule")
		return
	}

	s.logger.Info("schedule saved", "device_id", id, "days", sched.Days, "slots", len(sched.Slots))
	s.recordAudit(r, audit.ActionScheduleSave, audit.EntitySchedule, id, map[string]any{
		"days":               sched.Days,
		"slots":              len(sched.Slots),
		"enforceOutsideSlot": sched.EnforceOutsideSlot,
	})
	writeJSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"schedule": sched,
	})
}

// handleDeleteSchedule removes the device's plan.
func (s *Server) handleDeleteSchedule(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.schedules.Delete(r.Context(), id); err != nil {
		s.logger.Error("deleting schedule failed", "device_id", id, "error", err)
		writeInternalError(w, "failed to delete schedule")
		return
	}
	s.recordAudit(r, audit.ActionScheduleDelete, audit.EntitySchedule, id, nil)
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}
