package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-device-control/internal/devicestate"
)

// handleGetDeviceState returns the live state of a device, seeding it from
// the registry on first contact.
func (s *Server) handleGetDeviceState(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	state, err := s.control.GetState(r.Context(), id)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

// handleUpdateDeviceState merges a partial update into the device state.
func (s *Server) handleUpdateDeviceState(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var u devicestate.Update
	if err := json.NewDecoder(r.Body).Decode(&u); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if u.IsEmpty() {
		writeBadRequest(w, "no fields to update")
		return
	}
	if u.Status != nil && !u.Status.Valid() {
		writeError(w, http.StatusBadRequest, ErrCodeValidation, "invalid status: "+string(*u.Status))
		return
	}

	state, err := s.control.UpdateState(r.Context(), id, u)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

// handlePingDevice queues a high-priority ping.
func (s *Server) handlePingDevice(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	cmd, err := s.control.Ping(r.Context(), id, subjectFromContext(r.Context()))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, newSubmitResponse(cmd))
}

// handleProcessQueue drains the device queue synchronously.
func (s *Server) handleProcessQueue(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	processed, err := s.control.ProcessQueue(r.Context(), id)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"device_id":          id,
		"commands_processed": processed,
		"message":            fmt.Sprintf("Processed %d commands for device %s", processed, id),
	})
}
