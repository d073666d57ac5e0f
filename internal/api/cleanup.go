package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// handleCleanupDevice removes every record of a device. Cleaning a device
// that has nothing stored succeeds with a zero count.
func (s *Server) handleCleanupDevice(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	report, err := s.cleanup.CleanupDevice(r.Context(), id)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"device_id":        report.DeviceID,
		"commands_deleted": report.CommandsDeleted,
		"message":          "Device " + id + " cleaned up",
	})
}

// handleCleanupExpired prunes index entries whose command records expired.
func (s *Server) handleCleanupExpired(w http.ResponseWriter, r *http.Request) {
	report, err := s.cleanup.CleanupExpiredCommands(r.Context())
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}
