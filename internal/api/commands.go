package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-device-control/internal/command"
	"github.com/nerrad567/gray-logic-device-control/internal/control"
)

// List limits for the command routes.
const (
	defaultListLimit    = 10
	maxListLimit        = 100
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200
)

// submitRequest is the body of POST /devices/{id}/commands.
type submitRequest struct {
	CommandType string           `json:"command_type"`
	Parameters  map[string]any   `json:"parameters,omitempty"`
	Priority    command.Priority `json:"priority,omitempty"`
	RequestedBy string           `json:"requested_by,omitempty"`
	MaxRetries  *int             `json:"max_retries,omitempty"`
}

// submitResponse acknowledges a queued command.
type submitResponse struct {
	CommandID   string         `json:"command_id"`
	DeviceID    string         `json:"device_id"`
	CommandType string         `json:"command_type"`
	Status      command.Status `json:"status"`
	CreatedAt   time.Time      `json:"created_at"`
	Message     string         `json:"message"`
}

func newSubmitResponse(cmd command.Command) submitResponse {
	return submitResponse{
		CommandID:   cmd.ID,
		DeviceID:    cmd.DeviceID,
		CommandType: cmd.Type,
		Status:      cmd.Status,
		CreatedAt:   cmd.CreatedAt,
		Message:     fmt.Sprintf("Command '%s' queued for device %s", cmd.Type, cmd.DeviceID),
	}
}

// handleSubmitCommand queues a command for a device.
func (s *Server) handleSubmitCommand(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.CommandType == "" {
		writeError(w, http.StatusBadRequest, ErrCodeValidation, "command_type is required")
		return
	}
	if req.Priority != "" && !req.Priority.Valid() {
		writeError(w, http.StatusBadRequest, ErrCodeValidation, "invalid priority: "+string(req.Priority))
		return
	}
	if req.MaxRetries != nil && *req.MaxRetries < 0 {
		writeError(w, http.StatusBadRequest, ErrCodeValidation, "max_retries must not be negative")
		return
	}

	requestedBy := req.RequestedBy
	if requestedBy == "" {
		requestedBy = subjectFromContext(r.Context())
	}

	cmd, err := s.control.SubmitCommand(r.Context(), control.SubmitRequest{
		DeviceID:    id,
		Type:        req.CommandType,
		Parameters:  req.Parameters,
		Priority:    req.Priority,
		RequestedBy: requestedBy,
		MaxRetries:  req.MaxRetries,
	})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, newSubmitResponse(cmd))
}

// handleListCommands lists the queued commands of a device in dispatch order.
// With all=true it lists every live command of the device, newest first.
func (s *Server) handleListCommands(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	q := r.URL.Query()

	status := command.Status(q.Get("status"))
	if status != "" && !status.Valid() {
		writeError(w, http.StatusBadRequest, ErrCodeValidation, "invalid status: "+string(status))
		return
	}
	limit, ok := parseLimit(w, q.Get("limit"), defaultListLimit, maxListLimit)
	if !ok {
		return
	}

	list := s.control.ListCommands
	if all, _ := strconv.ParseBool(q.Get("all")); all {
		list = s.control.ListAllCommands
	}
	cmds, err := list(r.Context(), id, status, limit)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	if cmds == nil {
		cmds = []command.Command{}
	}
	writeJSON(w, http.StatusOK, cmds)
}

// handleGetCommand returns a command owned by the device.
func (s *Server) handleGetCommand(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	cid := chi.URLParam(r, "cid")

	cmd, err := s.control.GetCommand(r.Context(), id, cid)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cmd)
}

// handleCancelCommand cancels a pending command owned by the device.
func (s *Server) handleCancelCommand(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	cid := chi.URLParam(r, "cid")

	cmd, err := s.control.CancelCommand(r.Context(), id, cid)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message": fmt.Sprintf("Command %s cancelled successfully", cid),
		"command": cmd,
	})
}

// handleCommandHistory lists the recorded terminal commands of a device.
func (s *Server) handleCommandHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "command history is not enabled")
		return
	}
	id := chi.URLParam(r, "id")

	limit, ok := parseLimit(w, r.URL.Query().Get("limit"), defaultHistoryLimit, maxHistoryLimit)
	if !ok {
		return
	}

	entries, err := s.history.ListByDevice(r.Context(), id, limit)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"device_id": id,
		"entries":   entries,
		"count":     len(entries),
	})
}

// parseLimit reads a 1..maxLimit limit parameter, writing a 400 and
// reporting false when it is malformed or out of range.
func parseLimit(w http.ResponseWriter, raw string, defaultLimit, maxLimit int) (int, bool) {
	if raw == "" {
		return defaultLimit, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 || n > maxLimit {
		writeError(w, http.StatusBadRequest, ErrCodeValidation,
			fmt.Sprintf("limit must be an integer between 1 and %d", maxLimit))
		return 0, false
	}
	return n, true
}
