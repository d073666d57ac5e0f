package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/nerrad567/gray-logic-device-control/internal/cleanup"
	"github.com/nerrad567/gray-logic-device-control/internal/command"
	"github.com/nerrad567/gray-logic-device-control/internal/control"
	"github.com/nerrad567/gray-logic-device-control/internal/devicestate"
	"github.com/nerrad567/gray-logic-device-control/internal/history"
	"github.com/nerrad567/gray-logic-device-control/internal/registry"
)

// ErrorBody is the payload of the error envelope.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ErrorResponse is the error envelope returned by every failing request.
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// Error codes.
const (
	ErrCodeBadRequest     = "bad_request"
	ErrCodeNotFound       = "not_found"
	ErrCodeUnauthorized   = "unauthorised"
	ErrCodeConflict       = "conflict"
	ErrCodeInternal       = "internal_error"
	ErrCodeValidation     = "validation_error"
	ErrCodeUnavailable    = "service_unavailable"
	ErrCodeMethodNotAllow = "method_not_allowed"
)

// writeJSON writes v as JSON with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // Best-effort write to response; connection may be closed
		json.NewEncoder(w).Encode(v)
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{Error: ErrorBody{Code: code, Message: message}})
}

func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

func writeNotFound(w http.ResponseWriter, message string) {
	writeError(w, http.StatusNotFound, ErrCodeNotFound, message)
}

func writeUnauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="devicecontrol"`)
	writeError(w, http.StatusUnauthorized, ErrCodeUnauthorized, message)
}

func writeInternalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, message)
}

// writeDomainError maps a domain error to a status code and envelope.
// Unrecognised errors are logged and reported as 500 without detail.
func (s *Server) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, registry.ErrDeviceNotFound),
		errors.Is(err, devicestate.ErrNotFound):
		writeNotFound(w, "device not found")
	case errors.Is(err, command.ErrNotFound):
		writeNotFound(w, "command not found")
	case errors.Is(err, registry.ErrUnavailable):
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "device registry unavailable")
	case errors.Is(err, control.ErrDeviceInMaintenance):
		writeError(w, http.StatusBadRequest, ErrCodeValidation, "device is in maintenance mode")
	case errors.Is(err, command.ErrInvalidTransition):
		writeError(w, http.StatusConflict, ErrCodeConflict, "command is no longer pending")
	case errors.Is(err, command.ErrInvalidCommand),
		errors.Is(err, command.ErrInvalidPriority),
		errors.Is(err, command.ErrInvalidStatus),
		errors.Is(err, devicestate.ErrInvalidStatus),
		errors.Is(err, cleanup.ErrMissingDeviceID),
		errors.Is(err, history.ErrMissingDeviceID):
		writeError(w, http.StatusBadRequest, ErrCodeValidation, err.Error())
	default:
		s.logger.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", r.Context().Value(ctxKeyRequestID),
			"error", err,
		)
		writeInternalError(w, "internal server error")
	}
}
