package events

import (
	"context"
	"errors"
	"fmt"

	"github.com/nerrad567/gray-logic-device-control/internal/cleanup"
)

// Logger defines the logging interface used by the events package.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Cleaner removes everything stored for a device.
type Cleaner interface {
	CleanupDevice(ctx context.Context, deviceID string) (cleanup.DeviceReport, error)
}

// Handler applies device events.
type Handler struct {
	cleaner Cleaner
	logger  Logger
}

// NewHandler creates a Handler that cleans up removed devices.
func NewHandler(cleaner Cleaner) *Handler {
	return &Handler{cleaner: cleaner, logger: noopLogger{}}
}

// SetLogger sets the logger for the handler.
func (h *Handler) SetLogger(logger Logger) {
	if logger != nil {
		h.logger = logger
	}
}

// Handle processes one message payload. A nil return means the message may
// be acknowledged; an error means it must be redelivered.
func (h *Handler) Handle(ctx context.Context, payload []byte) error {
	ev, err := Decode(payload)
	if errors.Is(err, ErrMalformedEvent) {
		h.logger.Warn("discarding malformed device event", "error", err, "size", len(payload))
		return nil
	}
	if err != nil {
		return err
	}

	if !ev.IsDeletion() {
		h.logger.Debug("ignoring device event", "event_type", ev.EventType, "device_id", ev.DeviceID)
		return nil
	}

	h.logger.Info("device removed, cleaning up",
		"device_id", ev.DeviceID,
		"event_id", ev.EventID,
	)
	report, err := h.cleaner.CleanupDevice(ctx, ev.DeviceID)
	if err != nil {
		h.logger.Error("device cleanup failed", "device_id", ev.DeviceID, "error", err)
		return fmt.Errorf("cleaning up device %s: %w", ev.DeviceID, err)
	}

	h.logger.Info("device cleanup complete",
		"device_id", ev.DeviceID,
		"commands_deleted", report.CommandsDeleted,
	)
	return nil
}
