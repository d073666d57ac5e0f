package history

import (
	"context"

	"github.com/nerrad567/gray-logic-device-control/internal/command"
)

// Logger defines the logging interface used by the history package.
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

// Recorder writes finished commands to a Repository. It implements
// command.Observer.
type Recorder struct {
	repo   Repository
	logger Logger
}

// NewRecorder creates a Recorder.
func NewRecorder(repo Repository) *Recorder {
	return &Recorder{repo: repo, logger: noopLogger{}}
}

// SetLogger sets the logger for the recorder.
func (r *Recorder) SetLogger(logger Logger) {
	if logger != nil {
		r.logger = logger
	}
}

// CommandFinished records cmd, logging instead of returning failures.
func (r *Recorder) CommandFinished(ctx context.Context, cmd command.Command) {
	if err := r.repo.Record(context.WithoutCancel(ctx), cmd); err != nil {
		r.logger.Warn("recording command history failed",
			"command_id", cmd.ID,
			"device_id", cmd.DeviceID,
			"error", err,
		)
	}
}

var _ command.Observer = (*Recorder)(nil)
