package control

import (
	"context"
	"errors"
	"fmt"

	"github.com/nerrad567/gray-logic-device-control/internal/command"
	"github.com/nerrad567/gray-logic-device-control/internal/devicestate"
	"github.com/nerrad567/gray-logic-device-control/internal/dispatch"
	"github.com/nerrad567/gray-logic-device-control/internal/infrastructure/kvstore"
	"github.com/nerrad567/gray-logic-device-control/internal/registry"
)

// CancelMessage is recorded as the error of a command cancelled by a caller.
const CancelMessage = "Command cancelled by user"

// Logger defines the logging interface used by the Service.
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

// Deps holds the collaborators of a Service.
type Deps struct {
	States     *devicestate.Store
	Commands   *command.Store
	Dispatcher *dispatch.Dispatcher
	Registry   registry.Lookup
	// Store is pinged by Health.
	Store kvstore.Store

	// Observer is told about commands finished by cancellation. Optional.
	Observer command.Observer
	// Logger is optional.
	Logger Logger
	// MaxRetries is the retry budget given to submitted commands that do not
	// name one. Negative selects command.DefaultMaxRetries.
	MaxRetries int
}

// Service implements device state and command operations.
//
// Thread Safety:
//   - Safe for concurrent use; all state lives in the stores.
type Service struct {
	states     *devicestate.Store
	commands   *command.Store
	dispatcher *dispatch.Dispatcher
	registry   registry.Lookup
	store      kvstore.Store
	observer   command.Observer
	logger     Logger
	maxRetries int
}

// New creates a Service.
//
// Returns:
//   - *Service: Ready-to-use service
//   - error: ErrMissingDependency if a required dependency is nil
func New(deps Deps) (*Service, error) {
	if deps.States == nil || deps.Commands == nil || deps.Dispatcher == nil ||
		deps.Registry == nil || deps.Store == nil {
		return nil, fmt.Errorf("%w: states, commands, dispatcher, registry and store are required", ErrMissingDependency)
	}
	s := &Service{
		states:     deps.States,
		commands:   deps.Commands,
		dispatcher: deps.Dispatcher,
		registry:   deps.Registry,
		store:      deps.Store,
		observer:   deps.Observer,
		logger:     deps.Logger,
		maxRetries: deps.MaxRetries,
	}
	if s.observer == nil {
		s.observer = command.Observers(nil)
	}
	if s.logger == nil {
		s.logger = noopLogger{}
	}
	if s.maxRetries < 0 {
		s.maxRetries = command.DefaultMaxRetries
	}
	return s, nil
}

// ValidateDevice returns the state of a device, seeding it from the
// registry when this service has not seen the device before.
//
// A seeded device starts offline with empty attributes and the house and
// location reported by the registry.
//
// Returns:
//   - devicestate.DeviceState: The current or freshly seeded state
//   - error: ErrValidationFailed wrapping the registry error, or a store failure
func (s *Service) ValidateDevice(ctx context.Context, deviceID string) (devicestate.DeviceState, error) {
	state, err := s.states.Get(ctx, deviceID)
	if err == nil {
		return state, nil
	}
	if !errors.Is(err, devicestate.ErrNotFound) {
		return devicestate.DeviceState{}, err
	}

	device, err := s.registry.Lookup(ctx, deviceID)
	if err != nil {
		s.logger.Warn("device validation failed", "device_id", deviceID, "error", err)
		return devicestate.DeviceState{}, fmt.Errorf("%w: %w", ErrValidationFailed, err)
	}

	seed := devicestate.DeviceState{
		DeviceID:   deviceID,
		Status:     devicestate.StatusOffline,
		Attributes: map[string]any{},
		HouseID:    device.HouseID,
		LocationID: device.LocationID,
	}
	if device.FirmwareVersion != nil {
		seed.FirmwareVersion = *device.FirmwareVersion
	}
	state, err = s.states.Put(ctx, seed)
	if err != nil {
		return devicestate.DeviceState{}, fmt.Errorf("seeding state of %s: %w", deviceID, err)
	}

	s.logger.Info("device state seeded from registry",
		"device_id", deviceID,
		"house_id", state.HouseID,
		"location_id", state.LocationID,
	)
	return state, nil
}

// GetState returns the state of a device, validating it first.
func (s *Service) GetState(ctx context.Context, deviceID string) (devicestate.DeviceState, error) {
	return s.ValidateDevice(ctx, deviceID)
}

// UpdateState merges u into the state of a validated device.
func (s *Service) UpdateState(ctx context.Context, deviceID string, u devicestate.Update) (devicestate.DeviceState, error) {
	if _, err := s.ValidateDevice(ctx, deviceID); err != nil {
		return devicestate.DeviceState{}, err
	}
	state, err := s.states.Update(ctx, deviceID, u)
	if err != nil {
		return devicestate.DeviceState{}, err
	}
	s.logger.Debug("device state updated", "device_id", deviceID, "status", string(state.Status))
	return state, nil
}

// SubmitRequest describes a command submission.
type SubmitRequest struct {
	DeviceID    string
	Type        string
	Parameters  map[string]any
	Priority    command.Priority
	RequestedBy string
	// MaxRetries overrides the service default when non-nil.
	MaxRetries *int
}

// SubmitCommand validates the device and queues a new command for it.
//
// Returns:
//   - command.Command: The queued command
//   - error: ErrValidationFailed (registry or maintenance),
//     command.ErrInvalidCommand, command.ErrInvalidPriority, or a store failure
func (s *Service) SubmitCommand(ctx context.Context, req SubmitRequest) (command.Command, error) {
	state, err := s.ValidateDevice(ctx, req.DeviceID)
	if err != nil {
		return command.Command{}, err
	}
	if state.Status == devicestate.StatusMaintenance {
		return command.Command{}, fmt.Errorf("%w: %w: %s", ErrValidationFailed, ErrDeviceInMaintenance, req.DeviceID)
	}

	priority := req.Priority
	if priority == "" {
		priority = command.PriorityNormal
	}
	cmd := command.New(req.DeviceID, req.Type, req.Parameters, priority)
	cmd.RequestedBy = req.RequestedBy
	cmd.MaxRetries = s.maxRetries
	if req.MaxRetries != nil {
		cmd.MaxRetries = *req.MaxRetries
	}

	created, err := s.commands.Create(ctx, cmd)
	if err != nil {
		return command.Command{}, err
	}

	s.logger.Info("command submitted",
		"command_id", created.ID,
		"device_id", created.DeviceID,
		"command_type", created.Type,
		"priority", string(created.Priority),
	)
	return created, nil
}

// Ping queues a high-priority ping for a device.
func (s *Service) Ping(ctx context.Context, deviceID, requestedBy string) (command.Command, error) {
	return s.SubmitCommand(ctx, SubmitRequest{
		DeviceID:    deviceID,
		Type:        dispatch.TypePing,
		Priority:    command.PriorityHigh,
		RequestedBy: requestedBy,
	})
}

// GetCommand returns a command owned by deviceID. A command owned by another
// device is reported as command.ErrNotFound.
func (s *Service) GetCommand(ctx context.Context, deviceID, commandID string) (command.Command, error) {
	cmd, err := s.commands.Get(ctx, commandID)
	if err != nil {
		return command.Command{}, err
	}
	if cmd.DeviceID != deviceID {
		return command.Command{}, fmt.Errorf("%w: %s for device %s", command.ErrNotFound, commandID, deviceID)
	}
	return cmd, nil
}

// CancelCommand cancels a pending command owned by deviceID.
//
// Returns:
//   - command.Command: The cancelled command
//   - error: command.ErrNotFound, command.ErrInvalidTransition if the
//     command is no longer pending, or a store failure
func (s *Service) CancelCommand(ctx context.Context, deviceID, commandID string) (command.Command, error) {
	if _, err := s.GetCommand(ctx, deviceID, commandID); err != nil {
		return command.Command{}, err
	}
	cancelled, err := s.commands.UpdateStatus(ctx, commandID, command.StatusCancelled, nil, CancelMessage)
	if err != nil {
		return command.Command{}, err
	}

	s.logger.Info("command cancelled", "command_id", commandID, "device_id", deviceID)
	s.observer.CommandFinished(ctx, cancelled)
	return cancelled, nil
}

// ListCommands returns up to limit queued commands of a validated device in
// dispatch order, filtered by status when non-empty.
func (s *Service) ListCommands(ctx context.Context, deviceID string, status command.Status, limit int) ([]command.Command, error) {
	if _, err := s.ValidateDevice(ctx, deviceID); err != nil {
		return nil, err
	}
	return s.commands.List(ctx, deviceID, status, limit)
}

// ListAllCommands returns up to limit live commands of a validated device,
// queued or not, newest first.
func (s *Service) ListAllCommands(ctx context.Context, deviceID string, status command.Status, limit int) ([]command.Command, error) {
	if _, err := s.ValidateDevice(ctx, deviceID); err != nil {
		return nil, err
	}
	return s.commands.ListAll(ctx, deviceID, status, limit)
}

// ProcessQueue drains the queue of a validated device and returns the number
// of commands that completed.
func (s *Service) ProcessQueue(ctx context.Context, deviceID string) (int, error) {
	if _, err := s.ValidateDevice(ctx, deviceID); err != nil {
		return 0, err
	}
	return s.dispatcher.ProcessDeviceQueue(ctx, deviceID)
}

// Health reports store reachability.
type Health struct {
	Healthy bool
	Err     error
}

// Health pings the key-value store.
func (s *Service) Health(ctx context.Context) Health {
	if err := s.store.Ping(ctx); err != nil {
		return Health{Err: err}
	}
	return Health{Healthy: true}
}

// Stats counts the devices this service holds state for.
type Stats struct {
	Devices int `json:"devices"`
	Online  int `json:"online"`
}

// Stats reads the device membership sets.
func (s *Service) Stats(ctx context.Context) (Stats, error) {
	all, err := s.states.DeviceIDs(ctx)
	if err != nil {
		return Stats{}, err
	}
	online, err := s.states.OnlineDeviceIDs(ctx)
	if err != nil {
		return Stats{}, err
	}
	return Stats{Devices: len(all), Online: len(online)}, nil
}
