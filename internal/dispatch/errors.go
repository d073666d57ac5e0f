package dispatch

import "errors"

// Failure reasons recorded on commands, and construction errors.
var (
	// ErrDeviceNotFound is recorded when the target device has no state record.
	ErrDeviceNotFound = errors.New("dispatch: device not found")

	// ErrDeviceOffline is recorded when the target device is not online.
	ErrDeviceOffline = errors.New("dispatch: device offline")

	// ErrUnknownCommandType is recorded when no executor handles the type.
	ErrUnknownCommandType = errors.New("dispatch: unknown command type")

	// ErrInvalidParameter is returned by executors for unusable parameters.
	ErrInvalidParameter = errors.New("dispatch: invalid parameter")

	// ErrExecutorPanic is recorded when an executor panics.
	ErrExecutorPanic = errors.New("dispatch: executor panicked")

	// ErrDuplicateExecutor is returned when registering a type twice.
	ErrDuplicateExecutor = errors.New("dispatch: executor already registered")

	// ErrMissingDependency is returned by New when a required dependency is nil.
	ErrMissingDependency = errors.New("dispatch: missing dependency")
)
