package control

import "errors"

// Domain errors for control operations.
var (
	// ErrValidationFailed is returned when a device cannot be used: unknown to
	// the registry, registry unreachable, or in maintenance. The cause is
	// wrapped alongside it.
	ErrValidationFailed = errors.New("control: device validation failed")

	// ErrDeviceInMaintenance is wrapped with ErrValidationFailed when a
	// command is submitted to a device in maintenance.
	ErrDeviceInMaintenance = errors.New("control: device in maintenance")

	// ErrMissingDependency is returned by New when a required dependency is nil.
	ErrMissingDependency = errors.New("control: missing dependency")
)
