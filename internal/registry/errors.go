package registry

import "errors"

// Domain errors for registry lookups.
var (
	// ErrDeviceNotFound is returned when the registry does not know the device.
	ErrDeviceNotFound = errors.New("registry: device not found")

	// ErrUnavailable is returned when the registry cannot be reached, times out,
	// or answers with an unexpected status or body.
	ErrUnavailable = errors.New("registry: unavailable")
)
