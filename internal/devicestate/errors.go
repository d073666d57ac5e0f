package devicestate

import "errors"

// Domain errors for the devicestate package.
var (
	// ErrNotFound is returned when no state record exists for a device.
	ErrNotFound = errors.New("devicestate: not found")

	// ErrInvalidStatus is returned for a status outside the known set.
	ErrInvalidStatus = errors.New("devicestate: invalid status")

	// ErrMissingDeviceID is returned when a state has no device id.
	ErrMissingDeviceID = errors.New("devicestate: device id is required")

	// ErrCorruptRecord is returned when a stored record cannot be decoded.
	ErrCorruptRecord = errors.New("devicestate: corrupt record")
)
