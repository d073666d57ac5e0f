package cleanup

import "errors"

// Domain errors for cleanup.
var (
	// ErrMissingDeviceID is returned when a cleanup is requested without a device id.
	ErrMissingDeviceID = errors.New("cleanup: device id is required")
)
