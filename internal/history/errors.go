package history

import "errors"

var (
	// ErrMissingDeviceID is returned when a query names no device.
	ErrMissingDeviceID = errors.New("history: device id is required")

	// ErrNotTerminal is returned when recording a command that has not finished.
	ErrNotTerminal = errors.New("history: command has not finished")
)
