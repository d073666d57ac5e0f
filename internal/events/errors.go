package events

import "errors"

// Domain errors for event consumption.
var (
	// ErrMalformedEvent is returned when a payload is not a device event.
	ErrMalformedEvent = errors.New("events: malformed event")

	// ErrNotStarted is returned when stopping a source that never started.
	ErrNotStarted = errors.New("events: source not started")

	// ErrAlreadyStarted is returned when starting a running source.
	ErrAlreadyStarted = errors.New("events: source already started")

	// ErrNotConnected is returned by health checks while the broker link is down.
	ErrNotConnected = errors.New("events: not connected")
)
