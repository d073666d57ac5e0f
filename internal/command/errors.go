package command

import "errors"

// Domain errors for the command package.
//
// These errors can be checked using errors.Is():
//
//	if errors.Is(err, command.ErrInvalidTransition) {
//	    // command already left pending
//	}
var (
	// ErrNotFound is returned when a command record does not exist.
	ErrNotFound = errors.New("command: not found")

	// ErrAlreadyExists is returned when creating a command with an id in use.
	ErrAlreadyExists = errors.New("command: already exists")

	// ErrInvalidCommand is returned when a command fails validation.
	ErrInvalidCommand = errors.New("command: invalid")

	// ErrInvalidPriority is returned for a priority outside the known set.
	ErrInvalidPriority = errors.New("command: invalid priority")

	// ErrInvalidStatus is returned for a status outside the known set.
	ErrInvalidStatus = errors.New("command: invalid status")

	// ErrInvalidTransition is returned for a disallowed status change.
	// The stored command is left unchanged.
	ErrInvalidTransition = errors.New("command: invalid status transition")

	// ErrRetriesExhausted is returned by Requeue once retry_count has
	// reached max_retries.
	ErrRetriesExhausted = errors.New("command: retries exhausted")

	// ErrQueueEmpty is returned by PeekNext when no pending command remains.
	ErrQueueEmpty = errors.New("command: queue empty")

	// ErrCorruptionDetected is returned when PeekNext exhausts its budget
	// of stale entries to prune.
	ErrCorruptionDetected = errors.New("command: priority index corruption detected")

	// ErrCorruptRecord is returned when a stored record cannot be decoded.
	ErrCorruptRecord = errors.New("command: corrupt record")
)
