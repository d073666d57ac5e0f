// Package history keeps an SQLite audit trail of finished commands.
//
// Command records in the key-value store expire after an hour and are
// deleted with their device. The history table outlives both, so operators
// can still see what a device was told to do and how it went.
//
// A Recorder plugs into the dispatcher and control service as a
// command.Observer; recording failures are logged and never fail the
// command itself.
package history
