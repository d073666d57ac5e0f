// Package command stores device commands and the per-device priority index
// that orders pending commands for dispatch.
//
// # Keys
//
//	device:command:{command_id}   hash, one command record (TTL)
//	device:queue:{device_id}      sorted set, pending command ids by dispatch score
//	device:commands:{device_id}   set, every command id created for the device (TTL)
//
// # Invariants
//
// A command id is in its device's queue if and only if the command is
// pending. Create writes the record and the queue entry in one atomic batch;
// every transition out of pending removes the queue entry in the same batch
// as the status write.
//
// Legal transitions:
//
//	pending   -> executing | cancelled
//	executing -> completed | failed
//	executing -> pending          (Requeue, bounded by max_retries)
//
// Terminal commands (completed, failed, cancelled) are never written again.
//
// # Ordering
//
// The dispatch score packs the priority rank above a microsecond timestamp,
// so critical < high < normal < low and commands of equal priority leave in
// the order they were queued. Queue times handed out by one Store are
// strictly increasing, which keeps FIFO order even for commands created in
// the same microsecond. A requeued command is scored with a fresh queue
// time and goes behind commands of its priority that arrived meanwhile.
//
// # Stale entries
//
// Queue entries can outlive their records (TTL expiry) or point at records
// that are no longer pending after a partial failure elsewhere. PeekNext
// prunes such entries as it meets them, up to a fixed budget per call;
// running out of budget returns ErrCorruptionDetected.
package command
