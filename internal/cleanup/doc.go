// Package cleanup removes device records from the key-value store.
//
// A Coordinator performs cascading cleanup: deleting a device removes its
// state record, every command record it owns, its priority index and its
// per-device command set, and drops it from the device membership sets, all
// in one atomic batch. Cleanup is idempotent so that redelivered
// device-removed events are harmless.
//
// The Sweeper runs Coordinator.CleanupExpiredCommands on an interval to prune
// index entries whose command records expired. Dispatch does not depend on
// it; the command queue prunes such entries lazily when it meets them.
package cleanup
