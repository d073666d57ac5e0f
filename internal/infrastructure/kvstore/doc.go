// Package kvstore provides the key-value primitives the command queue and
// device state engine are built on.
//
// A Store exposes hash records, sorted-set indexes and plain sets, plus an
// atomic multi-key Batch. Two backends implement it:
//
//   - Redis: production backend. Batches are sent as a MULTI/EXEC
//     transaction, so either every queued write commits or none does.
//   - Memory: in-process backend for tests and single-node development.
//     Batches are applied under one mutex.
//
// Reads are never part of a batch. Callers that read, decide and then write
// get per-operation atomicity only; see the devicestate and command packages
// for the consequences.
//
// All backend errors are wrapped with ErrStoreFailure.
package kvstore
