// Package devicestate holds the live status record of every device the
// service controls.
//
// Each device has one hash record under device:state:{id}. Two sets are kept
// in step with those records on every write: devices:all (every known
// device) and devices:online (devices whose status is online). The record,
// its TTL and both set memberships are written in one atomic batch.
//
// # Concurrency
//
// Put is a full replace and is atomic. Update is read-modify-write: it loads
// the record, merges the provided fields and writes the result back. Two
// concurrent updates can therefore lose each other's fields; the later write
// wins for every field it carries. This is accepted behaviour and is covered
// by TestStore_ConcurrentUpdateLosesFields.
package devicestate
