// Package dispatch drains per-device command queues.
//
// A Dispatcher repeatedly takes the next pending command of a device, marks
// it executing, checks that the device is online, and hands it to the
// Executor registered for its command type. Successful executions write
// their state deltas back to the device record and complete the command.
// Failed executions are requeued while the command has retries left and are
// marked failed once the budget is spent.
//
//	PeekNext ──▶ executing ──▶ device online? ──▶ Executor
//	                                 │                 │
//	                                 ▼                 ▼
//	                            failure path      success: state update,
//	                        (requeue or failed)   completed + result
//
// Each command runs at most once at a time because only pending commands
// can be claimed. Within one process, queue processing is also serialised
// per device. Two processes draining the same device concurrently can still
// both peek the same command; the loser of the pending->executing
// transition skips it.
//
// Executors are looked up by command type in a Registry. NewBuiltinRegistry
// returns one populated with the simulated device actions (power, climate,
// lighting, locks and ping).
package dispatch
