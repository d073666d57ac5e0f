// Package api implements the HTTP REST API and WebSocket server of the
// device control service.
//
// This package provides:
//   - REST endpoints for device state, command submission, cancellation,
//     listing, queue processing and cleanup
//   - A WebSocket hub that broadcasts finished commands
//   - Optional JWT bearer authentication
//   - Middleware stack (request ID, logging, recovery, CORS, body limit)
//
// # Identifiers
//
// Device and command ids in paths must be UUIDs; anything else is rejected
// with 400 before any store or registry access.
//
// # Errors
//
// Failures use one envelope:
//
//	{"error": {"code": "not_found", "message": "device not found"}}
//
// See router.go for the route table.
package api
