// Package registry looks devices up in the external device registry service.
//
// The registry owns device metadata. This service only needs to know that a
// device exists and which house and location it belongs to, which it reads
// from GET {base}/api/v1/devices/{id}. Every lookup is bounded by a fixed
// timeout; a timeout or connection failure is reported as ErrUnavailable and
// callers treat it as a failed validation rather than retrying.
package registry
