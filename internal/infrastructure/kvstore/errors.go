package kvstore

import "errors"

// ErrStoreFailure wraps every error returned by a backend: the store is
// unreachable or rejected an operation.
var ErrStoreFailure = errors.New("kvstore: store failure")

// ErrUnknownBackend is returned by Open for an unsupported backend name.
var ErrUnknownBackend = errors.New("kvstore: unknown backend")
