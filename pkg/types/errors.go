package types

import "errors"

// Error taxonomy shared across packages. Handlers map these onto transport
// status codes; everything else is treated as an internal error.
var (
	// ErrNotFound indicates a referenced entity does not exist
	ErrNotFound = errors.New("not found")

	// ErrValidation indicates bad input surfaced synchronously at submission
	ErrValidation = errors.New("validation failed")

	// ErrConflict indicates an operation on an entity in the wrong state,
	// e.g. cancelling a task that already finished
	ErrConflict = errors.New("conflict")
)
