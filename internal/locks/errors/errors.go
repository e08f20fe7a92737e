package errors

import "errors"

var (
	ErrNotFound  = errors.New("lock not found")
	ErrInvalidID = errors.New("invalid lock ID format")
	// ErrGuardHeld means another request currently holds the advisory guard
	// for the same target.
	ErrGuardHeld = errors.New("target guard already held")
	// ErrStatusConflict means a guarded status update matched no document,
	// i.e. the lock was concurrently moved out of the expected status.
	ErrStatusConflict = errors.New("lock status changed concurrently")
)
