package errors

import "errors"

var (
	ErrNotFound        = errors.New("booking not found")
	ErrInvalidID       = errors.New("invalid booking ID")
	ErrStatusConflict  = errors.New("booking status changed concurrently")
	ErrAlreadyAssigned = errors.New("fallback team already assigned")
)
