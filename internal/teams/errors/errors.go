package errors

import "errors"

var (
	ErrNotFound     = errors.New("team not found")
	ErrCapacityFull = errors.New("team plan slot has no remaining capacity")
)
