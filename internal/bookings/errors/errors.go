package errors

import "errors"

var (
	ErrNotFound = errors.New("booking not found")

	ErrInvalidID = errors.New("invalid booking ID format")

	// ErrStatusMismatch is returned when a conditional status update matched
	// no document in the expected state.
	ErrStatusMismatch = errors.New("booking is not in the expected status")

	ErrLockHeld = errors.New("booking lock is held by another request")
)
