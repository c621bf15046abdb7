package persistence

import "errors"

var (
	// ErrNotFound is returned when the requested record does not exist.
	ErrNotFound = errors.New("persistence: not found")
	// ErrDuplicate is returned when a unique constraint rejects the write.
	ErrDuplicate = errors.New("persistence: duplicate record")
	// ErrOverlap is returned when an appointment write would overlap the
	// buffered interval of another confirmed appointment.
	ErrOverlap = errors.New("persistence: appointment overlaps an existing booking")
	// ErrConstraintViolation is returned when a write violates a schema or
	// business constraint other than uniqueness or overlap.
	ErrConstraintViolation = errors.New("persistence: constraint violation")
)
