package dao

import "errors"

// Common, reusable DAO errors.  Callers detect them with errors.Is.
var (
	// ErrNotFound is returned when the requested entry does not exist.
	ErrNotFound = errors.New("dao: not found")

	// ErrInvalidID indicates an empty operation or configuration in the key.
	ErrInvalidID = errors.New("dao: invalid id")

	// ErrNilEntity is returned when the caller attempts to persist a nil
	// pointer.
	ErrNilEntity = errors.New("dao: nil entity")
)
