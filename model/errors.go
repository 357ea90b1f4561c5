package model

import (
	"errors"
	"fmt"
)

// ErrUnsupportedOperation is returned by probes and command builders for an
// operation outside the configured list.  It is never retried.
var ErrUnsupportedOperation = errors.New("unsupported operation")

// UnsupportedOperationError names the rejected triple.
type UnsupportedOperationError struct {
	Operation string
	Config    string
	Slot      int
}

func (e *UnsupportedOperationError) Error() string {
	if e.Slot == NoSlot {
		return fmt.Sprintf("%v: %q (configuration %q)", ErrUnsupportedOperation, e.Operation, e.Config)
	}
	return fmt.Sprintf("%v: %q (configuration %q, slot %d)", ErrUnsupportedOperation, e.Operation, e.Config, e.Slot)
}

func (e *UnsupportedOperationError) Unwrap() error {
	return ErrUnsupportedOperation
}

// NewUnsupportedOperationError creates an error for the supplied triple.
func NewUnsupportedOperationError(operation, config string, slot int) error {
	return &UnsupportedOperationError{Operation: operation, Config: config, Slot: slot}
}
