package status

import (
	"errors"
	"fmt"

	goerrors "github.com/go-errors/errors"
)

// ErrConsistency is matched by every internal consistency violation.
var ErrConsistency = errors.New("internal consistency violation")

// ConsistencyError reports a scheduling-logic defect: a double mark-running,
// a termination without a run, or two configurations on the same slot.  It
// is never recovered from; the run aborts.
type ConsistencyError struct {
	Operation string
	Config    string
	Slot      int
	Reason    string
	trace     *goerrors.Error
}

func (e *ConsistencyError) Error() string {
	return fmt.Sprintf("%v: %s (operation %q, configuration %q, slot %d)", ErrConsistency, e.Reason, e.Operation, e.Config, e.Slot)
}

// Is matches ErrConsistency
func (e *ConsistencyError) Is(target error) bool {
	return target == ErrConsistency
}

// ErrorStack returns the message followed by the call stack where the
// violation was detected.
func (e *ConsistencyError) ErrorStack() string {
	if e.trace == nil {
		return e.Error()
	}
	return e.trace.ErrorStack()
}

// NewConsistencyError creates a violation for the supplied triple.
func NewConsistencyError(operation, config string, slot int, format string, args ...interface{}) *ConsistencyError {
	ret := &ConsistencyError{
		Operation: operation,
		Config:    config,
		Slot:      slot,
		Reason:    fmt.Sprintf(format, args...),
	}
	ret.trace = goerrors.Wrap(errors.New(ret.Error()), 1)
	return ret
}

// IsConsistency returns true if err is (or wraps) a consistency violation.
func IsConsistency(err error) bool {
	return errors.Is(err, ErrConsistency)
}
