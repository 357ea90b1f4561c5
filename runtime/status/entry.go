package status

import "github.com/viant/opflow/model"

// Entry is the status of one operation for one configuration.
type Entry struct {
	Finished bool `json:"finished"`
	Queued   bool `json:"queued"`
	Slot     int  `json:"slot"`
	Errors   int  `json:"errors"`
}

// Running returns true when the entry occupies a slot.
func (e Entry) Running() bool {
	return e.Slot != model.NoSlot
}

// Vector holds one Entry per operation, in operation order.
type Vector []Entry

// Clone returns a copy of the vector
func (v Vector) Clone() Vector {
	return append(Vector(nil), v...)
}

// Complete returns true when the last operation finished.
func (v Vector) Complete() bool {
	return len(v) == 0 || v[len(v)-1].Finished
}

// Outcome describes what a termination did to a configuration.
type Outcome int

const (
	// OutcomeRetry re-queued the failed operation.
	OutcomeRetry Outcome = iota
	// OutcomeAdvanced finished the operation and queued the next one.
	OutcomeAdvanced
	// OutcomeCompleted finished the last operation.
	OutcomeCompleted
	// OutcomeFailedOut exhausted the error tolerance.
	OutcomeFailedOut
)

func (o Outcome) String() string {
	switch o {
	case OutcomeRetry:
		return "retry"
	case OutcomeAdvanced:
		return "advanced"
	case OutcomeCompleted:
		return "completed"
	case OutcomeFailedOut:
		return "failed-out"
	}
	return "unknown"
}

// TerminalKind tells how a configuration left the active set.
type TerminalKind string

const (
	TerminalCompleted TerminalKind = "completed"
	TerminalFailedOut TerminalKind = "failed-out"
)

// Terminal is a configuration whose lifecycle ended.
type Terminal struct {
	Config     string
	Kind       TerminalKind
	Operation  string
	Attempts   int
	Diagnostic string
}

// Assignment is a configuration occupying a slot of an operation.
type Assignment struct {
	Config string
	Slot   int
}

// Stats aggregates the active set.
type Stats struct {
	Active  int
	Queued  int
	Running int
}
