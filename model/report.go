package model

import "time"

// State represents the registry state of a launch
type State string

const (
	StateRunning State = "RUNNING"
	StateSuccess State = "SUCCESS"
	StateError   State = "ERROR"
)

// IsTerminal returns true once a worker has reported its outcome.
func (s State) IsTerminal() bool {
	return s == StateSuccess || s == StateError
}

// Report is the single observation a worker leaves behind for its launch.
type Report struct {
	Key
	LaunchID   string    `json:"launchId,omitempty"`
	Slot       int       `json:"slot"`
	State      State     `json:"state"`
	ExitCode   int       `json:"exitCode"`
	Diagnostic string    `json:"diagnostic,omitempty"`
	StartedAt  time.Time `json:"startedAt"`
	EndedAt    time.Time `json:"endedAt,omitempty"`
}

// NewRunningReport returns the RUNNING entry recorded when a launch is dispatched.
func NewRunningReport(launch *Launch, startedAt time.Time) *Report {
	return &Report{
		Key:       launch.Key(),
		LaunchID:  launch.ID,
		Slot:      launch.Slot,
		State:     StateRunning,
		StartedAt: startedAt,
	}
}

// Clone returns a shallow copy of the report.
func (r *Report) Clone() *Report {
	if r == nil {
		return nil
	}
	ret := *r
	return &ret
}
