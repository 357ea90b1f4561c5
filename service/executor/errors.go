package executor

const (
	// ExitFailure is reported when a launch failed without an exit code.
	ExitFailure = 1
	// ExitTimeout is reported when a launch exceeded its deadline.
	ExitTimeout = 124
)
