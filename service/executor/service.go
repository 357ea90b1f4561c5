package executor

import (
	"context"
	"fmt"

	"github.com/viant/opflow/model"
)

// Result is the terminal outcome of a launch.
type Result struct {
	ExitCode   int    `json:"exitCode"`
	Output     string `json:"output,omitempty"`
	Diagnostic string `json:"diagnostic,omitempty"`
}

// State maps the exit code onto a registry state.
func (r *Result) State() model.State {
	if r.ExitCode == 0 {
		return model.StateSuccess
	}
	return model.StateError
}

// Success returns a zero exit result
func Success(output string) *Result {
	return &Result{Output: output}
}

// Failure returns a non-zero exit result; a zero code is raised to
// ExitFailure.
func Failure(exitCode int, diagnostic string) *Result {
	if exitCode == 0 {
		exitCode = ExitFailure
	}
	return &Result{ExitCode: exitCode, Diagnostic: diagnostic}
}

// FromError converts an error into a failure result.
func FromError(err error) *Result {
	if err == nil {
		return Success("")
	}
	return Failure(ExitFailure, err.Error())
}

// Timeout returns the result of a launch that exceeded its deadline.
func Timeout(launch *model.Launch) *Result {
	return Failure(ExitTimeout, fmt.Sprintf("%v timed out after %s", launch, launch.Timeout))
}

// Service runs launches.  Execute must be safe for concurrent use across
// distinct slots.
type Service interface {
	Execute(ctx context.Context, launch *model.Launch) *Result
}

// Func adapts a function to Service
type Func func(ctx context.Context, launch *model.Launch) *Result

func (f Func) Execute(ctx context.Context, launch *model.Launch) *Result {
	return f(ctx, launch)
}
