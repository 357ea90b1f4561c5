package opflow

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/viant/opflow/internal/logger"
	"github.com/viant/opflow/runtime/status"
)

// Failure describes why a configuration failed out
type Failure struct {
	Operation  string `json:"operation" yaml:"operation"`
	Attempts   int    `json:"attempts" yaml:"attempts"`
	Diagnostic string `json:"diagnostic,omitempty" yaml:"diagnostic,omitempty"`
}

// Summary reports the outcome of a run
type Summary struct {
	Submitted int                 `json:"submitted" yaml:"submitted"`
	Completed []string            `json:"completed" yaml:"completed"`
	FailedOut map[string]*Failure `json:"failedOut" yaml:"failedOut"`
	Remaining int                 `json:"remaining" yaml:"remaining"`
	Elapsed   time.Duration       `json:"elapsed" yaml:"elapsed"`
	mux       sync.Mutex
}

func newSummary(submitted int) *Summary {
	return &Summary{Submitted: submitted, FailedOut: map[string]*Failure{}}
}

func (s *Summary) record(terminal *status.Terminal) {
	s.mux.Lock()
	defer s.mux.Unlock()
	switch terminal.Kind {
	case status.TerminalCompleted:
		s.Completed = append(s.Completed, terminal.Config)
	case status.TerminalFailedOut:
		s.FailedOut[terminal.Config] = &Failure{
			Operation:  terminal.Operation,
			Attempts:   terminal.Attempts,
			Diagnostic: terminal.Diagnostic,
		}
	}
}

// Failed returns failed out configurations sorted by id
func (s *Summary) Failed() []string {
	s.mux.Lock()
	defer s.mux.Unlock()
	ret := make([]string, 0, len(s.FailedOut))
	for cfg := range s.FailedOut {
		ret = append(ret, cfg)
	}
	sort.Strings(ret)
	return ret
}

// HasFailures returns true when any configuration failed out
func (s *Summary) HasFailures() bool {
	s.mux.Lock()
	defer s.mux.Unlock()
	return len(s.FailedOut) > 0
}

// Log writes the summary to the context logger
func (s *Summary) Log(ctx context.Context) {
	failed := s.Failed()
	logger.Info(ctx, "run summary",
		"submitted", s.Submitted,
		"completed", len(s.Completed),
		"failedOut", len(failed),
		"remaining", s.Remaining,
		"elapsed", s.Elapsed.String())
	for _, cfg := range failed {
		failure := s.FailedOut[cfg]
		logger.Warn(ctx, "configuration failed out", "cfg", cfg, "op", failure.Operation, "attempts", failure.Attempts, "diagnostic", failure.Diagnostic)
	}
}
