package status

import (
	"context"
	"errors"
	"fmt"

	"github.com/viant/opflow/internal/logger"
	"github.com/viant/opflow/model"
)

// Table tracks every (configuration, operation) status of a run.  It is
// owned by the scheduler goroutine and is not safe for concurrent use.
//
// The table maintains:
//   - a pair is never both queued and running, and a finished pair is neither
//   - operation i is queued only once operation i-1 finished
//   - finishing operation i queues operation i+1 at once
//   - error counts never decrease; reaching the tolerance ends the configuration
type Table struct {
	operations  []string
	index       map[string]int
	tolerance   int
	vectors     map[string]Vector
	active      []string
	terminal    []*Terminal
	initialized bool
}

// New creates an empty table for the supplied operations.  A tolerance below
// one is raised to one.
func New(operations []string, tolerance int) *Table {
	if tolerance < 1 {
		tolerance = 1
	}
	index := make(map[string]int, len(operations))
	for i, op := range operations {
		index[op] = i
	}
	return &Table{
		operations: append([]string(nil), operations...),
		index:      index,
		tolerance:  tolerance,
		vectors:    make(map[string]Vector),
	}
}

// Operations returns the operation list
func (t *Table) Operations() []string {
	return append([]string(nil), t.operations...)
}

// Tolerance returns the error tolerance
func (t *Table) Tolerance() int {
	return t.tolerance
}

// Initialize admits configurations, deriving their status from the probe.
// Completion markers only count as a prefix: a marker found behind an
// unfinished operation is ignored and that operation runs again.  Probe
// failures count as "not finished", except ErrUnsupportedOperation which is
// returned.
func (t *Table) Initialize(ctx context.Context, configs []string, probe model.Probe) error {
	if t.initialized {
		return errors.New("status table already initialized")
	}
	t.initialized = true
	if probe == nil {
		probe = model.NeverDone
	}
	for _, cfg := range configs {
		if _, ok := t.vectors[cfg]; ok {
			logger.Warn(ctx, "duplicate configuration ignored", "cfg", cfg)
			continue
		}
		vector, err := t.detect(ctx, cfg, probe)
		if err != nil {
			return err
		}
		t.vectors[cfg] = vector
		t.active = append(t.active, cfg)
		if vector.Complete() {
			last := ""
			if len(t.operations) > 0 {
				last = t.operations[len(t.operations)-1]
			}
			t.terminal = append(t.terminal, &Terminal{Config: cfg, Kind: TerminalCompleted, Operation: last})
		}
	}
	return nil
}

func (t *Table) detect(ctx context.Context, cfg string, probe model.Probe) (Vector, error) {
	vector := make(Vector, len(t.operations))
	prefix := true
	for i, op := range t.operations {
		done, err := probe.Detect(ctx, op, cfg)
		if err != nil {
			if errors.Is(err, model.ErrUnsupportedOperation) {
				return nil, fmt.Errorf("failed to probe %v: %w", model.Key{Operation: op, Config: cfg}, err)
			}
			logger.Warn(ctx, "probe failed, treating as not finished", "op", op, "cfg", cfg, "error", err)
			done = false
		}
		if done && !prefix {
			logger.Warn(ctx, "completion marker behind an unfinished operation ignored", "op", op, "cfg", cfg)
			done = false
		}
		vector[i] = Entry{Finished: done, Slot: model.NoSlot}
		if !done && prefix {
			vector[i].Queued = true
		}
		prefix = prefix && done
	}
	return vector, nil
}

// MarkRunning moves a queued pair onto slot.
func (t *Table) MarkRunning(op, cfg string, slot int) error {
	entry, _, err := t.entry(op, cfg, slot)
	if err != nil {
		return err
	}
	switch {
	case slot < 0:
		return NewConsistencyError(op, cfg, slot, "invalid slot")
	case entry.Running():
		return NewConsistencyError(op, cfg, slot, "already running on slot %d", entry.Slot)
	case !entry.Queued:
		return NewConsistencyError(op, cfg, slot, "not queued")
	}
	entry.Queued = false
	entry.Slot = slot
	return nil
}

// MarkTerminated records the outcome of a running pair and frees its slot.
func (t *Table) MarkTerminated(op, cfg string, exitCode int, diagnostic string) (Outcome, error) {
	entry, i, err := t.entry(op, cfg, model.NoSlot)
	if err != nil {
		return OutcomeRetry, err
	}
	if !entry.Running() {
		return OutcomeRetry, NewConsistencyError(op, cfg, model.NoSlot, "terminated without running")
	}
	slot := entry.Slot
	entry.Slot = model.NoSlot
	if exitCode == 0 {
		entry.Finished = true
		vector := t.vectors[cfg]
		if i+1 == len(vector) {
			t.terminal = append(t.terminal, &Terminal{Config: cfg, Kind: TerminalCompleted, Operation: op, Attempts: entry.Errors + 1})
			return OutcomeCompleted, nil
		}
		next := &vector[i+1]
		if next.Finished || next.Running() || next.Queued {
			return OutcomeAdvanced, NewConsistencyError(t.operations[i+1], cfg, slot, "next operation already started")
		}
		next.Queued = true
		return OutcomeAdvanced, nil
	}
	entry.Errors++
	if entry.Errors >= t.tolerance {
		t.terminal = append(t.terminal, &Terminal{Config: cfg, Kind: TerminalFailedOut, Operation: op, Attempts: entry.Errors, Diagnostic: diagnostic})
		return OutcomeFailedOut, nil
	}
	entry.Queued = true
	return OutcomeRetry, nil
}

// Eligible returns configurations queued for op and below the tolerance, in
// admission order.
func (t *Table) Eligible(op string) []string {
	i, ok := t.index[op]
	if !ok {
		return nil
	}
	var ret []string
	for _, cfg := range t.active {
		entry := t.vectors[cfg][i]
		if entry.Queued && entry.Errors < t.tolerance {
			ret = append(ret, cfg)
		}
	}
	return ret
}

// Running returns configurations occupying a slot of op, in admission order.
func (t *Table) Running(op string) []Assignment {
	i, ok := t.index[op]
	if !ok {
		return nil
	}
	var ret []Assignment
	for _, cfg := range t.active {
		if entry := t.vectors[cfg][i]; entry.Running() {
			ret = append(ret, Assignment{Config: cfg, Slot: entry.Slot})
		}
	}
	return ret
}

// SweepTerminal removes and returns configurations that completed or failed
// out since the previous sweep.
func (t *Table) SweepTerminal() []*Terminal {
	if len(t.terminal) == 0 {
		return nil
	}
	ret := t.terminal
	t.terminal = nil
	removed := make(map[string]bool, len(ret))
	for _, terminal := range ret {
		removed[terminal.Config] = true
		delete(t.vectors, terminal.Config)
	}
	t.filterActive(removed)
	return ret
}

// Remove purges cfg from the table; removing an unknown configuration is a
// no-op.
func (t *Table) Remove(cfg string) {
	if _, ok := t.vectors[cfg]; !ok {
		return
	}
	delete(t.vectors, cfg)
	t.filterActive(map[string]bool{cfg: true})
	pending := t.terminal[:0]
	for _, terminal := range t.terminal {
		if terminal.Config != cfg {
			pending = append(pending, terminal)
		}
	}
	t.terminal = pending
}

// Vector returns a copy of the status vector of cfg.
func (t *Table) Vector(cfg string) (Vector, bool) {
	vector, ok := t.vectors[cfg]
	if !ok {
		return nil, false
	}
	return vector.Clone(), true
}

// Active returns active configurations in admission order.
func (t *Table) Active() []string {
	return append([]string(nil), t.active...)
}

// Len returns the number of active configurations
func (t *Table) Len() int {
	return len(t.active)
}

// Stats counts queued and running pairs across the active set.
func (t *Table) Stats() Stats {
	ret := Stats{Active: len(t.active)}
	for _, cfg := range t.active {
		for _, entry := range t.vectors[cfg] {
			if entry.Queued {
				ret.Queued++
			}
			if entry.Running() {
				ret.Running++
			}
		}
	}
	return ret
}

func (t *Table) entry(op, cfg string, slot int) (*Entry, int, error) {
	i, ok := t.index[op]
	if !ok {
		return nil, 0, NewConsistencyError(op, cfg, slot, "unknown operation")
	}
	vector, ok := t.vectors[cfg]
	if !ok {
		return nil, 0, NewConsistencyError(op, cfg, slot, "unknown or inactive configuration")
	}
	return &vector[i], i, nil
}

func (t *Table) filterActive(removed map[string]bool) {
	active := t.active[:0]
	for _, cfg := range t.active {
		if !removed[cfg] {
			active = append(active, cfg)
		}
	}
	t.active = active
}
