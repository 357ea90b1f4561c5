package progress

import (
	"context"
	"sync"
	"time"
)

// Delta represents an incremental counter change.  Fields are signed.
type Delta struct {
	Submitted int
	Completed int
	FailedOut int
	Running   int
	Queued    int
}

// Progress keeps the counters of a run.  It is safe for concurrent use.
type Progress struct {
	RunID     string
	StartedAt time.Time

	Submitted int
	Completed int
	FailedOut int
	// Running and Queued count (operation, configuration) pairs
	Running int
	Queued  int

	sync.Mutex
	onChange func(Progress)
}

// Remaining returns the number of configurations still active
func (p *Progress) Remaining() int {
	return p.Submitted - p.Completed - p.FailedOut
}

// Update applies d.  A registered callback receives a copy of the counters
// outside the critical section.
func (p *Progress) Update(d Delta) {
	if p == nil {
		return
	}
	p.Lock()
	p.Submitted += d.Submitted
	p.Completed += d.Completed
	p.FailedOut += d.FailedOut
	p.Running += d.Running
	p.Queued += d.Queued
	snapshot := p.copy()
	cb := p.onChange
	p.Unlock()

	if cb != nil {
		cb(snapshot)
	}
}

// Snapshot returns a copy of the counters
func (p *Progress) Snapshot() Progress {
	if p == nil {
		return Progress{}
	}
	p.Lock()
	defer p.Unlock()
	return p.copy()
}

func (p *Progress) copy() Progress {
	return Progress{
		RunID:     p.RunID,
		StartedAt: p.StartedAt,
		Submitted: p.Submitted,
		Completed: p.Completed,
		FailedOut: p.FailedOut,
		Running:   p.Running,
		Queued:    p.Queued,
	}
}

// OnChange registers the callback invoked after every Update; nil disables it.
func (p *Progress) OnChange(cb func(Progress)) {
	if p == nil {
		return
	}
	p.Lock()
	p.onChange = cb
	p.Unlock()
}

type trackerKeyT struct{}

var trackerKey trackerKeyT

// WithNewTracker creates a tracker and embeds it in a derived context
func WithNewTracker(ctx context.Context, runID string, onChange func(Progress)) (context.Context, *Progress) {
	if ctx == nil {
		ctx = context.Background()
	}
	tr := &Progress{
		RunID:     runID,
		StartedAt: time.Now(),
		onChange:  onChange,
	}
	return context.WithValue(ctx, trackerKey, tr), tr
}

// FromContext returns the tracker carried by ctx
func FromContext(ctx context.Context) (*Progress, bool) {
	if ctx == nil {
		return nil, false
	}
	tr, ok := ctx.Value(trackerKey).(*Progress)
	return tr, ok
}

// GetSnapshot combines FromContext and Snapshot
func GetSnapshot(ctx context.Context) (Progress, bool) {
	if tr, ok := FromContext(ctx); ok {
		return tr.Snapshot(), true
	}
	return Progress{}, false
}

// UpdateCtx applies d to the tracker in ctx, if any
func UpdateCtx(ctx context.Context, d Delta) {
	if tr, ok := FromContext(ctx); ok {
		tr.Update(d)
	}
}
