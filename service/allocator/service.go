package allocator

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/viant/opflow/internal/clock"
	"github.com/viant/opflow/internal/idgen"
	"github.com/viant/opflow/internal/logger"
	"github.com/viant/opflow/model"
	"github.com/viant/opflow/progress"
	"github.com/viant/opflow/runtime/status"
	"github.com/viant/opflow/service/dao"
	"github.com/viant/opflow/service/order"
	"github.com/viant/opflow/tracing"
)

// Config represents scheduler configuration
type Config struct {
	// PollInterval is the wait between two ticks
	PollInterval time.Duration
}

// DefaultConfig returns the default scheduler configuration
func DefaultConfig() Config {
	return Config{
		PollInterval: 10 * time.Second,
	}
}

// Submitter hands a launch to a worker
type Submitter interface {
	Submit(ctx context.Context, launch *model.Launch) error
}

// UndeliveredSource returns terminal reports that never reached the registry
type UndeliveredSource interface {
	Undelivered() []*model.Report
}

// Listener is notified about every configuration leaving the table
type Listener func(ctx context.Context, terminal *status.Terminal)

// Service is the scheduler.  It is the only mutator of the status table.
type Service struct {
	config     Config
	table      *status.Table
	operations []*model.Operation
	registry   dao.Registry
	builder    model.CommandBuilder
	orderer    model.Orderer
	submitter  Submitter
	listeners  []Listener

	undeliveredSource UndeliveredSource
	undelivered       map[model.Key]*model.Report

	// launches tracks the launch id per running pair; registry entries
	// carrying another id are stale.
	launches map[model.Key]string
	ticks    int
	stats    status.Stats
}

// New creates a scheduler over an initialized table
func New(table *status.Table, operations []*model.Operation, options ...Option) (*Service, error) {
	ret := &Service{
		config:      DefaultConfig(),
		table:       table,
		operations:  operations,
		launches:    make(map[model.Key]string),
		undelivered: make(map[model.Key]*model.Report),
	}
	for _, opt := range options {
		opt(ret)
	}
	if table == nil {
		return nil, fmt.Errorf("status table was nil")
	}
	if ret.registry == nil {
		return nil, fmt.Errorf("registry is required")
	}
	if ret.builder == nil {
		return nil, fmt.Errorf("command builder is required")
	}
	if ret.submitter == nil {
		return nil, fmt.Errorf("submitter is required")
	}
	if ret.orderer == nil {
		ret.orderer = model.OrdererFunc(order.Identity)
	}
	if ret.config.PollInterval <= 0 {
		ret.config.PollInterval = DefaultConfig().PollInterval
	}
	names := table.Operations()
	if len(names) != len(operations) {
		return nil, fmt.Errorf("table tracks %d operations, but had %d", len(names), len(operations))
	}
	for i, op := range operations {
		if err := op.Validate(); err != nil {
			return nil, err
		}
		if names[i] != op.Name {
			return nil, fmt.Errorf("operation #%d: expected %s, but had %s", i, names[i], op.Name)
		}
	}
	return ret, nil
}

// Run ticks until no configuration is active.  It returns ctx.Err() when
// cancelled and aborts on consistency violations or unsupported operations.
func (s *Service) Run(ctx context.Context) error {
	if err := s.purge(ctx); err != nil {
		return err
	}
	for {
		if err := s.Tick(ctx); err != nil {
			return err
		}
		if s.table.Len() == 0 {
			logger.Info(ctx, "all configurations processed", "ticks", s.ticks)
			return nil
		}
		if err := s.wait(ctx); err != nil {
			return err
		}
	}
}

// purge removes registry entries of tracked operations left by an earlier
// run; their configurations start over from the table state.
func (s *Service) purge(ctx context.Context) error {
	for _, op := range s.operations {
		running, err := s.registry.List(ctx, dao.WithOperation(op.Name), dao.WithState(model.StateRunning))
		if err != nil {
			return fmt.Errorf("failed to list registry entries of %v: %w", op.Name, err)
		}
		for _, report := range running {
			logger.Warn(ctx, "launch of an earlier run still registered as running", "op", op.Name, "cfg", report.Config, "launch", report.LaunchID)
		}
		leftovers, err := s.registry.List(ctx, dao.WithOperation(op.Name))
		if err != nil {
			return fmt.Errorf("failed to list registry entries of %v: %w", op.Name, err)
		}
		for _, report := range leftovers {
			if err = s.registry.Delete(ctx, report.Key); err != nil && !errors.Is(err, dao.ErrNotFound) {
				return fmt.Errorf("failed to purge registry entry %v: %w", report.Key, err)
			}
		}
		if len(leftovers) > 0 {
			logger.Info(ctx, "purged registry entries of an earlier run", "op", op.Name, "count", len(leftovers))
		}
	}
	return nil
}

// wait blocks for the poll interval, returning early on cancellation
func (s *Service) wait(ctx context.Context) error {
	timer := time.NewTimer(s.config.PollInterval)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Tick runs a single scheduling pass.
//
// Operations are visited in list order, so a configuration finishing
// operation i during reconciliation is queued for i+1 and may be assigned a
// slot of i+1 within the same tick.
func (s *Service) Tick(ctx context.Context) (err error) {
	s.ticks++
	ctx, span := tracing.StartSpan(ctx, "opflow.tick", "INTERNAL")
	defer func() { tracing.EndSpan(span, err) }()
	stats := s.table.Stats()
	span.WithAttributes(map[string]string{
		"tick":    strconv.Itoa(s.ticks),
		"active":  strconv.Itoa(stats.Active),
		"queued":  strconv.Itoa(stats.Queued),
		"running": strconv.Itoa(stats.Running),
	})
	logger.Info(ctx, "======== scheduling tick ========", "tick", s.ticks, "active", stats.Active, "queued", stats.Queued, "running", stats.Running)

	s.drainUndelivered()
	for _, op := range s.operations {
		if err = s.reconcile(ctx, op); err != nil {
			return err
		}
		if err = s.assign(ctx, op); err != nil {
			return err
		}
	}
	for _, terminal := range s.table.SweepTerminal() {
		s.notify(ctx, terminal)
	}
	s.updateProgress(ctx)
	return nil
}

// reconcile applies terminal worker reports of op to the table
func (s *Service) reconcile(ctx context.Context, op *model.Operation) error {
	for _, assignment := range s.table.Running(op.Name) {
		key := model.Key{Operation: op.Name, Config: assignment.Config}
		report, err := s.load(ctx, key)
		if err != nil {
			if errors.Is(err, dao.ErrNotFound) {
				logger.Warn(ctx, "no registry entry for running operation", "op", op.Name, "cfg", assignment.Config, "slot", assignment.Slot)
			} else {
				logger.Warn(ctx, "failed to load registry entry", "op", op.Name, "cfg", assignment.Config, "error", err)
			}
			continue
		}
		if launchID := s.launches[key]; report.LaunchID != "" && launchID != "" && report.LaunchID != launchID {
			logger.Warn(ctx, "stale registry entry ignored", "op", op.Name, "cfg", assignment.Config, "launch", report.LaunchID)
			continue
		}
		if !report.State.IsTerminal() {
			continue
		}
		if report.Slot != assignment.Slot {
			return status.NewConsistencyError(op.Name, assignment.Config, assignment.Slot, "worker reported slot %d", report.Slot)
		}
		exitCode := report.ExitCode
		switch {
		case report.State == model.StateSuccess:
			exitCode = 0
		case exitCode == 0:
			exitCode = 1
		}
		outcome, err := s.table.MarkTerminated(op.Name, assignment.Config, exitCode, report.Diagnostic)
		if err != nil {
			return err
		}
		delete(s.launches, key)
		if err = s.registry.Delete(ctx, key); err != nil && !errors.Is(err, dao.ErrNotFound) {
			logger.Warn(ctx, "failed to delete registry entry", "op", op.Name, "cfg", assignment.Config, "error", err)
		}
		s.logOutcome(ctx, op, assignment, report, exitCode, outcome)
	}
	return nil
}

// load returns an undelivered report of the current launch of key, falling
// back to the registry
func (s *Service) load(ctx context.Context, key model.Key) (*model.Report, error) {
	if report, ok := s.undelivered[key]; ok {
		delete(s.undelivered, key)
		if report.LaunchID == "" || report.LaunchID == s.launches[key] {
			logger.Warn(ctx, "registry rejected the terminal report", "op", key.Operation, "cfg", key.Config, "diagnostic", report.Diagnostic)
			return report, nil
		}
	}
	return s.registry.Load(ctx, key)
}

// drainUndelivered collects reports the workers could not save
func (s *Service) drainUndelivered() {
	if s.undeliveredSource == nil {
		return
	}
	for _, report := range s.undeliveredSource.Undelivered() {
		s.undelivered[report.Key] = report
	}
}

func (s *Service) logOutcome(ctx context.Context, op *model.Operation, assignment status.Assignment, report *model.Report, exitCode int, outcome status.Outcome) {
	tags := []interface{}{"op", op.Name, "cfg", assignment.Config, "slot", assignment.Slot, "exit", exitCode}
	if !report.EndedAt.IsZero() && !report.StartedAt.IsZero() {
		tags = append(tags, "elapsed", report.EndedAt.Sub(report.StartedAt).String())
	}
	switch outcome {
	case status.OutcomeAdvanced, status.OutcomeCompleted:
		logger.Info(ctx, "operation succeeded", tags...)
	case status.OutcomeRetry:
		logger.Warn(ctx, "operation failed, will retry", append(tags, "diagnostic", report.Diagnostic)...)
	case status.OutcomeFailedOut:
		logger.Error(ctx, "operation failed, error tolerance exceeded", append(tags, "tolerance", s.table.Tolerance(), "diagnostic", report.Diagnostic)...)
	}
}

// assign hands free slots of op to eligible configurations in orderer order
func (s *Service) assign(ctx context.Context, op *model.Operation) error {
	slots, err := Occupancy(s.table, op.Name, op.MaxParallel)
	if err != nil {
		return err
	}
	if len(slots.Free) == 0 {
		return nil
	}
	eligible := s.table.Eligible(op.Name)
	if len(eligible) == 0 {
		return nil
	}
	queue := s.order(ctx, op, eligible)
	for i, slot := range slots.Free {
		if i >= len(queue) {
			break
		}
		if err = s.launch(ctx, op, queue[i], slot); err != nil {
			return err
		}
	}
	return nil
}

// order applies the orderer to a copy of eligible, dropping anything it
// returns that was not eligible.
func (s *Service) order(ctx context.Context, op *model.Operation, eligible []string) []string {
	ordered := s.orderer.Order(append([]string(nil), eligible...))
	allowed := make(map[string]bool, len(eligible))
	for _, cfg := range eligible {
		allowed[cfg] = true
	}
	queue := make([]string, 0, len(ordered))
	for _, cfg := range ordered {
		if !allowed[cfg] {
			logger.Warn(ctx, "orderer returned ineligible configuration", "op", op.Name, "cfg", cfg)
			continue
		}
		allowed[cfg] = false
		queue = append(queue, cfg)
	}
	return queue
}

func (s *Service) launch(ctx context.Context, op *model.Operation, cfg string, slot int) error {
	launch, err := s.builder.Build(op.Name, cfg, slot)
	if err != nil {
		return fmt.Errorf("failed to build launch of %v: %w", model.Key{Operation: op.Name, Config: cfg}, err)
	}
	if launch == nil {
		launch = &model.Launch{}
	}
	launch.Operation, launch.Config, launch.Slot = op.Name, cfg, slot
	if launch.ID == "" {
		launch.ID = idgen.New()
	}
	if launch.Timeout == 0 {
		launch.Timeout = op.Timeout
	}
	if err = s.table.MarkRunning(op.Name, cfg, slot); err != nil {
		return err
	}
	s.launches[launch.Key()] = launch.ID
	if err = s.registry.Save(ctx, model.NewRunningReport(launch, clock.Now())); err != nil {
		logger.Warn(ctx, "failed to record running launch", "op", op.Name, "cfg", cfg, "slot", slot, "error", err)
	}
	if err = s.submitter.Submit(ctx, launch); err != nil {
		return fmt.Errorf("failed to submit %v: %w", launch, err)
	}
	logger.Info(ctx, "operation launched", "op", op.Name, "cfg", cfg, "slot", slot, "launch", launch.ID)
	return nil
}

func (s *Service) notify(ctx context.Context, terminal *status.Terminal) {
	switch terminal.Kind {
	case status.TerminalCompleted:
		logger.Info(ctx, "configuration completed", "cfg", terminal.Config)
	case status.TerminalFailedOut:
		logger.Error(ctx, "configuration failed out", "cfg", terminal.Config, "op", terminal.Operation, "attempts", terminal.Attempts)
	}
	for _, listener := range s.listeners {
		listener(ctx, terminal)
	}
}

// updateProgress publishes the change of queued and running pairs since the
// previous tick
func (s *Service) updateProgress(ctx context.Context) {
	stats := s.table.Stats()
	progress.UpdateCtx(ctx, progress.Delta{
		Queued:  stats.Queued - s.stats.Queued,
		Running: stats.Running - s.stats.Running,
	})
	s.stats = stats
}

// Ticks returns the number of ticks run so far
func (s *Service) Ticks() int {
	return s.ticks
}

// Remaining returns the number of configurations still active
func (s *Service) Remaining() int {
	return s.table.Len()
}
