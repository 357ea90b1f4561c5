package opflow

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/hashicorp/go-multierror"
	"github.com/viant/afs"
	"github.com/viant/opflow/internal/clock"
	"github.com/viant/opflow/internal/idgen"
	"github.com/viant/opflow/internal/logger"
	"github.com/viant/opflow/model"
	"github.com/viant/opflow/progress"
	"github.com/viant/opflow/runtime/status"
	"github.com/viant/opflow/service/allocator"
	"github.com/viant/opflow/service/command"
	"github.com/viant/opflow/service/dao"
	fsregistry "github.com/viant/opflow/service/dao/report/fs"
	"github.com/viant/opflow/service/dao/report/memory"
	"github.com/viant/opflow/service/executor"
	"github.com/viant/opflow/service/executor/shell"
	mmemory "github.com/viant/opflow/service/messaging/memory"
	"github.com/viant/opflow/service/order"
	"github.com/viant/opflow/service/probe"
	"github.com/viant/opflow/service/processor"
	"github.com/viant/opflow/tracing"
)

// Service runs every configuration through the ordered operations
type Service struct {
	config           *Config
	probe            model.Probe
	builder          model.CommandBuilder
	orderer          model.Orderer
	executor         executor.Service
	registry         dao.Registry
	logger           *slog.Logger
	progressListener func(progress.Progress)
	closers          []io.Closer
}

// New creates a service for config.  Collaborators not supplied through
// options are derived from the config: a marker probe, a template command
// builder, the shell executor and the configured registry.
func New(config *Config, options ...Option) (*Service, error) {
	if config == nil {
		config = DefaultConfig()
	}
	config.Init()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	ret := &Service{config: config}
	for _, opt := range options {
		opt(ret)
	}
	if err := ret.ensureBaseSetup(); err != nil {
		_ = ret.Close()
		return nil, err
	}
	return ret, nil
}

func (s *Service) ensureBaseSetup() error {
	if s.logger == nil {
		aLogger, closer, err := logger.New(s.config.Log)
		if err != nil {
			return fmt.Errorf("failed to create logger: %w", err)
		}
		s.logger = aLogger
		s.closers = append(s.closers, closer)
	}
	if err := tracing.InitWithConfig(&s.config.Tracing); err != nil {
		return fmt.Errorf("failed to init tracing: %w", err)
	}
	if s.probe == nil {
		markers := make(map[string]string, len(s.config.Operations))
		for _, op := range s.config.Operations {
			markers[op.Name] = op.Marker
		}
		s.probe = probe.NewMarker(afs.New(), markers)
	}
	if s.builder == nil {
		templates := make(map[string]command.Template, len(s.config.Operations))
		for _, op := range s.config.Operations {
			templates[op.Name] = command.Template{Command: op.Command, Timeout: op.Timeout}
		}
		s.builder = command.New(templates,
			command.WithHost(s.config.Shell.Host),
			command.WithWorkdir(s.config.Workdir),
			command.WithEnv(s.config.Env))
	}
	if s.orderer == nil {
		orderer, err := order.New(s.config.Order)
		if err != nil {
			return err
		}
		s.orderer = orderer
	}
	if s.executor == nil {
		shellExecutor := shell.New(s.config.Shell)
		s.executor = shellExecutor
		s.closers = append(s.closers, shellExecutor)
	}
	return nil
}

func (s *Service) ensureRegistry(ctx context.Context) error {
	if s.registry != nil {
		return nil
	}
	switch s.config.Registry.Kind {
	case RegistryFs:
		registry, err := fsregistry.New(ctx, afs.New(), s.config.Registry.URL)
		if err != nil {
			return fmt.Errorf("failed to create registry: %w", err)
		}
		s.registry = registry
	default:
		s.registry = memory.New()
	}
	return nil
}

// Run processes all configurations and returns the run summary.  It returns
// an error, alongside the summary gathered so far, when ctx is cancelled or
// when the scheduler hits an unrecoverable condition: an unsupported
// operation or an internal consistency violation.
func (s *Service) Run(ctx context.Context) (*Summary, error) {
	started := clock.Now()
	ctx = logger.WithLogger(ctx, s.logger)
	ctx, tracker := progress.WithNewTracker(ctx, idgen.New(), s.progressListener)
	if err := s.ensureRegistry(ctx); err != nil {
		return nil, err
	}

	operations := s.config.Operations
	table := status.New(model.OperationNames(operations), s.config.ErrorTolerance)
	if err := table.Initialize(ctx, s.config.Configurations, s.probe); err != nil {
		return nil, fmt.Errorf("failed to initialize status table: %w", err)
	}
	summary := newSummary(table.Len())
	tracker.Update(progress.Delta{Submitted: table.Len()})
	logger.Info(ctx, "run started", "run", tracker.RunID, "operations", len(operations), "configurations", table.Len(), "tolerance", table.Tolerance())

	workers := 0
	for _, op := range operations {
		workers += op.MaxParallel
	}
	// one buffered message per slot, so that dispatch never blocks the scheduler
	queue := mmemory.NewQueue[model.Launch](mmemory.Config{QueueBuffer: workers, DeadLetter: true})
	proc, err := processor.New(
		processor.WithExecutor(s.executor),
		processor.WithRegistry(s.registry),
		processor.WithMessageQueue(queue),
		processor.WithWorkers(workers))
	if err != nil {
		return nil, err
	}
	procCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	if err = proc.Start(procCtx); err != nil {
		return nil, err
	}
	defer proc.Shutdown()

	scheduler, err := allocator.New(table, operations,
		allocator.WithConfig(allocator.Config{PollInterval: s.config.PollInterval}),
		allocator.WithRegistry(s.registry),
		allocator.WithCommandBuilder(s.builder),
		allocator.WithOrderer(s.orderer),
		allocator.WithSubmitter(proc),
		allocator.WithUndelivered(proc),
		allocator.WithListener(func(ctx context.Context, terminal *status.Terminal) {
			summary.record(terminal)
			switch terminal.Kind {
			case status.TerminalCompleted:
				progress.UpdateCtx(ctx, progress.Delta{Completed: 1})
			case status.TerminalFailedOut:
				progress.UpdateCtx(ctx, progress.Delta{FailedOut: 1})
			}
		}),
	)
	if err != nil {
		return nil, err
	}
	err = scheduler.Run(ctx)
	summary.Remaining = scheduler.Remaining()
	summary.Elapsed = clock.Since(started)
	summary.Log(ctx)
	if err != nil {
		var consistency *status.ConsistencyError
		if errors.As(err, &consistency) {
			logger.Error(ctx, "scheduling aborted", "error", err, "stack", consistency.ErrorStack())
		}
		return summary, err
	}
	return summary, nil
}

// Close releases the log file and executor sessions
func (s *Service) Close() error {
	var result *multierror.Error
	for _, closer := range s.closers {
		if closer == nil {
			continue
		}
		if err := closer.Close(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	s.closers = nil
	return result.ErrorOrNil()
}
