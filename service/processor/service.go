package processor

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/viant/opflow/internal/clock"
	"github.com/viant/opflow/internal/logger"
	"github.com/viant/opflow/model"
	"github.com/viant/opflow/service/dao"
	"github.com/viant/opflow/service/executor"
	"github.com/viant/opflow/service/messaging"
	"github.com/viant/opflow/tracing"
)

// Config represents processor configuration
type Config struct {
	// WorkerCount is the number of workers executing launches
	WorkerCount int

	// SaveRetries is how many times a terminal report write is attempted
	SaveRetries int

	// SaveRetryDelay is the delay between report write attempts
	SaveRetryDelay time.Duration
}

// DefaultConfig returns the default processor configuration
func DefaultConfig() Config {
	return Config{
		WorkerCount:    5,
		SaveRetries:    3,
		SaveRetryDelay: 100 * time.Millisecond,
	}
}

// Service runs launches on a fixed pool of workers
type Service struct {
	config   Config
	registry dao.Registry
	queue    messaging.Queue[model.Launch]
	executor executor.Service

	workers  []*worker
	workerWg sync.WaitGroup
	mux      sync.Mutex

	// undelivered holds reports the registry rejected; the scheduler drains
	// them so a launch never holds its slot past its end.
	undelivered []*model.Report
}

type worker struct {
	id       int
	service  *Service
	ctx      context.Context
	cancelFn context.CancelFunc
}

// New creates a new processor service
func New(options ...Option) (*Service, error) {
	s := &Service{config: DefaultConfig()}
	for _, opt := range options {
		opt(s)
	}
	if s.executor == nil {
		return nil, fmt.Errorf("executor is required")
	}
	if s.queue == nil {
		return nil, fmt.Errorf("message queue is required")
	}
	if s.registry == nil {
		return nil, fmt.Errorf("registry is required")
	}
	if s.config.WorkerCount <= 0 {
		return nil, fmt.Errorf("worker count must be > 0")
	}
	if s.config.SaveRetries <= 0 {
		s.config.SaveRetries = 1
	}
	return s, nil
}

// Start launches the worker goroutines
func (s *Service) Start(ctx context.Context) error {
	s.mux.Lock()
	defer s.mux.Unlock()
	if len(s.workers) > 0 {
		return fmt.Errorf("processor already started")
	}
	for i := 0; i < s.config.WorkerCount; i++ {
		workerCtx, cancel := context.WithCancel(ctx)
		w := &worker{id: i, service: s, ctx: workerCtx, cancelFn: cancel}
		s.workers = append(s.workers, w)
		s.workerWg.Add(1)
		go w.run()
	}
	return nil
}

// Submit hands a launch to the workers
func (s *Service) Submit(ctx context.Context, launch *model.Launch) error {
	return s.queue.Publish(ctx, launch)
}

// run processes launches from the queue
func (w *worker) run() {
	defer w.service.workerWg.Done()
	for {
		msg, err := w.service.queue.Consume(w.ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || w.ctx.Err() != nil {
				return
			}
			logger.Warn(w.ctx, "failed to consume launch", "worker", w.id, "error", err)
			time.Sleep(100 * time.Millisecond)
			continue
		}
		if msg == nil {
			continue
		}
		if pErr := w.service.processMessage(w.ctx, msg); pErr != nil {
			logger.Error(w.ctx, "failed to process launch", "worker", w.id, "error", pErr)
		}
	}
}

// processMessage executes a single launch and records its terminal report
func (s *Service) processMessage(ctx context.Context, message messaging.Message[model.Launch]) (err error) {
	launch := message.T()
	ctx, span := tracing.StartSpan(ctx, "opflow.launch "+launch.Operation, "INTERNAL")
	span.WithAttributes(map[string]string{
		"launch.id":        launch.ID,
		"launch.operation": launch.Operation,
		"launch.config":    launch.Config,
		"launch.slot":      strconv.Itoa(launch.Slot),
	})
	defer func() { tracing.EndSpan(span, err) }()

	logger.Info(ctx, "operation started", "op", launch.Operation, "cfg", launch.Config, "slot", launch.Slot)
	started := clock.Now()
	result := s.execute(ctx, launch)
	report := &model.Report{
		Key:        launch.Key(),
		LaunchID:   launch.ID,
		Slot:       launch.Slot,
		State:      result.State(),
		ExitCode:   result.ExitCode,
		Diagnostic: result.Diagnostic,
		StartedAt:  started,
		EndedAt:    clock.Now(),
	}
	// the report must land even when the run is being cancelled
	if err = s.save(context.WithoutCancel(ctx), report); err != nil {
		err = fmt.Errorf("failed to report %v: %w", launch, err)
		s.recordUndelivered(report, err)
		return message.Nack(err)
	}
	return message.Ack()
}

// recordUndelivered keeps a failed terminal report for the scheduler
func (s *Service) recordUndelivered(report *model.Report, err error) {
	undelivered := report.Clone()
	undelivered.State = model.StateError
	if undelivered.ExitCode == 0 {
		undelivered.ExitCode = executor.ExitFailure
	}
	if undelivered.Diagnostic != "" {
		undelivered.Diagnostic += "\n"
	}
	undelivered.Diagnostic += err.Error()
	s.mux.Lock()
	s.undelivered = append(s.undelivered, undelivered)
	s.mux.Unlock()
}

// Undelivered returns and clears reports that could not be saved
func (s *Service) Undelivered() []*model.Report {
	s.mux.Lock()
	defer s.mux.Unlock()
	ret := s.undelivered
	s.undelivered = nil
	return ret
}

// execute runs the launch under its deadline; a panicking executor counts as
// a failed launch.
func (s *Service) execute(ctx context.Context, launch *model.Launch) (result *executor.Result) {
	execCtx := ctx
	if launch.Timeout > 0 {
		var cancel context.CancelFunc
		execCtx, cancel = context.WithTimeout(ctx, launch.Timeout)
		defer cancel()
	}
	defer func() {
		if r := recover(); r != nil {
			result = executor.Failure(executor.ExitFailure, fmt.Sprintf("%v panicked: %v", launch, r))
		}
	}()
	result = s.executor.Execute(execCtx, launch)
	if result == nil {
		result = executor.Failure(executor.ExitFailure, fmt.Sprintf("%v: executor returned no result", launch))
	}
	if result.ExitCode != 0 && ctx.Err() == nil && errors.Is(execCtx.Err(), context.DeadlineExceeded) {
		result = executor.Timeout(launch)
	}
	return result
}

func (s *Service) save(ctx context.Context, report *model.Report) error {
	var err error
	for attempt := 0; attempt < s.config.SaveRetries; attempt++ {
		if err = s.registry.Save(ctx, report); err == nil {
			return nil
		}
		logger.Warn(ctx, "failed to save report", "op", report.Operation, "cfg", report.Config, "attempt", attempt+1, "error", err)
		time.Sleep(s.config.SaveRetryDelay)
	}
	return err
}

// Shutdown stops the workers and waits for in-flight launches to report
func (s *Service) Shutdown() {
	s.mux.Lock()
	workers := s.workers
	s.workers = nil
	s.mux.Unlock()
	for _, w := range workers {
		w.cancelFn()
	}
	s.workerWg.Wait()
}
