package allocator

import (
	"context"
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viant/opflow/model"
	"github.com/viant/opflow/runtime/status"
	"github.com/viant/opflow/service/command"
	"github.com/viant/opflow/service/dao"
	"github.com/viant/opflow/service/dao/report/memory"
	"github.com/viant/opflow/service/order"
)

// fakeWorker reports the outcome of a launch synchronously on submit.
type fakeWorker struct {
	registry dao.Registry
	exitCode func(launch *model.Launch) int
	hold     bool
	launches []*model.Launch
}

func (f *fakeWorker) Submit(ctx context.Context, launch *model.Launch) error {
	f.launches = append(f.launches, launch)
	if f.hold {
		return nil
	}
	exitCode := 0
	if f.exitCode != nil {
		exitCode = f.exitCode(launch)
	}
	state := model.StateSuccess
	if exitCode != 0 {
		state = model.StateError
	}
	return f.registry.Save(ctx, &model.Report{
		Key:      launch.Key(),
		LaunchID: launch.ID,
		Slot:     launch.Slot,
		State:    state,
		ExitCode: exitCode,
	})
}

func (f *fakeWorker) keys() []string {
	var ret []string
	for _, launch := range f.launches {
		ret = append(ret, launch.Key().String())
	}
	return ret
}

type fixture struct {
	table     *status.Table
	registry  *memory.Service
	worker    *fakeWorker
	scheduler *Service
	terminals []*status.Terminal
}

func newFixture(t *testing.T, operations []*model.Operation, configs []string, tolerance int, orderer model.Orderer, exitCode func(*model.Launch) int) *fixture {
	t.Helper()
	ret := &fixture{registry: memory.New()}
	ret.table = status.New(model.OperationNames(operations), tolerance)
	require.NoError(t, ret.table.Initialize(context.Background(), configs, model.NeverDone))
	ret.worker = &fakeWorker{registry: ret.registry, exitCode: exitCode}
	templates := map[string]command.Template{}
	for _, op := range operations {
		templates[op.Name] = command.Template{Command: "echo ${operation} ${config}"}
	}
	var err error
	ret.scheduler, err = New(ret.table, operations,
		WithConfig(Config{PollInterval: time.Millisecond}),
		WithRegistry(ret.registry),
		WithCommandBuilder(command.New(templates)),
		WithOrderer(orderer),
		WithSubmitter(ret.worker),
		WithListener(func(_ context.Context, terminal *status.Terminal) {
			ret.terminals = append(ret.terminals, terminal)
		}),
	)
	require.NoError(t, err)
	return ret
}

func (f *fixture) byKind(kind status.TerminalKind) []string {
	var ret []string
	for _, terminal := range f.terminals {
		if terminal.Kind == kind {
			ret = append(ret, terminal.Config)
		}
	}
	return ret
}

func TestOccupancy(t *testing.T) {
	testCases := []struct {
		name        string
		maxParallel int
		running     map[string]int
		expectFree  []int
		expectErr   bool
	}{
		{name: "all free", maxParallel: 3, expectFree: []int{0, 1, 2}},
		{name: "middle slot taken", maxParallel: 3, running: map[string]int{"x": 1}, expectFree: []int{0, 2}},
		{name: "all taken", maxParallel: 2, running: map[string]int{"x": 0, "y": 1}},
		{name: "two configurations on one slot", maxParallel: 2, running: map[string]int{"x": 1, "y": 1}, expectErr: true},
		{name: "slot beyond max parallel", maxParallel: 2, running: map[string]int{"x": 2}, expectErr: true},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			table := status.New([]string{"a"}, 1)
			require.NoError(t, table.Initialize(context.Background(), []string{"x", "y", "z"}, nil))
			for cfg, slot := range tc.running {
				require.NoError(t, table.MarkRunning("a", cfg, slot))
			}
			slots, err := Occupancy(table, "a", tc.maxParallel)
			if tc.expectErr {
				assert.True(t, status.IsConsistency(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.expectFree, slots.Free)
			assert.Equal(t, len(tc.running), len(slots.Running))
			for cfg, slot := range tc.running {
				assert.Equal(t, cfg, slots.Running[slot])
			}
		})
	}
}

func TestService_Run(t *testing.T) {
	failing := func(op string) func(*model.Launch) int {
		return func(launch *model.Launch) int {
			if launch.Operation == op {
				return 3
			}
			return 0
		}
	}
	testCases := []struct {
		name            string
		operations      []*model.Operation
		configs         []string
		tolerance       int
		orderer         string
		exitCode        func(*model.Launch) int
		expectCompleted []string
		expectFailed    []string
		expectLaunches  []string
	}{
		{
			name:            "single operation, two slots, all succeed",
			operations:      []*model.Operation{{Name: "run", MaxParallel: 2}},
			configs:         []string{"1", "2", "3"},
			tolerance:       1,
			expectCompleted: []string{"1", "2", "3"},
			expectLaunches:  []string{"run/1", "run/2", "run/3"},
		},
		{
			name:           "first operation always fails",
			operations:     []*model.Operation{{Name: "a", MaxParallel: 1}, {Name: "b", MaxParallel: 1}},
			configs:        []string{"x"},
			tolerance:      2,
			exitCode:       failing("a"),
			expectFailed:   []string{"x"},
			expectLaunches: []string{"a/x", "a/x"},
		},
		{
			name:            "single slot goes to the highest numeric id",
			operations:      []*model.Operation{{Name: "run", MaxParallel: 1}},
			configs:         []string{"1", "2"},
			tolerance:       1,
			orderer:         order.NameNumericDesc,
			expectCompleted: []string{"2", "1"},
			expectLaunches:  []string{"run/2", "run/1"},
		},
		{
			name:            "second operation fails for one configuration",
			operations:      []*model.Operation{{Name: "a", MaxParallel: 2}, {Name: "b", MaxParallel: 1}},
			configs:         []string{"x", "y"},
			tolerance:       1,
			exitCode:        func(l *model.Launch) int { return map[bool]int{true: 1}[l.Operation == "b" && l.Config == "y"] },
			expectCompleted: []string{"x"},
			expectFailed:    []string{"y"},
			expectLaunches:  []string{"a/x", "a/y", "b/x", "b/y"},
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			orderer, err := order.New(tc.orderer)
			require.NoError(t, err)
			f := newFixture(t, tc.operations, tc.configs, tc.tolerance, orderer, tc.exitCode)
			require.NoError(t, f.scheduler.Run(context.Background()))
			assert.Equal(t, tc.expectCompleted, f.byKind(status.TerminalCompleted))
			assert.Equal(t, tc.expectFailed, f.byKind(status.TerminalFailedOut))
			assert.Equal(t, tc.expectLaunches, f.worker.keys())
			assert.Equal(t, 0, f.scheduler.Remaining())
			reports, err := f.registry.List(context.Background())
			require.NoError(t, err)
			assert.Empty(t, reports)
		})
	}
}

func TestService_Tick_SameTickCascade(t *testing.T) {
	operations := []*model.Operation{{Name: "a", MaxParallel: 1}, {Name: "b", MaxParallel: 1}}
	f := newFixture(t, operations, []string{"x"}, 1, nil, nil)
	ctx := context.Background()

	require.NoError(t, f.scheduler.Tick(ctx))
	assert.Equal(t, []string{"a/x"}, f.worker.keys())

	require.NoError(t, f.scheduler.Tick(ctx))
	assert.Equal(t, []string{"a/x", "b/x"}, f.worker.keys())
	vector, ok := f.table.Vector("x")
	require.True(t, ok)
	assert.True(t, vector[0].Finished)
	assert.Equal(t, 0, vector[1].Slot)

	require.NoError(t, f.scheduler.Tick(ctx))
	assert.Equal(t, []string{"x"}, f.byKind(status.TerminalCompleted))
	assert.Equal(t, 0, f.table.Len())
}

func TestService_Tick_FailedOutDiagnostic(t *testing.T) {
	operations := []*model.Operation{{Name: "a", MaxParallel: 1}}
	f := newFixture(t, operations, []string{"x"}, 1, nil, nil)
	f.worker.hold = true
	ctx := context.Background()

	require.NoError(t, f.scheduler.Tick(ctx))
	require.Len(t, f.worker.launches, 1)
	running, err := f.registry.Load(ctx, model.Key{Operation: "a", Config: "x"})
	require.NoError(t, err)
	assert.Equal(t, model.StateRunning, running.State)

	launch := f.worker.launches[0]
	require.NoError(t, f.registry.Save(ctx, &model.Report{Key: launch.Key(), LaunchID: launch.ID, Slot: launch.Slot, State: model.StateError, Diagnostic: "disk full"}))
	require.NoError(t, f.scheduler.Tick(ctx))
	require.Len(t, f.terminals, 1)
	assert.Equal(t, status.TerminalFailedOut, f.terminals[0].Kind)
	assert.Equal(t, "a", f.terminals[0].Operation)
	assert.Equal(t, "disk full", f.terminals[0].Diagnostic)
}

// undeliveredReports hands out reports once
type undeliveredReports struct {
	reports []*model.Report
}

func (u *undeliveredReports) Undelivered() []*model.Report {
	ret := u.reports
	u.reports = nil
	return ret
}

func TestService_Tick_UndeliveredReport(t *testing.T) {
	testCases := []struct {
		name           string
		launchID       func(launch *model.Launch) string
		expectFailed   []string
		expectLaunches []string
	}{
		{
			name:           "current launch releases its slot",
			launchID:       func(launch *model.Launch) string { return launch.ID },
			expectFailed:   []string{"x"},
			expectLaunches: []string{"a/x", "a/y"},
		},
		{
			name:           "earlier launch is ignored",
			launchID:       func(*model.Launch) string { return "previous-run" },
			expectLaunches: []string{"a/x"},
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			operations := []*model.Operation{{Name: "a", MaxParallel: 1}}
			f := newFixture(t, operations, []string{"x", "y"}, 1, nil, nil)
			f.worker.hold = true
			source := &undeliveredReports{}
			WithUndelivered(source)(f.scheduler)
			ctx := context.Background()

			require.NoError(t, f.scheduler.Tick(ctx))
			launch := f.worker.launches[0]
			source.reports = []*model.Report{{Key: launch.Key(), LaunchID: tc.launchID(launch), Slot: launch.Slot, State: model.StateError, ExitCode: 1, Diagnostic: "storage unavailable"}}
			require.NoError(t, f.scheduler.Tick(ctx))
			assert.Equal(t, tc.expectFailed, f.byKind(status.TerminalFailedOut))
			assert.Equal(t, tc.expectLaunches, f.worker.keys())
			if len(tc.expectFailed) > 0 {
				assert.Contains(t, f.terminals[0].Diagnostic, "storage unavailable")
			}
		})
	}
}

func TestService_Run_PurgesEarlierEntries(t *testing.T) {
	operations := []*model.Operation{{Name: "a", MaxParallel: 1}}
	f := newFixture(t, operations, []string{"x"}, 1, nil, nil)
	ctx := context.Background()
	require.NoError(t, f.registry.Save(ctx, &model.Report{Key: model.Key{Operation: "a", Config: "x"}, LaunchID: "previous-run", State: model.StateSuccess}))
	require.NoError(t, f.registry.Save(ctx, &model.Report{Key: model.Key{Operation: "a", Config: "gone"}, LaunchID: "previous-run", State: model.StateRunning}))
	require.NoError(t, f.registry.Save(ctx, &model.Report{Key: model.Key{Operation: "other", Config: "x"}, LaunchID: "elsewhere", State: model.StateRunning}))

	require.NoError(t, f.scheduler.Run(ctx))
	assert.Equal(t, []string{"a/x"}, f.worker.keys())
	assert.Equal(t, []string{"x"}, f.byKind(status.TerminalCompleted))

	reports, err := f.registry.List(ctx)
	require.NoError(t, err)
	require.Len(t, reports, 1)
	assert.Equal(t, model.Key{Operation: "other", Config: "x"}, reports[0].Key)
}

func TestService_Tick_StaleReportIgnored(t *testing.T) {
	operations := []*model.Operation{{Name: "a", MaxParallel: 1}}
	f := newFixture(t, operations, []string{"x"}, 1, nil, nil)
	f.worker.hold = true
	ctx := context.Background()

	require.NoError(t, f.scheduler.Tick(ctx))
	launch := f.worker.launches[0]
	require.NoError(t, f.registry.Save(ctx, &model.Report{Key: launch.Key(), LaunchID: "previous-run", Slot: launch.Slot, State: model.StateSuccess}))
	require.NoError(t, f.scheduler.Tick(ctx))
	assert.Empty(t, f.terminals)
	assert.Equal(t, 1, f.table.Len())
}

func TestService_Tick_MissingReportKeepsSlot(t *testing.T) {
	operations := []*model.Operation{{Name: "a", MaxParallel: 1}}
	f := newFixture(t, operations, []string{"x", "y"}, 1, nil, nil)
	f.worker.hold = true
	ctx := context.Background()

	require.NoError(t, f.scheduler.Tick(ctx))
	require.NoError(t, f.registry.Delete(ctx, model.Key{Operation: "a", Config: "x"}))
	require.NoError(t, f.scheduler.Tick(ctx))
	assert.Equal(t, []string{"a/x"}, f.worker.keys())
	assert.Equal(t, []status.Assignment{{Config: "x", Slot: 0}}, f.table.Running("a"))
}

func TestService_Run_UnsupportedOperation(t *testing.T) {
	table := status.New([]string{"a"}, 1)
	require.NoError(t, table.Initialize(context.Background(), []string{"x"}, nil))
	registry := memory.New()
	scheduler, err := New(table, []*model.Operation{{Name: "a", MaxParallel: 1}},
		WithRegistry(registry),
		WithCommandBuilder(command.New(nil)),
		WithSubmitter(&fakeWorker{registry: registry}),
	)
	require.NoError(t, err)
	err = scheduler.Run(context.Background())
	assert.True(t, errors.Is(err, model.ErrUnsupportedOperation))
}

func TestService_Run_Cancelled(t *testing.T) {
	operations := []*model.Operation{{Name: "a", MaxParallel: 1}}
	f := newFixture(t, operations, []string{"x"}, 1, nil, nil)
	f.worker.hold = true
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := f.scheduler.Run(ctx)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.Equal(t, 1, f.scheduler.Remaining())
	assert.Greater(t, f.scheduler.Ticks(), 1)
}

func TestNew_Validation(t *testing.T) {
	registry := memory.New()
	worker := &fakeWorker{registry: registry}
	builder := command.New(nil)
	testCases := []struct {
		name       string
		operations []*model.Operation
		options    []Option
	}{
		{name: "missing registry", operations: []*model.Operation{{Name: "a", MaxParallel: 1}}, options: []Option{WithCommandBuilder(builder), WithSubmitter(worker)}},
		{name: "missing builder", operations: []*model.Operation{{Name: "a", MaxParallel: 1}}, options: []Option{WithRegistry(registry), WithSubmitter(worker)}},
		{name: "missing submitter", operations: []*model.Operation{{Name: "a", MaxParallel: 1}}, options: []Option{WithRegistry(registry), WithCommandBuilder(builder)}},
		{name: "zero max parallel", operations: []*model.Operation{{Name: "a"}}, options: []Option{WithRegistry(registry), WithCommandBuilder(builder), WithSubmitter(worker)}},
		{name: "operation mismatch", operations: []*model.Operation{{Name: "b", MaxParallel: 1}}, options: []Option{WithRegistry(registry), WithCommandBuilder(builder), WithSubmitter(worker)}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := New(status.New([]string{"a"}, 1), tc.operations, tc.options...)
			assert.Error(t, err)
		})
	}
}

// TestService_RandomOutcomes checks slot caps and terminal accounting under
// random worker outcomes.
func TestService_RandomOutcomes(t *testing.T) {
	rnd := rand.New(rand.NewSource(7))
	operations := []*model.Operation{{Name: "a", MaxParallel: 2}, {Name: "b", MaxParallel: 3}, {Name: "c", MaxParallel: 1}}
	configs := []string{"1", "2", "3", "4", "5", "6", "7", "8"}
	f := newFixture(t, operations, configs, 3, model.OrdererFunc(order.Reverse), nil)
	f.worker.hold = true
	ctx := context.Background()

	reported := 0
	for i := 0; i < 500 && f.table.Len() > 0; i++ {
		require.NoError(t, f.scheduler.Tick(ctx))
		for _, op := range operations {
			assert.LessOrEqual(t, len(f.table.Running(op.Name)), op.MaxParallel)
		}
		for ; reported < len(f.worker.launches); reported++ {
			launch := f.worker.launches[reported]
			state, exitCode := model.StateSuccess, 0
			if rnd.Intn(3) == 0 {
				state, exitCode = model.StateError, 1
			}
			require.NoError(t, f.registry.Save(ctx, &model.Report{Key: launch.Key(), LaunchID: launch.ID, Slot: launch.Slot, State: state, ExitCode: exitCode}))
		}
	}
	assert.Equal(t, 0, f.table.Len())
	assert.Len(t, f.terminals, len(configs))
	seen := map[string]bool{}
	for _, terminal := range f.terminals {
		assert.False(t, seen[terminal.Config])
		seen[terminal.Config] = true
		if terminal.Kind == status.TerminalFailedOut {
			assert.Equal(t, 3, terminal.Attempts)
		}
	}
}
