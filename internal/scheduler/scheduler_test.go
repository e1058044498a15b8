package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	agentguildv1 "github.com/kazz187/agentguild/api/agentguild/v1"
	"github.com/kazz187/agentguild/internal/agent"
	"github.com/kazz187/agentguild/internal/eventbus"
	"github.com/kazz187/agentguild/internal/task"
	"github.com/kazz187/agentguild/internal/task/repositoryimpl"
	"github.com/kazz187/agentguild/pkg/cerr"
	"github.com/kazz187/agentguild/pkg/storage"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

type fakeAgents struct {
	mu     sync.Mutex
	agents map[string]*agent.Agent
}

func (f *fakeAgents) Get(_ context.Context, id string) (*agent.Agent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.agents[id]
	if !ok {
		return nil, cerr.NewError(cerr.NotFound, "agent not found", nil)
	}
	return a.Clone(), nil
}

func (f *fakeAgents) setStatus(id string, st agent.Status) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.agents[id].Status = st
}

type fakeDispatcher struct {
	mu      sync.Mutex
	healthy bool
	calls   []string
	steps   []*agentguildv1.Step
	outcome *agentguildv1.TaskOutcome
	err     error
	panics  bool
	// When set, ExecuteTask waits for it to be closed.
	block chan struct{}
}

func (d *fakeDispatcher) HealthCheck(context.Context, string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.healthy
}

func (d *fakeDispatcher) ExecuteTask(ctx context.Context, _ string, req *agentguildv1.ExecuteTaskRequest, onStep func(*agentguildv1.Step) error) (*agentguildv1.TaskOutcome, error) {
	d.mu.Lock()
	d.calls = append(d.calls, req.TaskID)
	block, steps, outcome, err, panics := d.block, d.steps, d.outcome, d.err, d.panics
	d.mu.Unlock()

	if panics {
		panic("runtime exploded")
	}
	for _, st := range steps {
		if err := onStep(st); err != nil {
			return nil, err
		}
	}
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		d.mu.Lock()
		err = d.err
		d.mu.Unlock()
	}
	if err != nil {
		return nil, err
	}
	if outcome == nil {
		outcome = &agentguildv1.TaskOutcome{Succeeded: true, Result: "done: " + req.Prompt}
	}
	return outcome, nil
}

func (d *fakeDispatcher) setErr(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.err = err
}

func (d *fakeDispatcher) callCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.calls)
}

type recordingHook struct {
	mu       sync.Mutex
	finished []*task.Task
}

func (h *recordingHook) OnTaskFinished(_ context.Context, t *task.Task) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.finished = append(h.finished, t)
}

type fixture struct {
	sched  *Scheduler
	tasks  task.Repository
	traj   task.TrajectoryRepository
	agents *fakeAgents
	disp   *fakeDispatcher
	bus    *eventbus.Bus
	clock  *fakeClock
	hook   *recordingHook
}

var t0 = time.Date(2026, 3, 1, 10, 2, 0, 0, time.UTC)

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	if cfg.MaxConcurrentPerAgent == 0 {
		cfg.MaxConcurrentPerAgent = 4
	}
	cfg.Location = time.UTC
	cfg.TickInterval = time.Minute

	mem := storage.NewMemoryStorage()
	bus, err := eventbus.New(context.Background(), eventbus.NewMemoryStore(1000))
	require.NoError(t, err)
	f := &fixture{
		tasks: repositoryimpl.NewYAMLRepository(mem),
		traj:  repositoryimpl.NewTrajectoryRepository(mem),
		agents: &fakeAgents{agents: map[string]*agent.Agent{
			"agent-a": {ID: "agent-a", ProjectID: "p1", Name: "a", Status: agent.StatusRunning},
			"agent-b": {ID: "agent-b", ProjectID: "p1", Name: "b", Status: agent.StatusRunning},
		}},
		disp:  &fakeDispatcher{healthy: true},
		bus:   bus,
		clock: &fakeClock{now: t0},
		hook:  &recordingHook{},
	}
	f.sched = New(f.tasks, f.traj, f.agents, f.disp, bus, cfg,
		WithClock(f.clock.Now),
		WithCompletionHook(f.hook),
	)
	t.Cleanup(f.sched.Close)
	return f
}

func (f *fixture) get(t *testing.T, id string) *task.Task {
	t.Helper()
	tk, err := f.tasks.Get(context.Background(), id)
	require.NoError(t, err)
	return tk
}

func (f *fixture) eventTypes(t *testing.T, taskID string) []string {
	t.Helper()
	events, err := f.bus.Query(context.Background(), eventbus.Filter{TaskID: taskID, Category: eventbus.CategoryTask})
	require.NoError(t, err)
	types := make([]string, len(events))
	for i, e := range events {
		types[i] = e.Type
	}
	return types
}

func (f *fixture) count(t *testing.T, taskID, eventType string) int {
	t.Helper()
	n := 0
	for _, typ := range f.eventTypes(t, taskID) {
		if typ == eventType {
			n++
		}
	}
	return n
}

func once(prompt string) task.Definition {
	return task.Definition{Prompt: prompt, Type: task.TypeOnce}
}

func TestRecurringTaskWaitsForAgentThenAdvancesFiveMinutes(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Config{})
	f.agents.setStatus("agent-a", agent.StatusStopped)

	tk, err := f.sched.Create(ctx, "agent-a", task.Definition{
		Prompt:     "poll the feed",
		Type:       task.TypeRecurring,
		Recurrence: "*/5 * * * *",
	})
	require.NoError(t, err)
	due := time.Date(2026, 3, 1, 10, 5, 0, 0, time.UTC)
	require.NotNil(t, tk.NextRun)
	require.True(t, due.Equal(*tk.NextRun))

	f.clock.Set(due.Add(30 * time.Second))
	require.NoError(t, f.sched.Tick(ctx))
	f.sched.Wait()

	got := f.get(t, tk.ID)
	assert.Equal(t, task.StatusPending, got.Status)
	assert.True(t, due.Equal(*got.NextRun))
	assert.Zero(t, f.disp.callCount())

	f.agents.setStatus("agent-a", agent.StatusRunning)
	require.NoError(t, f.sched.Tick(ctx))
	f.sched.Wait()

	got = f.get(t, tk.ID)
	assert.Equal(t, task.StatusCompleted, got.Status)
	assert.Equal(t, "done: poll the feed", got.Result)
	assert.Equal(t, 1, got.RunCount)
	assert.True(t, due.Add(5*time.Minute).Equal(*got.NextRun), "next run %s", got.NextRun)
	assert.Empty(t, got.ActiveRunID)
	assert.Equal(t, []string{eventbus.TypeTaskCreated, eventbus.TypeTaskRunning, eventbus.TypeTaskCompleted}, f.eventTypes(t, tk.ID))
}

func TestRecurringTaskReschedulesAfterFailure(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Config{})
	f.disp.outcome = &agentguildv1.TaskOutcome{Error: "model refused"}

	tk, err := f.sched.Create(ctx, "agent-a", task.Definition{Prompt: "p", Type: task.TypeRecurring, Recurrence: "0 * * * *"})
	require.NoError(t, err)

	f.clock.Set(time.Date(2026, 3, 1, 11, 0, 10, 0, time.UTC))
	require.NoError(t, f.sched.Tick(ctx))
	f.sched.Wait()

	got := f.get(t, tk.ID)
	assert.Equal(t, task.StatusFailed, got.Status)
	assert.Equal(t, "model refused", got.Error)
	assert.True(t, time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC).Equal(*got.NextRun))

	// Failed recurring tasks are due again at the next occurrence.
	f.clock.Set(time.Date(2026, 3, 1, 12, 0, 1, 0, time.UTC))
	require.NoError(t, f.sched.Tick(ctx))
	f.sched.Wait()
	assert.Equal(t, 2, f.get(t, tk.ID).RunCount)
}

func TestOneTimeFailureIsTerminal(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Config{})
	f.disp.outcome = &agentguildv1.TaskOutcome{Error: "boom"}

	tk, err := f.sched.Create(ctx, "agent-a", task.Definition{Prompt: "p", Type: task.TypeOnce, ExecuteAt: &t0})
	require.NoError(t, err)
	require.NoError(t, f.sched.Tick(ctx))
	f.sched.Wait()
	assert.Equal(t, task.StatusFailed, f.get(t, tk.ID).Status)

	require.NoError(t, f.sched.Tick(ctx))
	f.sched.Wait()
	assert.Equal(t, 1, f.disp.callCount())
}

func TestOneTimeWithoutExecuteAtIsManualOnly(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Config{})

	tk, err := f.sched.Create(ctx, "agent-a", once("manual"))
	require.NoError(t, err)
	require.NoError(t, f.sched.Tick(ctx))
	f.sched.Wait()
	assert.Zero(t, f.disp.callCount())

	done, err := f.sched.Execute(ctx, tk.ID)
	require.NoError(t, err)
	assert.Equal(t, task.StatusCompleted, done.Status)
}

func TestConcurrentExecuteRunsOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Config{})
	f.disp.block = make(chan struct{})

	tk, err := f.sched.Create(ctx, "agent-a", once("only once"))
	require.NoError(t, err)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		started   int
		conflicts int
	)
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.sched.Dispatch(ctx, tk.ID)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				started++
			} else if cerr.IsKind(err, cerr.KindConflict) {
				conflicts++
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, started)
	assert.Equal(t, 9, conflicts)
	assert.Equal(t, task.StatusRunning, f.get(t, tk.ID).Status)

	_, err = f.sched.Dispatch(ctx, tk.ID)
	assert.True(t, cerr.IsKind(err, cerr.KindConflict))

	close(f.disp.block)
	f.sched.Wait()
	assert.Equal(t, 1, f.disp.callCount())
	assert.Equal(t, task.StatusCompleted, f.get(t, tk.ID).Status)
}

func TestUnreachableAgentLeavesTaskPending(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Config{})
	f.disp.healthy = false

	tk, err := f.sched.Create(ctx, "agent-a", task.Definition{Prompt: "p", Type: task.TypeRecurring, Recurrence: "*/5 * * * *"})
	require.NoError(t, err)
	nextRun := *tk.NextRun

	_, err = f.sched.Execute(ctx, tk.ID)
	require.Error(t, err)
	assert.True(t, cerr.IsKind(err, cerr.KindUnreachable))

	f.clock.Set(nextRun.Add(time.Minute))
	require.NoError(t, f.sched.Tick(ctx))
	f.sched.Wait()

	got := f.get(t, tk.ID)
	assert.Equal(t, task.StatusPending, got.Status)
	assert.True(t, nextRun.Equal(*got.NextRun))
	assert.Zero(t, got.RunCount)
	assert.Zero(t, f.disp.callCount())
	// Only the manual execution announces the requeue; ticks retry quietly.
	assert.Equal(t, 1, f.count(t, tk.ID, eventbus.TypeTaskRequeued))
	assert.NotContains(t, f.eventTypes(t, tk.ID), eventbus.TypeTaskRunning)

	for i := range 3 {
		f.clock.Set(nextRun.Add(time.Duration(i+2) * time.Minute))
		require.NoError(t, f.sched.Tick(ctx))
	}
	f.sched.Wait()
	assert.Equal(t, 1, f.count(t, tk.ID, eventbus.TypeTaskRequeued))
}

func TestStoppingAgentLeavesRunToFinish(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus task.Status
		wantError  string
		wantEvent  string
	}{
		{name: "call returns", wantStatus: task.StatusCompleted, wantEvent: eventbus.TypeTaskCompleted},
		{name: "connection lost", err: cerr.Unreachable("stream closed", nil), wantStatus: task.StatusFailed, wantError: "agent became unreachable", wantEvent: eventbus.TypeTaskFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			f := newFixture(t, Config{})
			f.disp.block = make(chan struct{})

			tk, err := f.sched.Create(ctx, "agent-a", task.Definition{Prompt: "p", Type: task.TypeOnce, ExecuteAt: &t0})
			require.NoError(t, err)
			require.NoError(t, f.sched.Tick(ctx))
			require.Equal(t, task.StatusRunning, f.get(t, tk.ID).Status)

			for _, st := range []agent.Status{agent.StatusStopping, agent.StatusStopped} {
				f.agents.setStatus("agent-a", st)
				require.NoError(t, f.sched.Tick(ctx))
				got := f.get(t, tk.ID)
				assert.Equal(t, task.StatusRunning, got.Status, "agent %s", st)
				assert.NotEmpty(t, got.ActiveRunID)
			}

			f.disp.setErr(tt.err)
			close(f.disp.block)
			f.sched.Wait()

			got := f.get(t, tk.ID)
			assert.Equal(t, tt.wantStatus, got.Status)
			assert.Equal(t, tt.wantError, got.Error)
			assert.Equal(t, 1, f.disp.callCount())
			assert.Equal(t, []string{eventbus.TypeTaskCreated, eventbus.TypeTaskRunning, tt.wantEvent}, f.eventTypes(t, tk.ID))
		})
	}
}

func TestReconcileFailsOrphanedRuns(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Config{})

	executed := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	orphan := &task.Task{
		ID:          "orphan",
		AgentID:     "agent-a",
		ProjectID:   "p1",
		Prompt:      "poll the feed",
		Type:        task.TypeRecurring,
		Recurrence:  "*/5 * * * *",
		Status:      task.StatusRunning,
		Source:      task.SourceLocal,
		ActiveRunID: "r1",
		ExecutedAt:  &executed,
		NextRun:     &executed,
		RunCount:    1,
		CreatedAt:   executed,
		UpdatedAt:   executed,
	}
	require.NoError(t, f.tasks.Create(ctx, orphan))

	// A run started by this process is left alone.
	f.disp.block = make(chan struct{})
	live, err := f.sched.Create(ctx, "agent-b", once("live"))
	require.NoError(t, err)
	_, err = f.sched.Dispatch(ctx, live.ID)
	require.NoError(t, err)

	require.NoError(t, f.sched.Reconcile(ctx))

	got := f.get(t, orphan.ID)
	assert.Equal(t, task.StatusFailed, got.Status)
	assert.Equal(t, "agent became unreachable", got.Error)
	assert.Empty(t, got.ActiveRunID)
	require.NotNil(t, got.CompletedAt)
	require.NotNil(t, got.NextRun)
	assert.True(t, time.Date(2026, 3, 1, 10, 5, 0, 0, time.UTC).Equal(*got.NextRun), "next run %s", got.NextRun)

	events, err := f.bus.Query(ctx, eventbus.Filter{TaskID: orphan.ID, Type: eventbus.TypeTaskFailed})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "r1", events[0].Data["run_id"])

	require.Len(t, f.hook.finished, 1)
	assert.Equal(t, "r1", f.hook.finished[0].ActiveRunID)

	assert.Equal(t, task.StatusRunning, f.get(t, live.ID).Status)
	close(f.disp.block)
	f.sched.Wait()
	assert.Equal(t, task.StatusCompleted, f.get(t, live.ID).Status)

	require.NoError(t, f.sched.DeleteAgentTasks(ctx, "agent-a"))
	_, err = f.tasks.Get(ctx, orphan.ID)
	assert.True(t, cerr.IsCode(err, cerr.NotFound))
}

func TestConnectionLostMidRunMarksFailed(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Config{})
	f.disp.err = cerr.Unreachable("stream closed", nil)

	tk, err := f.sched.Create(ctx, "agent-a", once("p"))
	require.NoError(t, err)
	done, err := f.sched.Execute(ctx, tk.ID)
	require.NoError(t, err)
	assert.Equal(t, task.StatusFailed, done.Status)
	assert.Equal(t, "agent became unreachable", done.Error)
}

func TestPanickingRuntimeFailsTaskOnly(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Config{})
	f.disp.panics = true

	tk, err := f.sched.Create(ctx, "agent-a", task.Definition{Prompt: "p", Type: task.TypeOnce, ExecuteAt: &t0})
	require.NoError(t, err)
	require.NoError(t, f.sched.Tick(ctx))
	f.sched.Wait()

	got := f.get(t, tk.ID)
	assert.Equal(t, task.StatusFailed, got.Status)
	assert.Contains(t, got.Error, "runtime exploded")
	assert.Zero(t, f.sched.InFlight("agent-a"))
}

func TestTickOrdersByPriorityThenDueTime(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Config{MaxConcurrentPerAgent: 10})

	early := t0.Add(-10 * time.Second)
	mk := func(prompt string, priority int, at time.Time) string {
		tk, err := f.sched.Create(ctx, "agent-a", task.Definition{Prompt: prompt, Type: task.TypeOnce, Priority: priority, ExecuteAt: &at})
		require.NoError(t, err)
		return tk.ID
	}
	low := mk("low", 0, early)
	highLate := mk("high late", 5, t0)
	highEarly := mk("high early", 5, early)

	require.NoError(t, f.sched.Tick(ctx))
	f.sched.Wait()

	events, err := f.bus.Query(ctx, eventbus.Filter{Type: eventbus.TypeTaskRunning})
	require.NoError(t, err)
	var order []string
	for _, e := range events {
		order = append(order, e.TaskID)
	}
	assert.Equal(t, []string{highEarly, highLate, low}, order)
}

func TestTickRespectsPerAgentCap(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Config{MaxConcurrentPerAgent: 2})
	f.disp.block = make(chan struct{})

	var ids []string
	for i := range 3 {
		tk, err := f.sched.Create(ctx, "agent-a", task.Definition{Prompt: "p", Type: task.TypeOnce, Priority: 3 - i, ExecuteAt: &t0})
		require.NoError(t, err)
		ids = append(ids, tk.ID)
	}
	other, err := f.sched.Create(ctx, "agent-b", task.Definition{Prompt: "p", Type: task.TypeOnce, ExecuteAt: &t0})
	require.NoError(t, err)

	require.NoError(t, f.sched.Tick(ctx))
	assert.Equal(t, 2, f.sched.InFlight("agent-a"))
	assert.Equal(t, task.StatusRunning, f.get(t, ids[0]).Status)
	assert.Equal(t, task.StatusRunning, f.get(t, ids[1]).Status)
	assert.Equal(t, task.StatusPending, f.get(t, ids[2]).Status)
	assert.Equal(t, task.StatusRunning, f.get(t, other.ID).Status)

	// Manual execution is never refused by the cap.
	manual, err := f.sched.Create(ctx, "agent-a", once("manual"))
	require.NoError(t, err)
	_, err = f.sched.Dispatch(ctx, manual.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, f.sched.InFlight("agent-a"))

	close(f.disp.block)
	f.sched.Wait()
	assert.Zero(t, f.sched.InFlight("agent-a"))

	require.NoError(t, f.sched.Tick(ctx))
	f.sched.Wait()
	assert.Equal(t, task.StatusCompleted, f.get(t, ids[2]).Status)
}

func TestTrajectoryIsRecordedUnderRun(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Config{})
	f.disp.steps = []*agentguildv1.Step{
		{Role: "assistant", Content: "thinking"},
		{Role: "tool_call", Content: "{}", ToolName: "search", RunID: "forged", Seq: 42},
		{Role: "bogus", Content: "?"},
	}

	tk, err := f.sched.Create(ctx, "agent-a", once("p"))
	require.NoError(t, err)
	_, err = f.sched.Execute(ctx, tk.ID)
	require.NoError(t, err)

	events, err := f.bus.Query(ctx, eventbus.Filter{Type: eventbus.TypeTaskRunning, TaskID: tk.ID})
	require.NoError(t, err)
	require.Len(t, events, 1)
	runID := events[0].Data["run_id"].(string)

	steps, err := f.traj.List(ctx, tk.ID, "")
	require.NoError(t, err)
	require.Len(t, steps, 3)
	for i, st := range steps {
		assert.Equal(t, runID, st.RunID)
		assert.Equal(t, i, st.Seq)
	}
	assert.Equal(t, "search", steps[1].ToolName)
	assert.Equal(t, task.RoleSystem, steps[2].Role)

	activity, err := f.bus.Query(ctx, eventbus.Filter{Category: eventbus.CategoryActivity, TaskID: tk.ID})
	require.NoError(t, err)
	assert.Len(t, activity, 3)
}

func TestCompletionHookSeesRunID(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Config{})

	tk, err := f.sched.Create(ctx, "agent-a", once("p"))
	require.NoError(t, err)
	_, err = f.sched.Execute(ctx, tk.ID)
	require.NoError(t, err)

	require.Len(t, f.hook.finished, 1)
	assert.Equal(t, tk.ID, f.hook.finished[0].ID)
	assert.NotEmpty(t, f.hook.finished[0].ActiveRunID)
	assert.Equal(t, task.StatusCompleted, f.hook.finished[0].Status)
}

func TestCancel(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Config{})

	tk, err := f.sched.Create(ctx, "agent-a", once("p"))
	require.NoError(t, err)
	cancelled, err := f.sched.Cancel(ctx, tk.ID)
	require.NoError(t, err)
	assert.Equal(t, task.StatusCancelled, cancelled.Status)

	_, err = f.sched.Cancel(ctx, tk.ID)
	assert.True(t, cerr.IsKind(err, cerr.KindConflict))
	_, err = f.sched.Execute(ctx, tk.ID)
	assert.True(t, cerr.IsKind(err, cerr.KindConflict))

	done, err := f.sched.Create(ctx, "agent-a", once("p"))
	require.NoError(t, err)
	_, err = f.sched.Execute(ctx, done.ID)
	require.NoError(t, err)
	_, err = f.sched.Cancel(ctx, done.ID)
	assert.True(t, cerr.IsKind(err, cerr.KindConflict))
}

func TestCancelRecurringAfterRun(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Config{})

	tk, err := f.sched.Create(ctx, "agent-a", task.Definition{Prompt: "p", Type: task.TypeRecurring, Recurrence: "*/5 * * * *"})
	require.NoError(t, err)

	f.clock.Set(time.Date(2026, 3, 1, 10, 5, 30, 0, time.UTC))
	require.NoError(t, f.sched.Tick(ctx))
	f.sched.Wait()
	require.Equal(t, task.StatusCompleted, f.get(t, tk.ID).Status)

	cancelled, err := f.sched.Cancel(ctx, tk.ID)
	require.NoError(t, err)
	assert.Equal(t, task.StatusCancelled, cancelled.Status)

	f.clock.Set(time.Date(2026, 3, 1, 10, 10, 30, 0, time.UTC))
	require.NoError(t, f.sched.Tick(ctx))
	f.sched.Wait()

	assert.Equal(t, task.StatusCancelled, f.get(t, tk.ID).Status)
	assert.Equal(t, 1, f.disp.callCount())
	assert.Equal(t, 1, f.count(t, tk.ID, eventbus.TypeTaskCancelled))

	t.Run("running recurring task", func(t *testing.T) {
		f.disp.block = make(chan struct{})
		rt, err := f.sched.Create(ctx, "agent-b", task.Definition{Prompt: "p", Type: task.TypeRecurring, Recurrence: "*/5 * * * *"})
		require.NoError(t, err)
		_, err = f.sched.Dispatch(ctx, rt.ID)
		require.NoError(t, err)
		_, err = f.sched.Cancel(ctx, rt.ID)
		assert.True(t, cerr.IsKind(err, cerr.KindConflict))
		close(f.disp.block)
		f.sched.Wait()
	})
}

func TestRunningTaskCannotBeEditedOrDeleted(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Config{})
	f.disp.block = make(chan struct{})

	tk, err := f.sched.Create(ctx, "agent-a", once("p"))
	require.NoError(t, err)
	_, err = f.sched.Dispatch(ctx, tk.ID)
	require.NoError(t, err)

	_, err = f.sched.Update(ctx, tk.ID, func(d *task.Definition) { d.Prompt = "changed" })
	assert.True(t, cerr.IsKind(err, cerr.KindConflict))
	assert.True(t, cerr.IsKind(f.sched.Delete(ctx, tk.ID), cerr.KindConflict))
	assert.True(t, cerr.IsKind(f.sched.DeleteAgentTasks(ctx, "agent-a"), cerr.KindConflict))

	close(f.disp.block)
	f.sched.Wait()

	updated, err := f.sched.Update(ctx, tk.ID, func(d *task.Definition) { d.Prompt = "changed" })
	require.NoError(t, err)
	assert.Equal(t, "changed", updated.Prompt)

	require.NoError(t, f.sched.DeleteAgentTasks(ctx, "agent-a"))
	_, err = f.tasks.Get(ctx, tk.ID)
	assert.True(t, cerr.IsCode(err, cerr.NotFound))
}

func TestCreateValidation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Config{})

	_, err := f.sched.Create(ctx, "agent-a", task.Definition{Prompt: "p", Type: task.TypeRecurring, Recurrence: "every minute"})
	assert.True(t, cerr.IsKind(err, cerr.KindValidation))

	_, err = f.sched.Create(ctx, "missing", once("p"))
	assert.True(t, cerr.IsCode(err, cerr.NotFound))

	tasks, err := f.tasks.List(ctx, task.Filter{})
	require.NoError(t, err)
	assert.Empty(t, tasks)
}

func TestLocalLocker(t *testing.T) {
	ctx := context.Background()
	l := NewLocalLocker()

	unlock, ok, err := l.TryLock(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = l.TryLock(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)

	waitCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	_, err = l.Lock(waitCtx, "k")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	unlock()
	unlock()
	again, err := l.Lock(ctx, "k")
	require.NoError(t, err)
	again()
}
