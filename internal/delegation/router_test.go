package delegation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"buf.build/gen/go/bufbuild/protovalidate/protocolbuffers/go/buf/validate"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	agentguildv1 "github.com/kazz187/agentguild/api/agentguild/v1"
	"github.com/kazz187/agentguild/internal/agent"
	"github.com/kazz187/agentguild/internal/eventbus"
	"github.com/kazz187/agentguild/internal/task"
	"github.com/kazz187/agentguild/pkg/cerr"
)

type fakeAgents map[string]*agent.Agent

func (f fakeAgents) Get(_ context.Context, id string) (*agent.Agent, error) {
	a, ok := f[id]
	if !ok {
		return nil, cerr.NewError(cerr.NotFound, "agent not found", nil)
	}
	return a.Clone(), nil
}

type fakeTasks struct {
	mu      sync.Mutex
	created []*task.Task
}

func (f *fakeTasks) CreateDelegated(_ context.Context, agentID, coordinatorID string, def task.Definition) (*task.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t := &task.Task{
		ID:          "task-" + agentID,
		AgentID:     agentID,
		Title:       def.Title,
		Prompt:      def.Prompt,
		Type:        def.Type,
		ExecuteAt:   def.ExecuteAt,
		Status:      task.StatusPending,
		Source:      task.SourceDelegated,
		DelegatedBy: coordinatorID,
	}
	f.created = append(f.created, t)
	return t, nil
}

type fakeNotifier struct {
	mu   sync.Mutex
	err  error
	sent []*agentguildv1.DelegationResult
}

func (f *fakeNotifier) Notify(_ context.Context, _ string, res *agentguildv1.DelegationResult) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, res)
	return f.err
}

func testAgents() fakeAgents {
	return fakeAgents{
		"coord":       {ID: "coord", ProjectID: "p1", MultiAgent: agent.Enabled(agent.ModeCoordinator, "")},
		"worker":      {ID: "worker", ProjectID: "p1", MultiAgent: agent.Enabled(agent.ModeWorker, "")},
		"worker-p2":   {ID: "worker-p2", ProjectID: "p2", MultiAgent: agent.Enabled(agent.ModeWorker, "")},
		"worker-grp":  {ID: "worker-grp", ProjectID: "p2", MultiAgent: agent.Enabled(agent.ModeWorker, "p1")},
		"coord-2":     {ID: "coord-2", ProjectID: "p1", MultiAgent: agent.Enabled(agent.ModeCoordinator, "")},
		"plain":       {ID: "plain", ProjectID: "p1"},
		"worker-only": {ID: "worker-only", ProjectID: "p1", MultiAgent: agent.Enabled(agent.ModeWorker, "")},
	}
}

func newRouter(t *testing.T) (*Router, *fakeTasks, *fakeNotifier, *eventbus.Bus) {
	t.Helper()
	bus, err := eventbus.New(context.Background(), eventbus.NewMemoryStore(100))
	require.NoError(t, err)
	tasks := &fakeTasks{}
	notifier := &fakeNotifier{}
	r := NewRouter(testAgents(), tasks, notifier, bus)
	r.now = func() time.Time { return time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC) }
	return r, tasks, notifier, bus
}

func eventsOfType(t *testing.T, bus *eventbus.Bus, typ string) []*eventbus.Event {
	t.Helper()
	events, err := bus.Query(context.Background(), eventbus.Filter{Type: typ})
	require.NoError(t, err)
	return events
}

func TestDelegate(t *testing.T) {
	r, tasks, _, bus := newRouter(t)

	tk, err := r.Delegate(context.Background(), "coord", "worker", task.Definition{
		Title:  "summarize",
		Prompt: "summarize the report",
	})
	require.NoError(t, err)
	assert.Equal(t, "worker", tk.AgentID)
	assert.Equal(t, task.SourceDelegated, tk.Source)
	assert.Equal(t, "coord", tk.DelegatedBy)
	assert.Equal(t, task.TypeOnce, tk.Type)
	require.NotNil(t, tk.ExecuteAt)
	assert.Equal(t, r.now(), *tk.ExecuteAt)
	assert.Len(t, tasks.created, 1)

	events := eventsOfType(t, bus, eventbus.TypeDelegationCreated)
	require.Len(t, events, 1)
	assert.Equal(t, eventbus.CategoryDelegation, events[0].Category)
	assert.Equal(t, "coord", events[0].AgentID)
	assert.Equal(t, tk.ID, events[0].TaskID)
	assert.Equal(t, "worker", events[0].Data["worker_id"])
	assert.Equal(t, "p1", events[0].Data["group"])
}

func TestDelegateExplicitGroup(t *testing.T) {
	r, _, _, _ := newRouter(t)
	// worker-grp lives in another project but joined the p1 group.
	_, err := r.Delegate(context.Background(), "coord", "worker-grp", task.Definition{Prompt: "x"})
	require.NoError(t, err)
}

func TestDelegateRejectsBeforeCreatingAnything(t *testing.T) {
	tests := []struct {
		name        string
		from, to    string
		wantMessage string
	}{
		{name: "missing ids", from: "", to: "worker", wantMessage: "required"},
		{name: "self", from: "coord", to: "coord", wantMessage: "itself"},
		{name: "unknown coordinator", from: "nobody", to: "worker", wantMessage: "not found"},
		{name: "unknown worker", from: "coord", to: "nobody", wantMessage: "not found"},
		{name: "source not multi-agent", from: "plain", to: "worker", wantMessage: "not a coordinator"},
		{name: "source is a worker", from: "worker-only", to: "worker", wantMessage: "not a coordinator"},
		{name: "target is a coordinator", from: "coord", to: "coord-2", wantMessage: "not a worker"},
		{name: "target not multi-agent", from: "coord", to: "plain", wantMessage: "not a worker"},
		{name: "different groups", from: "coord", to: "worker-p2", wantMessage: "different groups"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, tasks, _, bus := newRouter(t)
			_, err := r.Delegate(context.Background(), tt.from, tt.to, task.Definition{Prompt: "x"})
			require.Error(t, err)
			assert.True(t, cerr.IsKind(err, cerr.KindValidation))
			assert.Contains(t, err.Error(), tt.wantMessage)
			assert.Empty(t, tasks.created)
			assert.Empty(t, eventsOfType(t, bus, eventbus.TypeDelegationCreated))
		})
	}
}

func TestDelegateRejectsRecurrence(t *testing.T) {
	tests := []struct {
		name string
		def  task.Definition
	}{
		{name: "recurring type", def: task.Definition{Prompt: "x", Type: task.TypeRecurring}},
		{name: "recurrence only", def: task.Definition{Prompt: "x", Recurrence: "*/5 * * * *"}},
		{name: "recurring with schedule", def: task.Definition{Prompt: "x", Type: task.TypeRecurring, Recurrence: "* * * * *"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, tasks, _, bus := newRouter(t)
			_, err := r.Delegate(context.Background(), "coord", "worker", tt.def)
			require.Error(t, err)
			assert.True(t, cerr.IsKind(err, cerr.KindValidation))
			var ce *cerr.Error
			require.True(t, errors.As(err, &ce))
			require.Len(t, ce.Details, 1)
			v, ok := ce.Details[0].(*validate.Violation)
			require.True(t, ok)
			assert.Equal(t, "recurrence", v.GetRuleId())
			assert.Empty(t, tasks.created)
			assert.Empty(t, eventsOfType(t, bus, eventbus.TypeDelegationCreated))
		})
	}

	r, tasks, _, _ := newRouter(t)
	_, err := r.Delegate(context.Background(), "coord", "worker", task.Definition{Prompt: "x", Type: task.TypeOnce})
	require.NoError(t, err)
	assert.Len(t, tasks.created, 1)
}

func finishedTask(runID string, status task.Status) *task.Task {
	done := time.Date(2026, 3, 1, 10, 5, 0, 0, time.UTC)
	return &task.Task{
		ID:          "t1",
		AgentID:     "worker",
		Title:       "summarize",
		Status:      status,
		Result:      "done",
		Source:      task.SourceDelegated,
		DelegatedBy: "coord",
		ActiveRunID: runID,
		CompletedAt: &done,
	}
}

func TestOnTaskFinishedNotifiesOncePerRun(t *testing.T) {
	r, _, notifier, bus := newRouter(t)
	ctx := context.Background()
	subID, ch := r.Subscribe("coord")
	defer r.Unsubscribe("coord", subID)

	r.OnTaskFinished(ctx, finishedTask("run-1", task.StatusCompleted))
	r.OnTaskFinished(ctx, finishedTask("run-1", task.StatusCompleted))

	select {
	case res := <-ch:
		assert.Equal(t, "t1", res.TaskID)
		assert.Equal(t, "run-1", res.RunID)
		assert.Equal(t, "worker", res.WorkerID)
		assert.Equal(t, "completed", res.Status)
		assert.Equal(t, "done", res.Result)
	default:
		t.Fatal("subscriber got no result")
	}
	select {
	case res := <-ch:
		t.Fatalf("duplicate result %+v", res)
	default:
	}
	assert.Len(t, notifier.sent, 1)
	assert.Len(t, eventsOfType(t, bus, eventbus.TypeDelegationNotified), 1)

	// A later run of the same task is a new notification.
	r.OnTaskFinished(ctx, finishedTask("run-2", task.StatusFailed))
	results := r.Results("coord")
	require.Len(t, results, 2)
	assert.Equal(t, "failed", results[1].Status)
	assert.Len(t, notifier.sent, 2)
}

func TestOnTaskFinishedIgnoresOtherTasks(t *testing.T) {
	r, _, notifier, bus := newRouter(t)
	ctx := context.Background()

	local := finishedTask("run-1", task.StatusCompleted)
	local.Source, local.DelegatedBy = task.SourceLocal, ""
	r.OnTaskFinished(ctx, local)

	cancelled := finishedTask("run-2", task.StatusCancelled)
	r.OnTaskFinished(ctx, cancelled)

	assert.Empty(t, notifier.sent)
	assert.Empty(t, r.Results("coord"))
	assert.Empty(t, eventsOfType(t, bus, eventbus.TypeDelegationNotified))
}

func TestOnTaskFinishedRuntimeUnreachable(t *testing.T) {
	r, _, notifier, bus := newRouter(t)
	notifier.err = cerr.Unreachable("agent is not running", errors.New("dial"))

	r.OnTaskFinished(context.Background(), finishedTask("run-1", task.StatusCompleted))

	assert.Len(t, r.Results("coord"), 1)
	events := eventsOfType(t, bus, eventbus.TypeDelegationNotified)
	require.Len(t, events, 1)
	assert.Equal(t, false, events[0].Data["runtime_notified"])
}

func TestInboxKeepsRecentHistory(t *testing.T) {
	r, _, _, _ := newRouter(t)
	for i := range inboxHistory + 10 {
		r.OnTaskFinished(context.Background(), finishedTask(fmt.Sprintf("run-%d", i), task.StatusCompleted))
	}
	results := r.Results("coord")
	assert.Len(t, results, inboxHistory)
	assert.Empty(t, r.Results("worker"))
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	r, _, _, _ := newRouter(t)
	id, ch := r.Subscribe("coord")
	r.Unsubscribe("coord", id)
	_, ok := <-ch
	assert.False(t, ok)
	// Unknown ids are ignored.
	r.Unsubscribe("coord", id)
}
