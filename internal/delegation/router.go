// Package delegation routes work from coordinator agents to worker agents of
// the same group and reports finished delegated runs back to the
// coordinator.
package delegation

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	agentguildv1 "github.com/kazz187/agentguild/api/agentguild/v1"
	"github.com/kazz187/agentguild/internal/agent"
	"github.com/kazz187/agentguild/internal/eventbus"
	"github.com/kazz187/agentguild/internal/task"
	"github.com/kazz187/agentguild/pkg/cerr"
)

type AgentGetter interface {
	Get(ctx context.Context, id string) (*agent.Agent, error)
}

type TaskCreator interface {
	CreateDelegated(ctx context.Context, agentID, coordinatorID string, def task.Definition) (*task.Task, error)
}

// Notifier pushes a result into a coordinator's runtime.
type Notifier interface {
	Notify(ctx context.Context, agentID string, res *agentguildv1.DelegationResult) error
}

// deliveredMemory bounds the set of task runs remembered for deduplication.
const deliveredMemory = 4096

type Router struct {
	agents   AgentGetter
	tasks    TaskCreator
	notifier Notifier
	bus      *eventbus.Bus
	inbox    *inbox
	now      func() time.Time

	mu             sync.Mutex
	delivered      map[string]struct{}
	deliveredOrder []string
}

func NewRouter(agents AgentGetter, tasks TaskCreator, notifier Notifier, bus *eventbus.Bus) *Router {
	return &Router{
		agents:    agents,
		tasks:     tasks,
		notifier:  notifier,
		bus:       bus,
		inbox:     newInbox(),
		now:       time.Now,
		delivered: make(map[string]struct{}),
	}
}

// Delegate creates a one-time task on worker for coordinator. Without an
// execute_at the task is due immediately. The worker does not need to be
// running; the task waits until it is.
func (r *Router) Delegate(ctx context.Context, coordinatorID, workerID string, def task.Definition) (*task.Task, error) {
	if (def.Type != "" && def.Type != task.TypeOnce) || def.Recurrence != "" {
		return nil, cerr.Validation("delegated tasks cannot recur",
			cerr.FieldViolation{Field: "recurrence", Message: "delegated tasks are always one-time"})
	}
	coordinator, worker, err := r.resolve(ctx, coordinatorID, workerID)
	if err != nil {
		return nil, err
	}
	def.Type = task.TypeOnce
	if def.ExecuteAt == nil {
		now := r.now()
		def.ExecuteAt = &now
	}
	t, err := r.tasks.CreateDelegated(ctx, worker.ID, coordinator.ID, def)
	if err != nil {
		return nil, err
	}
	r.bus.Emit(ctx, eventbus.CategoryDelegation, eventbus.TypeDelegationCreated, coordinator.ID, t.ID, map[string]any{
		"coordinator_id": coordinator.ID,
		"worker_id":      worker.ID,
		"group":          coordinator.Group(),
		"task":           task.ToAPI(t),
	})
	slog.InfoContext(ctx, "delegation: task delegated", "coordinator_id", coordinator.ID, "worker_id", worker.ID, "task_id", t.ID)
	return t, nil
}

func (r *Router) resolve(ctx context.Context, coordinatorID, workerID string) (*agent.Agent, *agent.Agent, error) {
	if coordinatorID == "" || workerID == "" {
		return nil, nil, cerr.Validation("coordinator and worker are required",
			cerr.FieldViolation{Field: "from_agent_id", Message: "required"},
			cerr.FieldViolation{Field: "to_agent_id", Message: "required"},
		)
	}
	if coordinatorID == workerID {
		return nil, nil, cerr.Validation("an agent cannot delegate to itself",
			cerr.FieldViolation{Field: "to_agent_id", Message: "must differ from from_agent_id"})
	}
	coordinator, err := r.lookup(ctx, coordinatorID, "from_agent_id")
	if err != nil {
		return nil, nil, err
	}
	worker, err := r.lookup(ctx, workerID, "to_agent_id")
	if err != nil {
		return nil, nil, err
	}
	if !coordinator.MultiAgent.Enabled || coordinator.MultiAgent.Mode != agent.ModeCoordinator {
		return nil, nil, cerr.Validation("source agent is not a coordinator",
			cerr.FieldViolation{Field: "from_agent_id", Message: "multi-agent coordinator mode is not enabled"})
	}
	if !worker.MultiAgent.Enabled || worker.MultiAgent.Mode != agent.ModeWorker {
		return nil, nil, cerr.Validation("target agent is not a worker",
			cerr.FieldViolation{Field: "to_agent_id", Message: "multi-agent worker mode is not enabled"})
	}
	if coordinator.Group() != worker.Group() {
		return nil, nil, cerr.Validation("agents are in different groups",
			cerr.FieldViolation{
				Field:   "to_agent_id",
				Message: fmt.Sprintf("worker group %q differs from coordinator group %q", worker.Group(), coordinator.Group()),
			})
	}
	return coordinator, worker, nil
}

// lookup reports an unknown agent as a violation on field, so that no task
// is ever created against a missing agent.
func (r *Router) lookup(ctx context.Context, id, field string) (*agent.Agent, error) {
	a, err := r.agents.Get(ctx, id)
	if cerr.IsCode(err, cerr.NotFound) {
		return nil, cerr.Validation("agent not found", cerr.FieldViolation{Field: field, Message: "agent " + id + " does not exist"})
	}
	return a, err
}

// OnTaskFinished reports a finished delegated run to its coordinator,
// exactly once per task run.
func (r *Router) OnTaskFinished(ctx context.Context, t *task.Task) {
	if t.Source != task.SourceDelegated || t.DelegatedBy == "" {
		return
	}
	if t.Status != task.StatusCompleted && t.Status != task.StatusFailed {
		return
	}
	if !r.markDelivered(t.ID + "/" + t.ActiveRunID) {
		return
	}

	res := &agentguildv1.DelegationResult{
		CoordinatorID: t.DelegatedBy,
		WorkerID:      t.AgentID,
		TaskID:        t.ID,
		RunID:         t.ActiveRunID,
		Title:         t.Title,
		Status:        string(t.Status),
		Result:        t.Result,
		Error:         t.Error,
		CompletedAt:   r.now(),
	}
	if t.CompletedAt != nil {
		res.CompletedAt = *t.CompletedAt
	}
	subscribers := r.inbox.deliver(res)

	pushed := true
	if err := r.notifier.Notify(ctx, res.CoordinatorID, res); err != nil {
		pushed = false
		slog.WarnContext(ctx, "delegation: failed to notify coordinator runtime",
			"coordinator_id", res.CoordinatorID, "task_id", t.ID, "error", err)
	}
	r.bus.Emit(ctx, eventbus.CategoryDelegation, eventbus.TypeDelegationNotified, res.CoordinatorID, t.ID, map[string]any{
		"result":           res,
		"subscribers":      subscribers,
		"runtime_notified": pushed,
	})
}

func (r *Router) markDelivered(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.delivered[key]; ok {
		return false
	}
	r.delivered[key] = struct{}{}
	r.deliveredOrder = append(r.deliveredOrder, key)
	if len(r.deliveredOrder) > deliveredMemory {
		delete(r.delivered, r.deliveredOrder[0])
		r.deliveredOrder = r.deliveredOrder[1:]
	}
	return true
}

// Results returns the recent results delivered to coordinatorID, oldest first.
func (r *Router) Results(coordinatorID string) []*agentguildv1.DelegationResult {
	return r.inbox.list(coordinatorID)
}

// Subscribe returns a channel of results for coordinatorID. The channel is
// closed by Unsubscribe.
func (r *Router) Subscribe(coordinatorID string) (string, <-chan *agentguildv1.DelegationResult) {
	return r.inbox.subscribe(coordinatorID)
}

func (r *Router) Unsubscribe(coordinatorID, id string) {
	r.inbox.unsubscribe(coordinatorID, id)
}
