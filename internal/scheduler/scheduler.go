// Package scheduler owns task state transitions: creation and edits, the
// tick loop that picks up due work, and the execution of a run against an
// agent runtime.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/sourcegraph/conc"

	agentguildv1 "github.com/kazz187/agentguild/api/agentguild/v1"
	"github.com/kazz187/agentguild/internal/agent"
	"github.com/kazz187/agentguild/internal/eventbus"
	"github.com/kazz187/agentguild/internal/task"
	"github.com/kazz187/agentguild/pkg/cerr"
)

var _ task.Service = (*Scheduler)(nil)

// Dispatcher reaches agent runtimes.
type Dispatcher interface {
	HealthCheck(ctx context.Context, agentID string) bool
	// ExecuteTask runs req on the agent and calls onStep for every step the
	// runtime streams back. An Unreachable error means the connection was lost.
	ExecuteTask(ctx context.Context, agentID string, req *agentguildv1.ExecuteTaskRequest, onStep func(*agentguildv1.Step) error) (*agentguildv1.TaskOutcome, error)
}

type AgentGetter interface {
	Get(ctx context.Context, id string) (*agent.Agent, error)
}

// CompletionHook is told about every finished run, after it is persisted.
type CompletionHook interface {
	OnTaskFinished(ctx context.Context, t *task.Task)
}

type Config struct {
	TickInterval          time.Duration
	MaxConcurrentPerAgent int
	Location              *time.Location
}

type Option func(*Scheduler)

func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) {
		s.now = now
	}
}

func WithLocker(l Locker) Option {
	return func(s *Scheduler) {
		s.locker = l
	}
}

func WithCompletionHook(h CompletionHook) Option {
	return func(s *Scheduler) {
		s.hooks = append(s.hooks, h)
	}
}

type Scheduler struct {
	tasks        task.Repository
	trajectories task.TrajectoryRepository
	agents       AgentGetter
	dispatcher   Dispatcher
	bus          *eventbus.Bus
	locker       Locker
	hooks        []CompletionHook
	cfg          Config
	now          func() time.Time

	mu       sync.Mutex
	inFlight map[string]int
	stepSeq  map[string]int
	active   map[string]struct{}

	// Executions outlive the request or tick that started them.
	runCtx    context.Context
	cancelRun context.CancelFunc
	runs      conc.WaitGroup
}

func New(tasks task.Repository, trajectories task.TrajectoryRepository, agents AgentGetter, dispatcher Dispatcher, bus *eventbus.Bus, cfg Config, opts ...Option) *Scheduler {
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.MaxConcurrentPerAgent <= 0 {
		cfg.MaxConcurrentPerAgent = 1
	}
	s := &Scheduler{
		tasks:        tasks,
		trajectories: trajectories,
		agents:       agents,
		dispatcher:   dispatcher,
		bus:          bus,
		locker:       NewLocalLocker(),
		cfg:          cfg,
		now:          time.Now,
		inFlight:     make(map[string]int),
		stepSeq:      make(map[string]int),
		active:       make(map[string]struct{}),
	}
	for _, o := range opts {
		o(s)
	}
	s.runCtx, s.cancelRun = context.WithCancel(context.Background())
	return s
}

// AddCompletionHook registers h for components built after the scheduler.
// Call it before the first execution.
func (s *Scheduler) AddCompletionHook(h CompletionHook) {
	s.hooks = append(s.hooks, h)
}

func taskLockKey(id string) string {
	return "task:" + id
}

// lockTask takes the per-task lock without waiting; a held lock means another
// operation on the task is in progress.
func (s *Scheduler) lockTask(ctx context.Context, id string) (func(), error) {
	unlock, ok, err := s.locker.TryLock(ctx, taskLockKey(id))
	if err != nil {
		return nil, cerr.NewError(cerr.Internal, "server error", err)
	}
	if !ok {
		return nil, cerr.Conflict("task is busy")
	}
	return unlock, nil
}

func (s *Scheduler) emit(ctx context.Context, eventType string, t *task.Task, extra map[string]any) {
	data := map[string]any{"task": task.ToAPI(t)}
	for k, v := range extra {
		data[k] = v
	}
	s.bus.Emit(ctx, eventbus.CategoryTask, eventType, t.AgentID, t.ID, data)
}

func (s *Scheduler) Create(ctx context.Context, agentID string, def task.Definition) (*task.Task, error) {
	return s.create(ctx, agentID, def, task.SourceLocal, "")
}

// CreateDelegated creates a task on agentID on behalf of a coordinator.
func (s *Scheduler) CreateDelegated(ctx context.Context, agentID, coordinatorID string, def task.Definition) (*task.Task, error) {
	return s.create(ctx, agentID, def, task.SourceDelegated, coordinatorID)
}

func (s *Scheduler) create(ctx context.Context, agentID string, def task.Definition, source task.Source, delegatedBy string) (*task.Task, error) {
	now := s.now()
	if err := def.Validate(now); err != nil {
		return nil, err
	}
	owner, err := s.agents.Get(ctx, agentID)
	if err != nil {
		return nil, err
	}
	t := &task.Task{
		ID:          ulid.Make().String(),
		AgentID:     owner.ID,
		ProjectID:   owner.ProjectID,
		Status:      task.StatusPending,
		Source:      source,
		DelegatedBy: delegatedBy,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := def.Apply(t, now, s.cfg.Location); err != nil {
		return nil, err
	}
	if err := s.tasks.Create(ctx, t); err != nil {
		return nil, err
	}
	s.emit(ctx, eventbus.TypeTaskCreated, t, nil)
	return t, nil
}

func (s *Scheduler) Update(ctx context.Context, id string, patch func(*task.Definition)) (*task.Task, error) {
	unlock, err := s.lockTask(ctx, id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	t, err := s.tasks.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !t.Editable() {
		return nil, cerr.Conflict("task cannot be edited while " + string(t.Status))
	}
	now := s.now()
	prev := task.DefinitionOf(t)
	def := task.DefinitionOf(t)
	patch(&def)
	if err := def.ValidateChange(prev, now); err != nil {
		return nil, err
	}
	if err := def.Apply(t, now, s.cfg.Location); err != nil {
		return nil, err
	}
	// A finished one-time task given a new execute_at is scheduled again.
	if t.Type == task.TypeOnce && t.Status.Finished() && t.ExecuteAt != nil && !equalTime(prev.ExecuteAt, t.ExecuteAt) {
		t.Status = task.StatusPending
	}
	t.UpdatedAt = now
	if err := s.tasks.Update(ctx, t); err != nil {
		return nil, err
	}
	s.emit(ctx, eventbus.TypeTaskUpdated, t, nil)
	return t, nil
}

func equalTime(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

func (s *Scheduler) Cancel(ctx context.Context, id string) (*task.Task, error) {
	unlock, err := s.lockTask(ctx, id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	t, err := s.tasks.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !t.Cancellable() {
		return nil, cerr.Conflict("task cannot be cancelled while " + string(t.Status))
	}
	t.Status = task.StatusCancelled
	t.UpdatedAt = s.now()
	if err := s.tasks.Update(ctx, t); err != nil {
		return nil, err
	}
	s.emit(ctx, eventbus.TypeTaskCancelled, t, nil)
	return t, nil
}

func (s *Scheduler) Delete(ctx context.Context, id string) error {
	unlock, err := s.lockTask(ctx, id)
	if err != nil {
		return err
	}
	defer unlock()

	t, err := s.tasks.Get(ctx, id)
	if err != nil {
		return err
	}
	return s.deleteLocked(ctx, t)
}

func (s *Scheduler) deleteLocked(ctx context.Context, t *task.Task) error {
	if t.Status == task.StatusRunning {
		return cerr.Conflict("task is running")
	}
	if err := s.trajectories.DeleteTask(ctx, t.ID); err != nil {
		return err
	}
	if err := s.tasks.Delete(ctx, t.ID); err != nil {
		return err
	}
	s.emit(ctx, eventbus.TypeTaskDeleted, t, nil)
	return nil
}

// EnsureAgentIdle fails with a conflict while agentID has a running task.
func (s *Scheduler) EnsureAgentIdle(ctx context.Context, agentID string) error {
	_, err := s.idleAgentTasks(ctx, agentID)
	return err
}

func (s *Scheduler) idleAgentTasks(ctx context.Context, agentID string) ([]*task.Task, error) {
	tasks, err := s.tasks.List(ctx, task.Filter{AgentID: agentID})
	if err != nil {
		return nil, err
	}
	for _, t := range tasks {
		if t.Status == task.StatusRunning {
			return nil, cerr.Conflict("agent has a running task " + t.ID)
		}
	}
	return tasks, nil
}

// DeleteAgentTasks removes every task owned by agentID. Nothing is deleted
// if one of them is running.
func (s *Scheduler) DeleteAgentTasks(ctx context.Context, agentID string) error {
	tasks, err := s.idleAgentTasks(ctx, agentID)
	if err != nil {
		return err
	}
	for _, t := range tasks {
		if err := s.Delete(ctx, t.ID); err != nil && !cerr.IsCode(err, cerr.NotFound) {
			return err
		}
	}
	return nil
}

func (s *Scheduler) ownsRun(runID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.active[runID]
	return ok
}

// InFlight returns the number of executions currently running on agentID.
func (s *Scheduler) InFlight(agentID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inFlight[agentID]
}

// reserve takes an execution slot for agentID. With enforceCap it fails
// when the agent is at the per-agent limit.
func (s *Scheduler) reserve(agentID string, enforceCap bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if enforceCap && s.inFlight[agentID] >= s.cfg.MaxConcurrentPerAgent {
		return false
	}
	s.inFlight[agentID]++
	return true
}

func (s *Scheduler) release(agentID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inFlight[agentID] <= 1 {
		delete(s.inFlight, agentID)
		return
	}
	s.inFlight[agentID]--
}

// Wait blocks until every background execution has finished.
func (s *Scheduler) Wait() {
	if r := s.runs.WaitAndRecover(); r != nil {
		slog.Error("scheduler: execution panicked", "error", r.AsError())
	}
}

// Close cancels executions still in progress and waits for them.
func (s *Scheduler) Close() {
	s.cancelRun()
	s.Wait()
}

// Start runs the tick loop until ctx is done.
func (s *Scheduler) Start(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()

	slog.InfoContext(ctx, "scheduler started", "tick_interval", s.cfg.TickInterval, "max_concurrent_per_agent", s.cfg.MaxConcurrentPerAgent)
	for {
		select {
		case <-ctx.Done():
			slog.InfoContext(ctx, "scheduler stopped")
			return
		case <-ticker.C:
			if err := s.Tick(ctx); err != nil {
				slog.ErrorContext(ctx, "scheduler: tick failed", "error", err)
			}
		}
	}
}
