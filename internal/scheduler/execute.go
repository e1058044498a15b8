package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/sourcegraph/conc"

	agentguildv1 "github.com/kazz187/agentguild/api/agentguild/v1"
	"github.com/kazz187/agentguild/internal/agent"
	"github.com/kazz187/agentguild/internal/eventbus"
	"github.com/kazz187/agentguild/internal/task"
	"github.com/kazz187/agentguild/pkg/cerr"
	"github.com/kazz187/agentguild/pkg/clog"
	"github.com/kazz187/agentguild/pkg/panicerr"
)

var errAgentAtCapacity = errors.New("agent is at its concurrency limit")

const finishTimeout = 30 * time.Second

// Dispatch starts an execution of id and returns as soon as the task is
// running. The run continues in the background.
func (s *Scheduler) Dispatch(ctx context.Context, id string) (*task.Task, error) {
	t, err := s.begin(ctx, id, true)
	if err != nil {
		return nil, err
	}
	s.goRun(ctx, t)
	return t.Clone(), nil
}

// Execute runs id to completion and returns the finished task.
func (s *Scheduler) Execute(ctx context.Context, id string) (*task.Task, error) {
	t, err := s.begin(ctx, id, true)
	if err != nil {
		return nil, err
	}
	return s.run(ctx, t), nil
}

// goRun detaches the run from the caller's cancellation while keeping its
// values, with a log bag of its own. Close still cancels it.
func (s *Scheduler) goRun(ctx context.Context, t *task.Task) {
	runCtx, cancel := context.WithCancel(clog.ContextWithSlog(context.WithoutCancel(ctx)))
	stop := context.AfterFunc(s.runCtx, cancel)
	s.runs.Go(func() {
		defer cancel()
		defer stop()
		s.run(runCtx, t)
	})
}

// begin moves a task to running. manual executions bypass the due check and
// the per-agent cap but still count toward it.
func (s *Scheduler) begin(ctx context.Context, id string, manual bool) (*task.Task, error) {
	unlock, err := s.lockTask(ctx, id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	t, err := s.tasks.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	switch t.Status {
	case task.StatusRunning:
		return nil, cerr.Conflict("task is already running")
	case task.StatusCancelled:
		return nil, cerr.Conflict("task is cancelled")
	}
	now := s.now()
	if !manual && !t.Due(now) {
		return nil, cerr.Conflict("task is no longer due")
	}

	owner, err := s.agents.Get(ctx, t.AgentID)
	if err != nil {
		return nil, err
	}
	if owner.Status != agent.StatusRunning {
		return nil, s.requeue(ctx, t, manual, "agent is "+string(owner.Status))
	}
	if !s.dispatcher.HealthCheck(ctx, owner.ID) {
		return nil, s.requeue(ctx, t, manual, "agent did not answer the health check")
	}
	if !s.reserve(owner.ID, !manual) {
		return nil, errAgentAtCapacity
	}

	t.Status = task.StatusRunning
	t.ActiveRunID = ulid.Make().String()
	t.ExecutedAt = &now
	t.CompletedAt = nil
	t.Result = ""
	t.Error = ""
	t.RunCount++
	t.UpdatedAt = now
	if err := s.tasks.Update(ctx, t); err != nil {
		s.release(owner.ID)
		return nil, err
	}
	s.mu.Lock()
	s.active[t.ActiveRunID] = struct{}{}
	s.mu.Unlock()
	s.emit(ctx, eventbus.TypeTaskRunning, t, map[string]any{"run_id": t.ActiveRunID})
	return t, nil
}

// requeue leaves the task untouched so the next tick retries the same
// occurrence, and reports why. Only a manual execution is announced; a tick
// retries silently until the agent answers.
func (s *Scheduler) requeue(ctx context.Context, t *task.Task, manual bool, reason string) error {
	if manual {
		s.emit(ctx, eventbus.TypeTaskRequeued, t, map[string]any{"reason": reason})
	}
	return cerr.Unreachable("agent unreachable: "+reason, nil)
}

func (s *Scheduler) run(ctx context.Context, t *task.Task) *task.Task {
	defer s.release(t.AgentID)
	clog.AddAttributes(ctx, map[string]any{"agent_id": t.AgentID, "task_id": t.ID})

	req := &agentguildv1.ExecuteTaskRequest{
		TaskID:      t.ID,
		RunID:       t.ActiveRunID,
		Title:       t.Title,
		Prompt:      t.Prompt,
		DelegatedBy: t.DelegatedBy,
	}
	var outcome *agentguildv1.TaskOutcome
	err := panicerr.SafeContext(ctx, func(ctx context.Context) error {
		var err error
		outcome, err = s.dispatcher.ExecuteTask(ctx, t.AgentID, req, func(st *agentguildv1.Step) error {
			return s.appendStep(ctx, t, st)
		})
		return err
	})
	return s.finish(ctx, t, outcome, err)
}

// appendStep records a streamed step under the run that owns the task. The
// runtime's own task, run and seq fields are not trusted.
func (s *Scheduler) appendStep(ctx context.Context, t *task.Task, st *agentguildv1.Step) error {
	step := task.StepFromAPI(st)
	step.TaskID = t.ID
	step.RunID = t.ActiveRunID
	step.Seq = s.nextSeq(t.ActiveRunID)
	if !step.Role.Valid() {
		step.Role = task.RoleSystem
	}
	if step.CreatedAt.IsZero() {
		step.CreatedAt = s.now()
	}
	if err := s.trajectories.Append(ctx, step); err != nil {
		return err
	}
	s.bus.Emit(ctx, eventbus.CategoryActivity, eventbus.TypeActivityStep, t.AgentID, t.ID, map[string]any{
		"step": task.StepToAPI(step),
	})
	return nil
}

func (s *Scheduler) nextSeq(runID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	seq := s.stepSeq[runID]
	s.stepSeq[runID] = seq + 1
	return seq
}

func (s *Scheduler) finish(ctx context.Context, started *task.Task, outcome *agentguildv1.TaskOutcome, runErr error) *task.Task {
	runID := started.ActiveRunID
	s.mu.Lock()
	delete(s.stepSeq, runID)
	delete(s.active, runID)
	s.mu.Unlock()

	status, result, errMsg := task.StatusFailed, "", ""
	switch {
	case runErr != nil && cerr.IsKind(runErr, cerr.KindUnreachable):
		errMsg = "agent became unreachable"
	case runErr != nil && ctx.Err() != nil:
		errMsg = "execution interrupted: " + context.Cause(ctx).Error()
	case runErr != nil:
		errMsg = runErr.Error()
	case outcome == nil:
		errMsg = "runtime returned no outcome"
	case outcome.Succeeded:
		status, result = task.StatusCompleted, outcome.Result
	default:
		errMsg = outcome.Error
		if errMsg == "" {
			errMsg = "task failed"
		}
	}

	// The run may have been interrupted; the record must still be closed.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finishTimeout)
	defer cancel()
	unlock, err := s.locker.Lock(ctx, taskLockKey(started.ID))
	if err != nil {
		slog.ErrorContext(ctx, "scheduler: failed to lock task for completion", "task_id", started.ID, "error", err)
		unlock = func() {}
	}
	defer unlock()

	t, err := s.tasks.Get(ctx, started.ID)
	if err != nil {
		slog.ErrorContext(ctx, "scheduler: failed to load finished task", "task_id", started.ID, "error", err)
		return started
	}
	if t.ActiveRunID != runID {
		slog.WarnContext(ctx, "scheduler: run no longer owns task", "task_id", t.ID, "run_id", runID)
		return t
	}
	s.closeRun(ctx, t, status, result, errMsg)
	return t
}

// closeRun records the end of the run t.ActiveRunID, advances a recurring
// task to its next occurrence and tells the completion hooks. The caller
// holds the task lock.
func (s *Scheduler) closeRun(ctx context.Context, t *task.Task, status task.Status, result, errMsg string) {
	runID := t.ActiveRunID
	now := s.now()
	t.Status = status
	t.Result = result
	t.Error = errMsg
	t.CompletedAt = &now
	t.ActiveRunID = ""
	t.UpdatedAt = now
	if t.Type == task.TypeRecurring && t.ExecutedAt != nil {
		next, err := task.NextRunAfter(t.Recurrence, *t.ExecutedAt, s.cfg.Location)
		if err != nil {
			slog.ErrorContext(ctx, "scheduler: invalid recurrence on stored task", "task_id", t.ID, "error", err)
		} else {
			t.NextRun = &next
		}
	}
	if err := s.tasks.Update(ctx, t); err != nil {
		slog.ErrorContext(ctx, "scheduler: failed to persist finished task", "task_id", t.ID, "error", err)
		return
	}

	eventType := eventbus.TypeTaskCompleted
	if status == task.StatusFailed {
		eventType = eventbus.TypeTaskFailed
	}
	s.emit(ctx, eventType, t, map[string]any{"run_id": runID})

	finished := t.Clone()
	finished.ActiveRunID = runID
	for _, h := range s.hooks {
		if err := panicerr.Safe(func() error {
			h.OnTaskFinished(ctx, finished.Clone())
			return nil
		}); err != nil {
			slog.ErrorContext(ctx, "scheduler: completion hook failed", "task_id", t.ID, "error", err)
		}
	}
}

// Reconcile fails every task a previous process left running. Its runtime
// connection died with that process, so the run can never report back.
// Call it once at boot, before the tick loop starts.
func (s *Scheduler) Reconcile(ctx context.Context) error {
	running, err := s.tasks.List(ctx, task.Filter{Status: task.StatusRunning})
	if err != nil {
		return err
	}
	for _, r := range running {
		s.reconcileTask(ctx, r.ID)
	}
	return nil
}

func (s *Scheduler) reconcileTask(ctx context.Context, id string) {
	unlock, err := s.lockTask(ctx, id)
	if err != nil {
		slog.WarnContext(ctx, "scheduler: skip reconcile of task", "task_id", id, "error", err)
		return
	}
	defer unlock()

	t, err := s.tasks.Get(ctx, id)
	if err != nil {
		slog.ErrorContext(ctx, "scheduler: failed to load task for reconcile", "task_id", id, "error", err)
		return
	}
	if t.Status != task.StatusRunning {
		return
	}
	if s.ownsRun(t.ActiveRunID) {
		return
	}
	slog.InfoContext(ctx, "scheduler: failing orphaned run", "task_id", t.ID, "run_id", t.ActiveRunID)
	s.closeRun(ctx, t, task.StatusFailed, "", "agent became unreachable")
}

// Tick dispatches every due task whose owner is running. Failures of one
// task are logged and never stop the others.
func (s *Scheduler) Tick(ctx context.Context) error {
	now := s.now()
	all, err := s.tasks.List(ctx, task.Filter{})
	if err != nil {
		return err
	}
	byAgent := make(map[string][]*task.Task)
	for _, t := range all {
		if t.Due(now) {
			byAgent[t.AgentID] = append(byAgent[t.AgentID], t)
		}
	}

	var wg conc.WaitGroup
	for agentID, due := range byAgent {
		wg.Go(func() {
			s.tickAgent(ctx, agentID, due)
		})
	}
	if r := wg.WaitAndRecover(); r != nil {
		slog.ErrorContext(ctx, "scheduler: tick panicked", "error", r.AsError())
	}
	return nil
}

func (s *Scheduler) tickAgent(ctx context.Context, agentID string, due []*task.Task) {
	owner, err := s.agents.Get(ctx, agentID)
	if err != nil {
		slog.ErrorContext(ctx, "scheduler: failed to get task owner", "agent_id", agentID, "error", err)
		return
	}
	if owner.Status != agent.StatusRunning {
		return
	}
	task.SortForDispatch(due)
	for _, t := range due {
		var started *task.Task
		err := panicerr.Safe(func() error {
			var err error
			started, err = s.begin(ctx, t.ID, false)
			return err
		})
		switch {
		case err == nil:
			s.goRun(ctx, started)
		case errors.Is(err, errAgentAtCapacity):
			slog.DebugContext(ctx, "scheduler: agent at capacity, deferring", "agent_id", agentID, "task_id", t.ID)
			return
		case cerr.IsKind(err, cerr.KindUnreachable):
			slog.WarnContext(ctx, "scheduler: agent unreachable, deferring", "agent_id", agentID, "error", err)
			return
		case cerr.IsKind(err, cerr.KindConflict):
			slog.DebugContext(ctx, "scheduler: skip task", "task_id", t.ID, "reason", err)
		default:
			slog.ErrorContext(ctx, "scheduler: failed to dispatch task", "task_id", t.ID, "error", err)
		}
	}
}
