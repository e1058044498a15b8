// Package supervisor maps agent configurations to runtime processes. It is
// the only writer of an agent's Status, Port, PID and LastError.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/pmezard/go-difflib/difflib"
	"github.com/sourcegraph/conc"
	"gopkg.in/yaml.v3"

	agentguildv1 "github.com/kazz187/agentguild/api/agentguild/v1"
	"github.com/kazz187/agentguild/internal/agent"
	"github.com/kazz187/agentguild/internal/eventbus"
	"github.com/kazz187/agentguild/pkg/cerr"
)

var _ agent.Lifecycle = (*Supervisor)(nil)

const readyPollInterval = 100 * time.Millisecond

// drainTimeout leaves a fifth of the grace period for the runtime to close
// its listener and exit after draining.
func drainTimeout(grace time.Duration) time.Duration {
	return grace - grace/5
}

type Config struct {
	RuntimeDir        string
	StartTimeout      time.Duration
	StopGracePeriod   time.Duration
	HealthTimeout     time.Duration
	ReapInterval      time.Duration
	MaxHealthFailures int
}

// live is the state of a running runtime that readers outside the agent
// lock may look at.
type live struct {
	proc    Process
	runtime Runtime
	port    int
}

type entry struct {
	// mu serializes lifecycle operations on one agent.
	mu       sync.Mutex
	live     atomic.Pointer[live]
	failures atomic.Int32
}

type Supervisor struct {
	repo     agent.Repository
	launcher Launcher
	dial     Dialer
	ports    *PortPool
	bus      *eventbus.Bus
	cfg      Config
	now      func() time.Time

	mu    sync.Mutex
	procs map[string]*entry

	watchers conc.WaitGroup
}

func New(repo agent.Repository, launcher Launcher, dial Dialer, ports *PortPool, bus *eventbus.Bus, cfg Config) *Supervisor {
	return &Supervisor{
		repo:     repo,
		launcher: launcher,
		dial:     dial,
		ports:    ports,
		bus:      bus,
		cfg:      cfg,
		now:      time.Now,
		procs:    make(map[string]*entry),
	}
}

func (s *Supervisor) entry(id string) *entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.procs[id]
	if !ok {
		e = &entry{}
		s.procs[id] = e
	}
	return e
}

func (s *Supervisor) configPath(id string) string {
	return filepath.Join(s.cfg.RuntimeDir, id, "config.yaml")
}

func (s *Supervisor) logPath(id string) string {
	return filepath.Join(s.cfg.RuntimeDir, id, "output.log")
}

// writeConfig stores the runtime's startup input. A running runtime watches
// this file and reloads it.
func (s *Supervisor) writeConfig(a *agent.Agent) error {
	data, err := yaml.Marshal(agent.RuntimeConfig(a))
	if err != nil {
		return fmt.Errorf("marshal runtime config: %w", err)
	}
	p := s.configPath(a.ID)
	if err := os.MkdirAll(filepath.Dir(p), 0o700); err != nil {
		return fmt.Errorf("create runtime dir: %w", err)
	}
	tmp := p + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write runtime config: %w", err)
	}
	if err := os.Rename(tmp, p); err != nil {
		return fmt.Errorf("write runtime config: %w", err)
	}
	return nil
}

// transition persists a status change and publishes exactly one event for it.
func (s *Supervisor) transition(ctx context.Context, a *agent.Agent, to agent.Status, eventType string, extra map[string]any) error {
	from := a.Status
	a.Status = to
	a.UpdatedAt = s.now()
	if err := s.repo.Update(ctx, a); err != nil {
		return err
	}
	data := map[string]any{
		"from":  string(from),
		"to":    string(to),
		"port":  a.Port,
		"pid":   a.PID,
		"agent": agent.ToAPI(a),
	}
	if a.LastError != "" {
		data["error"] = a.LastError
	}
	for k, v := range extra {
		data[k] = v
	}
	s.bus.Emit(ctx, eventbus.CategoryLifecycle, eventType, a.ID, "", data)
	return nil
}

// Reconcile marks agents left live by a previous supervisor as crashed. Their
// processes are not adopted.
func (s *Supervisor) Reconcile(ctx context.Context) error {
	agents, _, err := s.repo.List(ctx, "", 0, 0)
	if err != nil {
		return err
	}
	for _, a := range agents {
		if !a.Status.Live() {
			continue
		}
		e := s.entry(a.ID)
		e.mu.Lock()
		a.Port, a.PID = 0, 0
		a.LastError = "supervisor restarted"
		if err := s.transition(ctx, a, agent.StatusCrashed, eventbus.TypeAgentCrashed, nil); err != nil {
			slog.ErrorContext(ctx, "supervisor: failed to reconcile agent", "agent_id", a.ID, "error", err)
		}
		e.mu.Unlock()
	}
	return nil
}

func (s *Supervisor) Start(ctx context.Context, id string) (*agent.Agent, error) {
	e := s.entry(id)
	e.mu.Lock()
	defer e.mu.Unlock()

	a, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	switch a.Status {
	case agent.StatusRunning:
		return a, nil
	case agent.StatusCrashed:
		return nil, cerr.Conflict("agent crashed; acknowledge it before starting")
	case agent.StatusStopped:
		return s.startLocked(ctx, e, a, 0)
	default:
		return nil, cerr.Conflict("agent is " + string(a.Status))
	}
}

func (s *Supervisor) startLocked(ctx context.Context, e *entry, a *agent.Agent, preferredPort int) (*agent.Agent, error) {
	if err := s.writeConfig(a); err != nil {
		return nil, cerr.ProcessFault("failed to prepare runtime", err)
	}
	port, err := s.ports.Allocate(a.ID, preferredPort)
	if err != nil {
		return nil, cerr.ProcessFault("no port available", err)
	}
	a.Port = port
	a.LastError = ""
	if err := s.transition(ctx, a, agent.StatusStarting, eventbus.TypeAgentStarting, nil); err != nil {
		s.ports.Release(a.ID, port)
		return nil, err
	}

	proc, err := s.launcher.Launch(ctx, LaunchSpec{
		AgentID:      a.ID,
		Port:         port,
		ConfigPath:   s.configPath(a.ID),
		LogPath:      s.logPath(a.ID),
		Model:        a.Model,
		DrainTimeout: drainTimeout(s.cfg.StopGracePeriod),
	})
	if err != nil {
		return nil, s.crashLocked(ctx, e, a, nil, "launch failed: "+err.Error(), err)
	}
	a.PID = proc.PID()
	if err := s.repo.Update(ctx, a); err != nil {
		slog.WarnContext(ctx, "supervisor: failed to record pid", "agent_id", a.ID, "error", err)
	}

	rt := s.dial(port)
	if err := s.waitReady(ctx, proc, rt); err != nil {
		return nil, s.crashLocked(ctx, e, a, proc, "runtime not ready: "+err.Error(), err)
	}

	e.failures.Store(0)
	e.live.Store(&live{proc: proc, runtime: rt, port: port})
	if err := s.transition(ctx, a, agent.StatusRunning, eventbus.TypeAgentRunning, nil); err != nil {
		return nil, err
	}
	s.watchers.Go(func() {
		s.watchExit(a.ID, e, proc)
	})
	return a, nil
}

func (s *Supervisor) waitReady(ctx context.Context, proc Process, rt Runtime) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.StartTimeout)
	defer cancel()
	ticker := time.NewTicker(readyPollInterval)
	defer ticker.Stop()
	for {
		pingCtx, pingCancel := context.WithTimeout(ctx, s.cfg.HealthTimeout)
		_, err := rt.Ping(pingCtx)
		pingCancel()
		if err == nil {
			return nil
		}
		select {
		case <-proc.Done():
			return errors.New("process exited during startup")
		case <-ctx.Done():
			return fmt.Errorf("no answer within %s: %w", s.cfg.StartTimeout, err)
		case <-ticker.C:
		}
	}
}

// watchExit marks the agent crashed when its process exits on its own.
func (s *Supervisor) watchExit(id string, e *entry, proc Process) {
	<-proc.Done()
	e.mu.Lock()
	defer e.mu.Unlock()
	cur := e.live.Load()
	if cur == nil || cur.proc != proc {
		// Stopped or replaced by a lifecycle operation.
		return
	}
	ctx := context.Background()
	a, err := s.repo.Get(ctx, id)
	if err != nil {
		slog.ErrorContext(ctx, "supervisor: failed to load exited agent", "agent_id", id, "error", err)
		return
	}
	_ = s.crashLocked(ctx, e, a, proc, "process exited unexpectedly", nil)
}

// crashLocked kills what is left of the process group, frees the port and
// records the crash. It returns the ProcessFault to report to the caller.
func (s *Supervisor) crashLocked(ctx context.Context, e *entry, a *agent.Agent, proc Process, reason string, cause error) error {
	if proc != nil && !exited(proc) {
		_ = proc.Signal(syscall.SIGKILL)
	}
	e.live.Store(nil)
	if a.Port != 0 {
		s.ports.Release(a.ID, a.Port)
	}
	a.Port, a.PID = 0, 0
	a.LastError = reason
	if err := s.transition(ctx, a, agent.StatusCrashed, eventbus.TypeAgentCrashed, nil); err != nil {
		slog.ErrorContext(ctx, "supervisor: failed to record crash", "agent_id", a.ID, "error", err)
	}
	slog.WarnContext(ctx, "supervisor: agent crashed", "agent_id", a.ID, "reason", reason)
	return cerr.ProcessFault(reason, cause)
}

func (s *Supervisor) Stop(ctx context.Context, id string) (*agent.Agent, error) {
	e := s.entry(id)
	e.mu.Lock()
	defer e.mu.Unlock()

	a, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	switch a.Status {
	case agent.StatusStopped, agent.StatusCrashed:
		return a, nil
	}
	if err := s.stopLocked(ctx, e, a); err != nil {
		return nil, err
	}
	return a, nil
}

func (s *Supervisor) stopLocked(ctx context.Context, e *entry, a *agent.Agent) error {
	if err := s.transition(ctx, a, agent.StatusStopping, eventbus.TypeAgentStopping, nil); err != nil {
		return err
	}
	cur := e.live.Swap(nil)
	if cur != nil {
		s.terminate(ctx, cur.proc)
	}
	if a.Port != 0 {
		s.ports.Release(a.ID, a.Port)
	}
	a.Port, a.PID = 0, 0
	a.LastError = ""
	return s.transition(ctx, a, agent.StatusStopped, eventbus.TypeAgentStopped, nil)
}

// terminate sends SIGTERM to the process group and SIGKILL once the grace
// period is over.
func (s *Supervisor) terminate(ctx context.Context, proc Process) {
	if exited(proc) {
		return
	}
	if err := proc.Signal(syscall.SIGTERM); err != nil {
		_ = proc.Signal(syscall.SIGKILL)
	}
	select {
	case <-proc.Done():
		return
	case <-time.After(s.cfg.StopGracePeriod):
	}
	slog.WarnContext(ctx, "supervisor: grace period expired, killing runtime", "pid", proc.PID())
	_ = proc.Signal(syscall.SIGKILL)
	select {
	case <-proc.Done():
	case <-time.After(s.cfg.StopGracePeriod):
		slog.ErrorContext(ctx, "supervisor: runtime did not exit after SIGKILL", "pid", proc.PID())
	}
}

func (s *Supervisor) Acknowledge(ctx context.Context, id string) (*agent.Agent, error) {
	e := s.entry(id)
	e.mu.Lock()
	defer e.mu.Unlock()

	a, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	switch a.Status {
	case agent.StatusStopped:
		return a, nil
	case agent.StatusCrashed:
		if err := s.acknowledgeLocked(ctx, a); err != nil {
			return nil, err
		}
		return a, nil
	default:
		return nil, cerr.Conflict("agent is " + string(a.Status) + ", nothing to acknowledge")
	}
}

func (s *Supervisor) acknowledgeLocked(ctx context.Context, a *agent.Agent) error {
	a.LastError = ""
	return s.transition(ctx, a, agent.StatusStopped, eventbus.TypeAgentStopped, map[string]any{"acknowledged": true})
}

func (s *Supervisor) Restart(ctx context.Context, id string) (*agent.Agent, error) {
	e := s.entry(id)
	e.mu.Lock()
	defer e.mu.Unlock()

	a, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.restartLocked(ctx, e, a)
}

func (s *Supervisor) restartLocked(ctx context.Context, e *entry, a *agent.Agent) (*agent.Agent, error) {
	port := a.Port
	switch a.Status {
	case agent.StatusCrashed:
		if err := s.acknowledgeLocked(ctx, a); err != nil {
			return nil, err
		}
	case agent.StatusRunning, agent.StatusStarting, agent.StatusStopping:
		if err := s.stopLocked(ctx, e, a); err != nil {
			return nil, err
		}
	}
	return s.startLocked(ctx, e, a, port)
}

func (s *Supervisor) Toggle(ctx context.Context, id string) (*agent.Agent, error) {
	e := s.entry(id)
	e.mu.Lock()
	defer e.mu.Unlock()

	a, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	switch a.Status {
	case agent.StatusStopped:
		return s.startLocked(ctx, e, a, 0)
	case agent.StatusRunning:
		if err := s.stopLocked(ctx, e, a); err != nil {
			return nil, err
		}
		return a, nil
	case agent.StatusCrashed:
		if err := s.acknowledgeLocked(ctx, a); err != nil {
			return nil, err
		}
		return a, nil
	default:
		return nil, cerr.Conflict("agent is " + string(a.Status))
	}
}

// ApplyConfig updates the stored configuration and brings a running runtime
// in line, live when possible and by a stop+start cycle otherwise.
func (s *Supervisor) ApplyConfig(ctx context.Context, id string, mutate func(*agent.Agent) error) (*agent.Agent, bool, error) {
	e := s.entry(id)
	e.mu.Lock()
	defer e.mu.Unlock()

	a, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, false, err
	}
	old := a.Clone()
	if err := mutate(a); err != nil {
		return nil, false, err
	}
	// Runtime fields belong to the supervisor.
	a.Status, a.Port, a.PID, a.LastError = old.Status, old.Port, old.PID, old.LastError
	a.ID, a.ProjectID, a.CreatedAt = old.ID, old.ProjectID, old.CreatedAt
	a.UpdatedAt = s.now()
	if err := s.repo.Update(ctx, a); err != nil {
		return nil, false, err
	}
	diff := configDiff(old, a)
	s.bus.Emit(ctx, eventbus.CategoryLifecycle, eventbus.TypeAgentUpdated, a.ID, "", map[string]any{
		"agent": agent.ToAPI(a),
		"diff":  diff,
	})

	cur := e.live.Load()
	if a.Status != agent.StatusRunning || cur == nil {
		return a, false, nil
	}
	if err := s.writeConfig(a); err != nil {
		slog.WarnContext(ctx, "supervisor: failed to rewrite runtime config", "agent_id", a.ID, "error", err)
	}

	restart := agent.RequiresRestart(old, a)
	revision := ""
	if !restart {
		res, err := cur.runtime.ApplyConfig(ctx, agent.RuntimeConfig(a))
		switch {
		case err != nil:
			// The rewritten config file is picked up by the runtime's watcher.
			slog.WarnContext(ctx, "supervisor: live config push failed", "agent_id", a.ID, "error", err)
		case res.RestartRequired:
			restart = true
		default:
			revision = res.ConfigRevision
		}
	}
	if restart {
		a, err = s.restartLocked(ctx, e, a)
		if err != nil {
			return nil, false, err
		}
	}
	s.bus.Emit(ctx, eventbus.CategoryLifecycle, eventbus.TypeAgentConfigApplied, a.ID, "", map[string]any{
		"restarted":       restart,
		"config_revision": revision,
		"diff":            diff,
	})
	return a, restart, nil
}

func configDiff(old, updated *agent.Agent) string {
	a, errA := yaml.Marshal(agent.RuntimeConfig(old))
	b, errB := yaml.Marshal(agent.RuntimeConfig(updated))
	if errA != nil || errB != nil {
		return ""
	}
	diff, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(string(a)),
		B:        difflib.SplitLines(string(b)),
		FromFile: "before",
		ToFile:   "after",
		Context:  2,
	})
	if err != nil {
		return ""
	}
	return diff
}

// HealthCheck reports whether the agent is running, its process is alive
// and its runtime answers a ping within the health timeout.
func (s *Supervisor) HealthCheck(ctx context.Context, id string) bool {
	cur := s.entry(id).live.Load()
	if cur == nil || exited(cur.proc) {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, s.cfg.HealthTimeout)
	defer cancel()
	_, err := cur.runtime.Ping(ctx)
	return err == nil
}

// Remove stops the agent if needed and deletes its record.
func (s *Supervisor) Remove(ctx context.Context, id string) error {
	e := s.entry(id)
	e.mu.Lock()
	defer e.mu.Unlock()

	a, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if a.Status.Live() {
		if err := s.stopLocked(ctx, e, a); err != nil {
			return err
		}
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	if err := os.RemoveAll(filepath.Join(s.cfg.RuntimeDir, id)); err != nil {
		slog.WarnContext(ctx, "supervisor: failed to remove runtime dir", "agent_id", id, "error", err)
	}
	s.mu.Lock()
	delete(s.procs, id)
	s.mu.Unlock()
	return nil
}

// ExecuteTask forwards a task to the agent's runtime.
func (s *Supervisor) ExecuteTask(ctx context.Context, agentID string, req *agentguildv1.ExecuteTaskRequest, onStep func(*agentguildv1.Step) error) (*agentguildv1.TaskOutcome, error) {
	cur := s.entry(agentID).live.Load()
	if cur == nil {
		return nil, cerr.Unreachable("agent is not running", nil)
	}
	return cur.runtime.ExecuteTask(ctx, req, onStep)
}

// Notify delivers a delegation result to a coordinator's runtime.
func (s *Supervisor) Notify(ctx context.Context, agentID string, result *agentguildv1.DelegationResult) error {
	cur := s.entry(agentID).live.Load()
	if cur == nil {
		return cerr.Unreachable("agent is not running", nil)
	}
	ctx, cancel := context.WithTimeout(ctx, s.cfg.HealthTimeout)
	defer cancel()
	return cur.runtime.Notify(ctx, result)
}
