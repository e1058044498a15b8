package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"connectrpc.com/connect"

	agentguildv1 "github.com/kazz187/agentguild/api/agentguild/v1"
	"github.com/kazz187/agentguild/api/agentguild/v1/agentguildv1connect"
	"github.com/kazz187/agentguild/pkg/cerr"
	"github.com/kazz187/agentguild/pkg/clog"
	"github.com/kazz187/agentguild/pkg/filewatch"
)

const (
	maxPendingResults = 100
	maxSeenResults    = 1024

	drainPoll = 50 * time.Millisecond
)

var _ agentguildv1connect.RuntimeServiceHandler = (*Server)(nil)

type Server struct {
	exec      Executor
	now       func() time.Time
	startedAt time.Time
	inFlight  atomic.Int32
	draining  atomic.Bool

	mu       sync.RWMutex
	cfg      *agentguildv1.AgentConfig
	revision string

	inboxMu sync.Mutex
	pending []*agentguildv1.DelegationResult
	seen    map[string]struct{}
	order   []string
}

func NewServer(cfg *agentguildv1.AgentConfig, exec Executor) *Server {
	return &Server{
		exec:      exec,
		now:       time.Now,
		startedAt: time.Now(),
		cfg:       cfg,
		revision:  Revision(cfg),
		seen:      make(map[string]struct{}),
	}
}

func (s *Server) config() (*agentguildv1.AgentConfig, string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg, s.revision
}

func (s *Server) Ping(ctx context.Context, req *connect.Request[agentguildv1.Empty]) (*connect.Response[agentguildv1.PingResponse], error) {
	cfg, rev := s.config()
	return connect.NewResponse(&agentguildv1.PingResponse{
		AgentID:        cfg.AgentID,
		ConfigRevision: rev,
		InFlight:       s.inFlight.Load(),
		StartedAt:      s.startedAt,
	}), nil
}

func (s *Server) ApplyConfig(ctx context.Context, req *connect.Request[agentguildv1.ApplyConfigRequest]) (*connect.Response[agentguildv1.ApplyConfigResponse], error) {
	updated := req.Msg.Config
	if updated == nil {
		return nil, cerr.Validation("config is required", cerr.FieldViolation{Field: "config", Message: "must be set"})
	}
	if err := validateConfig(updated); err != nil {
		return nil, err
	}
	applied, restart, rev, err := s.apply(ctx, updated)
	if err != nil {
		return nil, err
	}
	return connect.NewResponse(&agentguildv1.ApplyConfigResponse{
		Applied:         applied,
		RestartRequired: restart,
		ConfigRevision:  rev,
	}), nil
}

// apply swaps the config in place. Tasks already running keep the snapshot
// they started with.
func (s *Server) apply(ctx context.Context, updated *agentguildv1.AgentConfig) (applied, restart bool, rev string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if updated.AgentID != s.cfg.AgentID {
		return false, false, "", cerr.Validation("config belongs to another agent",
			cerr.FieldViolation{Field: "config.agent_id", Message: fmt.Sprintf("expected %s", s.cfg.AgentID)})
	}
	if needsRestart(s.cfg, updated) {
		slog.InfoContext(ctx, "runtime: config change requires restart",
			"agent_id", s.cfg.AgentID, "provider", updated.Provider, "model", updated.Model)
		return false, true, s.revision, nil
	}
	rev = Revision(updated)
	if rev != s.revision {
		s.cfg = updated
		s.revision = rev
		slog.InfoContext(ctx, "runtime: config applied", "agent_id", updated.AgentID, "revision", rev)
	}
	return true, false, rev, nil
}

// Reload re-reads the config file. It is the hot-reload path used when the
// file changes on disk.
func (s *Server) Reload(ctx context.Context, path string) error {
	cfg, err := LoadConfig(path)
	if err != nil {
		return err
	}
	_, restart, _, err := s.apply(ctx, cfg)
	if err != nil {
		return err
	}
	if restart {
		slog.WarnContext(ctx, "runtime: config file changed a field that needs a restart, keeping current config", "path", path)
	}
	return nil
}

// Watch reloads the config whenever the file at path changes, until ctx is
// done. loaded is the hash of the content the server was built from, so an
// edit that lands before the watch starts is still applied.
func (s *Server) Watch(ctx context.Context, path string, loaded filewatch.Sum) error {
	w := filewatch.New(path, func(filewatch.Sum) {
		if err := s.Reload(ctx, path); err != nil {
			slog.ErrorContext(ctx, "runtime: failed to reload config", "path", path, "error", err)
		}
	}, filewatch.WithInitialSum(loaded))
	return w.Run(ctx)
}

func (s *Server) ExecuteTask(ctx context.Context, req *connect.Request[agentguildv1.ExecuteTaskRequest], stream *connect.ServerStream[agentguildv1.ExecuteTaskEvent]) error {
	msg := req.Msg
	var violations []cerr.FieldViolation
	if msg.TaskID == "" {
		violations = append(violations, cerr.FieldViolation{Field: "task_id", Message: "must not be empty"})
	}
	if msg.RunID == "" {
		violations = append(violations, cerr.FieldViolation{Field: "run_id", Message: "must not be empty"})
	}
	if strings.TrimSpace(msg.Prompt) == "" {
		violations = append(violations, cerr.FieldViolation{Field: "prompt", Message: "must not be empty"})
	}
	if len(violations) > 0 {
		return cerr.Validation("invalid task", violations...)
	}

	s.inFlight.Add(1)
	defer s.inFlight.Add(-1)
	// Checked after the increment so Drain never misses a task it let in.
	if s.draining.Load() {
		return cerr.Unreachable("runtime is shutting down", nil)
	}
	clog.AddAttributes(ctx, map[string]any{"task_id": msg.TaskID, "run_id": msg.RunID})

	cfg, _ := s.config()
	var seq int32
	emit := func(role, content string) error {
		seq++
		return stream.Send(&agentguildv1.ExecuteTaskEvent{Step: &agentguildv1.Step{
			TaskID:    msg.TaskID,
			RunID:     msg.RunID,
			Seq:       seq,
			Role:      role,
			Content:   content,
			CreatedAt: s.now(),
		}})
	}

	prompt := msg.Prompt
	if results := s.takePending(); len(results) > 0 {
		note := formatResults(results)
		if err := emit(roleSystem, note); err != nil {
			return err
		}
		prompt = note + "\n\n" + prompt
	}
	if err := emit(roleUser, msg.Prompt); err != nil {
		return err
	}

	result, err := s.exec.Execute(ctx, cfg, prompt, emit)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	outcome := &agentguildv1.TaskOutcome{Succeeded: err == nil, Result: result}
	if err != nil {
		slog.WarnContext(ctx, "runtime: task failed", "task_id", msg.TaskID, "run_id", msg.RunID, "error", err)
		outcome.Error = err.Error()
	}
	return stream.Send(&agentguildv1.ExecuteTaskEvent{Outcome: outcome})
}

// Drain refuses new tasks and waits for the ones in flight to finish. It
// returns ctx's error when they are still running at the deadline.
func (s *Server) Drain(ctx context.Context) error {
	s.draining.Store(true)
	ticker := time.NewTicker(drainPoll)
	defer ticker.Stop()
	for s.inFlight.Load() > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}

func (s *Server) Notify(ctx context.Context, req *connect.Request[agentguildv1.NotifyRequest]) (*connect.Response[agentguildv1.Empty], error) {
	r := req.Msg.Result
	if r == nil || r.TaskID == "" || r.RunID == "" {
		return nil, cerr.Validation("result with task_id and run_id is required")
	}
	cfg, _ := s.config()
	if r.CoordinatorID != "" && r.CoordinatorID != cfg.AgentID {
		return nil, cerr.Validation("result is addressed to another agent",
			cerr.FieldViolation{Field: "result.coordinator_id", Message: fmt.Sprintf("expected %s", cfg.AgentID)})
	}
	s.addPending(r)
	return connect.NewResponse(&agentguildv1.Empty{}), nil
}

func (s *Server) addPending(r *agentguildv1.DelegationResult) {
	key := r.TaskID + "/" + r.RunID
	s.inboxMu.Lock()
	defer s.inboxMu.Unlock()
	if _, dup := s.seen[key]; dup {
		return
	}
	s.seen[key] = struct{}{}
	s.order = append(s.order, key)
	if len(s.order) > maxSeenResults {
		delete(s.seen, s.order[0])
		s.order = s.order[1:]
	}
	s.pending = append(s.pending, r)
	if len(s.pending) > maxPendingResults {
		s.pending = s.pending[len(s.pending)-maxPendingResults:]
	}
}

func (s *Server) takePending() []*agentguildv1.DelegationResult {
	s.inboxMu.Lock()
	defer s.inboxMu.Unlock()
	out := s.pending
	s.pending = nil
	return out
}

// Pending returns the delegation results not yet handed to a task.
func (s *Server) Pending() []*agentguildv1.DelegationResult {
	s.inboxMu.Lock()
	defer s.inboxMu.Unlock()
	return append([]*agentguildv1.DelegationResult(nil), s.pending...)
}

func formatResults(results []*agentguildv1.DelegationResult) string {
	var sb strings.Builder
	sb.WriteString("Results of tasks you delegated:")
	for _, r := range results {
		fmt.Fprintf(&sb, "\n- %q by %s: %s", r.Title, r.WorkerID, r.Status)
		switch {
		case r.Error != "":
			fmt.Fprintf(&sb, " (%s)", r.Error)
		case r.Result != "":
			fmt.Fprintf(&sb, "\n  %s", strings.ReplaceAll(r.Result, "\n", "\n  "))
		}
	}
	return sb.String()
}
