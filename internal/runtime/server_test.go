package runtime

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"connectrpc.com/connect"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	agentguildv1 "github.com/kazz187/agentguild/api/agentguild/v1"
	"github.com/kazz187/agentguild/api/agentguild/v1/agentguildv1connect"
	"github.com/kazz187/agentguild/internal/supervisor"
	"github.com/kazz187/agentguild/pkg/cerr"
	"github.com/kazz187/agentguild/pkg/filewatch"
)

func testConfig() *agentguildv1.AgentConfig {
	return &agentguildv1.AgentConfig{
		AgentID:  "a1",
		Name:     "planner",
		Provider: "anthropic",
		Model:    "claude-sonnet",
	}
}

// serve exposes s on a loopback port and returns the supervisor-side
// control channel for it.
func serve(t *testing.T, s *Server) supervisor.Runtime {
	t.Helper()
	mux := http.NewServeMux()
	mux.Handle(agentguildv1connect.NewRuntimeServiceHandler(s, connect.WithInterceptors(cerr.NewConvertConnectErrorInterceptor())))
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	port := srv.Listener.Addr().(*net.TCPAddr).Port
	return supervisor.ConnectDialer(srv.Client())(port)
}

func TestPing(t *testing.T) {
	s := NewServer(testConfig(), EchoExecutor{})
	rt := serve(t, s)

	res, err := rt.Ping(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "a1", res.AgentID)
	assert.Equal(t, Revision(testConfig()), res.ConfigRevision)
	assert.Zero(t, res.InFlight)
	assert.False(t, res.StartedAt.IsZero())
}

func TestExecuteTaskStreamsStepsThenOutcome(t *testing.T) {
	s := NewServer(testConfig(), EchoExecutor{})
	rt := serve(t, s)

	var steps []*agentguildv1.Step
	outcome, err := rt.ExecuteTask(context.Background(), &agentguildv1.ExecuteTaskRequest{
		TaskID: "t1", RunID: "r1", Title: "hello", Prompt: "say hi",
	}, func(step *agentguildv1.Step) error {
		steps = append(steps, step)
		return nil
	})
	require.NoError(t, err)
	assert.True(t, outcome.Succeeded)
	assert.Equal(t, "[planner] say hi", outcome.Result)

	require.Len(t, steps, 2)
	assert.Equal(t, roleUser, steps[0].Role)
	assert.Equal(t, "say hi", steps[0].Content)
	assert.Equal(t, roleAssistant, steps[1].Role)
	for i, step := range steps {
		assert.Equal(t, int32(i+1), step.Seq)
		assert.Equal(t, "t1", step.TaskID)
		assert.Equal(t, "r1", step.RunID)
	}
}

func TestExecuteTaskFailureIsOutcome(t *testing.T) {
	s := NewServer(testConfig(), EchoExecutor{})
	rt := serve(t, s)

	outcome, err := rt.ExecuteTask(context.Background(), &agentguildv1.ExecuteTaskRequest{
		TaskID: "t1", RunID: "r1", Prompt: "fail: quota exceeded",
	}, func(*agentguildv1.Step) error { return nil })
	require.NoError(t, err)
	assert.False(t, outcome.Succeeded)
	assert.Equal(t, "quota exceeded", outcome.Error)
}

type blockingExecutor struct {
	started chan struct{}
}

func (e *blockingExecutor) Execute(ctx context.Context, _ *agentguildv1.AgentConfig, _ string, _ EmitFunc) (string, error) {
	close(e.started)
	<-ctx.Done()
	return "", ctx.Err()
}

// gatedExecutor holds every task until release is closed.
type gatedExecutor struct {
	started chan struct{}
	release chan struct{}
}

func (e *gatedExecutor) Execute(ctx context.Context, _ *agentguildv1.AgentConfig, prompt string, _ EmitFunc) (string, error) {
	close(e.started)
	select {
	case <-e.release:
		return "finished " + prompt, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func TestDrainWaitsForInFlightTask(t *testing.T) {
	exec := &gatedExecutor{started: make(chan struct{}), release: make(chan struct{})}
	s := NewServer(testConfig(), exec)
	rt := serve(t, s)
	noop := func(*agentguildv1.Step) error { return nil }

	type result struct {
		outcome *agentguildv1.TaskOutcome
		err     error
	}
	done := make(chan result, 1)
	go func() {
		outcome, err := rt.ExecuteTask(context.Background(), &agentguildv1.ExecuteTaskRequest{TaskID: "t1", RunID: "r1", Prompt: "wait"}, noop)
		done <- result{outcome, err}
	}()
	<-exec.started

	drained := make(chan error, 1)
	go func() { drained <- s.Drain(context.Background()) }()
	require.Eventually(t, s.draining.Load, time.Second, 10*time.Millisecond)

	_, err := rt.ExecuteTask(context.Background(), &agentguildv1.ExecuteTaskRequest{TaskID: "t2", RunID: "r2", Prompt: "late"}, noop)
	assert.True(t, cerr.IsKind(err, cerr.KindUnreachable), "got %v", err)

	select {
	case <-drained:
		t.Fatal("drain returned while a task was in flight")
	case <-time.After(200 * time.Millisecond):
	}

	close(exec.release)
	select {
	case r := <-done:
		require.NoError(t, r.err)
		assert.True(t, r.outcome.Succeeded)
		assert.Equal(t, "finished wait", r.outcome.Result)
	case <-time.After(5 * time.Second):
		t.Fatal("in-flight task did not finish")
	}
	select {
	case err := <-drained:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("drain did not return after the task finished")
	}
}

func TestDrainDeadline(t *testing.T) {
	exec := &gatedExecutor{started: make(chan struct{}), release: make(chan struct{})}
	defer close(exec.release)
	s := NewServer(testConfig(), exec)
	rt := serve(t, s)

	go func() {
		_, _ = rt.ExecuteTask(context.Background(), &agentguildv1.ExecuteTaskRequest{TaskID: "t1", RunID: "r1", Prompt: "wait"},
			func(*agentguildv1.Step) error { return nil })
	}()
	<-exec.started

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, s.Drain(ctx), context.DeadlineExceeded)
	assert.Equal(t, int32(1), s.inFlight.Load())
}

func TestInFlightCount(t *testing.T) {
	exec := &blockingExecutor{started: make(chan struct{})}
	s := NewServer(testConfig(), exec)
	rt := serve(t, s)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := rt.ExecuteTask(ctx, &agentguildv1.ExecuteTaskRequest{TaskID: "t1", RunID: "r1", Prompt: "wait"},
			func(*agentguildv1.Step) error { return nil })
		done <- err
	}()

	<-exec.started
	res, err := rt.Ping(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(1), res.InFlight)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("ExecuteTask did not return after cancel")
	}
	assert.Eventually(t, func() bool { return s.inFlight.Load() == 0 }, time.Second, 10*time.Millisecond)
}

func TestExecuteTaskValidation(t *testing.T) {
	s := NewServer(testConfig(), EchoExecutor{})
	err := s.ExecuteTask(context.Background(), connect.NewRequest(&agentguildv1.ExecuteTaskRequest{TaskID: "t1"}), nil)
	assert.True(t, cerr.IsKind(err, cerr.KindValidation))
}

func TestApplyConfig(t *testing.T) {
	s := NewServer(testConfig(), EchoExecutor{})
	rt := serve(t, s)
	ctx := context.Background()
	before := Revision(testConfig())

	t.Run("in place", func(t *testing.T) {
		cfg := testConfig()
		cfg.SystemPrompt = "be brief"
		res, err := rt.ApplyConfig(ctx, cfg)
		require.NoError(t, err)
		assert.True(t, res.Applied)
		assert.False(t, res.RestartRequired)
		assert.NotEqual(t, before, res.ConfigRevision)

		current, _ := s.config()
		assert.Equal(t, "be brief", current.SystemPrompt)
	})

	t.Run("same config is a no-op", func(t *testing.T) {
		current, rev := s.config()
		res, err := rt.ApplyConfig(ctx, current)
		require.NoError(t, err)
		assert.True(t, res.Applied)
		assert.Equal(t, rev, res.ConfigRevision)
	})

	t.Run("model change needs restart", func(t *testing.T) {
		_, rev := s.config()
		cfg := testConfig()
		cfg.Model = "claude-opus"
		res, err := rt.ApplyConfig(ctx, cfg)
		require.NoError(t, err)
		assert.False(t, res.Applied)
		assert.True(t, res.RestartRequired)
		assert.Equal(t, rev, res.ConfigRevision)
	})

	t.Run("other agent", func(t *testing.T) {
		cfg := testConfig()
		cfg.AgentID = "a2"
		_, err := rt.ApplyConfig(ctx, cfg)
		assert.True(t, cerr.IsKind(err, cerr.KindValidation))
	})
}

func TestNotifyFeedsNextPrompt(t *testing.T) {
	s := NewServer(testConfig(), EchoExecutor{})
	rt := serve(t, s)
	ctx := context.Background()

	result := &agentguildv1.DelegationResult{
		CoordinatorID: "a1", WorkerID: "w1", TaskID: "t9", RunID: "r9",
		Title: "research", Status: "completed", Result: "found it",
	}
	require.NoError(t, rt.Notify(ctx, result))
	require.NoError(t, rt.Notify(ctx, result))
	assert.Len(t, s.Pending(), 1)

	var steps []*agentguildv1.Step
	outcome, err := rt.ExecuteTask(ctx, &agentguildv1.ExecuteTaskRequest{TaskID: "t1", RunID: "r1", Prompt: "summarize"},
		func(step *agentguildv1.Step) error {
			steps = append(steps, step)
			return nil
		})
	require.NoError(t, err)
	assert.True(t, outcome.Succeeded)
	require.Len(t, steps, 3)
	assert.Equal(t, roleSystem, steps[0].Role)
	assert.Contains(t, steps[0].Content, `"research" by w1: completed`)
	assert.Contains(t, steps[0].Content, "found it")
	assert.Empty(t, s.Pending())

	t.Run("wrong coordinator", func(t *testing.T) {
		other := *result
		other.CoordinatorID = "a2"
		other.RunID = "r10"
		err := rt.Notify(ctx, &other)
		assert.True(t, cerr.IsKind(err, cerr.KindValidation))
	})
}

func TestNotifyBounded(t *testing.T) {
	s := NewServer(testConfig(), EchoExecutor{})
	for i := 0; i < maxPendingResults+5; i++ {
		s.addPending(&agentguildv1.DelegationResult{TaskID: "t", RunID: fmt.Sprintf("r%d", i)})
	}
	pending := s.Pending()
	require.Len(t, pending, maxPendingResults)
	assert.Equal(t, "r5", pending[0].RunID)
}

func writeConfig(t *testing.T, path string, cfg *agentguildv1.AgentConfig) {
	t.Helper()
	data, err := yaml.Marshal(cfg)
	require.NoError(t, err)
	tmp := path + ".tmp"
	require.NoError(t, os.WriteFile(tmp, data, 0o600))
	require.NoError(t, os.Rename(tmp, path))
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	writeConfig(t, path, testConfig())

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, testConfig(), cfg)

	require.NoError(t, os.WriteFile(path, []byte("agent_id: a1\n"), 0o600))
	_, err = LoadConfig(path)
	assert.True(t, cerr.IsKind(err, cerr.KindValidation))

	_, err = LoadConfig(filepath.Join(dir, "missing.yaml"))
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestWatchReloadsConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	writeConfig(t, path, testConfig())

	loaded, err := filewatch.HashFile(path)
	require.NoError(t, err)

	s := NewServer(testConfig(), EchoExecutor{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = s.Watch(ctx, path, loaded) }()

	// One write, with no wait for the watcher: it lands either before the
	// directory is watched or as an fsnotify event, and both reload.
	cfg := testConfig()
	cfg.Description = "updated on disk"
	writeConfig(t, path, cfg)
	assert.Eventually(t, func() bool {
		current, _ := s.config()
		return current.Description == "updated on disk"
	}, 5*time.Second, 50*time.Millisecond)
}

func TestNewExecutor(t *testing.T) {
	exec, err := NewExecutor("echo", "", 0)
	require.NoError(t, err)
	assert.IsType(t, EchoExecutor{}, exec)

	exec, err = NewExecutor("claude", "/work", 5)
	require.NoError(t, err)
	assert.Equal(t, &ClaudeExecutor{WorkDir: "/work", MaxTurns: 5}, exec)

	_, err = NewExecutor("gpt", "", 0)
	assert.Error(t, err)
}
