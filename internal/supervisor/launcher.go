package supervisor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"mvdan.cc/sh/v3/shell"
)

// Process is a launched runtime. Signals go to its whole process group.
type Process interface {
	PID() int
	// Done is closed once the process has exited and been reaped.
	Done() <-chan struct{}
	Signal(sig syscall.Signal) error
}

type LaunchSpec struct {
	AgentID    string
	Port       int
	ConfigPath string
	LogPath    string
	Model      string
	// DrainTimeout bounds how long the runtime waits for in-flight tasks
	// after SIGTERM. It must end before the supervisor escalates to SIGKILL.
	DrainTimeout time.Duration
}

type Launcher interface {
	Launch(ctx context.Context, spec LaunchSpec) (Process, error)
}

// ExecLauncher starts the runtime command as a child process in its own
// process group, with output appended to the agent's log file.
type ExecLauncher struct {
	argv []string
}

// NewExecLauncher splits commandLine with shell quoting rules. Environment
// references are expanded from the supervisor's environment.
func NewExecLauncher(commandLine string) (*ExecLauncher, error) {
	argv, err := shell.Fields(commandLine, os.Getenv)
	if err != nil {
		return nil, fmt.Errorf("parse runtime command %q: %w", commandLine, err)
	}
	if len(argv) == 0 {
		return nil, errors.New("runtime command is empty")
	}
	return &ExecLauncher{argv: argv}, nil
}

func (l *ExecLauncher) Launch(_ context.Context, spec LaunchSpec) (Process, error) {
	args := append(l.argv[1:len(l.argv):len(l.argv)],
		"--agent-id", spec.AgentID,
		"--port", strconv.Itoa(spec.Port),
		"--config", spec.ConfigPath,
	)
	// The process must outlive the request that started it.
	cmd := exec.Command(l.argv[0], args...) //nolint:gosec // operator-configured runtime command
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Env = append(os.Environ(), "ANTHROPIC_MODEL="+spec.Model)
	if spec.DrainTimeout > 0 {
		cmd.Env = append(cmd.Env, "AGENTGUILD_RUNTIME_DRAIN_TIMEOUT="+spec.DrainTimeout.String())
	}

	if err := os.MkdirAll(filepath.Dir(spec.LogPath), 0o700); err != nil {
		return nil, fmt.Errorf("create runtime log dir: %w", err)
	}
	logFile, err := os.OpenFile(spec.LogPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600) //nolint:gosec // path derived from agent id
	if err != nil {
		return nil, fmt.Errorf("open runtime log %s: %w", spec.LogPath, err)
	}
	cmd.Stdout = logFile
	cmd.Stderr = logFile

	err = cmd.Start()
	// The child holds its own copy of the descriptor.
	_ = logFile.Close()
	if err != nil {
		return nil, fmt.Errorf("start runtime for agent %s: %w", spec.AgentID, err)
	}

	p := &execProcess{cmd: cmd, done: make(chan struct{})}
	go func() {
		_ = cmd.Wait()
		close(p.done)
	}()
	return p, nil
}

type execProcess struct {
	cmd  *exec.Cmd
	done chan struct{}
}

func (p *execProcess) PID() int {
	return p.cmd.Process.Pid
}

func (p *execProcess) Done() <-chan struct{} {
	return p.done
}

func (p *execProcess) Signal(sig syscall.Signal) error {
	select {
	case <-p.done:
		return os.ErrProcessDone
	default:
	}
	return syscall.Kill(-p.cmd.Process.Pid, sig)
}

func exited(p Process) bool {
	select {
	case <-p.Done():
		return true
	default:
		return false
	}
}
