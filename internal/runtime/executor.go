package runtime

import (
	"context"
	"errors"
	"fmt"
	"strings"

	claudeagent "github.com/kazz187/claude-agent-sdk-go"

	agentguildv1 "github.com/kazz187/agentguild/api/agentguild/v1"
)

const (
	roleUser      = "user"
	roleAssistant = "assistant"
	roleSystem    = "system"
)

// EmitFunc records one step of the trajectory.
type EmitFunc func(role, content string) error

// Executor runs a single prompt to completion. Task-level failures are
// returned as errors and reported to the caller as a failed outcome.
type Executor interface {
	Execute(ctx context.Context, cfg *agentguildv1.AgentConfig, prompt string, emit EmitFunc) (string, error)
}

// NewExecutor resolves an executor by name.
func NewExecutor(name, workDir string, maxTurns int) (Executor, error) {
	switch name {
	case "claude":
		return &ClaudeExecutor{WorkDir: workDir, MaxTurns: maxTurns}, nil
	case "echo":
		return EchoExecutor{}, nil
	default:
		return nil, fmt.Errorf("unknown executor %q", name)
	}
}

// EchoExecutor answers with the prompt itself. A prompt starting with
// "fail:" fails with the rest of the line as the error message.
type EchoExecutor struct{}

func (EchoExecutor) Execute(ctx context.Context, cfg *agentguildv1.AgentConfig, prompt string, emit EmitFunc) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	last := prompt
	if i := strings.LastIndex(prompt, "\n\n"); i >= 0 {
		last = prompt[i+2:]
	}
	if msg, ok := strings.CutPrefix(last, "fail:"); ok {
		return "", errors.New(strings.TrimSpace(msg))
	}
	out := fmt.Sprintf("[%s] %s", cfg.Name, last)
	if err := emit(roleAssistant, out); err != nil {
		return "", err
	}
	return out, nil
}

// ClaudeExecutor runs prompts through the Claude agent SDK. The model is
// taken from the process environment, which is set at startup.
type ClaudeExecutor struct {
	WorkDir  string
	MaxTurns int
}

func (e *ClaudeExecutor) Execute(ctx context.Context, cfg *agentguildv1.AgentConfig, prompt string, emit EmitFunc) (string, error) {
	opts := &claudeagent.ClaudeAgentOptions{
		SystemPrompt:   cfg.SystemPrompt,
		Cwd:            e.WorkDir,
		PermissionMode: claudeagent.PermissionModeBypassPermissions,
	}
	if e.MaxTurns > 0 {
		maxTurns := e.MaxTurns
		opts.MaxTurns = &maxTurns
	}

	result, err := claudeagent.RunQuerySync(ctx, prompt, opts)
	if err != nil {
		return "", fmt.Errorf("run claude query: %w", err)
	}
	if result.Result == nil {
		return "", errors.New("claude returned no result")
	}
	if result.Result.IsError {
		return "", errors.New(result.Result.Result)
	}
	if err := emit(roleAssistant, result.Result.Result); err != nil {
		return "", err
	}
	return result.Result.Result, nil
}
