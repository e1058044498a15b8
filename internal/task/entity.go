package task

import (
	"slices"
	"time"
)

type Type string

const (
	TypeOnce      Type = "once"
	TypeRecurring Type = "recurring"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Finished reports whether a run has ended, successfully or not.
func (s Status) Finished() bool {
	return s == StatusCompleted || s == StatusFailed
}

type Source string

const (
	SourceLocal     Source = "local"
	SourceDelegated Source = "delegated"
)

type Task struct {
	ID          string     `yaml:"id"`
	AgentID     string     `yaml:"agent_id"`
	ProjectID   string     `yaml:"project_id"`
	Title       string     `yaml:"title"`
	Prompt      string     `yaml:"prompt"`
	Type        Type       `yaml:"type"`
	Status      Status     `yaml:"status"`
	Priority    int        `yaml:"priority"`
	ExecuteAt   *time.Time `yaml:"execute_at,omitempty"`
	Recurrence  string     `yaml:"recurrence,omitempty"`
	NextRun     *time.Time `yaml:"next_run,omitempty"`
	ExecutedAt  *time.Time `yaml:"executed_at,omitempty"`
	CompletedAt *time.Time `yaml:"completed_at,omitempty"`
	Result      string     `yaml:"result,omitempty"`
	Error       string     `yaml:"error,omitempty"`
	Source      Source     `yaml:"source"`
	DelegatedBy string     `yaml:"delegated_by,omitempty"`
	RunCount    int        `yaml:"run_count"`
	ActiveRunID string     `yaml:"active_run_id,omitempty"`
	CreatedAt   time.Time  `yaml:"created_at"`
	UpdatedAt   time.Time  `yaml:"updated_at"`
}

func (t *Task) Clone() *Task {
	c := *t
	c.ExecuteAt = cloneTime(t.ExecuteAt)
	c.NextRun = cloneTime(t.NextRun)
	c.ExecutedAt = cloneTime(t.ExecutedAt)
	c.CompletedAt = cloneTime(t.CompletedAt)
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// DueAt is the instant the task next becomes eligible for automatic
// dispatch, or nil when it never will on its own.
func (t *Task) DueAt() *time.Time {
	switch t.Type {
	case TypeRecurring:
		return t.NextRun
	default:
		return t.ExecuteAt
	}
}

// Due reports whether the tick loop should pick the task up at now.
func (t *Task) Due(now time.Time) bool {
	switch t.Type {
	case TypeRecurring:
		if t.Status != StatusPending && !t.Status.Finished() {
			return false
		}
		return t.NextRun != nil && !t.NextRun.After(now)
	default:
		return t.Status == StatusPending && t.ExecuteAt != nil && !t.ExecuteAt.After(now)
	}
}

// Cancellable reports whether Cancel may stop future dispatch. A recurring
// task rests in completed or failed between occurrences.
func (t *Task) Cancellable() bool {
	if t.Status == StatusPending {
		return true
	}
	return t.Type == TypeRecurring && t.Status.Finished()
}

// Editable reports whether the user may change the task definition.
func (t *Task) Editable() bool {
	return t.Status == StatusPending || t.Status.Finished()
}

type Role string

const (
	RoleUser       Role = "user"
	RoleAssistant  Role = "assistant"
	RoleToolCall   Role = "tool_call"
	RoleToolResult Role = "tool_result"
	RoleSystem     Role = "system"
)

var roles = []Role{RoleUser, RoleAssistant, RoleToolCall, RoleToolResult, RoleSystem}

func (r Role) Valid() bool {
	return slices.Contains(roles, r)
}

// Step is one immutable entry of a task trajectory.
type Step struct {
	TaskID     string    `yaml:"task_id"`
	RunID      string    `yaml:"run_id"`
	Seq        int       `yaml:"seq"`
	Role       Role      `yaml:"role"`
	Content    string    `yaml:"content"`
	ToolName   string    `yaml:"tool_name,omitempty"`
	ToolCallID string    `yaml:"tool_call_id,omitempty"`
	CreatedAt  time.Time `yaml:"created_at"`
}
