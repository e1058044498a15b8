package eventbus

import (
	"time"
)

type Category string

const (
	CategoryLifecycle  Category = "lifecycle"
	CategoryTask       Category = "task"
	CategoryDelegation Category = "delegation"
	CategoryActivity   Category = "activity"
)

// Event types. The prefix before the dot names the resource.
const (
	TypeAgentCreated       = "agent.created"
	TypeAgentUpdated       = "agent.updated"
	TypeAgentDeleted       = "agent.deleted"
	TypeAgentStarting      = "agent.starting"
	TypeAgentRunning       = "agent.running"
	TypeAgentStopping      = "agent.stopping"
	TypeAgentStopped       = "agent.stopped"
	TypeAgentCrashed       = "agent.crashed"
	TypeAgentConfigApplied = "agent.config_applied"

	TypeTaskCreated   = "task.created"
	TypeTaskUpdated   = "task.updated"
	TypeTaskDeleted   = "task.deleted"
	TypeTaskRunning   = "task.running"
	TypeTaskRequeued  = "task.requeued" // manual execution found the agent unreachable; not a transition
	TypeTaskCompleted = "task.completed"
	TypeTaskFailed    = "task.failed"
	TypeTaskCancelled = "task.cancelled"

	TypeDelegationCreated  = "delegation.created"
	TypeDelegationNotified = "delegation.notified"

	TypeActivityStep = "activity.step"
)

// Event is immutable once published; subscribers share the same pointer.
type Event struct {
	ID        string
	Seq       uint64
	Type      string
	Category  Category
	AgentID   string
	ThreadID  string
	TaskID    string
	Timestamp time.Time
	Data      map[string]any
}

const (
	DefaultQueryLimit = 100
	MaxQueryLimit     = 1000
)

// Filter selects events. Zero fields match everything. Without a cursor
// (Since, SinceSeq) a query returns the latest Limit events; with one it
// returns the first Limit events after the cursor. Results are always in
// ascending Seq order.
type Filter struct {
	Category Category
	AgentID  string
	Type     string
	TaskID   string
	Since    time.Time
	SinceSeq uint64
	Limit    int
}

func (f Filter) Match(e *Event) bool {
	if f.Category != "" && e.Category != f.Category {
		return false
	}
	if f.AgentID != "" && e.AgentID != f.AgentID {
		return false
	}
	if f.Type != "" && e.Type != f.Type {
		return false
	}
	if f.TaskID != "" && e.TaskID != f.TaskID {
		return false
	}
	if !f.Since.IsZero() && !e.Timestamp.After(f.Since) {
		return false
	}
	if f.SinceSeq > 0 && e.Seq <= f.SinceSeq {
		return false
	}
	return true
}

func (f Filter) hasCursor() bool {
	return !f.Since.IsZero() || f.SinceSeq > 0
}

func (f Filter) limit() int {
	switch {
	case f.Limit <= 0:
		return DefaultQueryLimit
	case f.Limit > MaxQueryLimit:
		return MaxQueryLimit
	default:
		return f.Limit
	}
}
