package agentguildv1

import "time"

type PingResponse struct {
	AgentID        string    `json:"agent_id"`
	ConfigRevision string    `json:"config_revision"`
	InFlight       int32     `json:"in_flight"`
	StartedAt      time.Time `json:"started_at"`
}

type ApplyConfigRequest struct {
	Config *AgentConfig `json:"config"`
}

type ApplyConfigResponse struct {
	Applied         bool   `json:"applied"`
	RestartRequired bool   `json:"restart_required"`
	ConfigRevision  string `json:"config_revision"`
}

type ExecuteTaskRequest struct {
	TaskID      string `json:"task_id"`
	RunID       string `json:"run_id"`
	Title       string `json:"title"`
	Prompt      string `json:"prompt"`
	DelegatedBy string `json:"delegated_by,omitempty"`
}

// ExecuteTaskEvent is one message of the ExecuteTask stream: zero or more
// steps followed by exactly one outcome.
type ExecuteTaskEvent struct {
	Step    *Step        `json:"step,omitempty"`
	Outcome *TaskOutcome `json:"outcome,omitempty"`
}

type TaskOutcome struct {
	Succeeded bool   `json:"succeeded"`
	Result    string `json:"result,omitempty"`
	Error     string `json:"error,omitempty"`
}

type NotifyRequest struct {
	Result *DelegationResult `json:"result"`
}
