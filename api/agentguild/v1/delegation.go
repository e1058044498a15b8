package agentguildv1

import "time"

type DelegateRequest struct {
	FromAgentID string     `json:"from_agent_id"`
	ToAgentID   string     `json:"to_agent_id"`
	Title       string     `json:"title"`
	Prompt      string     `json:"prompt"`
	Priority    int32      `json:"priority,omitempty"`
	ExecuteAt   *time.Time `json:"execute_at,omitempty"`
	Type        string     `json:"type,omitempty"`       // only "once" is accepted
	Recurrence  string     `json:"recurrence,omitempty"` // must be empty
}

// DelegationResult tells a coordinator that a task it delegated finished.
type DelegationResult struct {
	CoordinatorID string    `json:"coordinator_id"`
	WorkerID      string    `json:"worker_id"`
	TaskID        string    `json:"task_id"`
	RunID         string    `json:"run_id"`
	Title         string    `json:"title"`
	Status        string    `json:"status"`
	Result        string    `json:"result,omitempty"`
	Error         string    `json:"error,omitempty"`
	CompletedAt   time.Time `json:"completed_at"`
}

type CoordinatorRequest struct {
	CoordinatorID string `json:"coordinator_id"`
}

type ListDelegationResultsResponse struct {
	Results []*DelegationResult `json:"results"`
}
