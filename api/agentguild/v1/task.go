package agentguildv1

import "time"

type Task struct {
	ID          string     `json:"id"`
	AgentID     string     `json:"agent_id"`
	ProjectID   string     `json:"project_id"`
	Title       string     `json:"title"`
	Prompt      string     `json:"prompt"`
	Type        string     `json:"type"`
	Status      string     `json:"status"`
	Priority    int32      `json:"priority"`
	ExecuteAt   *time.Time `json:"execute_at,omitempty"`
	Recurrence  string     `json:"recurrence,omitempty"`
	NextRun     *time.Time `json:"next_run,omitempty"`
	ExecutedAt  *time.Time `json:"executed_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Result      string     `json:"result,omitempty"`
	Error       string     `json:"error,omitempty"`
	Source      string     `json:"source"`
	DelegatedBy string     `json:"delegated_by,omitempty"`
	RunCount    int32      `json:"run_count"`
	ActiveRunID string     `json:"active_run_id,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

type Step struct {
	TaskID     string    `json:"task_id"`
	RunID      string    `json:"run_id"`
	Seq        int32     `json:"seq"`
	Role       string    `json:"role"`
	Content    string    `json:"content"`
	ToolName   string    `json:"tool_name,omitempty"`
	ToolCallID string    `json:"tool_call_id,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

type CreateTaskRequest struct {
	AgentID    string     `json:"agent_id"`
	Title      string     `json:"title"`
	Prompt     string     `json:"prompt"`
	Type       string     `json:"type"`
	Priority   int32      `json:"priority,omitempty"`
	ExecuteAt  *time.Time `json:"execute_at,omitempty"`
	Recurrence string     `json:"recurrence,omitempty"`
}

type TaskResponse struct {
	Task *Task `json:"task"`
}

type TaskIDRequest struct {
	ID string `json:"id"`
}

type ListTasksRequest struct {
	AgentID    string      `json:"agent_id,omitempty"`
	ProjectID  string      `json:"project_id,omitempty"`
	Status     string      `json:"status,omitempty"`
	Source     string      `json:"source,omitempty"`
	Pagination *Pagination `json:"pagination,omitempty"`
}

type ListTasksResponse struct {
	Tasks      []*Task             `json:"tasks"`
	Pagination *PaginationResponse `json:"pagination"`
}

type UpdateTaskRequest struct {
	ID             string     `json:"id"`
	Title          *string    `json:"title,omitempty"`
	Prompt         *string    `json:"prompt,omitempty"`
	Priority       *int32     `json:"priority,omitempty"`
	ExecuteAt      *time.Time `json:"execute_at,omitempty"`
	ClearExecuteAt bool       `json:"clear_execute_at,omitempty"`
	Recurrence     *string    `json:"recurrence,omitempty"`
}

type GetTrajectoryRequest struct {
	TaskID string `json:"task_id"`
	// RunID narrows the result to one execution; empty returns every run.
	RunID string `json:"run_id,omitempty"`
}

type GetTrajectoryResponse struct {
	Steps []*Step `json:"steps"`
}
