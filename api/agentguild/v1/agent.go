package agentguildv1

import "time"

type MultiAgent struct {
	Enabled bool   `json:"enabled"`
	Mode    string `json:"mode,omitempty"`
	Group   string `json:"group,omitempty"`
}

type Agent struct {
	ID           string      `json:"id"`
	ProjectID    string      `json:"project_id"`
	Name         string      `json:"name"`
	Description  string      `json:"description,omitempty"`
	Provider     string      `json:"provider"`
	Model        string      `json:"model"`
	SystemPrompt string      `json:"system_prompt,omitempty"`
	Features     []string    `json:"features,omitempty"`
	MultiAgent   *MultiAgent `json:"multi_agent,omitempty"`
	MCPServerIDs []string    `json:"mcp_server_ids,omitempty"`
	SkillIDs     []string    `json:"skill_ids,omitempty"`
	Status       string      `json:"status"`
	Port         int32       `json:"port,omitempty"`
	PID          int32       `json:"pid,omitempty"`
	LastError    string      `json:"last_error,omitempty"`
	CreatedAt    time.Time   `json:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at"`
}

// AgentConfig is the configuration snapshot handed to an agent runtime, both
// as its startup file and over ApplyConfig.
type AgentConfig struct {
	AgentID      string      `json:"agent_id" yaml:"agent_id"`
	ProjectID    string      `json:"project_id" yaml:"project_id"`
	Name         string      `json:"name" yaml:"name"`
	Description  string      `json:"description,omitempty" yaml:"description,omitempty"`
	Provider     string      `json:"provider" yaml:"provider"`
	Model        string      `json:"model" yaml:"model"`
	SystemPrompt string      `json:"system_prompt,omitempty" yaml:"system_prompt,omitempty"`
	Features     []string    `json:"features,omitempty" yaml:"features,omitempty"`
	MultiAgent   *MultiAgent `json:"multi_agent,omitempty" yaml:"multi_agent,omitempty"`
	MCPServerIDs []string    `json:"mcp_server_ids,omitempty" yaml:"mcp_server_ids,omitempty"`
	SkillIDs     []string    `json:"skill_ids,omitempty" yaml:"skill_ids,omitempty"`
}

type CreateAgentRequest struct {
	ProjectID    string      `json:"project_id"`
	Name         string      `json:"name"`
	Description  string      `json:"description,omitempty"`
	Provider     string      `json:"provider"`
	Model        string      `json:"model"`
	SystemPrompt string      `json:"system_prompt,omitempty"`
	Features     []string    `json:"features,omitempty"`
	MultiAgent   *MultiAgent `json:"multi_agent,omitempty"`
	MCPServerIDs []string    `json:"mcp_server_ids,omitempty"`
	SkillIDs     []string    `json:"skill_ids,omitempty"`
}

type GetAgentRequest struct {
	ID string `json:"id"`
}

type ListAgentsRequest struct {
	ProjectID  string      `json:"project_id,omitempty"`
	Pagination *Pagination `json:"pagination,omitempty"`
}

type ListAgentsResponse struct {
	Agents     []*Agent            `json:"agents"`
	Pagination *PaginationResponse `json:"pagination"`
}

// UpdateAgentRequest patches the fields that are set.
type UpdateAgentRequest struct {
	ID           string      `json:"id"`
	Name         *string     `json:"name,omitempty"`
	Description  *string     `json:"description,omitempty"`
	Provider     *string     `json:"provider,omitempty"`
	Model        *string     `json:"model,omitempty"`
	SystemPrompt *string     `json:"system_prompt,omitempty"`
	Features     []string    `json:"features,omitempty"`
	MultiAgent   *MultiAgent `json:"multi_agent,omitempty"`
	MCPServerIDs []string    `json:"mcp_server_ids,omitempty"`
	SkillIDs     []string    `json:"skill_ids,omitempty"`
}

type UpdateAgentResponse struct {
	Agent *Agent `json:"agent"`
	// Restarted is set when the change required a stop+start cycle.
	Restarted bool `json:"restarted"`
}

type AgentIDRequest struct {
	ID string `json:"id"`
}

type AgentResponse struct {
	Agent *Agent `json:"agent"`
}

type HealthCheckAgentResponse struct {
	Healthy bool `json:"healthy"`
}
