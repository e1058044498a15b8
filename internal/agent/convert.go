package agent

import (
	"strings"

	agentguildv1 "github.com/kazz187/agentguild/api/agentguild/v1"
	"github.com/kazz187/agentguild/pkg/cerr"
)

// Validate checks the user-editable configuration.
func (a *Agent) Validate() error {
	var vs []cerr.FieldViolation
	if a.ProjectID == "" {
		vs = append(vs, cerr.FieldViolation{Field: "project_id", Message: "project_id is required"})
	}
	if strings.TrimSpace(a.Name) == "" {
		vs = append(vs, cerr.FieldViolation{Field: "name", Message: "name is required"})
	}
	if a.Provider == "" {
		vs = append(vs, cerr.FieldViolation{Field: "provider", Message: "provider is required"})
	}
	if a.Model == "" {
		vs = append(vs, cerr.FieldViolation{Field: "model", Message: "model is required"})
	}
	if err := a.MultiAgent.Validate(); err != nil {
		vs = append(vs, cerr.FieldViolation{Field: "multi_agent.mode", Message: err.Error()})
	}
	if len(vs) > 0 {
		return cerr.Validation("invalid agent configuration", vs...)
	}
	return nil
}

func multiAgentFromAPI(m *agentguildv1.MultiAgent) MultiAgent {
	if m == nil {
		return Disabled()
	}
	return MultiAgent{Enabled: m.Enabled, Mode: Mode(m.Mode), Group: m.Group}.Normalize()
}

func multiAgentToAPI(m MultiAgent) *agentguildv1.MultiAgent {
	if !m.Enabled {
		return nil
	}
	return &agentguildv1.MultiAgent{Enabled: true, Mode: string(m.Mode), Group: m.Group}
}

func ToAPI(a *Agent) *agentguildv1.Agent {
	return &agentguildv1.Agent{
		ID:           a.ID,
		ProjectID:    a.ProjectID,
		Name:         a.Name,
		Description:  a.Description,
		Provider:     a.Provider,
		Model:        a.Model,
		SystemPrompt: a.SystemPrompt,
		Features:     a.Features.Names(),
		MultiAgent:   multiAgentToAPI(a.MultiAgent),
		MCPServerIDs: a.MCPServerIDs,
		SkillIDs:     a.SkillIDs,
		Status:       string(a.Status),
		Port:         int32(a.Port),
		PID:          int32(a.PID),
		LastError:    a.LastError,
		CreatedAt:    a.CreatedAt,
		UpdatedAt:    a.UpdatedAt,
	}
}

// RuntimeConfig is the snapshot the runtime process is started with.
func RuntimeConfig(a *Agent) *agentguildv1.AgentConfig {
	ma := multiAgentToAPI(a.MultiAgent)
	if ma != nil {
		ma.Group = a.Group()
	}
	return &agentguildv1.AgentConfig{
		AgentID:      a.ID,
		ProjectID:    a.ProjectID,
		Name:         a.Name,
		Description:  a.Description,
		Provider:     a.Provider,
		Model:        a.Model,
		SystemPrompt: a.SystemPrompt,
		Features:     a.Features.Names(),
		MultiAgent:   ma,
		MCPServerIDs: a.MCPServerIDs,
		SkillIDs:     a.SkillIDs,
	}
}
