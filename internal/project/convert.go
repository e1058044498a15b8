package project

import agentguildv1 "github.com/kazz187/agentguild/api/agentguild/v1"

func ToAPI(p *Project) *agentguildv1.Project {
	return &agentguildv1.Project{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
}
