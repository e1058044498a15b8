package client

import (
	"context"
	"fmt"

	"connectrpc.com/connect"

	agentguildv1 "github.com/kazz187/agentguild/api/agentguild/v1"
	"github.com/kazz187/agentguild/api/agentguild/v1/agentguildv1connect"
)

type ProjectClient struct {
	client *agentguildv1connect.ProjectServiceClient
}

func NewProjectClient(cfg Config) *ProjectClient {
	return &ProjectClient{
		client: agentguildv1connect.NewProjectServiceClient(cfg.httpClient(), cfg.BaseURL, cfg.options()...),
	}
}

func (c *ProjectClient) CreateProject(ctx context.Context, name, description string) (*agentguildv1.Project, error) {
	resp, err := c.client.CreateProject(ctx, connect.NewRequest(&agentguildv1.CreateProjectRequest{Name: name, Description: description}))
	if err != nil {
		return nil, fmt.Errorf("failed to create project: %w", err)
	}
	return resp.Msg.Project, nil
}

func (c *ProjectClient) ListProjects(ctx context.Context) ([]*agentguildv1.Project, error) {
	resp, err := c.client.ListProjects(ctx, connect.NewRequest(&agentguildv1.ListProjectsRequest{
		Pagination: &agentguildv1.Pagination{Limit: 1000},
	}))
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	return resp.Msg.Projects, nil
}

func (c *ProjectClient) DeleteProject(ctx context.Context, projectID string) error {
	if _, err := c.client.DeleteProject(ctx, connect.NewRequest(&agentguildv1.ProjectIDRequest{ID: projectID})); err != nil {
		return fmt.Errorf("failed to delete project: %w", err)
	}
	return nil
}
