package client

import (
	"context"
	"fmt"

	"connectrpc.com/connect"

	agentguildv1 "github.com/kazz187/agentguild/api/agentguild/v1"
	"github.com/kazz187/agentguild/api/agentguild/v1/agentguildv1connect"
)

// AgentClient provides client operations for agents
type AgentClient struct {
	client *agentguildv1connect.AgentServiceClient
}

func NewAgentClient(cfg Config) *AgentClient {
	return &AgentClient{
		client: agentguildv1connect.NewAgentServiceClient(cfg.httpClient(), cfg.BaseURL, cfg.options()...),
	}
}

func (c *AgentClient) ListAgents(ctx context.Context, projectID string) ([]*agentguildv1.Agent, error) {
	var out []*agentguildv1.Agent
	var offset int32
	for {
		resp, err := c.client.ListAgents(ctx, connect.NewRequest(&agentguildv1.ListAgentsRequest{
			ProjectID:  projectID,
			Pagination: &agentguildv1.Pagination{Limit: 100, Offset: offset},
		}))
		if err != nil {
			return nil, fmt.Errorf("failed to list agents: %w", err)
		}
		out = append(out, resp.Msg.Agents...)
		offset += int32(len(resp.Msg.Agents))
		if len(resp.Msg.Agents) == 0 || resp.Msg.Pagination == nil || offset >= resp.Msg.Pagination.Total {
			return out, nil
		}
	}
}

func (c *AgentClient) GetAgent(ctx context.Context, agentID string) (*agentguildv1.Agent, error) {
	resp, err := c.client.GetAgent(ctx, connect.NewRequest(&agentguildv1.GetAgentRequest{ID: agentID}))
	if err != nil {
		return nil, fmt.Errorf("failed to get agent: %w", err)
	}
	return resp.Msg.Agent, nil
}

func (c *AgentClient) CreateAgent(ctx context.Context, req *agentguildv1.CreateAgentRequest) (*agentguildv1.Agent, error) {
	resp, err := c.client.CreateAgent(ctx, connect.NewRequest(req))
	if err != nil {
		return nil, fmt.Errorf("failed to create agent: %w", err)
	}
	return resp.Msg.Agent, nil
}

func (c *AgentClient) UpdateAgent(ctx context.Context, req *agentguildv1.UpdateAgentRequest) (*agentguildv1.Agent, bool, error) {
	resp, err := c.client.UpdateAgent(ctx, connect.NewRequest(req))
	if err != nil {
		return nil, false, fmt.Errorf("failed to update agent: %w", err)
	}
	return resp.Msg.Agent, resp.Msg.Restarted, nil
}

func (c *AgentClient) DeleteAgent(ctx context.Context, agentID string) error {
	if _, err := c.client.DeleteAgent(ctx, connect.NewRequest(&agentguildv1.AgentIDRequest{ID: agentID})); err != nil {
		return fmt.Errorf("failed to delete agent: %w", err)
	}
	return nil
}

// Lifecycle actions accepted by Control.
const (
	ActionStart       = "start"
	ActionStop        = "stop"
	ActionToggle      = "toggle"
	ActionRestart     = "restart"
	ActionAcknowledge = "ack"
)

// Control runs one lifecycle action on an agent.
func (c *AgentClient) Control(ctx context.Context, action, agentID string) (*agentguildv1.Agent, error) {
	var call func(context.Context, *connect.Request[agentguildv1.AgentIDRequest]) (*connect.Response[agentguildv1.AgentResponse], error)
	switch action {
	case ActionStart:
		call = c.client.StartAgent
	case ActionStop:
		call = c.client.StopAgent
	case ActionToggle:
		call = c.client.ToggleAgent
	case ActionRestart:
		call = c.client.RestartAgent
	case ActionAcknowledge:
		call = c.client.AcknowledgeAgent
	default:
		return nil, fmt.Errorf("unknown agent action %q", action)
	}
	resp, err := call(ctx, connect.NewRequest(&agentguildv1.AgentIDRequest{ID: agentID}))
	if err != nil {
		return nil, fmt.Errorf("failed to %s agent: %w", action, err)
	}
	return resp.Msg.Agent, nil
}

func (c *AgentClient) HealthCheck(ctx context.Context, agentID string) (bool, error) {
	resp, err := c.client.HealthCheckAgent(ctx, connect.NewRequest(&agentguildv1.AgentIDRequest{ID: agentID}))
	if err != nil {
		return false, fmt.Errorf("failed to check agent health: %w", err)
	}
	return resp.Msg.Healthy, nil
}
