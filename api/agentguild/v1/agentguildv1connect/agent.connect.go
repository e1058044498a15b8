package agentguildv1connect

import (
	"context"
	"net/http"
	"strings"

	"connectrpc.com/connect"

	v1 "github.com/kazz187/agentguild/api/agentguild/v1"
)

const AgentServiceName = "agentguild.v1.AgentService"

const (
	AgentServiceCreateAgentProcedure      = "/agentguild.v1.AgentService/CreateAgent"
	AgentServiceGetAgentProcedure         = "/agentguild.v1.AgentService/GetAgent"
	AgentServiceListAgentsProcedure       = "/agentguild.v1.AgentService/ListAgents"
	AgentServiceUpdateAgentProcedure      = "/agentguild.v1.AgentService/UpdateAgent"
	AgentServiceDeleteAgentProcedure      = "/agentguild.v1.AgentService/DeleteAgent"
	AgentServiceStartAgentProcedure       = "/agentguild.v1.AgentService/StartAgent"
	AgentServiceStopAgentProcedure        = "/agentguild.v1.AgentService/StopAgent"
	AgentServiceToggleAgentProcedure      = "/agentguild.v1.AgentService/ToggleAgent"
	AgentServiceRestartAgentProcedure     = "/agentguild.v1.AgentService/RestartAgent"
	AgentServiceAcknowledgeAgentProcedure = "/agentguild.v1.AgentService/AcknowledgeAgent"
	AgentServiceHealthCheckAgentProcedure = "/agentguild.v1.AgentService/HealthCheckAgent"
)

type AgentServiceHandler interface {
	CreateAgent(context.Context, *connect.Request[v1.CreateAgentRequest]) (*connect.Response[v1.AgentResponse], error)
	GetAgent(context.Context, *connect.Request[v1.GetAgentRequest]) (*connect.Response[v1.AgentResponse], error)
	ListAgents(context.Context, *connect.Request[v1.ListAgentsRequest]) (*connect.Response[v1.ListAgentsResponse], error)
	UpdateAgent(context.Context, *connect.Request[v1.UpdateAgentRequest]) (*connect.Response[v1.UpdateAgentResponse], error)
	DeleteAgent(context.Context, *connect.Request[v1.AgentIDRequest]) (*connect.Response[v1.Empty], error)
	StartAgent(context.Context, *connect.Request[v1.AgentIDRequest]) (*connect.Response[v1.AgentResponse], error)
	StopAgent(context.Context, *connect.Request[v1.AgentIDRequest]) (*connect.Response[v1.AgentResponse], error)
	ToggleAgent(context.Context, *connect.Request[v1.AgentIDRequest]) (*connect.Response[v1.AgentResponse], error)
	RestartAgent(context.Context, *connect.Request[v1.AgentIDRequest]) (*connect.Response[v1.AgentResponse], error)
	AcknowledgeAgent(context.Context, *connect.Request[v1.AgentIDRequest]) (*connect.Response[v1.AgentResponse], error)
	HealthCheckAgent(context.Context, *connect.Request[v1.AgentIDRequest]) (*connect.Response[v1.HealthCheckAgentResponse], error)
}

func NewAgentServiceHandler(svc AgentServiceHandler, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = handlerOptions(opts)
	routes := map[string]http.Handler{
		AgentServiceCreateAgentProcedure:      connect.NewUnaryHandler(AgentServiceCreateAgentProcedure, svc.CreateAgent, opts...),
		AgentServiceGetAgentProcedure:         connect.NewUnaryHandler(AgentServiceGetAgentProcedure, svc.GetAgent, opts...),
		AgentServiceListAgentsProcedure:       connect.NewUnaryHandler(AgentServiceListAgentsProcedure, svc.ListAgents, opts...),
		AgentServiceUpdateAgentProcedure:      connect.NewUnaryHandler(AgentServiceUpdateAgentProcedure, svc.UpdateAgent, opts...),
		AgentServiceDeleteAgentProcedure:      connect.NewUnaryHandler(AgentServiceDeleteAgentProcedure, svc.DeleteAgent, opts...),
		AgentServiceStartAgentProcedure:       connect.NewUnaryHandler(AgentServiceStartAgentProcedure, svc.StartAgent, opts...),
		AgentServiceStopAgentProcedure:        connect.NewUnaryHandler(AgentServiceStopAgentProcedure, svc.StopAgent, opts...),
		AgentServiceToggleAgentProcedure:      connect.NewUnaryHandler(AgentServiceToggleAgentProcedure, svc.ToggleAgent, opts...),
		AgentServiceRestartAgentProcedure:     connect.NewUnaryHandler(AgentServiceRestartAgentProcedure, svc.RestartAgent, opts...),
		AgentServiceAcknowledgeAgentProcedure: connect.NewUnaryHandler(AgentServiceAcknowledgeAgentProcedure, svc.AcknowledgeAgent, opts...),
		AgentServiceHealthCheckAgentProcedure: connect.NewUnaryHandler(AgentServiceHealthCheckAgentProcedure, svc.HealthCheckAgent, opts...),
	}
	return "/" + AgentServiceName + "/", routeByPath(routes)
}

type AgentServiceClient struct {
	createAgent      *connect.Client[v1.CreateAgentRequest, v1.AgentResponse]
	getAgent         *connect.Client[v1.GetAgentRequest, v1.AgentResponse]
	listAgents       *connect.Client[v1.ListAgentsRequest, v1.ListAgentsResponse]
	updateAgent      *connect.Client[v1.UpdateAgentRequest, v1.UpdateAgentResponse]
	deleteAgent      *connect.Client[v1.AgentIDRequest, v1.Empty]
	startAgent       *connect.Client[v1.AgentIDRequest, v1.AgentResponse]
	stopAgent        *connect.Client[v1.AgentIDRequest, v1.AgentResponse]
	toggleAgent      *connect.Client[v1.AgentIDRequest, v1.AgentResponse]
	restartAgent     *connect.Client[v1.AgentIDRequest, v1.AgentResponse]
	acknowledgeAgent *connect.Client[v1.AgentIDRequest, v1.AgentResponse]
	healthCheckAgent *connect.Client[v1.AgentIDRequest, v1.HealthCheckAgentResponse]
}

func NewAgentServiceClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) *AgentServiceClient {
	baseURL = strings.TrimRight(baseURL, "/")
	opts = clientOptions(opts)
	return &AgentServiceClient{
		createAgent:      connect.NewClient[v1.CreateAgentRequest, v1.AgentResponse](httpClient, baseURL+AgentServiceCreateAgentProcedure, opts...),
		getAgent:         connect.NewClient[v1.GetAgentRequest, v1.AgentResponse](httpClient, baseURL+AgentServiceGetAgentProcedure, opts...),
		listAgents:       connect.NewClient[v1.ListAgentsRequest, v1.ListAgentsResponse](httpClient, baseURL+AgentServiceListAgentsProcedure, opts...),
		updateAgent:      connect.NewClient[v1.UpdateAgentRequest, v1.UpdateAgentResponse](httpClient, baseURL+AgentServiceUpdateAgentProcedure, opts...),
		deleteAgent:      connect.NewClient[v1.AgentIDRequest, v1.Empty](httpClient, baseURL+AgentServiceDeleteAgentProcedure, opts...),
		startAgent:       connect.NewClient[v1.AgentIDRequest, v1.AgentResponse](httpClient, baseURL+AgentServiceStartAgentProcedure, opts...),
		stopAgent:        connect.NewClient[v1.AgentIDRequest, v1.AgentResponse](httpClient, baseURL+AgentServiceStopAgentProcedure, opts...),
		toggleAgent:      connect.NewClient[v1.AgentIDRequest, v1.AgentResponse](httpClient, baseURL+AgentServiceToggleAgentProcedure, opts...),
		restartAgent:     connect.NewClient[v1.AgentIDRequest, v1.AgentResponse](httpClient, baseURL+AgentServiceRestartAgentProcedure, opts...),
		acknowledgeAgent: connect.NewClient[v1.AgentIDRequest, v1.AgentResponse](httpClient, baseURL+AgentServiceAcknowledgeAgentProcedure, opts...),
		healthCheckAgent: connect.NewClient[v1.AgentIDRequest, v1.HealthCheckAgentResponse](httpClient, baseURL+AgentServiceHealthCheckAgentProcedure, opts...),
	}
}

func (c *AgentServiceClient) CreateAgent(ctx context.Context, req *connect.Request[v1.CreateAgentRequest]) (*connect.Response[v1.AgentResponse], error) {
	return c.createAgent.CallUnary(ctx, req)
}

func (c *AgentServiceClient) GetAgent(ctx context.Context, req *connect.Request[v1.GetAgentRequest]) (*connect.Response[v1.AgentResponse], error) {
	return c.getAgent.CallUnary(ctx, req)
}

func (c *AgentServiceClient) ListAgents(ctx context.Context, req *connect.Request[v1.ListAgentsRequest]) (*connect.Response[v1.ListAgentsResponse], error) {
	return c.listAgents.CallUnary(ctx, req)
}

func (c *AgentServiceClient) UpdateAgent(ctx context.Context, req *connect.Request[v1.UpdateAgentRequest]) (*connect.Response[v1.UpdateAgentResponse], error) {
	return c.updateAgent.CallUnary(ctx, req)
}

func (c *AgentServiceClient) DeleteAgent(ctx context.Context, req *connect.Request[v1.AgentIDRequest]) (*connect.Response[v1.Empty], error) {
	return c.deleteAgent.CallUnary(ctx, req)
}

func (c *AgentServiceClient) StartAgent(ctx context.Context, req *connect.Request[v1.AgentIDRequest]) (*connect.Response[v1.AgentResponse], error) {
	return c.startAgent.CallUnary(ctx, req)
}

func (c *AgentServiceClient) StopAgent(ctx context.Context, req *connect.Request[v1.AgentIDRequest]) (*connect.Response[v1.AgentResponse], error) {
	return c.stopAgent.CallUnary(ctx, req)
}

func (c *AgentServiceClient) ToggleAgent(ctx context.Context, req *connect.Request[v1.AgentIDRequest]) (*connect.Response[v1.AgentResponse], error) {
	return c.toggleAgent.CallUnary(ctx, req)
}

func (c *AgentServiceClient) RestartAgent(ctx context.Context, req *connect.Request[v1.AgentIDRequest]) (*connect.Response[v1.AgentResponse], error) {
	return c.restartAgent.CallUnary(ctx, req)
}

func (c *AgentServiceClient) AcknowledgeAgent(ctx context.Context, req *connect.Request[v1.AgentIDRequest]) (*connect.Response[v1.AgentResponse], error) {
	return c.acknowledgeAgent.CallUnary(ctx, req)
}

func (c *AgentServiceClient) HealthCheckAgent(ctx context.Context, req *connect.Request[v1.AgentIDRequest]) (*connect.Response[v1.HealthCheckAgentResponse], error) {
	return c.healthCheckAgent.CallUnary(ctx, req)
}
