package agentguildv1connect

import (
	"context"
	"net/http"
	"strings"

	"connectrpc.com/connect"

	v1 "github.com/kazz187/agentguild/api/agentguild/v1"
)

// RuntimeService is served by each agent runtime process on its own port.
const RuntimeServiceName = "agentguild.v1.RuntimeService"

const (
	RuntimeServicePingProcedure        = "/agentguild.v1.RuntimeService/Ping"
	RuntimeServiceApplyConfigProcedure = "/agentguild.v1.RuntimeService/ApplyConfig"
	RuntimeServiceExecuteTaskProcedure = "/agentguild.v1.RuntimeService/ExecuteTask"
	RuntimeServiceNotifyProcedure      = "/agentguild.v1.RuntimeService/Notify"
)

type RuntimeServiceHandler interface {
	Ping(context.Context, *connect.Request[v1.Empty]) (*connect.Response[v1.PingResponse], error)
	ApplyConfig(context.Context, *connect.Request[v1.ApplyConfigRequest]) (*connect.Response[v1.ApplyConfigResponse], error)
	ExecuteTask(context.Context, *connect.Request[v1.ExecuteTaskRequest], *connect.ServerStream[v1.ExecuteTaskEvent]) error
	Notify(context.Context, *connect.Request[v1.NotifyRequest]) (*connect.Response[v1.Empty], error)
}

func NewRuntimeServiceHandler(svc RuntimeServiceHandler, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = handlerOptions(opts)
	routes := map[string]http.Handler{
		RuntimeServicePingProcedure:        connect.NewUnaryHandler(RuntimeServicePingProcedure, svc.Ping, opts...),
		RuntimeServiceApplyConfigProcedure: connect.NewUnaryHandler(RuntimeServiceApplyConfigProcedure, svc.ApplyConfig, opts...),
		RuntimeServiceExecuteTaskProcedure: connect.NewServerStreamHandler(RuntimeServiceExecuteTaskProcedure, svc.ExecuteTask, opts...),
		RuntimeServiceNotifyProcedure:      connect.NewUnaryHandler(RuntimeServiceNotifyProcedure, svc.Notify, opts...),
	}
	return "/" + RuntimeServiceName + "/", routeByPath(routes)
}

type RuntimeServiceClient struct {
	ping        *connect.Client[v1.Empty, v1.PingResponse]
	applyConfig *connect.Client[v1.ApplyConfigRequest, v1.ApplyConfigResponse]
	executeTask *connect.Client[v1.ExecuteTaskRequest, v1.ExecuteTaskEvent]
	notify      *connect.Client[v1.NotifyRequest, v1.Empty]
}

func NewRuntimeServiceClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) *RuntimeServiceClient {
	baseURL = strings.TrimRight(baseURL, "/")
	opts = clientOptions(opts)
	return &RuntimeServiceClient{
		ping:        connect.NewClient[v1.Empty, v1.PingResponse](httpClient, baseURL+RuntimeServicePingProcedure, opts...),
		applyConfig: connect.NewClient[v1.ApplyConfigRequest, v1.ApplyConfigResponse](httpClient, baseURL+RuntimeServiceApplyConfigProcedure, opts...),
		executeTask: connect.NewClient[v1.ExecuteTaskRequest, v1.ExecuteTaskEvent](httpClient, baseURL+RuntimeServiceExecuteTaskProcedure, opts...),
		notify:      connect.NewClient[v1.NotifyRequest, v1.Empty](httpClient, baseURL+RuntimeServiceNotifyProcedure, opts...),
	}
}

func (c *RuntimeServiceClient) Ping(ctx context.Context, req *connect.Request[v1.Empty]) (*connect.Response[v1.PingResponse], error) {
	return c.ping.CallUnary(ctx, req)
}

func (c *RuntimeServiceClient) ApplyConfig(ctx context.Context, req *connect.Request[v1.ApplyConfigRequest]) (*connect.Response[v1.ApplyConfigResponse], error) {
	return c.applyConfig.CallUnary(ctx, req)
}

func (c *RuntimeServiceClient) ExecuteTask(ctx context.Context, req *connect.Request[v1.ExecuteTaskRequest]) (*connect.ServerStreamForClient[v1.ExecuteTaskEvent], error) {
	return c.executeTask.CallServerStream(ctx, req)
}

func (c *RuntimeServiceClient) Notify(ctx context.Context, req *connect.Request[v1.NotifyRequest]) (*connect.Response[v1.Empty], error) {
	return c.notify.CallUnary(ctx, req)
}
