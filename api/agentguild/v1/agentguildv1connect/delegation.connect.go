package agentguildv1connect

import (
	"context"
	"net/http"
	"strings"

	"connectrpc.com/connect"

	v1 "github.com/kazz187/agentguild/api/agentguild/v1"
)

const DelegationServiceName = "agentguild.v1.DelegationService"

const (
	DelegationServiceDelegateProcedure                   = "/agentguild.v1.DelegationService/Delegate"
	DelegationServiceListDelegationResultsProcedure      = "/agentguild.v1.DelegationService/ListDelegationResults"
	DelegationServiceSubscribeDelegationResultsProcedure = "/agentguild.v1.DelegationService/SubscribeDelegationResults"
)

type DelegationServiceHandler interface {
	Delegate(context.Context, *connect.Request[v1.DelegateRequest]) (*connect.Response[v1.TaskResponse], error)
	ListDelegationResults(context.Context, *connect.Request[v1.CoordinatorRequest]) (*connect.Response[v1.ListDelegationResultsResponse], error)
	SubscribeDelegationResults(context.Context, *connect.Request[v1.CoordinatorRequest], *connect.ServerStream[v1.DelegationResult]) error
}

func NewDelegationServiceHandler(svc DelegationServiceHandler, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = handlerOptions(opts)
	routes := map[string]http.Handler{
		DelegationServiceDelegateProcedure:                   connect.NewUnaryHandler(DelegationServiceDelegateProcedure, svc.Delegate, opts...),
		DelegationServiceListDelegationResultsProcedure:      connect.NewUnaryHandler(DelegationServiceListDelegationResultsProcedure, svc.ListDelegationResults, opts...),
		DelegationServiceSubscribeDelegationResultsProcedure: connect.NewServerStreamHandler(DelegationServiceSubscribeDelegationResultsProcedure, svc.SubscribeDelegationResults, opts...),
	}
	return "/" + DelegationServiceName + "/", routeByPath(routes)
}

type DelegationServiceClient struct {
	delegate                   *connect.Client[v1.DelegateRequest, v1.TaskResponse]
	listDelegationResults      *connect.Client[v1.CoordinatorRequest, v1.ListDelegationResultsResponse]
	subscribeDelegationResults *connect.Client[v1.CoordinatorRequest, v1.DelegationResult]
}

func NewDelegationServiceClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) *DelegationServiceClient {
	baseURL = strings.TrimRight(baseURL, "/")
	opts = clientOptions(opts)
	return &DelegationServiceClient{
		delegate:                   connect.NewClient[v1.DelegateRequest, v1.TaskResponse](httpClient, baseURL+DelegationServiceDelegateProcedure, opts...),
		listDelegationResults:      connect.NewClient[v1.CoordinatorRequest, v1.ListDelegationResultsResponse](httpClient, baseURL+DelegationServiceListDelegationResultsProcedure, opts...),
		subscribeDelegationResults: connect.NewClient[v1.CoordinatorRequest, v1.DelegationResult](httpClient, baseURL+DelegationServiceSubscribeDelegationResultsProcedure, opts...),
	}
}

func (c *DelegationServiceClient) Delegate(ctx context.Context, req *connect.Request[v1.DelegateRequest]) (*connect.Response[v1.TaskResponse], error) {
	return c.delegate.CallUnary(ctx, req)
}

func (c *DelegationServiceClient) ListDelegationResults(ctx context.Context, req *connect.Request[v1.CoordinatorRequest]) (*connect.Response[v1.ListDelegationResultsResponse], error) {
	return c.listDelegationResults.CallUnary(ctx, req)
}

func (c *DelegationServiceClient) SubscribeDelegationResults(ctx context.Context, req *connect.Request[v1.CoordinatorRequest]) (*connect.ServerStreamForClient[v1.DelegationResult], error) {
	return c.subscribeDelegationResults.CallServerStream(ctx, req)
}
