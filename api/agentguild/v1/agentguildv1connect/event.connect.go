package agentguildv1connect

import (
	"context"
	"net/http"
	"strings"

	"connectrpc.com/connect"

	v1 "github.com/kazz187/agentguild/api/agentguild/v1"
)

const EventServiceName = "agentguild.v1.EventService"

const (
	EventServiceQueryEventsProcedure     = "/agentguild.v1.EventService/QueryEvents"
	EventServiceSubscribeEventsProcedure = "/agentguild.v1.EventService/SubscribeEvents"
)

type EventServiceHandler interface {
	QueryEvents(context.Context, *connect.Request[v1.QueryEventsRequest]) (*connect.Response[v1.QueryEventsResponse], error)
	SubscribeEvents(context.Context, *connect.Request[v1.SubscribeEventsRequest], *connect.ServerStream[v1.Event]) error
}

func NewEventServiceHandler(svc EventServiceHandler, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = handlerOptions(opts)
	routes := map[string]http.Handler{
		EventServiceQueryEventsProcedure:     connect.NewUnaryHandler(EventServiceQueryEventsProcedure, svc.QueryEvents, opts...),
		EventServiceSubscribeEventsProcedure: connect.NewServerStreamHandler(EventServiceSubscribeEventsProcedure, svc.SubscribeEvents, opts...),
	}
	return "/" + EventServiceName + "/", routeByPath(routes)
}

type EventServiceClient struct {
	queryEvents     *connect.Client[v1.QueryEventsRequest, v1.QueryEventsResponse]
	subscribeEvents *connect.Client[v1.SubscribeEventsRequest, v1.Event]
}

func NewEventServiceClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) *EventServiceClient {
	baseURL = strings.TrimRight(baseURL, "/")
	opts = clientOptions(opts)
	return &EventServiceClient{
		queryEvents:     connect.NewClient[v1.QueryEventsRequest, v1.QueryEventsResponse](httpClient, baseURL+EventServiceQueryEventsProcedure, opts...),
		subscribeEvents: connect.NewClient[v1.SubscribeEventsRequest, v1.Event](httpClient, baseURL+EventServiceSubscribeEventsProcedure, opts...),
	}
}

func (c *EventServiceClient) QueryEvents(ctx context.Context, req *connect.Request[v1.QueryEventsRequest]) (*connect.Response[v1.QueryEventsResponse], error) {
	return c.queryEvents.CallUnary(ctx, req)
}

func (c *EventServiceClient) SubscribeEvents(ctx context.Context, req *connect.Request[v1.SubscribeEventsRequest]) (*connect.ServerStreamForClient[v1.Event], error) {
	return c.subscribeEvents.CallServerStream(ctx, req)
}
