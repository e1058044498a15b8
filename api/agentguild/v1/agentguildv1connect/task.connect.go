package agentguildv1connect

import (
	"context"
	"net/http"
	"strings"

	"connectrpc.com/connect"

	v1 "github.com/kazz187/agentguild/api/agentguild/v1"
)

const TaskServiceName = "agentguild.v1.TaskService"

const (
	TaskServiceCreateTaskProcedure    = "/agentguild.v1.TaskService/CreateTask"
	TaskServiceGetTaskProcedure       = "/agentguild.v1.TaskService/GetTask"
	TaskServiceListTasksProcedure     = "/agentguild.v1.TaskService/ListTasks"
	TaskServiceUpdateTaskProcedure    = "/agentguild.v1.TaskService/UpdateTask"
	TaskServiceDeleteTaskProcedure    = "/agentguild.v1.TaskService/DeleteTask"
	TaskServiceExecuteTaskProcedure   = "/agentguild.v1.TaskService/ExecuteTask"
	TaskServiceCancelTaskProcedure    = "/agentguild.v1.TaskService/CancelTask"
	TaskServiceGetTrajectoryProcedure = "/agentguild.v1.TaskService/GetTrajectory"
)

type TaskServiceHandler interface {
	CreateTask(context.Context, *connect.Request[v1.CreateTaskRequest]) (*connect.Response[v1.TaskResponse], error)
	GetTask(context.Context, *connect.Request[v1.TaskIDRequest]) (*connect.Response[v1.TaskResponse], error)
	ListTasks(context.Context, *connect.Request[v1.ListTasksRequest]) (*connect.Response[v1.ListTasksResponse], error)
	UpdateTask(context.Context, *connect.Request[v1.UpdateTaskRequest]) (*connect.Response[v1.TaskResponse], error)
	DeleteTask(context.Context, *connect.Request[v1.TaskIDRequest]) (*connect.Response[v1.Empty], error)
	ExecuteTask(context.Context, *connect.Request[v1.TaskIDRequest]) (*connect.Response[v1.TaskResponse], error)
	CancelTask(context.Context, *connect.Request[v1.TaskIDRequest]) (*connect.Response[v1.TaskResponse], error)
	GetTrajectory(context.Context, *connect.Request[v1.GetTrajectoryRequest]) (*connect.Response[v1.GetTrajectoryResponse], error)
}

func NewTaskServiceHandler(svc TaskServiceHandler, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = handlerOptions(opts)
	routes := map[string]http.Handler{
		TaskServiceCreateTaskProcedure:    connect.NewUnaryHandler(TaskServiceCreateTaskProcedure, svc.CreateTask, opts...),
		TaskServiceGetTaskProcedure:       connect.NewUnaryHandler(TaskServiceGetTaskProcedure, svc.GetTask, opts...),
		TaskServiceListTasksProcedure:     connect.NewUnaryHandler(TaskServiceListTasksProcedure, svc.ListTasks, opts...),
		TaskServiceUpdateTaskProcedure:    connect.NewUnaryHandler(TaskServiceUpdateTaskProcedure, svc.UpdateTask, opts...),
		TaskServiceDeleteTaskProcedure:    connect.NewUnaryHandler(TaskServiceDeleteTaskProcedure, svc.DeleteTask, opts...),
		TaskServiceExecuteTaskProcedure:   connect.NewUnaryHandler(TaskServiceExecuteTaskProcedure, svc.ExecuteTask, opts...),
		TaskServiceCancelTaskProcedure:    connect.NewUnaryHandler(TaskServiceCancelTaskProcedure, svc.CancelTask, opts...),
		TaskServiceGetTrajectoryProcedure: connect.NewUnaryHandler(TaskServiceGetTrajectoryProcedure, svc.GetTrajectory, opts...),
	}
	return "/" + TaskServiceName + "/", routeByPath(routes)
}

type TaskServiceClient struct {
	createTask    *connect.Client[v1.CreateTaskRequest, v1.TaskResponse]
	getTask       *connect.Client[v1.TaskIDRequest, v1.TaskResponse]
	listTasks     *connect.Client[v1.ListTasksRequest, v1.ListTasksResponse]
	updateTask    *connect.Client[v1.UpdateTaskRequest, v1.TaskResponse]
	deleteTask    *connect.Client[v1.TaskIDRequest, v1.Empty]
	executeTask   *connect.Client[v1.TaskIDRequest, v1.TaskResponse]
	cancelTask    *connect.Client[v1.TaskIDRequest, v1.TaskResponse]
	getTrajectory *connect.Client[v1.GetTrajectoryRequest, v1.GetTrajectoryResponse]
}

func NewTaskServiceClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) *TaskServiceClient {
	baseURL = strings.TrimRight(baseURL, "/")
	opts = clientOptions(opts)
	return &TaskServiceClient{
		createTask:    connect.NewClient[v1.CreateTaskRequest, v1.TaskResponse](httpClient, baseURL+TaskServiceCreateTaskProcedure, opts...),
		getTask:       connect.NewClient[v1.TaskIDRequest, v1.TaskResponse](httpClient, baseURL+TaskServiceGetTaskProcedure, opts...),
		listTasks:     connect.NewClient[v1.ListTasksRequest, v1.ListTasksResponse](httpClient, baseURL+TaskServiceListTasksProcedure, opts...),
		updateTask:    connect.NewClient[v1.UpdateTaskRequest, v1.TaskResponse](httpClient, baseURL+TaskServiceUpdateTaskProcedure, opts...),
		deleteTask:    connect.NewClient[v1.TaskIDRequest, v1.Empty](httpClient, baseURL+TaskServiceDeleteTaskProcedure, opts...),
		executeTask:   connect.NewClient[v1.TaskIDRequest, v1.TaskResponse](httpClient, baseURL+TaskServiceExecuteTaskProcedure, opts...),
		cancelTask:    connect.NewClient[v1.TaskIDRequest, v1.TaskResponse](httpClient, baseURL+TaskServiceCancelTaskProcedure, opts...),
		getTrajectory: connect.NewClient[v1.GetTrajectoryRequest, v1.GetTrajectoryResponse](httpClient, baseURL+TaskServiceGetTrajectoryProcedure, opts...),
	}
}

func (c *TaskServiceClient) CreateTask(ctx context.Context, req *connect.Request[v1.CreateTaskRequest]) (*connect.Response[v1.TaskResponse], error) {
	return c.createTask.CallUnary(ctx, req)
}

func (c *TaskServiceClient) GetTask(ctx context.Context, req *connect.Request[v1.TaskIDRequest]) (*connect.Response[v1.TaskResponse], error) {
	return c.getTask.CallUnary(ctx, req)
}

func (c *TaskServiceClient) ListTasks(ctx context.Context, req *connect.Request[v1.ListTasksRequest]) (*connect.Response[v1.ListTasksResponse], error) {
	return c.listTasks.CallUnary(ctx, req)
}

func (c *TaskServiceClient) UpdateTask(ctx context.Context, req *connect.Request[v1.UpdateTaskRequest]) (*connect.Response[v1.TaskResponse], error) {
	return c.updateTask.CallUnary(ctx, req)
}

func (c *TaskServiceClient) DeleteTask(ctx context.Context, req *connect.Request[v1.TaskIDRequest]) (*connect.Response[v1.Empty], error) {
	return c.deleteTask.CallUnary(ctx, req)
}

func (c *TaskServiceClient) ExecuteTask(ctx context.Context, req *connect.Request[v1.TaskIDRequest]) (*connect.Response[v1.TaskResponse], error) {
	return c.executeTask.CallUnary(ctx, req)
}

func (c *TaskServiceClient) CancelTask(ctx context.Context, req *connect.Request[v1.TaskIDRequest]) (*connect.Response[v1.TaskResponse], error) {
	return c.cancelTask.CallUnary(ctx, req)
}

func (c *TaskServiceClient) GetTrajectory(ctx context.Context, req *connect.Request[v1.GetTrajectoryRequest]) (*connect.Response[v1.GetTrajectoryResponse], error) {
	return c.getTrajectory.CallUnary(ctx, req)
}
