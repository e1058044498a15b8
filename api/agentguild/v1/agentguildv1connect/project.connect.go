package agentguildv1connect

import (
	"context"
	"net/http"
	"strings"

	"connectrpc.com/connect"

	v1 "github.com/kazz187/agentguild/api/agentguild/v1"
)

const ProjectServiceName = "agentguild.v1.ProjectService"

const (
	ProjectServiceCreateProjectProcedure = "/agentguild.v1.ProjectService/CreateProject"
	ProjectServiceGetProjectProcedure    = "/agentguild.v1.ProjectService/GetProject"
	ProjectServiceListProjectsProcedure  = "/agentguild.v1.ProjectService/ListProjects"
	ProjectServiceUpdateProjectProcedure = "/agentguild.v1.ProjectService/UpdateProject"
	ProjectServiceDeleteProjectProcedure = "/agentguild.v1.ProjectService/DeleteProject"
)

type ProjectServiceHandler interface {
	CreateProject(context.Context, *connect.Request[v1.CreateProjectRequest]) (*connect.Response[v1.ProjectResponse], error)
	GetProject(context.Context, *connect.Request[v1.ProjectIDRequest]) (*connect.Response[v1.ProjectResponse], error)
	ListProjects(context.Context, *connect.Request[v1.ListProjectsRequest]) (*connect.Response[v1.ListProjectsResponse], error)
	UpdateProject(context.Context, *connect.Request[v1.UpdateProjectRequest]) (*connect.Response[v1.ProjectResponse], error)
	DeleteProject(context.Context, *connect.Request[v1.ProjectIDRequest]) (*connect.Response[v1.Empty], error)
}

func NewProjectServiceHandler(svc ProjectServiceHandler, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = handlerOptions(opts)
	routes := map[string]http.Handler{
		ProjectServiceCreateProjectProcedure: connect.NewUnaryHandler(ProjectServiceCreateProjectProcedure, svc.CreateProject, opts...),
		ProjectServiceGetProjectProcedure:    connect.NewUnaryHandler(ProjectServiceGetProjectProcedure, svc.GetProject, opts...),
		ProjectServiceListProjectsProcedure:  connect.NewUnaryHandler(ProjectServiceListProjectsProcedure, svc.ListProjects, opts...),
		ProjectServiceUpdateProjectProcedure: connect.NewUnaryHandler(ProjectServiceUpdateProjectProcedure, svc.UpdateProject, opts...),
		ProjectServiceDeleteProjectProcedure: connect.NewUnaryHandler(ProjectServiceDeleteProjectProcedure, svc.DeleteProject, opts...),
	}
	return "/" + ProjectServiceName + "/", routeByPath(routes)
}

type ProjectServiceClient struct {
	createProject *connect.Client[v1.CreateProjectRequest, v1.ProjectResponse]
	getProject    *connect.Client[v1.ProjectIDRequest, v1.ProjectResponse]
	listProjects  *connect.Client[v1.ListProjectsRequest, v1.ListProjectsResponse]
	updateProject *connect.Client[v1.UpdateProjectRequest, v1.ProjectResponse]
	deleteProject *connect.Client[v1.ProjectIDRequest, v1.Empty]
}

func NewProjectServiceClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) *ProjectServiceClient {
	baseURL = strings.TrimRight(baseURL, "/")
	opts = clientOptions(opts)
	return &ProjectServiceClient{
		createProject: connect.NewClient[v1.CreateProjectRequest, v1.ProjectResponse](httpClient, baseURL+ProjectServiceCreateProjectProcedure, opts...),
		getProject:    connect.NewClient[v1.ProjectIDRequest, v1.ProjectResponse](httpClient, baseURL+ProjectServiceGetProjectProcedure, opts...),
		listProjects:  connect.NewClient[v1.ListProjectsRequest, v1.ListProjectsResponse](httpClient, baseURL+ProjectServiceListProjectsProcedure, opts...),
		updateProject: connect.NewClient[v1.UpdateProjectRequest, v1.ProjectResponse](httpClient, baseURL+ProjectServiceUpdateProjectProcedure, opts...),
		deleteProject: connect.NewClient[v1.ProjectIDRequest, v1.Empty](httpClient, baseURL+ProjectServiceDeleteProjectProcedure, opts...),
	}
}

func (c *ProjectServiceClient) CreateProject(ctx context.Context, req *connect.Request[v1.CreateProjectRequest]) (*connect.Response[v1.ProjectResponse], error) {
	return c.createProject.CallUnary(ctx, req)
}

func (c *ProjectServiceClient) GetProject(ctx context.Context, req *connect.Request[v1.ProjectIDRequest]) (*connect.Response[v1.ProjectResponse], error) {
	return c.getProject.CallUnary(ctx, req)
}

func (c *ProjectServiceClient) ListProjects(ctx context.Context, req *connect.Request[v1.ListProjectsRequest]) (*connect.Response[v1.ListProjectsResponse], error) {
	return c.listProjects.CallUnary(ctx, req)
}

func (c *ProjectServiceClient) UpdateProject(ctx context.Context, req *connect.Request[v1.UpdateProjectRequest]) (*connect.Response[v1.ProjectResponse], error) {
	return c.updateProject.CallUnary(ctx, req)
}

func (c *ProjectServiceClient) DeleteProject(ctx context.Context, req *connect.Request[v1.ProjectIDRequest]) (*connect.Response[v1.Empty], error) {
	return c.deleteProject.CallUnary(ctx, req)
}
