package project

import (
	"context"
	"log/slog"
	"time"

	"connectrpc.com/connect"
	"github.com/oklog/ulid/v2"

	agentguildv1 "github.com/kazz187/agentguild/api/agentguild/v1"
	"github.com/kazz187/agentguild/api/agentguild/v1/agentguildv1connect"
	"github.com/kazz187/agentguild/internal/agent"
	"github.com/kazz187/agentguild/pkg/cerr"
)

var _ agentguildv1connect.ProjectServiceHandler = (*Server)(nil)

type AgentLister interface {
	List(ctx context.Context, projectID string, limit, offset int) ([]*agent.Agent, int, error)
}

// AgentRemover deletes an agent and everything it owns.
type AgentRemover interface {
	Delete(ctx context.Context, id string) error
}

type Server struct {
	repo    Repository
	agents  AgentLister
	remover AgentRemover
	now     func() time.Time
}

func NewServer(repo Repository, agents AgentLister, remover AgentRemover) *Server {
	return &Server{
		repo:    repo,
		agents:  agents,
		remover: remover,
		now:     time.Now,
	}
}

func (s *Server) ensureUniqueName(ctx context.Context, name, selfID string) error {
	existing, err := s.repo.FindByName(ctx, name)
	switch {
	case cerr.IsCode(err, cerr.NotFound):
		return nil
	case err != nil:
		return err
	case existing.ID != selfID:
		return cerr.NewError(cerr.AlreadyExists, "project name already in use", nil)
	}
	return nil
}

func (s *Server) CreateProject(ctx context.Context, req *connect.Request[agentguildv1.CreateProjectRequest]) (*connect.Response[agentguildv1.ProjectResponse], error) {
	now := s.now()
	p := &Project{
		ID:          ulid.Make().String(),
		Name:        req.Msg.Name,
		Description: req.Msg.Description,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if err := s.ensureUniqueName(ctx, p.Name, p.ID); err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, p); err != nil {
		return nil, err
	}
	return connect.NewResponse(&agentguildv1.ProjectResponse{Project: ToAPI(p)}), nil
}

func (s *Server) GetProject(ctx context.Context, req *connect.Request[agentguildv1.ProjectIDRequest]) (*connect.Response[agentguildv1.ProjectResponse], error) {
	p, err := s.repo.Get(ctx, req.Msg.ID)
	if err != nil {
		return nil, err
	}
	return connect.NewResponse(&agentguildv1.ProjectResponse{Project: ToAPI(p)}), nil
}

func (s *Server) ListProjects(ctx context.Context, req *connect.Request[agentguildv1.ListProjectsRequest]) (*connect.Response[agentguildv1.ListProjectsResponse], error) {
	limit, offset := req.Msg.Pagination.LimitOffset(50)
	projects, total, err := s.repo.List(ctx, int(limit), int(offset))
	if err != nil {
		return nil, err
	}
	out := make([]*agentguildv1.Project, len(projects))
	for i, p := range projects {
		out[i] = ToAPI(p)
	}
	return connect.NewResponse(&agentguildv1.ListProjectsResponse{
		Projects: out,
		Pagination: &agentguildv1.PaginationResponse{
			Total:  int32(total),
			Limit:  limit,
			Offset: offset,
		},
	}), nil
}

func (s *Server) UpdateProject(ctx context.Context, req *connect.Request[agentguildv1.UpdateProjectRequest]) (*connect.Response[agentguildv1.ProjectResponse], error) {
	p, err := s.repo.Get(ctx, req.Msg.ID)
	if err != nil {
		return nil, err
	}
	if req.Msg.Name != nil {
		p.Name = *req.Msg.Name
	}
	if req.Msg.Description != nil {
		p.Description = *req.Msg.Description
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if err := s.ensureUniqueName(ctx, p.Name, p.ID); err != nil {
		return nil, err
	}
	p.UpdatedAt = s.now()
	if err := s.repo.Update(ctx, p); err != nil {
		return nil, err
	}
	return connect.NewResponse(&agentguildv1.ProjectResponse{Project: ToAPI(p)}), nil
}

// DeleteProject refuses while any agent of the project is live. Stopped and
// crashed agents are deleted along with the project.
func (s *Server) DeleteProject(ctx context.Context, req *connect.Request[agentguildv1.ProjectIDRequest]) (*connect.Response[agentguildv1.Empty], error) {
	if _, err := s.repo.Get(ctx, req.Msg.ID); err != nil {
		return nil, err
	}
	agents, _, err := s.agents.List(ctx, req.Msg.ID, 0, 0)
	if err != nil {
		return nil, err
	}
	for _, a := range agents {
		if a.Status.Live() {
			return nil, cerr.Conflict("project has live agents; stop them first")
		}
	}
	for _, a := range agents {
		if err := s.remover.Delete(ctx, a.ID); err != nil {
			return nil, err
		}
	}
	if err := s.repo.Delete(ctx, req.Msg.ID); err != nil {
		return nil, err
	}
	slog.InfoContext(ctx, "project deleted", "project_id", req.Msg.ID, "agents", len(agents))
	return connect.NewResponse(&agentguildv1.Empty{}), nil
}
