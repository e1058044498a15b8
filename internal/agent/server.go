package agent

import (
	"context"
	"log/slog"
	"time"

	"connectrpc.com/connect"
	"github.com/oklog/ulid/v2"

	agentguildv1 "github.com/kazz187/agentguild/api/agentguild/v1"
	"github.com/kazz187/agentguild/api/agentguild/v1/agentguildv1connect"
	"github.com/kazz187/agentguild/internal/eventbus"
	"github.com/kazz187/agentguild/pkg/cerr"
)

var _ agentguildv1connect.AgentServiceHandler = (*Server)(nil)

// Lifecycle owns the runtime state of agents. Every method serializes with
// other lifecycle calls for the same agent.
type Lifecycle interface {
	Start(ctx context.Context, id string) (*Agent, error)
	Stop(ctx context.Context, id string) (*Agent, error)
	Toggle(ctx context.Context, id string) (*Agent, error)
	Restart(ctx context.Context, id string) (*Agent, error)
	Acknowledge(ctx context.Context, id string) (*Agent, error)
	// ApplyConfig runs mutate on the stored agent, persists it and brings a
	// running runtime in line. restarted is true when that took a stop+start.
	ApplyConfig(ctx context.Context, id string, mutate func(*Agent) error) (a *Agent, restarted bool, err error)
	HealthCheck(ctx context.Context, id string) bool
	// Remove stops the agent if needed and deletes its record.
	Remove(ctx context.Context, id string) error
}

// TaskCleaner deletes the tasks owned by an agent, refusing while one runs.
type TaskCleaner interface {
	EnsureAgentIdle(ctx context.Context, agentID string) error
	DeleteAgentTasks(ctx context.Context, agentID string) error
}

type ProjectChecker interface {
	Exists(ctx context.Context, id string) (bool, error)
}

type Server struct {
	repo      Repository
	projects  ProjectChecker
	lifecycle Lifecycle
	tasks     TaskCleaner
	bus       *eventbus.Bus
}

func NewServer(repo Repository, projects ProjectChecker, lifecycle Lifecycle, tasks TaskCleaner, bus *eventbus.Bus) *Server {
	return &Server{
		repo:      repo,
		projects:  projects,
		lifecycle: lifecycle,
		tasks:     tasks,
		bus:       bus,
	}
}

func (s *Server) CreateAgent(ctx context.Context, req *connect.Request[agentguildv1.CreateAgentRequest]) (*connect.Response[agentguildv1.AgentResponse], error) {
	features, err := ParseFeatures(req.Msg.Features)
	if err != nil {
		return nil, cerr.Validation("invalid agent configuration", cerr.FieldViolation{Field: "features", Message: err.Error()})
	}
	now := time.Now()
	a := &Agent{
		ID:           ulid.Make().String(),
		ProjectID:    req.Msg.ProjectID,
		Name:         req.Msg.Name,
		Description:  req.Msg.Description,
		Provider:     req.Msg.Provider,
		Model:        req.Msg.Model,
		SystemPrompt: req.Msg.SystemPrompt,
		Features:     features,
		MultiAgent:   multiAgentFromAPI(req.Msg.MultiAgent),
		MCPServerIDs: req.Msg.MCPServerIDs,
		SkillIDs:     req.Msg.SkillIDs,
		Status:       StatusStopped,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := a.Validate(); err != nil {
		return nil, err
	}
	ok, err := s.projects.Exists(ctx, a.ProjectID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, cerr.NewError(cerr.NotFound, "project not found", nil)
	}
	if _, err := s.repo.FindByName(ctx, a.ProjectID, a.Name); err == nil {
		return nil, cerr.NewError(cerr.AlreadyExists, "an agent with this name already exists in the project", nil)
	} else if !cerr.IsCode(err, cerr.NotFound) {
		return nil, err
	}
	if err := s.repo.Create(ctx, a); err != nil {
		return nil, err
	}
	s.bus.Emit(ctx, eventbus.CategoryLifecycle, eventbus.TypeAgentCreated, a.ID, "", map[string]any{
		"agent": ToAPI(a),
	})
	return connect.NewResponse(&agentguildv1.AgentResponse{Agent: ToAPI(a)}), nil
}

func (s *Server) GetAgent(ctx context.Context, req *connect.Request[agentguildv1.GetAgentRequest]) (*connect.Response[agentguildv1.AgentResponse], error) {
	a, err := s.repo.Get(ctx, req.Msg.ID)
	if err != nil {
		return nil, err
	}
	return connect.NewResponse(&agentguildv1.AgentResponse{Agent: ToAPI(a)}), nil
}

func (s *Server) ListAgents(ctx context.Context, req *connect.Request[agentguildv1.ListAgentsRequest]) (*connect.Response[agentguildv1.ListAgentsResponse], error) {
	limit, offset := req.Msg.Pagination.LimitOffset(50)
	agents, total, err := s.repo.List(ctx, req.Msg.ProjectID, int(limit), int(offset))
	if err != nil {
		return nil, err
	}
	out := make([]*agentguildv1.Agent, len(agents))
	for i, a := range agents {
		out[i] = ToAPI(a)
	}
	return connect.NewResponse(&agentguildv1.ListAgentsResponse{
		Agents: out,
		Pagination: &agentguildv1.PaginationResponse{
			Total:  int32(total),
			Limit:  limit,
			Offset: offset,
		},
	}), nil
}

func (s *Server) UpdateAgent(ctx context.Context, req *connect.Request[agentguildv1.UpdateAgentRequest]) (*connect.Response[agentguildv1.UpdateAgentResponse], error) {
	msg := req.Msg
	var features *Features
	if msg.Features != nil {
		f, err := ParseFeatures(msg.Features)
		if err != nil {
			return nil, cerr.Validation("invalid agent configuration", cerr.FieldViolation{Field: "features", Message: err.Error()})
		}
		features = &f
	}
	a, restarted, err := s.lifecycle.ApplyConfig(ctx, msg.ID, func(a *Agent) error {
		if msg.Name != nil {
			a.Name = *msg.Name
		}
		if msg.Description != nil {
			a.Description = *msg.Description
		}
		if msg.Provider != nil {
			a.Provider = *msg.Provider
		}
		if msg.Model != nil {
			a.Model = *msg.Model
		}
		if msg.SystemPrompt != nil {
			a.SystemPrompt = *msg.SystemPrompt
		}
		if features != nil {
			a.Features = *features
		}
		if msg.MultiAgent != nil {
			a.MultiAgent = multiAgentFromAPI(msg.MultiAgent)
		}
		if msg.MCPServerIDs != nil {
			a.MCPServerIDs = msg.MCPServerIDs
		}
		if msg.SkillIDs != nil {
			a.SkillIDs = msg.SkillIDs
		}
		return a.Validate()
	})
	if err != nil {
		return nil, err
	}
	return connect.NewResponse(&agentguildv1.UpdateAgentResponse{
		Agent:     ToAPI(a),
		Restarted: restarted,
	}), nil
}

func (s *Server) DeleteAgent(ctx context.Context, req *connect.Request[agentguildv1.AgentIDRequest]) (*connect.Response[agentguildv1.Empty], error) {
	if err := s.Delete(ctx, req.Msg.ID); err != nil {
		return nil, err
	}
	return connect.NewResponse(&agentguildv1.Empty{}), nil
}

// Delete removes an agent together with its tasks, stopping it first when
// it is live. Tasks are only removed once the agent is gone.
func (s *Server) Delete(ctx context.Context, id string) error {
	if _, err := s.repo.Get(ctx, id); err != nil {
		return err
	}
	if err := s.tasks.EnsureAgentIdle(ctx, id); err != nil {
		return err
	}
	if err := s.lifecycle.Remove(ctx, id); err != nil {
		return err
	}
	if err := s.tasks.DeleteAgentTasks(ctx, id); err != nil {
		slog.ErrorContext(ctx, "agent: failed to delete tasks of removed agent", "agent_id", id, "error", err)
		return err
	}
	s.bus.Emit(ctx, eventbus.CategoryLifecycle, eventbus.TypeAgentDeleted, id, "", nil)
	return nil
}

func (s *Server) lifecycleCall(ctx context.Context, id string, fn func(context.Context, string) (*Agent, error)) (*connect.Response[agentguildv1.AgentResponse], error) {
	a, err := fn(ctx, id)
	if err != nil {
		return nil, err
	}
	return connect.NewResponse(&agentguildv1.AgentResponse{Agent: ToAPI(a)}), nil
}

func (s *Server) StartAgent(ctx context.Context, req *connect.Request[agentguildv1.AgentIDRequest]) (*connect.Response[agentguildv1.AgentResponse], error) {
	return s.lifecycleCall(ctx, req.Msg.ID, s.lifecycle.Start)
}

func (s *Server) StopAgent(ctx context.Context, req *connect.Request[agentguildv1.AgentIDRequest]) (*connect.Response[agentguildv1.AgentResponse], error) {
	return s.lifecycleCall(ctx, req.Msg.ID, s.lifecycle.Stop)
}

func (s *Server) ToggleAgent(ctx context.Context, req *connect.Request[agentguildv1.AgentIDRequest]) (*connect.Response[agentguildv1.AgentResponse], error) {
	return s.lifecycleCall(ctx, req.Msg.ID, s.lifecycle.Toggle)
}

func (s *Server) RestartAgent(ctx context.Context, req *connect.Request[agentguildv1.AgentIDRequest]) (*connect.Response[agentguildv1.AgentResponse], error) {
	return s.lifecycleCall(ctx, req.Msg.ID, s.lifecycle.Restart)
}

func (s *Server) AcknowledgeAgent(ctx context.Context, req *connect.Request[agentguildv1.AgentIDRequest]) (*connect.Response[agentguildv1.AgentResponse], error) {
	return s.lifecycleCall(ctx, req.Msg.ID, s.lifecycle.Acknowledge)
}

func (s *Server) HealthCheckAgent(ctx context.Context, req *connect.Request[agentguildv1.AgentIDRequest]) (*connect.Response[agentguildv1.HealthCheckAgentResponse], error) {
	return connect.NewResponse(&agentguildv1.HealthCheckAgentResponse{
		Healthy: s.lifecycle.HealthCheck(ctx, req.Msg.ID),
	}), nil
}
