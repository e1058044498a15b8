package task

import (
	"context"

	"connectrpc.com/connect"

	agentguildv1 "github.com/kazz187/agentguild/api/agentguild/v1"
	"github.com/kazz187/agentguild/api/agentguild/v1/agentguildv1connect"
)

var _ agentguildv1connect.TaskServiceHandler = (*Server)(nil)

// Service performs the state-changing task operations. Writes go through it
// so they serialize with executions.
type Service interface {
	Create(ctx context.Context, agentID string, def Definition) (*Task, error)
	Update(ctx context.Context, taskID string, patch func(*Definition)) (*Task, error)
	Delete(ctx context.Context, taskID string) error
	Cancel(ctx context.Context, taskID string) (*Task, error)
	// Dispatch starts an execution and returns once the task is running.
	Dispatch(ctx context.Context, taskID string) (*Task, error)
}

type Server struct {
	repo         Repository
	trajectories TrajectoryRepository
	service      Service
}

func NewServer(repo Repository, trajectories TrajectoryRepository, service Service) *Server {
	return &Server{
		repo:         repo,
		trajectories: trajectories,
		service:      service,
	}
}

func (s *Server) CreateTask(ctx context.Context, req *connect.Request[agentguildv1.CreateTaskRequest]) (*connect.Response[agentguildv1.TaskResponse], error) {
	t, err := s.service.Create(ctx, req.Msg.AgentID, Definition{
		Title:      req.Msg.Title,
		Prompt:     req.Msg.Prompt,
		Type:       Type(req.Msg.Type),
		Priority:   int(req.Msg.Priority),
		ExecuteAt:  req.Msg.ExecuteAt,
		Recurrence: req.Msg.Recurrence,
	})
	if err != nil {
		return nil, err
	}
	return connect.NewResponse(&agentguildv1.TaskResponse{Task: ToAPI(t)}), nil
}

func (s *Server) GetTask(ctx context.Context, req *connect.Request[agentguildv1.TaskIDRequest]) (*connect.Response[agentguildv1.TaskResponse], error) {
	t, err := s.repo.Get(ctx, req.Msg.ID)
	if err != nil {
		return nil, err
	}
	return connect.NewResponse(&agentguildv1.TaskResponse{Task: ToAPI(t)}), nil
}

func (s *Server) ListTasks(ctx context.Context, req *connect.Request[agentguildv1.ListTasksRequest]) (*connect.Response[agentguildv1.ListTasksResponse], error) {
	limit, offset := req.Msg.Pagination.LimitOffset(50)
	tasks, err := s.repo.List(ctx, Filter{
		AgentID:   req.Msg.AgentID,
		ProjectID: req.Msg.ProjectID,
		Status:    Status(req.Msg.Status),
		Source:    Source(req.Msg.Source),
	})
	if err != nil {
		return nil, err
	}
	SortForDisplay(tasks)

	total := len(tasks)
	page := tasks[min(int(offset), total):]
	if len(page) > int(limit) {
		page = page[:limit]
	}
	out := make([]*agentguildv1.Task, len(page))
	for i, t := range page {
		out[i] = ToAPI(t)
	}
	return connect.NewResponse(&agentguildv1.ListTasksResponse{
		Tasks: out,
		Pagination: &agentguildv1.PaginationResponse{
			Total:  int32(total),
			Limit:  limit,
			Offset: offset,
		},
	}), nil
}

func (s *Server) UpdateTask(ctx context.Context, req *connect.Request[agentguildv1.UpdateTaskRequest]) (*connect.Response[agentguildv1.TaskResponse], error) {
	msg := req.Msg
	t, err := s.service.Update(ctx, msg.ID, func(d *Definition) {
		if msg.Title != nil {
			d.Title = *msg.Title
		}
		if msg.Prompt != nil {
			d.Prompt = *msg.Prompt
		}
		if msg.Priority != nil {
			d.Priority = int(*msg.Priority)
		}
		if msg.ClearExecuteAt {
			d.ExecuteAt = nil
		} else if msg.ExecuteAt != nil {
			d.ExecuteAt = msg.ExecuteAt
		}
		if msg.Recurrence != nil {
			d.Recurrence = *msg.Recurrence
		}
	})
	if err != nil {
		return nil, err
	}
	return connect.NewResponse(&agentguildv1.TaskResponse{Task: ToAPI(t)}), nil
}

func (s *Server) DeleteTask(ctx context.Context, req *connect.Request[agentguildv1.TaskIDRequest]) (*connect.Response[agentguildv1.Empty], error) {
	if err := s.service.Delete(ctx, req.Msg.ID); err != nil {
		return nil, err
	}
	return connect.NewResponse(&agentguildv1.Empty{}), nil
}

func (s *Server) ExecuteTask(ctx context.Context, req *connect.Request[agentguildv1.TaskIDRequest]) (*connect.Response[agentguildv1.TaskResponse], error) {
	t, err := s.service.Dispatch(ctx, req.Msg.ID)
	if err != nil {
		return nil, err
	}
	return connect.NewResponse(&agentguildv1.TaskResponse{Task: ToAPI(t)}), nil
}

func (s *Server) CancelTask(ctx context.Context, req *connect.Request[agentguildv1.TaskIDRequest]) (*connect.Response[agentguildv1.TaskResponse], error) {
	t, err := s.service.Cancel(ctx, req.Msg.ID)
	if err != nil {
		return nil, err
	}
	return connect.NewResponse(&agentguildv1.TaskResponse{Task: ToAPI(t)}), nil
}

func (s *Server) GetTrajectory(ctx context.Context, req *connect.Request[agentguildv1.GetTrajectoryRequest]) (*connect.Response[agentguildv1.GetTrajectoryResponse], error) {
	if _, err := s.repo.Get(ctx, req.Msg.TaskID); err != nil {
		return nil, err
	}
	steps, err := s.trajectories.List(ctx, req.Msg.TaskID, req.Msg.RunID)
	if err != nil {
		return nil, err
	}
	out := make([]*agentguildv1.Step, len(steps))
	for i, st := range steps {
		out[i] = StepToAPI(st)
	}
	return connect.NewResponse(&agentguildv1.GetTrajectoryResponse{Steps: out}), nil
}
