package delegation

import (
	"context"

	"connectrpc.com/connect"

	agentguildv1 "github.com/kazz187/agentguild/api/agentguild/v1"
	"github.com/kazz187/agentguild/api/agentguild/v1/agentguildv1connect"
	"github.com/kazz187/agentguild/internal/task"
	"github.com/kazz187/agentguild/pkg/cerr"
)

var _ agentguildv1connect.DelegationServiceHandler = (*Server)(nil)

type Server struct {
	router *Router
}

func NewServer(router *Router) *Server {
	return &Server{router: router}
}

func (s *Server) Delegate(ctx context.Context, req *connect.Request[agentguildv1.DelegateRequest]) (*connect.Response[agentguildv1.TaskResponse], error) {
	t, err := s.router.Delegate(ctx, req.Msg.FromAgentID, req.Msg.ToAgentID, task.Definition{
		Title:      req.Msg.Title,
		Prompt:     req.Msg.Prompt,
		Priority:   int(req.Msg.Priority),
		ExecuteAt:  req.Msg.ExecuteAt,
		Type:       task.Type(req.Msg.Type),
		Recurrence: req.Msg.Recurrence,
	})
	if err != nil {
		return nil, err
	}
	return connect.NewResponse(&agentguildv1.TaskResponse{Task: task.ToAPI(t)}), nil
}

func (s *Server) ListDelegationResults(_ context.Context, req *connect.Request[agentguildv1.CoordinatorRequest]) (*connect.Response[agentguildv1.ListDelegationResultsResponse], error) {
	if req.Msg.CoordinatorID == "" {
		return nil, cerr.Validation("coordinator_id is required", cerr.FieldViolation{Field: "coordinator_id", Message: "required"})
	}
	return connect.NewResponse(&agentguildv1.ListDelegationResultsResponse{
		Results: s.router.Results(req.Msg.CoordinatorID),
	}), nil
}

// SubscribeDelegationResults streams results for a coordinator as they are
// delivered until the client goes away.
func (s *Server) SubscribeDelegationResults(ctx context.Context, req *connect.Request[agentguildv1.CoordinatorRequest], stream *connect.ServerStream[agentguildv1.DelegationResult]) error {
	if req.Msg.CoordinatorID == "" {
		return cerr.Validation("coordinator_id is required", cerr.FieldViolation{Field: "coordinator_id", Message: "required"})
	}
	subID, ch := s.router.Subscribe(req.Msg.CoordinatorID)
	defer s.router.Unsubscribe(req.Msg.CoordinatorID, subID)

	for {
		select {
		case <-ctx.Done():
			return nil
		case res, ok := <-ch:
			if !ok {
				return nil
			}
			if err := stream.Send(res); err != nil {
				return err
			}
		}
	}
}
