package pushnotification

import (
	"context"
	"time"

	"connectrpc.com/connect"
	"github.com/oklog/ulid/v2"

	agentguildv1 "github.com/kazz187/agentguild/api/agentguild/v1"
	"github.com/kazz187/agentguild/api/agentguild/v1/agentguildv1connect"
	"github.com/kazz187/agentguild/internal/config"
	"github.com/kazz187/agentguild/internal/pushsubscription"
	"github.com/kazz187/agentguild/pkg/cerr"
)

var _ agentguildv1connect.PushNotificationServiceHandler = (*Server)(nil)

type Server struct {
	vapidEnv *config.VAPIDEnv
	repo     pushsubscription.Repository
}

func NewServer(vapidEnv *config.VAPIDEnv, repo pushsubscription.Repository) *Server {
	return &Server{
		vapidEnv: vapidEnv,
		repo:     repo,
	}
}

func (s *Server) GetVapidPublicKey(_ context.Context, _ *connect.Request[agentguildv1.Empty]) (*connect.Response[agentguildv1.GetVapidPublicKeyResponse], error) {
	if s.vapidEnv.VAPIDPublicKey == "" {
		return nil, cerr.NewError(cerr.FailedPrecondition, "VAPID keys not configured", nil)
	}
	return connect.NewResponse(&agentguildv1.GetVapidPublicKeyResponse{
		PublicKey: s.vapidEnv.VAPIDPublicKey,
	}), nil
}

// RegisterPushSubscription is idempotent per endpoint: registering a known
// endpoint again replaces its keys.
func (s *Server) RegisterPushSubscription(ctx context.Context, req *connect.Request[agentguildv1.RegisterPushSubscriptionRequest]) (*connect.Response[agentguildv1.Empty], error) {
	var violations []cerr.FieldViolation
	if req.Msg.Endpoint == "" {
		violations = append(violations, cerr.FieldViolation{Field: "endpoint", Message: "required"})
	}
	if req.Msg.P256dhKey == "" {
		violations = append(violations, cerr.FieldViolation{Field: "p256dh_key", Message: "required"})
	}
	if req.Msg.AuthKey == "" {
		violations = append(violations, cerr.FieldViolation{Field: "auth_key", Message: "required"})
	}
	if len(violations) > 0 {
		return nil, cerr.Validation("invalid push subscription", violations...)
	}

	now := time.Now()
	existing, err := s.repo.FindByEndpoint(ctx, req.Msg.Endpoint)
	switch {
	case err == nil:
		existing.P256dhKey = req.Msg.P256dhKey
		existing.AuthKey = req.Msg.AuthKey
		existing.UpdatedAt = now
		if err := s.repo.Update(ctx, existing); err != nil {
			return nil, err
		}
	case cerr.IsCode(err, cerr.NotFound):
		if err := s.repo.Create(ctx, &pushsubscription.Subscription{
			ID:        ulid.Make().String(),
			Endpoint:  req.Msg.Endpoint,
			P256dhKey: req.Msg.P256dhKey,
			AuthKey:   req.Msg.AuthKey,
			CreatedAt: now,
			UpdatedAt: now,
		}); err != nil {
			return nil, err
		}
	default:
		return nil, err
	}
	return connect.NewResponse(&agentguildv1.Empty{}), nil
}

func (s *Server) UnregisterPushSubscription(ctx context.Context, req *connect.Request[agentguildv1.UnregisterPushSubscriptionRequest]) (*connect.Response[agentguildv1.Empty], error) {
	if req.Msg.Endpoint == "" {
		return nil, cerr.Validation("endpoint is required", cerr.FieldViolation{Field: "endpoint", Message: "required"})
	}
	sub, err := s.repo.FindByEndpoint(ctx, req.Msg.Endpoint)
	if err != nil {
		return nil, err
	}
	if err := s.repo.Delete(ctx, sub.ID); err != nil {
		return nil, err
	}
	return connect.NewResponse(&agentguildv1.Empty{}), nil
}
