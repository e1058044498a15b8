package internal

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"net"
	"net/http"
	"strings"

	"connectrpc.com/connect"
	"connectrpc.com/grpchealth"
	"github.com/go-chi/chi/v5"
	"github.com/rs/cors"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/kazz187/agentguild/api/agentguild/v1/agentguildv1connect"
	"github.com/kazz187/agentguild/internal/agent"
	"github.com/kazz187/agentguild/internal/config"
	"github.com/kazz187/agentguild/internal/delegation"
	"github.com/kazz187/agentguild/internal/event"
	"github.com/kazz187/agentguild/internal/project"
	"github.com/kazz187/agentguild/internal/pushnotification"
	"github.com/kazz187/agentguild/internal/task"
	"github.com/kazz187/agentguild/pkg/cerr"
	"github.com/kazz187/agentguild/pkg/clog"
)

type Server struct {
	server                 *http.Server
	env                    *config.Env
	projectServer          *project.Server
	agentServer            *agent.Server
	taskServer             *task.Server
	delegationServer       *delegation.Server
	eventServer            *event.Server
	pushNotificationServer *pushnotification.Server
}

func NewServer(
	env *config.Env,
	projectServer *project.Server,
	agentServer *agent.Server,
	taskServer *task.Server,
	delegationServer *delegation.Server,
	eventServer *event.Server,
	pushNotificationServer *pushnotification.Server,
) *Server {
	return &Server{
		env:                    env,
		projectServer:          projectServer,
		agentServer:            agentServer,
		taskServer:             taskServer,
		delegationServer:       delegationServer,
		eventServer:            eventServer,
		pushNotificationServer: pushNotificationServer,
	}
}

// ListenAndServe blocks serving HTTP. ctx becomes the base context of every
// request, so cancelling it ends open streams before Shutdown waits on them.
func (s *Server) ListenAndServe(ctx context.Context) error {
	s.server = &http.Server{
		Addr:        net.JoinHostPort(s.env.HTTPHost, s.env.HTTPPort),
		Handler:     s.Handler(),
		BaseContext: func(_ net.Listener) context.Context { return ctx },
	}
	slog.Info("starting server", "addr", s.server.Addr)
	return s.server.ListenAndServe()
}

// Handler is the full handler chain: h2c, CORS, API key, then the mux.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Route("/api", func(r chi.Router) {
		r.Use(
			clog.SlogChiMiddleware(),
			cerr.NewConvertConnectErrorChiMiddleware(),
		)
		s.eventServer.Routes(r)
		r.NotFound(func(w http.ResponseWriter, r *http.Request) {
			cerr.SetNewJSONError(r.Context(), cerr.NotFound, "not found", nil)
		})
	})

	mux := http.NewServeMux()

	mux.Handle("/health", &HealthChecker{})
	mux.Handle("/api/", r)
	mux.Handle(grpchealth.NewHandler(grpchealth.NewStaticChecker(
		agentguildv1connect.ProjectServiceName,
		agentguildv1connect.AgentServiceName,
		agentguildv1connect.TaskServiceName,
		agentguildv1connect.DelegationServiceName,
		agentguildv1connect.EventServiceName,
		agentguildv1connect.PushNotificationServiceName,
	)))

	interceptors := s.interceptors()
	handlerOpts := connect.WithInterceptors(interceptors...)

	mux.Handle(agentguildv1connect.NewProjectServiceHandler(s.projectServer, handlerOpts))
	mux.Handle(agentguildv1connect.NewAgentServiceHandler(s.agentServer, handlerOpts))
	mux.Handle(agentguildv1connect.NewTaskServiceHandler(s.taskServer, handlerOpts))
	mux.Handle(agentguildv1connect.NewDelegationServiceHandler(s.delegationServer, handlerOpts))
	mux.Handle(agentguildv1connect.NewEventServiceHandler(s.eventServer, handlerOpts))
	mux.Handle(agentguildv1connect.NewPushNotificationServiceHandler(s.pushNotificationServer, handlerOpts))

	return h2c.NewHandler(cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	}).Handler(s.apiKeyMiddleware(mux)), &http2.Server{})
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

type HealthChecker struct{}

func (hc *HealthChecker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func (s *Server) interceptors() []connect.Interceptor {
	return []connect.Interceptor{
		clog.NewSlogConnectInterceptor(clog.WithConnectFilter(clog.SkipHealthCheck)),
		cerr.NewConvertConnectErrorInterceptor(),
	}
}

func (s *Server) apiKeyMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Skip API key check for health endpoints.
		if r.URL.Path == "/health" || r.URL.Path == "/grpc.health.v1.Health/Check" {
			next.ServeHTTP(w, r)
			return
		}
		apiKey := r.Header.Get("X-API-Key")
		if apiKey == "" {
			apiKey = strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		}
		if subtle.ConstantTimeCompare([]byte(apiKey), []byte(s.env.APIKey)) != 1 {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}
