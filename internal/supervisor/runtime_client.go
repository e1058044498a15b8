package supervisor

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"connectrpc.com/connect"

	agentguildv1 "github.com/kazz187/agentguild/api/agentguild/v1"
	"github.com/kazz187/agentguild/api/agentguild/v1/agentguildv1connect"
	"github.com/kazz187/agentguild/pkg/cerr"
)

// Runtime is the control channel to one agent runtime.
type Runtime interface {
	Ping(ctx context.Context) (*agentguildv1.PingResponse, error)
	ApplyConfig(ctx context.Context, cfg *agentguildv1.AgentConfig) (*agentguildv1.ApplyConfigResponse, error)
	ExecuteTask(ctx context.Context, req *agentguildv1.ExecuteTaskRequest, onStep func(*agentguildv1.Step) error) (*agentguildv1.TaskOutcome, error)
	Notify(ctx context.Context, result *agentguildv1.DelegationResult) error
}

// Dialer returns the control channel for a runtime listening on port.
type Dialer func(port int) Runtime

// ConnectDialer talks to runtimes over Connect on the loopback interface.
func ConnectDialer(httpClient connect.HTTPClient) Dialer {
	return func(port int) Runtime {
		return &connectRuntime{
			client: agentguildv1connect.NewRuntimeServiceClient(
				httpClient,
				fmt.Sprintf("http://127.0.0.1:%d", port),
				connect.WithInterceptors(cerr.NewConvertConnectErrorInterceptor()),
			),
		}
	}
}

// DefaultDialer uses a plain HTTP client.
func DefaultDialer() Dialer {
	return ConnectDialer(http.DefaultClient)
}

type connectRuntime struct {
	client *agentguildv1connect.RuntimeServiceClient
}

func (r *connectRuntime) Ping(ctx context.Context) (*agentguildv1.PingResponse, error) {
	res, err := r.client.Ping(ctx, connect.NewRequest(&agentguildv1.Empty{}))
	if err != nil {
		return nil, err
	}
	return res.Msg, nil
}

func (r *connectRuntime) ApplyConfig(ctx context.Context, cfg *agentguildv1.AgentConfig) (*agentguildv1.ApplyConfigResponse, error) {
	res, err := r.client.ApplyConfig(ctx, connect.NewRequest(&agentguildv1.ApplyConfigRequest{Config: cfg}))
	if err != nil {
		return nil, err
	}
	return res.Msg, nil
}

func (r *connectRuntime) ExecuteTask(ctx context.Context, req *agentguildv1.ExecuteTaskRequest, onStep func(*agentguildv1.Step) error) (*agentguildv1.TaskOutcome, error) {
	stream, err := r.client.ExecuteTask(ctx, connect.NewRequest(req))
	if err != nil {
		return nil, cerr.FromConnectError(err)
	}
	defer stream.Close()

	var outcome *agentguildv1.TaskOutcome
	for stream.Receive() {
		msg := stream.Msg()
		if msg.Step != nil {
			if err := onStep(msg.Step); err != nil {
				return nil, err
			}
		}
		if msg.Outcome != nil {
			outcome = msg.Outcome
		}
	}
	if err := stream.Err(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		// Runtimes report task failures in the outcome, so a broken stream
		// is always a transport problem.
		return nil, cerr.Unreachable("lost connection to runtime", err)
	}
	if outcome == nil {
		// The stream ended cleanly but without a result: the runtime went away.
		return nil, cerr.Unreachable("runtime closed the task stream without a result", errors.New("missing outcome"))
	}
	return outcome, nil
}

func (r *connectRuntime) Notify(ctx context.Context, result *agentguildv1.DelegationResult) error {
	_, err := r.client.Notify(ctx, connect.NewRequest(&agentguildv1.NotifyRequest{Result: result}))
	return err
}
