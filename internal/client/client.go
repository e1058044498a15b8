// Package client wraps the agentguild API clients for command line use.
package client

import (
	"context"
	"net/http"

	"connectrpc.com/connect"

	"github.com/kazz187/agentguild/pkg/cerr"
)

type Config struct {
	BaseURL    string
	APIKey     string
	HTTPClient connect.HTTPClient
}

func (c Config) options() []connect.ClientOption {
	return []connect.ClientOption{
		connect.WithInterceptors(&apiKeyInterceptor{key: c.APIKey}, cerr.NewConvertConnectErrorInterceptor()),
	}
}

func (c Config) httpClient() connect.HTTPClient {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}

// apiKeyInterceptor sends the API key on every outgoing call.
type apiKeyInterceptor struct {
	key string
}

func (i *apiKeyInterceptor) WrapUnary(next connect.UnaryFunc) connect.UnaryFunc {
	return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
		if req.Spec().IsClient && i.key != "" {
			req.Header().Set("X-API-Key", i.key)
		}
		return next(ctx, req)
	}
}

func (i *apiKeyInterceptor) WrapStreamingClient(next connect.StreamingClientFunc) connect.StreamingClientFunc {
	return func(ctx context.Context, spec connect.Spec) connect.StreamingClientConn {
		conn := next(ctx, spec)
		if i.key != "" {
			conn.RequestHeader().Set("X-API-Key", i.key)
		}
		return conn
	}
}

func (i *apiKeyInterceptor) WrapStreamingHandler(next connect.StreamingHandlerFunc) connect.StreamingHandlerFunc {
	return next
}
