package client

import (
	"context"
	"fmt"

	"connectrpc.com/connect"

	agentguildv1 "github.com/kazz187/agentguild/api/agentguild/v1"
	"github.com/kazz187/agentguild/api/agentguild/v1/agentguildv1connect"
)

type EventClient struct {
	client *agentguildv1connect.EventServiceClient
}

func NewEventClient(cfg Config) *EventClient {
	return &EventClient{
		client: agentguildv1connect.NewEventServiceClient(cfg.httpClient(), cfg.BaseURL, cfg.options()...),
	}
}

func (c *EventClient) Query(ctx context.Context, req *agentguildv1.QueryEventsRequest) ([]*agentguildv1.Event, error) {
	resp, err := c.client.QueryEvents(ctx, connect.NewRequest(req))
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	return resp.Msg.Events, nil
}

// Follow replays events after req.SinceSeq and then streams new ones to fn
// until ctx is done or fn fails.
func (c *EventClient) Follow(ctx context.Context, req *agentguildv1.SubscribeEventsRequest, fn func(*agentguildv1.Event) error) error {
	stream, err := c.client.SubscribeEvents(ctx, connect.NewRequest(req))
	if err != nil {
		return fmt.Errorf("failed to subscribe to events: %w", err)
	}
	defer stream.Close()
	for stream.Receive() {
		if err := fn(stream.Msg()); err != nil {
			return err
		}
	}
	if ctx.Err() != nil {
		return nil
	}
	return stream.Err()
}
