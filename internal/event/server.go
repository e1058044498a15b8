// Package event exposes the telemetry event log over Connect and plain
// HTTP JSON.
package event

import (
	"context"

	"connectrpc.com/connect"

	agentguildv1 "github.com/kazz187/agentguild/api/agentguild/v1"
	"github.com/kazz187/agentguild/api/agentguild/v1/agentguildv1connect"
	"github.com/kazz187/agentguild/internal/eventbus"
)

var _ agentguildv1connect.EventServiceHandler = (*Server)(nil)

const subscribeBuffer = 256

type Server struct {
	bus *eventbus.Bus
}

func NewServer(bus *eventbus.Bus) *Server {
	return &Server{bus: bus}
}

func (s *Server) QueryEvents(ctx context.Context, req *connect.Request[agentguildv1.QueryEventsRequest]) (*connect.Response[agentguildv1.QueryEventsResponse], error) {
	events, err := s.bus.Query(ctx, filterFromQuery(req.Msg))
	if err != nil {
		return nil, err
	}
	return connect.NewResponse(&agentguildv1.QueryEventsResponse{Events: toAPIList(events)}), nil
}

// SubscribeEvents replays stored events after since_seq, then streams live
// ones. The live subscription is opened before the replay so nothing
// published in between is lost; duplicates are skipped by Seq.
func (s *Server) SubscribeEvents(ctx context.Context, req *connect.Request[agentguildv1.SubscribeEventsRequest], stream *connect.ServerStream[agentguildv1.Event]) error {
	filter := eventbus.Filter{
		Category: eventbus.Category(req.Msg.Category),
		AgentID:  req.Msg.AgentID,
		Type:     req.Msg.Type,
		TaskID:   req.Msg.TaskID,
	}
	subID, ch := s.bus.Subscribe(filter, subscribeBuffer)
	defer s.bus.Unsubscribe(subID)

	last := req.Msg.SinceSeq
	if last > 0 {
		var err error
		last, err = s.replay(ctx, filter, last, stream)
		if err != nil {
			return err
		}
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case e, ok := <-ch:
			if !ok {
				return nil
			}
			if e.Seq <= last {
				continue
			}
			last = e.Seq
			if err := stream.Send(ToAPI(e)); err != nil {
				return err
			}
		}
	}
}

func (s *Server) replay(ctx context.Context, filter eventbus.Filter, since uint64, stream *connect.ServerStream[agentguildv1.Event]) (uint64, error) {
	filter.Limit = eventbus.MaxQueryLimit
	last := since
	for {
		filter.SinceSeq = last
		events, err := s.bus.Query(ctx, filter)
		if err != nil {
			return last, err
		}
		for _, e := range events {
			if err := stream.Send(ToAPI(e)); err != nil {
				return last, err
			}
			last = e.Seq
		}
		if len(events) < filter.Limit {
			return last, nil
		}
	}
}
