package event

import (
	agentguildv1 "github.com/kazz187/agentguild/api/agentguild/v1"
	"github.com/kazz187/agentguild/internal/eventbus"
)

func ToAPI(e *eventbus.Event) *agentguildv1.Event {
	return &agentguildv1.Event{
		ID:        e.ID,
		Seq:       e.Seq,
		Type:      e.Type,
		Category:  string(e.Category),
		AgentID:   e.AgentID,
		ThreadID:  e.ThreadID,
		TaskID:    e.TaskID,
		Timestamp: e.Timestamp,
		Data:      e.Data,
	}
}

func filterFromQuery(req *agentguildv1.QueryEventsRequest) eventbus.Filter {
	f := eventbus.Filter{
		Category: eventbus.Category(req.Category),
		AgentID:  req.AgentID,
		Type:     req.Type,
		TaskID:   req.TaskID,
		SinceSeq: req.SinceSeq,
		Limit:    int(req.Limit),
	}
	if req.Since != nil {
		f.Since = *req.Since
	}
	return f
}

func toAPIList(events []*eventbus.Event) []*agentguildv1.Event {
	out := make([]*agentguildv1.Event, len(events))
	for i, e := range events {
		out[i] = ToAPI(e)
	}
	return out
}

