package pushnotification

import (
	"context"
	"fmt"
	"log/slog"

	agentguildv1 "github.com/kazz187/agentguild/api/agentguild/v1"
	"github.com/kazz187/agentguild/internal/eventbus"
)

// Dispatcher turns agent crashes and failed tasks into operator alerts.
type Dispatcher struct {
	bus    *eventbus.Bus
	sender *Sender
}

func NewDispatcher(bus *eventbus.Bus, sender *Sender) *Dispatcher {
	return &Dispatcher{bus: bus, sender: sender}
}

// Start blocks until ctx is cancelled.
func (d *Dispatcher) Start(ctx context.Context) {
	subID, ch := d.bus.Subscribe(eventbus.Filter{}, 256)
	defer d.bus.Unsubscribe(subID)

	slog.InfoContext(ctx, "push notification dispatcher started")
	for {
		select {
		case <-ctx.Done():
			slog.InfoContext(ctx, "push notification dispatcher stopped")
			return
		case e, ok := <-ch:
			if !ok {
				return
			}
			if payload := payloadFor(e); payload != nil {
				d.sender.SendToAll(ctx, payload)
			}
		}
	}
}

// payloadFor returns nil for events that do not warrant an alert.
func payloadFor(e *eventbus.Event) *NotificationPayload {
	switch e.Type {
	case eventbus.TypeAgentCrashed:
		name := e.AgentID
		if a, ok := e.Data["agent"].(*agentguildv1.Agent); ok && a.Name != "" {
			name = a.Name
		}
		reason, _ := e.Data["error"].(string)
		return &NotificationPayload{
			Title: fmt.Sprintf("Agent %s crashed", name),
			Body:  reason,
			URL:   "/agents/" + e.AgentID,
			Tag:   e.ID,
		}
	case eventbus.TypeTaskFailed:
		title := e.TaskID
		body := ""
		if t, ok := e.Data["task"].(*agentguildv1.Task); ok {
			if t.Title != "" {
				title = t.Title
			}
			body = t.Error
		}
		return &NotificationPayload{
			Title: "Task failed: " + title,
			Body:  body,
			URL:   "/tasks/" + e.TaskID,
			Tag:   e.ID,
		}
	}
	return nil
}
