package agentguildv1

import "time"

type Event struct {
	ID        string         `json:"id"`
	Seq       uint64         `json:"seq"`
	Type      string         `json:"type"`
	Category  string         `json:"category"`
	AgentID   string         `json:"agent_id,omitempty"`
	ThreadID  string         `json:"thread_id,omitempty"`
	TaskID    string         `json:"task_id,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	Data      map[string]any `json:"data,omitempty"`
}

type QueryEventsRequest struct {
	Category string     `json:"category,omitempty"`
	AgentID  string     `json:"agent_id,omitempty"`
	Type     string     `json:"type,omitempty"`
	TaskID   string     `json:"task_id,omitempty"`
	Since    *time.Time `json:"since,omitempty"`
	SinceSeq uint64     `json:"since_seq,omitempty"`
	Limit    int32      `json:"limit,omitempty"`
}

type QueryEventsResponse struct {
	Events []*Event `json:"events"`
}

// SubscribeEventsRequest replays stored events after SinceSeq (when set)
// before switching to live delivery.
type SubscribeEventsRequest struct {
	Category string `json:"category,omitempty"`
	AgentID  string `json:"agent_id,omitempty"`
	Type     string `json:"type,omitempty"`
	TaskID   string `json:"task_id,omitempty"`
	SinceSeq uint64 `json:"since_seq,omitempty"`
}
