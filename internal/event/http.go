package event

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	agentguildv1 "github.com/kazz187/agentguild/api/agentguild/v1"
	"github.com/kazz187/agentguild/pkg/cerr"
)

// Routes mounts GET /events under an /api router that runs
// cerr.NewConvertConnectErrorChiMiddleware.
func (s *Server) Routes(r chi.Router) {
	r.Get("/events", s.handleQuery)
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()
	req := &agentguildv1.QueryEventsRequest{
		Category: q.Get("category"),
		AgentID:  q.Get("agent_id"),
		Type:     q.Get("type"),
		TaskID:   q.Get("task_id"),
	}
	if v := q.Get("since_seq"); v != "" {
		seq, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			cerr.SetJSONError(ctx, cerr.Validation("since_seq must be an unsigned integer", cerr.FieldViolation{Field: "since_seq", Message: err.Error()}))
			return
		}
		req.SinceSeq = seq
	}
	if v := q.Get("since"); v != "" {
		since, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			cerr.SetJSONError(ctx, cerr.Validation("since must be an RFC 3339 timestamp", cerr.FieldViolation{Field: "since", Message: err.Error()}))
			return
		}
		req.Since = &since
	}
	if v := q.Get("limit"); v != "" {
		limit, err := strconv.ParseInt(v, 10, 32)
		if err != nil || limit < 0 {
			cerr.SetJSONError(ctx, cerr.Validation("limit must be a non-negative integer", cerr.FieldViolation{Field: "limit", Message: "invalid"}))
			return
		}
		req.Limit = int32(limit)
	}

	events, err := s.bus.Query(ctx, filterFromQuery(req))
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponse(ctx, &agentguildv1.QueryEventsResponse{Events: toAPIList(events)})
}
