// Package agentguildv1 holds the request/response messages of the agentguild
// v1 API. Messages travel as JSON over Connect; see agentguildv1connect.
package agentguildv1

type Pagination struct {
	Limit  int32 `json:"limit,omitempty"`
	Offset int32 `json:"offset,omitempty"`
}

type PaginationResponse struct {
	Total  int32 `json:"total"`
	Limit  int32 `json:"limit"`
	Offset int32 `json:"offset"`
}

// LimitOffset returns the page window with defaults applied.
func (p *Pagination) LimitOffset(defaultLimit int32) (int32, int32) {
	limit, offset := defaultLimit, int32(0)
	if p == nil {
		return limit, offset
	}
	if p.Limit > 0 {
		limit = p.Limit
	}
	if p.Offset > 0 {
		offset = p.Offset
	}
	return limit, offset
}

type Empty struct{}
