package agentguildv1

import "time"

type Project struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type CreateProjectRequest struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

type UpdateProjectRequest struct {
	ID          string  `json:"id"`
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
}

type ProjectIDRequest struct {
	ID string `json:"id"`
}

type ProjectResponse struct {
	Project *Project `json:"project"`
}

type ListProjectsRequest struct {
	Pagination *Pagination `json:"pagination,omitempty"`
}

type ListProjectsResponse struct {
	Projects   []*Project          `json:"projects"`
	Pagination *PaginationResponse `json:"pagination"`
}
