package task

import "context"

type Filter struct {
	AgentID   string
	ProjectID string
	Status    Status
	Source    Source
}

func (f Filter) Match(t *Task) bool {
	if f.AgentID != "" && t.AgentID != f.AgentID {
		return false
	}
	if f.ProjectID != "" && t.ProjectID != f.ProjectID {
		return false
	}
	if f.Status != "" && t.Status != f.Status {
		return false
	}
	if f.Source != "" && t.Source != f.Source {
		return false
	}
	return true
}

type Repository interface {
	Create(ctx context.Context, t *Task) error
	Get(ctx context.Context, id string) (*Task, error)
	List(ctx context.Context, f Filter) ([]*Task, error)
	Update(ctx context.Context, t *Task) error
	Delete(ctx context.Context, id string) error
}

// TrajectoryRepository stores trajectory steps. Appended steps are never
// rewritten; appending an existing (task, run, seq) fails with AlreadyExists.
type TrajectoryRepository interface {
	Append(ctx context.Context, s *Step) error
	// List returns the steps of a task in run then seq order. An empty runID
	// selects every run.
	List(ctx context.Context, taskID, runID string) ([]*Step, error)
	DeleteTask(ctx context.Context, taskID string) error
}
