package repositoryimpl

import (
	"context"
	"fmt"
	"log/slog"

	"gopkg.in/yaml.v3"

	"github.com/kazz187/agentguild/internal/agent"
	"github.com/kazz187/agentguild/pkg/cerr"
	"github.com/kazz187/agentguild/pkg/storage"
)

const agentsPrefix = "agents"

type YAMLRepository struct {
	storage storage.Storage
}

func NewYAMLRepository(s storage.Storage) *YAMLRepository {
	return &YAMLRepository{storage: s}
}

func agentPath(id string) string {
	return storage.Join(agentsPrefix, id+".yaml")
}

func (r *YAMLRepository) write(ctx context.Context, a *agent.Agent) error {
	data, err := yaml.Marshal(a)
	if err != nil {
		return cerr.WrapMarshalError("agent", err)
	}
	if err := r.storage.Write(ctx, agentPath(a.ID), data); err != nil {
		return cerr.WrapStorageWriteError("agent", err)
	}
	return nil
}

func (r *YAMLRepository) Create(ctx context.Context, a *agent.Agent) error {
	exists, err := r.storage.Exists(ctx, agentPath(a.ID))
	if err != nil {
		return cerr.WrapStorageReadError("agent", err)
	}
	if exists {
		return cerr.NewError(cerr.AlreadyExists, "agent already exists", nil)
	}
	return r.write(ctx, a)
}

func (r *YAMLRepository) Get(ctx context.Context, id string) (*agent.Agent, error) {
	data, err := r.storage.Read(ctx, agentPath(id))
	if err != nil {
		return nil, cerr.WrapStorageReadError("agent", err)
	}
	var a agent.Agent
	if err := yaml.Unmarshal(data, &a); err != nil {
		return nil, cerr.WrapMarshalError("agent", fmt.Errorf("%s: %w", id, err))
	}
	return &a, nil
}

// all returns every readable agent ordered by id, which is creation order.
// Unreadable records are logged and skipped so one bad file cannot hide the rest.
func (r *YAMLRepository) all(ctx context.Context) ([]*agent.Agent, error) {
	paths, err := r.storage.List(ctx, agentsPrefix)
	if err != nil {
		return nil, cerr.WrapStorageReadError("agents", err)
	}
	agents := make([]*agent.Agent, 0, len(paths))
	for _, p := range paths {
		data, err := r.storage.Read(ctx, p)
		if err != nil {
			slog.WarnContext(ctx, "skip unreadable agent record", "path", p, "error", err)
			continue
		}
		var a agent.Agent
		if err := yaml.Unmarshal(data, &a); err != nil {
			slog.WarnContext(ctx, "skip malformed agent record", "path", p, "error", err)
			continue
		}
		agents = append(agents, &a)
	}
	return agents, nil
}

func (r *YAMLRepository) List(ctx context.Context, projectID string, limit, offset int) ([]*agent.Agent, int, error) {
	agents, err := r.all(ctx)
	if err != nil {
		return nil, 0, err
	}
	filtered := agents[:0]
	for _, a := range agents {
		if projectID == "" || a.ProjectID == projectID {
			filtered = append(filtered, a)
		}
	}
	total := len(filtered)
	if offset >= total {
		return nil, total, nil
	}
	filtered = filtered[offset:]
	if limit > 0 && len(filtered) > limit {
		filtered = filtered[:limit]
	}
	return filtered, total, nil
}

func (r *YAMLRepository) FindByName(ctx context.Context, projectID, name string) (*agent.Agent, error) {
	agents, err := r.all(ctx)
	if err != nil {
		return nil, err
	}
	for _, a := range agents {
		if a.ProjectID == projectID && a.Name == name {
			return a, nil
		}
	}
	return nil, cerr.NewError(cerr.NotFound, "agent not found", nil)
}

func (r *YAMLRepository) Update(ctx context.Context, a *agent.Agent) error {
	exists, err := r.storage.Exists(ctx, agentPath(a.ID))
	if err != nil {
		return cerr.WrapStorageReadError("agent", err)
	}
	if !exists {
		return cerr.NewError(cerr.NotFound, "agent not found", nil)
	}
	return r.write(ctx, a)
}

func (r *YAMLRepository) Delete(ctx context.Context, id string) error {
	if err := r.storage.Delete(ctx, agentPath(id)); err != nil {
		return cerr.WrapStorageDeleteError("agent", err)
	}
	return nil
}
