package repositoryimpl

import (
	"context"
	"fmt"
	"log/slog"

	"gopkg.in/yaml.v3"

	"github.com/kazz187/agentguild/internal/project"
	"github.com/kazz187/agentguild/pkg/cerr"
	"github.com/kazz187/agentguild/pkg/storage"
)

const projectsPrefix = "projects"

type YAMLRepository struct {
	storage storage.Storage
}

func NewYAMLRepository(s storage.Storage) *YAMLRepository {
	return &YAMLRepository{storage: s}
}

func projectPath(id string) string {
	return storage.Join(projectsPrefix, id+".yaml")
}

func (r *YAMLRepository) write(ctx context.Context, p *project.Project) error {
	data, err := yaml.Marshal(p)
	if err != nil {
		return cerr.WrapMarshalError("project", err)
	}
	if err := r.storage.Write(ctx, projectPath(p.ID), data); err != nil {
		return cerr.WrapStorageWriteError("project", err)
	}
	return nil
}

func (r *YAMLRepository) Create(ctx context.Context, p *project.Project) error {
	exists, err := r.Exists(ctx, p.ID)
	if err != nil {
		return err
	}
	if exists {
		return cerr.NewError(cerr.AlreadyExists, "project already exists", nil)
	}
	return r.write(ctx, p)
}

func (r *YAMLRepository) Get(ctx context.Context, id string) (*project.Project, error) {
	data, err := r.storage.Read(ctx, projectPath(id))
	if err != nil {
		return nil, cerr.WrapStorageReadError("project", err)
	}
	var p project.Project
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, cerr.WrapMarshalError("project", fmt.Errorf("%s: %w", id, err))
	}
	return &p, nil
}

func (r *YAMLRepository) Exists(ctx context.Context, id string) (bool, error) {
	if id == "" {
		return false, nil
	}
	exists, err := r.storage.Exists(ctx, projectPath(id))
	if err != nil {
		return false, cerr.WrapStorageReadError("project", err)
	}
	return exists, nil
}

func (r *YAMLRepository) all(ctx context.Context) ([]*project.Project, error) {
	paths, err := r.storage.List(ctx, projectsPrefix)
	if err != nil {
		return nil, cerr.WrapStorageReadError("projects", err)
	}
	projects := make([]*project.Project, 0, len(paths))
	for _, p := range paths {
		data, err := r.storage.Read(ctx, p)
		if err != nil {
			slog.WarnContext(ctx, "skip unreadable project record", "path", p, "error", err)
			continue
		}
		var proj project.Project
		if err := yaml.Unmarshal(data, &proj); err != nil {
			slog.WarnContext(ctx, "skip malformed project record", "path", p, "error", err)
			continue
		}
		projects = append(projects, &proj)
	}
	return projects, nil
}

func (r *YAMLRepository) FindByName(ctx context.Context, name string) (*project.Project, error) {
	projects, err := r.all(ctx)
	if err != nil {
		return nil, err
	}
	for _, p := range projects {
		if p.Name == name {
			return p, nil
		}
	}
	return nil, cerr.NewError(cerr.NotFound, "project not found", nil)
}

func (r *YAMLRepository) List(ctx context.Context, limit, offset int) ([]*project.Project, int, error) {
	projects, err := r.all(ctx)
	if err != nil {
		return nil, 0, err
	}
	total := len(projects)
	if offset >= total {
		return nil, total, nil
	}
	projects = projects[offset:]
	if limit > 0 && len(projects) > limit {
		projects = projects[:limit]
	}
	return projects, total, nil
}

func (r *YAMLRepository) Update(ctx context.Context, p *project.Project) error {
	exists, err := r.Exists(ctx, p.ID)
	if err != nil {
		return err
	}
	if !exists {
		return cerr.NewError(cerr.NotFound, "project not found", nil)
	}
	return r.write(ctx, p)
}

func (r *YAMLRepository) Delete(ctx context.Context, id string) error {
	if err := r.storage.Delete(ctx, projectPath(id)); err != nil {
		return cerr.WrapStorageDeleteError("project", err)
	}
	return nil
}
