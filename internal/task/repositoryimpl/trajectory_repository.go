package repositoryimpl

import (
	"context"
	"fmt"
	"path"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kazz187/agentguild/internal/task"
	"github.com/kazz187/agentguild/pkg/cerr"
	"github.com/kazz187/agentguild/pkg/storage"
)

const trajectoriesPrefix = "trajectories"

// TrajectoryRepository keeps one file per step under
// trajectories/<task>/<run>-<seq>.yaml. Run ids are ULIDs and seq is zero
// padded, so the lexical listing order is the trajectory order.
type TrajectoryRepository struct {
	storage storage.Storage
}

func NewTrajectoryRepository(s storage.Storage) *TrajectoryRepository {
	return &TrajectoryRepository{storage: s}
}

func stepPath(taskID, runID string, seq int) string {
	return storage.Join(trajectoriesPrefix, taskID, fmt.Sprintf("%s-%08d.yaml", runID, seq))
}

func (r *TrajectoryRepository) Append(ctx context.Context, s *task.Step) error {
	p := stepPath(s.TaskID, s.RunID, s.Seq)
	exists, err := r.storage.Exists(ctx, p)
	if err != nil {
		return cerr.WrapStorageReadError("trajectory step", err)
	}
	if exists {
		return cerr.NewError(cerr.AlreadyExists, "trajectory step already recorded", nil)
	}
	data, err := yaml.Marshal(s)
	if err != nil {
		return cerr.WrapMarshalError("trajectory step", err)
	}
	if err := r.storage.Write(ctx, p, data); err != nil {
		return cerr.WrapStorageWriteError("trajectory step", err)
	}
	return nil
}

func (r *TrajectoryRepository) List(ctx context.Context, taskID, runID string) ([]*task.Step, error) {
	paths, err := r.storage.List(ctx, storage.Join(trajectoriesPrefix, taskID))
	if err != nil {
		return nil, cerr.WrapStorageReadError("trajectory", err)
	}
	steps := make([]*task.Step, 0, len(paths))
	for _, p := range paths {
		if runID != "" && !strings.HasPrefix(path.Base(p), runID+"-") {
			continue
		}
		data, err := r.storage.Read(ctx, p)
		if err != nil {
			return nil, cerr.WrapStorageReadError("trajectory step", err)
		}
		var s task.Step
		if err := yaml.Unmarshal(data, &s); err != nil {
			return nil, cerr.WrapMarshalError("trajectory step", err)
		}
		steps = append(steps, &s)
	}
	return steps, nil
}

func (r *TrajectoryRepository) DeleteTask(ctx context.Context, taskID string) error {
	paths, err := r.storage.List(ctx, storage.Join(trajectoriesPrefix, taskID))
	if err != nil {
		return cerr.WrapStorageReadError("trajectory", err)
	}
	for _, p := range paths {
		if err := r.storage.Delete(ctx, p); err != nil {
			return cerr.WrapStorageDeleteError("trajectory step", err)
		}
	}
	return nil
}
