package repositoryimpl

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kazz187/agentguild/internal/task"
	"github.com/kazz187/agentguild/pkg/cerr"
	"github.com/kazz187/agentguild/pkg/storage"
)

func TestYAMLRepository(t *testing.T) {
	ctx := context.Background()
	s, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	repo := NewYAMLRepository(s)

	next := time.Date(2026, 3, 1, 10, 5, 0, 0, time.UTC)
	tk := &task.Task{
		ID:         "01TASK",
		AgentID:    "agent-1",
		ProjectID:  "p1",
		Prompt:     "summarize",
		Type:       task.TypeRecurring,
		Status:     task.StatusPending,
		Recurrence: "*/5 * * * *",
		NextRun:    &next,
		Source:     task.SourceLocal,
	}
	require.NoError(t, repo.Create(ctx, tk))
	err = repo.Create(ctx, tk)
	assert.True(t, cerr.IsCode(err, cerr.AlreadyExists))

	got, err := repo.Get(ctx, tk.ID)
	require.NoError(t, err)
	assert.Equal(t, tk.Recurrence, got.Recurrence)
	assert.True(t, next.Equal(*got.NextRun))

	other := &task.Task{ID: "02TASK", AgentID: "agent-2", ProjectID: "p1", Type: task.TypeOnce, Status: task.StatusCompleted, Source: task.SourceDelegated}
	require.NoError(t, repo.Create(ctx, other))

	all, err := repo.List(ctx, task.Filter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	delegated, err := repo.List(ctx, task.Filter{Source: task.SourceDelegated})
	require.NoError(t, err)
	require.Len(t, delegated, 1)
	assert.Equal(t, "02TASK", delegated[0].ID)

	byAgent, err := repo.List(ctx, task.Filter{AgentID: "agent-1", Status: task.StatusPending})
	require.NoError(t, err)
	require.Len(t, byAgent, 1)

	require.NoError(t, repo.Delete(ctx, tk.ID))
	_, err = repo.Get(ctx, tk.ID)
	assert.True(t, cerr.IsCode(err, cerr.NotFound))
	err = repo.Update(ctx, tk)
	assert.True(t, cerr.IsCode(err, cerr.NotFound))
}

func TestTrajectoryRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewTrajectoryRepository(storage.NewMemoryStorage())

	for _, st := range []*task.Step{
		{TaskID: "t1", RunID: "01RUNB", Seq: 0, Role: task.RoleUser, Content: "second run"},
		{TaskID: "t1", RunID: "01RUNA", Seq: 1, Role: task.RoleAssistant, Content: "answer"},
		{TaskID: "t1", RunID: "01RUNA", Seq: 0, Role: task.RoleUser, Content: "question"},
		{TaskID: "t2", RunID: "01RUNC", Seq: 0, Role: task.RoleUser, Content: "elsewhere"},
	} {
		require.NoError(t, repo.Append(ctx, st))
	}

	err := repo.Append(ctx, &task.Step{TaskID: "t1", RunID: "01RUNA", Seq: 1, Content: "rewrite"})
	assert.True(t, cerr.IsCode(err, cerr.AlreadyExists))

	steps, err := repo.List(ctx, "t1", "")
	require.NoError(t, err)
	require.Len(t, steps, 3)
	assert.Equal(t, "question", steps[0].Content)
	assert.Equal(t, "answer", steps[1].Content)
	assert.Equal(t, "second run", steps[2].Content)

	run, err := repo.List(ctx, "t1", "01RUNB")
	require.NoError(t, err)
	require.Len(t, run, 1)

	require.NoError(t, repo.DeleteTask(ctx, "t1"))
	steps, err = repo.List(ctx, "t1", "")
	require.NoError(t, err)
	assert.Empty(t, steps)

	steps, err = repo.List(ctx, "t2", "")
	require.NoError(t, err)
	assert.Len(t, steps, 1)
}
