package project_test

import (
	"context"
	"testing"

	"connectrpc.com/connect"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	agentguildv1 "github.com/kazz187/agentguild/api/agentguild/v1"
	"github.com/kazz187/agentguild/internal/agent"
	"github.com/kazz187/agentguild/internal/project"
	"github.com/kazz187/agentguild/internal/project/repositoryimpl"
	"github.com/kazz187/agentguild/pkg/cerr"
	"github.com/kazz187/agentguild/pkg/storage"
)

type fakeAgents struct {
	agents  []*agent.Agent
	removed []string
}

func (f *fakeAgents) List(_ context.Context, projectID string, _, _ int) ([]*agent.Agent, int, error) {
	var out []*agent.Agent
	for _, a := range f.agents {
		if a.ProjectID == projectID {
			out = append(out, a)
		}
	}
	return out, len(out), nil
}

func (f *fakeAgents) Delete(_ context.Context, id string) error {
	f.removed = append(f.removed, id)
	return nil
}

func setup(t *testing.T) (*project.Server, *repositoryimpl.YAMLRepository, *fakeAgents) {
	t.Helper()
	repo := repositoryimpl.NewYAMLRepository(storage.NewMemoryStorage())
	agents := &fakeAgents{}
	return project.NewServer(repo, agents, agents), repo, agents
}

func create(t *testing.T, s *project.Server, name string) *agentguildv1.Project {
	t.Helper()
	res, err := s.CreateProject(context.Background(), connect.NewRequest(&agentguildv1.CreateProjectRequest{Name: name}))
	require.NoError(t, err)
	return res.Msg.Project
}

func TestCreateProject(t *testing.T) {
	s, repo, _ := setup(t)
	ctx := context.Background()

	p := create(t, s, "research")
	assert.NotEmpty(t, p.ID)
	ok, err := repo.Exists(ctx, p.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = s.CreateProject(ctx, connect.NewRequest(&agentguildv1.CreateProjectRequest{Name: "research"}))
	assert.True(t, cerr.IsCode(err, cerr.AlreadyExists))

	_, err = s.CreateProject(ctx, connect.NewRequest(&agentguildv1.CreateProjectRequest{Name: "  "}))
	assert.True(t, cerr.IsKind(err, cerr.KindValidation))
}

func TestUpdateProject(t *testing.T) {
	s, _, _ := setup(t)
	ctx := context.Background()
	p := create(t, s, "a")
	create(t, s, "b")

	desc := "notes"
	res, err := s.UpdateProject(ctx, connect.NewRequest(&agentguildv1.UpdateProjectRequest{ID: p.ID, Description: &desc}))
	require.NoError(t, err)
	assert.Equal(t, "a", res.Msg.Project.Name)
	assert.Equal(t, "notes", res.Msg.Project.Description)

	// Keeping its own name is fine, taking another project's is not.
	same := "a"
	_, err = s.UpdateProject(ctx, connect.NewRequest(&agentguildv1.UpdateProjectRequest{ID: p.ID, Name: &same}))
	require.NoError(t, err)
	taken := "b"
	_, err = s.UpdateProject(ctx, connect.NewRequest(&agentguildv1.UpdateProjectRequest{ID: p.ID, Name: &taken}))
	assert.True(t, cerr.IsCode(err, cerr.AlreadyExists))
}

func TestDeleteProjectWithLiveAgentsConflicts(t *testing.T) {
	s, repo, agents := setup(t)
	ctx := context.Background()
	p := create(t, s, "a")
	agents.agents = []*agent.Agent{
		{ID: "a1", ProjectID: p.ID, Status: agent.StatusStopped},
		{ID: "a2", ProjectID: p.ID, Status: agent.StatusRunning},
	}

	_, err := s.DeleteProject(ctx, connect.NewRequest(&agentguildv1.ProjectIDRequest{ID: p.ID}))
	assert.True(t, cerr.IsKind(err, cerr.KindConflict))
	assert.Empty(t, agents.removed)
	ok, err := repo.Exists(ctx, p.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	agents.agents[1].Status = agent.StatusCrashed
	_, err = s.DeleteProject(ctx, connect.NewRequest(&agentguildv1.ProjectIDRequest{ID: p.ID}))
	require.NoError(t, err)
	assert.Equal(t, []string{"a1", "a2"}, agents.removed)
	ok, err = repo.Exists(ctx, p.ID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestListProjects(t *testing.T) {
	s, _, _ := setup(t)
	for _, n := range []string{"a", "b", "c"} {
		create(t, s, n)
	}
	res, err := s.ListProjects(context.Background(), connect.NewRequest(&agentguildv1.ListProjectsRequest{
		Pagination: &agentguildv1.Pagination{Limit: 2, Offset: 1},
	}))
	require.NoError(t, err)
	assert.Equal(t, int32(3), res.Msg.Pagination.Total)
	require.Len(t, res.Msg.Projects, 2)
	assert.Equal(t, "b", res.Msg.Projects[0].Name)
}
