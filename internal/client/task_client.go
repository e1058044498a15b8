package client

import (
	"context"
	"fmt"

	"connectrpc.com/connect"

	agentguildv1 "github.com/kazz187/agentguild/api/agentguild/v1"
	"github.com/kazz187/agentguild/api/agentguild/v1/agentguildv1connect"
)

// TaskClient provides client operations for tasks and delegation.
type TaskClient struct {
	tasks      *agentguildv1connect.TaskServiceClient
	delegation *agentguildv1connect.DelegationServiceClient
}

func NewTaskClient(cfg Config) *TaskClient {
	return &TaskClient{
		tasks:      agentguildv1connect.NewTaskServiceClient(cfg.httpClient(), cfg.BaseURL, cfg.options()...),
		delegation: agentguildv1connect.NewDelegationServiceClient(cfg.httpClient(), cfg.BaseURL, cfg.options()...),
	}
}

func (c *TaskClient) CreateTask(ctx context.Context, req *agentguildv1.CreateTaskRequest) (*agentguildv1.Task, error) {
	resp, err := c.tasks.CreateTask(ctx, connect.NewRequest(req))
	if err != nil {
		return nil, fmt.Errorf("failed to create task: %w", err)
	}
	return resp.Msg.Task, nil
}

func (c *TaskClient) ListTasks(ctx context.Context, req *agentguildv1.ListTasksRequest) ([]*agentguildv1.Task, error) {
	resp, err := c.tasks.ListTasks(ctx, connect.NewRequest(req))
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	return resp.Msg.Tasks, nil
}

func (c *TaskClient) GetTask(ctx context.Context, taskID string) (*agentguildv1.Task, error) {
	resp, err := c.tasks.GetTask(ctx, connect.NewRequest(&agentguildv1.TaskIDRequest{ID: taskID}))
	if err != nil {
		return nil, fmt.Errorf("failed to get task: %w", err)
	}
	return resp.Msg.Task, nil
}

func (c *TaskClient) UpdateTask(ctx context.Context, req *agentguildv1.UpdateTaskRequest) (*agentguildv1.Task, error) {
	resp, err := c.tasks.UpdateTask(ctx, connect.NewRequest(req))
	if err != nil {
		return nil, fmt.Errorf("failed to update task: %w", err)
	}
	return resp.Msg.Task, nil
}

func (c *TaskClient) ExecuteTask(ctx context.Context, taskID string) (*agentguildv1.Task, error) {
	resp, err := c.tasks.ExecuteTask(ctx, connect.NewRequest(&agentguildv1.TaskIDRequest{ID: taskID}))
	if err != nil {
		return nil, fmt.Errorf("failed to execute task: %w", err)
	}
	return resp.Msg.Task, nil
}

func (c *TaskClient) CancelTask(ctx context.Context, taskID string) (*agentguildv1.Task, error) {
	resp, err := c.tasks.CancelTask(ctx, connect.NewRequest(&agentguildv1.TaskIDRequest{ID: taskID}))
	if err != nil {
		return nil, fmt.Errorf("failed to cancel task: %w", err)
	}
	return resp.Msg.Task, nil
}

func (c *TaskClient) DeleteTask(ctx context.Context, taskID string) error {
	if _, err := c.tasks.DeleteTask(ctx, connect.NewRequest(&agentguildv1.TaskIDRequest{ID: taskID})); err != nil {
		return fmt.Errorf("failed to delete task: %w", err)
	}
	return nil
}

// Trajectory returns the steps of one run, the latest when runID is empty.
func (c *TaskClient) Trajectory(ctx context.Context, taskID, runID string) ([]*agentguildv1.Step, error) {
	resp, err := c.tasks.GetTrajectory(ctx, connect.NewRequest(&agentguildv1.GetTrajectoryRequest{TaskID: taskID, RunID: runID}))
	if err != nil {
		return nil, fmt.Errorf("failed to get trajectory: %w", err)
	}
	return resp.Msg.Steps, nil
}

func (c *TaskClient) Delegate(ctx context.Context, req *agentguildv1.DelegateRequest) (*agentguildv1.Task, error) {
	resp, err := c.delegation.Delegate(ctx, connect.NewRequest(req))
	if err != nil {
		return nil, fmt.Errorf("failed to delegate task: %w", err)
	}
	return resp.Msg.Task, nil
}

func (c *TaskClient) DelegationResults(ctx context.Context, coordinatorID string) ([]*agentguildv1.DelegationResult, error) {
	resp, err := c.delegation.ListDelegationResults(ctx, connect.NewRequest(&agentguildv1.CoordinatorRequest{CoordinatorID: coordinatorID}))
	if err != nil {
		return nil, fmt.Errorf("failed to list delegation results: %w", err)
	}
	return resp.Msg.Results, nil
}

// WatchDelegationResults calls fn for each result delivered to the
// coordinator until ctx is done or fn fails.
func (c *TaskClient) WatchDelegationResults(ctx context.Context, coordinatorID string, fn func(*agentguildv1.DelegationResult) error) error {
	stream, err := c.delegation.SubscribeDelegationResults(ctx, connect.NewRequest(&agentguildv1.CoordinatorRequest{CoordinatorID: coordinatorID}))
	if err != nil {
		return fmt.Errorf("failed to subscribe to delegation results: %w", err)
	}
	defer stream.Close()
	for stream.Receive() {
		if err := fn(stream.Msg()); err != nil {
			return err
		}
	}
	if ctx.Err() != nil {
		return nil
	}
	return stream.Err()
}
