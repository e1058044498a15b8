package task

import agentguildv1 "github.com/kazz187/agentguild/api/agentguild/v1"

func ToAPI(t *Task) *agentguildv1.Task {
	return &agentguildv1.Task{
		ID:          t.ID,
		AgentID:     t.AgentID,
		ProjectID:   t.ProjectID,
		Title:       t.Title,
		Prompt:      t.Prompt,
		Type:        string(t.Type),
		Status:      string(t.Status),
		Priority:    int32(t.Priority),
		ExecuteAt:   t.ExecuteAt,
		Recurrence:  t.Recurrence,
		NextRun:     t.NextRun,
		ExecutedAt:  t.ExecutedAt,
		CompletedAt: t.CompletedAt,
		Result:      t.Result,
		Error:       t.Error,
		Source:      string(t.Source),
		DelegatedBy: t.DelegatedBy,
		RunCount:    int32(t.RunCount),
		ActiveRunID: t.ActiveRunID,
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
	}
}

func StepToAPI(s *Step) *agentguildv1.Step {
	return &agentguildv1.Step{
		TaskID:     s.TaskID,
		RunID:      s.RunID,
		Seq:        int32(s.Seq),
		Role:       string(s.Role),
		Content:    s.Content,
		ToolName:   s.ToolName,
		ToolCallID: s.ToolCallID,
		CreatedAt:  s.CreatedAt,
	}
}

func StepFromAPI(s *agentguildv1.Step) *Step {
	return &Step{
		TaskID:     s.TaskID,
		RunID:      s.RunID,
		Seq:        int(s.Seq),
		Role:       Role(s.Role),
		Content:    s.Content,
		ToolName:   s.ToolName,
		ToolCallID: s.ToolCallID,
		CreatedAt:  s.CreatedAt,
	}
}
