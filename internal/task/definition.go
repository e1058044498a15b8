package task

import (
	"strings"
	"time"

	"github.com/kazz187/agentguild/pkg/cerr"
)

// ExecuteAtSkew is how far in the past execute_at may lie and still be
// accepted as "now".
const ExecuteAtSkew = time.Minute

// Definition is the user-supplied part of a task.
type Definition struct {
	Title      string
	Prompt     string
	Type       Type
	Priority   int
	ExecuteAt  *time.Time
	Recurrence string
}

// Validate checks d against now. Nothing is persisted for an invalid
// definition.
func (d Definition) Validate(now time.Time) error {
	return d.validate(now, true)
}

// ValidateChange validates d as an edit of prev. An execute_at carried over
// unchanged is not rejected for lying in the past.
func (d Definition) ValidateChange(prev Definition, now time.Time) error {
	return d.validate(now, !equalTime(d.ExecuteAt, prev.ExecuteAt))
}

func (d Definition) validate(now time.Time, checkPast bool) error {
	var vs []cerr.FieldViolation
	if strings.TrimSpace(d.Prompt) == "" {
		vs = append(vs, cerr.FieldViolation{Field: "prompt", Message: "prompt is required"})
	}
	switch d.Type {
	case TypeOnce:
		if d.Recurrence != "" {
			vs = append(vs, cerr.FieldViolation{Field: "recurrence", Message: "one-time tasks cannot have a recurrence"})
		}
		if checkPast && d.ExecuteAt != nil && d.ExecuteAt.Before(now.Add(-ExecuteAtSkew)) {
			vs = append(vs, cerr.FieldViolation{Field: "execute_at", Message: "execute_at is in the past"})
		}
	case TypeRecurring:
		if d.ExecuteAt != nil {
			vs = append(vs, cerr.FieldViolation{Field: "execute_at", Message: "recurring tasks are scheduled by recurrence only"})
		}
		if strings.TrimSpace(d.Recurrence) == "" {
			vs = append(vs, cerr.FieldViolation{Field: "recurrence", Message: "recurrence is required for recurring tasks"})
		} else if _, err := ParseRecurrence(d.Recurrence); err != nil {
			vs = append(vs, cerr.FieldViolation{Field: "recurrence", Message: "invalid cron expression: " + err.Error()})
		}
	default:
		vs = append(vs, cerr.FieldViolation{Field: "type", Message: `type must be "once" or "recurring"`})
	}
	if len(vs) > 0 {
		return cerr.Validation("invalid task", vs...)
	}
	return nil
}

// Apply copies d onto t and recomputes NextRun when the schedule changed.
func (d Definition) Apply(t *Task, now time.Time, loc *time.Location) error {
	scheduleChanged := t.Type != d.Type || t.Recurrence != d.Recurrence || !equalTime(t.ExecuteAt, d.ExecuteAt)
	t.Title = d.Title
	if t.Title == "" {
		t.Title = firstLine(d.Prompt)
	}
	t.Prompt = d.Prompt
	t.Type = d.Type
	t.Priority = d.Priority
	t.ExecuteAt = cloneTime(d.ExecuteAt)
	t.Recurrence = strings.TrimSpace(d.Recurrence)
	if !scheduleChanged && (t.Type != TypeRecurring || t.NextRun != nil) {
		return nil
	}
	if t.Type != TypeRecurring {
		t.NextRun = nil
		return nil
	}
	// The next occurrence after the last execution that is not already past.
	from := now
	if t.ExecutedAt != nil && t.ExecutedAt.After(now) {
		from = *t.ExecutedAt
	}
	next, err := NextRunAfter(t.Recurrence, from, loc)
	if err != nil {
		return cerr.Validation("invalid task", cerr.FieldViolation{Field: "recurrence", Message: err.Error()})
	}
	t.NextRun = &next
	return nil
}

// DefinitionOf returns the editable part of t.
func DefinitionOf(t *Task) Definition {
	return Definition{
		Title:      t.Title,
		Prompt:     t.Prompt,
		Type:       t.Type,
		Priority:   t.Priority,
		ExecuteAt:  cloneTime(t.ExecuteAt),
		Recurrence: t.Recurrence,
	}
}

func equalTime(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	const maxTitle = 80
	if r := []rune(s); len(r) > maxTitle {
		return string(r[:maxTitle]) + "…"
	}
	return s
}
