package task

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kazz187/agentguild/pkg/cerr"
)

func TestDefinitionValidate(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	past := now.Add(-time.Hour)
	nearlyNow := now.Add(-10 * time.Second)
	future := now.Add(time.Hour)

	tests := []struct {
		name    string
		def     Definition
		wantErr bool
	}{
		{name: "once without time", def: Definition{Prompt: "p", Type: TypeOnce}},
		{name: "once in future", def: Definition{Prompt: "p", Type: TypeOnce, ExecuteAt: &future}},
		{name: "once within skew", def: Definition{Prompt: "p", Type: TypeOnce, ExecuteAt: &nearlyNow}},
		{name: "once in past", def: Definition{Prompt: "p", Type: TypeOnce, ExecuteAt: &past}, wantErr: true},
		{name: "once with recurrence", def: Definition{Prompt: "p", Type: TypeOnce, Recurrence: "* * * * *"}, wantErr: true},
		{name: "recurring", def: Definition{Prompt: "p", Type: TypeRecurring, Recurrence: "*/5 * * * *"}},
		{name: "recurring without recurrence", def: Definition{Prompt: "p", Type: TypeRecurring}, wantErr: true},
		{name: "recurring bad cron", def: Definition{Prompt: "p", Type: TypeRecurring, Recurrence: "every day"}, wantErr: true},
		{name: "recurring with execute_at", def: Definition{Prompt: "p", Type: TypeRecurring, Recurrence: "* * * * *", ExecuteAt: &future}, wantErr: true},
		{name: "unknown type", def: Definition{Prompt: "p", Type: "sometimes"}, wantErr: true},
		{name: "missing prompt", def: Definition{Type: TypeOnce}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.def.Validate(now)
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, cerr.IsKind(err, cerr.KindValidation))
		})
	}
}

func TestDefinitionApply(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 2, 0, 0, time.UTC)

	t.Run("initial next run", func(t *testing.T) {
		tk := &Task{}
		def := Definition{Prompt: "check inbox\nthen reply", Type: TypeRecurring, Recurrence: "*/5 * * * *"}
		require.NoError(t, def.Apply(tk, now, time.UTC))
		require.NotNil(t, tk.NextRun)
		assert.Equal(t, time.Date(2026, 3, 1, 10, 5, 0, 0, time.UTC), *tk.NextRun)
		assert.Equal(t, "check inbox", tk.Title)
	})

	t.Run("unchanged schedule keeps next run", func(t *testing.T) {
		next := time.Date(2026, 3, 1, 10, 5, 0, 0, time.UTC)
		tk := &Task{Type: TypeRecurring, Recurrence: "*/5 * * * *", NextRun: &next, Prompt: "a"}
		def := DefinitionOf(tk)
		def.Prompt = "b"
		require.NoError(t, def.Apply(tk, now.Add(time.Hour), time.UTC))
		assert.Equal(t, next, *tk.NextRun)
		assert.Equal(t, "b", tk.Prompt)
	})

	t.Run("changed recurrence recomputes", func(t *testing.T) {
		next := time.Date(2026, 3, 1, 10, 5, 0, 0, time.UTC)
		tk := &Task{Type: TypeRecurring, Recurrence: "*/5 * * * *", NextRun: &next, Prompt: "a"}
		def := DefinitionOf(tk)
		def.Recurrence = "0 * * * *"
		require.NoError(t, def.Apply(tk, now, time.UTC))
		assert.Equal(t, time.Date(2026, 3, 1, 11, 0, 0, 0, time.UTC), *tk.NextRun)
	})

	t.Run("switch to once clears next run", func(t *testing.T) {
		next := time.Date(2026, 3, 1, 10, 5, 0, 0, time.UTC)
		tk := &Task{Type: TypeRecurring, Recurrence: "*/5 * * * *", NextRun: &next, Prompt: "a"}
		def := DefinitionOf(tk)
		def.Type = TypeOnce
		def.Recurrence = ""
		require.NoError(t, def.Apply(tk, now, time.UTC))
		assert.Nil(t, tk.NextRun)
	})
}
