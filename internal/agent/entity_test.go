package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestMultiAgentUnmarshalYAML(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected MultiAgent
	}{
		{
			name:     "bare true",
			input:    "multi_agent: true",
			expected: MultiAgent{Enabled: true, Mode: ModeWorker},
		},
		{
			name:     "bare false",
			input:    "multi_agent: false",
			expected: MultiAgent{},
		},
		{
			name:     "structured coordinator",
			input:    "multi_agent:\n  enabled: true\n  mode: coordinator\n  group: research",
			expected: MultiAgent{Enabled: true, Mode: ModeCoordinator, Group: "research"},
		},
		{
			name:     "mode without enabled",
			input:    "multi_agent:\n  mode: worker",
			expected: MultiAgent{Enabled: true, Mode: ModeWorker},
		},
		{
			name:     "disabled struct drops mode",
			input:    "multi_agent:\n  enabled: false\n  mode: coordinator",
			expected: MultiAgent{},
		},
		{
			name:     "missing",
			input:    "name: a",
			expected: MultiAgent{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var a Agent
			require.NoError(t, yaml.Unmarshal([]byte(tt.input), &a))
			assert.Equal(t, tt.expected, a.MultiAgent)
		})
	}
}

func TestMultiAgentRoundTripKeepsStructuredShape(t *testing.T) {
	a := &Agent{ID: "a1", ProjectID: "p1", MultiAgent: Enabled(ModeCoordinator, "")}
	data, err := yaml.Marshal(a)
	require.NoError(t, err)
	assert.Contains(t, string(data), "mode: coordinator")

	var decoded Agent
	require.NoError(t, yaml.Unmarshal(data, &decoded))
	assert.True(t, decoded.IsCoordinator())
	assert.Equal(t, "p1", decoded.Group())
}

func TestGroupDefaultsToProject(t *testing.T) {
	a := &Agent{ProjectID: "p1"}
	assert.Empty(t, a.Group())

	a.MultiAgent = Enabled(ModeWorker, "")
	assert.Equal(t, "p1", a.Group())

	a.MultiAgent = Enabled(ModeWorker, "g")
	assert.Equal(t, "g", a.Group())
}

func TestFeatures(t *testing.T) {
	f, err := ParseFeatures([]string{"memory", " Tasks ", "multi_agent"})
	require.NoError(t, err)
	assert.True(t, f.Has(FeatureMemory))
	assert.True(t, f.Has(FeatureTasks))
	assert.False(t, f.Has(FeatureVision))
	assert.Equal(t, []string{"memory", "tasks", "multi_agent"}, f.Names())

	_, err = ParseFeatures([]string{"telepathy"})
	assert.Error(t, err)

	data, err := yaml.Marshal(&Agent{Features: f})
	require.NoError(t, err)
	var decoded Agent
	require.NoError(t, yaml.Unmarshal(data, &decoded))
	assert.Equal(t, f, decoded.Features)
}

func TestValidate(t *testing.T) {
	valid := &Agent{ProjectID: "p1", Name: "a", Provider: "anthropic", Model: "claude"}
	assert.NoError(t, valid.Validate())

	missing := &Agent{ProjectID: "p1"}
	assert.Error(t, missing.Validate())

	badMode := valid.Clone()
	badMode.MultiAgent = MultiAgent{Enabled: true, Mode: "boss"}
	assert.Error(t, badMode.Validate())
}

func TestRequiresRestart(t *testing.T) {
	old := &Agent{Provider: "anthropic", Model: "a", SystemPrompt: "x"}

	prompt := old.Clone()
	prompt.SystemPrompt = "y"
	assert.False(t, RequiresRestart(old, prompt))

	model := old.Clone()
	model.Model = "b"
	assert.True(t, RequiresRestart(old, model))
}
