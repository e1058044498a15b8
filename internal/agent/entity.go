package agent

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Status string

const (
	StatusStopped  Status = "stopped"
	StatusStarting Status = "starting"
	StatusRunning  Status = "running"
	StatusStopping Status = "stopping"
	StatusCrashed  Status = "crashed"
)

// Live reports whether a process may exist for the agent.
func (s Status) Live() bool {
	return s == StatusStarting || s == StatusRunning || s == StatusStopping
}

type Agent struct {
	ID           string     `yaml:"id"`
	ProjectID    string     `yaml:"project_id"`
	Name         string     `yaml:"name"`
	Description  string     `yaml:"description"`
	Provider     string     `yaml:"provider"`
	Model        string     `yaml:"model"`
	SystemPrompt string     `yaml:"system_prompt"`
	Features     Features   `yaml:"features"`
	MultiAgent   MultiAgent `yaml:"multi_agent"`
	MCPServerIDs []string   `yaml:"mcp_server_ids"`
	SkillIDs     []string   `yaml:"skill_ids"`

	// Written by the supervisor only.
	Status    Status `yaml:"status"`
	Port      int    `yaml:"port,omitempty"`
	PID       int    `yaml:"pid,omitempty"`
	LastError string `yaml:"last_error,omitempty"`

	CreatedAt time.Time `yaml:"created_at"`
	UpdatedAt time.Time `yaml:"updated_at"`
}

// Group is the multi-agent group the agent belongs to, defaulting to its
// project. Empty when multi-agent is disabled.
func (a *Agent) Group() string {
	if !a.MultiAgent.Enabled {
		return ""
	}
	if a.MultiAgent.Group != "" {
		return a.MultiAgent.Group
	}
	return a.ProjectID
}

func (a *Agent) IsCoordinator() bool {
	return a.MultiAgent.Enabled && a.MultiAgent.Mode == ModeCoordinator
}

func (a *Agent) IsWorker() bool {
	return a.MultiAgent.Enabled && a.MultiAgent.Mode == ModeWorker
}

// Clone returns a deep copy.
func (a *Agent) Clone() *Agent {
	c := *a
	c.MCPServerIDs = slices.Clone(a.MCPServerIDs)
	c.SkillIDs = slices.Clone(a.SkillIDs)
	return &c
}

// RequiresRestart reports whether moving from old to updated cannot be applied
// to a live runtime.
func RequiresRestart(old, updated *Agent) bool {
	return old.Provider != updated.Provider || old.Model != updated.Model
}

type Features uint16

const (
	FeatureMemory Features = 1 << iota
	FeatureTasks
	FeatureFiles
	FeatureVision
	FeatureOperator
	FeatureMCP
	FeatureRealtime
	FeatureMultiAgent
)

var featureNames = []struct {
	flag Features
	name string
}{
	{FeatureMemory, "memory"},
	{FeatureTasks, "tasks"},
	{FeatureFiles, "files"},
	{FeatureVision, "vision"},
	{FeatureOperator, "operator"},
	{FeatureMCP, "mcp"},
	{FeatureRealtime, "realtime"},
	{FeatureMultiAgent, "multi_agent"},
}

func (f Features) Has(flag Features) bool {
	return f&flag == flag
}

func (f Features) Names() []string {
	var names []string
	for _, fn := range featureNames {
		if f.Has(fn.flag) {
			names = append(names, fn.name)
		}
	}
	return names
}

func ParseFeatures(names []string) (Features, error) {
	var f Features
next:
	for _, n := range names {
		n = strings.ToLower(strings.TrimSpace(n))
		for _, fn := range featureNames {
			if fn.name == n {
				f |= fn.flag
				continue next
			}
		}
		return 0, fmt.Errorf("unknown feature %q", n)
	}
	return f, nil
}

func (f Features) MarshalYAML() (any, error) {
	return f.Names(), nil
}

func (f *Features) UnmarshalYAML(node *yaml.Node) error {
	var names []string
	if err := node.Decode(&names); err != nil {
		return err
	}
	parsed, err := ParseFeatures(names)
	if err != nil {
		return err
	}
	*f = parsed
	return nil
}

type Mode string

const (
	ModeCoordinator Mode = "coordinator"
	ModeWorker      Mode = "worker"
)

// MultiAgent is either disabled (zero value) or enabled with a mode and an
// optional group. Older records store a bare boolean; decoding normalizes
// both shapes so nothing downstream sees the raw form.
type MultiAgent struct {
	Enabled bool
	Mode    Mode
	Group   string
}

func Disabled() MultiAgent {
	return MultiAgent{}
}

func Enabled(mode Mode, group string) MultiAgent {
	return MultiAgent{Enabled: true, Mode: mode, Group: group}.Normalize()
}

// Normalize fills the default mode and clears fields of a disabled config.
func (m MultiAgent) Normalize() MultiAgent {
	if !m.Enabled {
		return MultiAgent{}
	}
	if m.Mode == "" {
		m.Mode = ModeWorker
	}
	return m
}

func (m MultiAgent) Validate() error {
	if !m.Enabled {
		return nil
	}
	if m.Mode != ModeCoordinator && m.Mode != ModeWorker {
		return fmt.Errorf("multi_agent.mode must be %q or %q, got %q", ModeCoordinator, ModeWorker, m.Mode)
	}
	return nil
}

type multiAgentRecord struct {
	Enabled *bool  `yaml:"enabled,omitempty"`
	Mode    Mode   `yaml:"mode,omitempty"`
	Group   string `yaml:"group,omitempty"`
}

func (m MultiAgent) MarshalYAML() (any, error) {
	m = m.Normalize()
	enabled := m.Enabled
	return multiAgentRecord{Enabled: &enabled, Mode: m.Mode, Group: m.Group}, nil
}

func (m *MultiAgent) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		var enabled bool
		if err := node.Decode(&enabled); err != nil {
			return fmt.Errorf("multi_agent: %w", err)
		}
		*m = MultiAgent{Enabled: enabled}.Normalize()
		return nil
	}
	var rec multiAgentRecord
	if err := node.Decode(&rec); err != nil {
		return fmt.Errorf("multi_agent: %w", err)
	}
	enabled := rec.Mode != ""
	if rec.Enabled != nil {
		enabled = *rec.Enabled
	}
	*m = MultiAgent{Enabled: enabled, Mode: rec.Mode, Group: rec.Group}.Normalize()
	return nil
}
