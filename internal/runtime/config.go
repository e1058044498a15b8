// Package runtime is the agent runtime process: it serves the control channel
// the supervisor talks to and bridges task execution to an inference backend.
package runtime

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	agentguildv1 "github.com/kazz187/agentguild/api/agentguild/v1"
	"github.com/kazz187/agentguild/pkg/cerr"
)

// LoadConfig reads the config file written by the supervisor before launch.
func LoadConfig(path string) (*agentguildv1.AgentConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	var cfg agentguildv1.AgentConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := validateConfig(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func validateConfig(cfg *agentguildv1.AgentConfig) error {
	var violations []cerr.FieldViolation
	if cfg.AgentID == "" {
		violations = append(violations, cerr.FieldViolation{Field: "agent_id", Message: "must not be empty"})
	}
	if cfg.Provider == "" {
		violations = append(violations, cerr.FieldViolation{Field: "provider", Message: "must not be empty"})
	}
	if cfg.Model == "" {
		violations = append(violations, cerr.FieldViolation{Field: "model", Message: "must not be empty"})
	}
	if len(violations) > 0 {
		return cerr.Validation("invalid agent config", violations...)
	}
	return nil
}

// Revision identifies a config by content so the supervisor can tell which
// version a runtime is serving.
func Revision(cfg *agentguildv1.AgentConfig) string {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:8])
}

// needsRestart reports whether moving from old to updated cannot happen in
// place. The backend binding is fixed for the life of the process.
func needsRestart(old, updated *agentguildv1.AgentConfig) bool {
	return old.Provider != updated.Provider || old.Model != updated.Model
}
