package project

import (
	"strings"
	"time"

	"github.com/kazz187/agentguild/pkg/cerr"
)

// Project groups agents. It is also the default multi-agent group of its
// agents.
type Project struct {
	ID          string    `yaml:"id"`
	Name        string    `yaml:"name"`
	Description string    `yaml:"description"`
	CreatedAt   time.Time `yaml:"created_at"`
	UpdatedAt   time.Time `yaml:"updated_at"`
}

func (p *Project) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return cerr.Validation("project name is required", cerr.FieldViolation{Field: "name", Message: "required"})
	}
	return nil
}
