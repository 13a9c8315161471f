package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate checks configuration invariants that normalization cannot repair.
func (c *Config) Validate() error {
	var problems []string

	if strings.TrimSpace(c.Paths.DataDir) == "" {
		problems = append(problems, "paths.data_dir must be set")
	}
	if strings.TrimSpace(c.Paths.APIBind) == "" {
		problems = append(problems, "paths.api_bind must be set")
	}

	switch c.Logging.Format {
	case "console", "json":
	default:
		problems = append(problems, fmt.Sprintf("logging.format %q is not one of console, json", c.Logging.Format))
	}

	for stage, policy := range c.SLA {
		if policy.MaxMinutes <= 0 {
			problems = append(problems, fmt.Sprintf("sla.%s.max_minutes must be positive", stage))
			continue
		}
		if policy.IdealMinutes > policy.MaxMinutes {
			problems = append(problems, fmt.Sprintf("sla.%s.ideal_minutes exceeds max_minutes", stage))
		}
		if policy.EscalationMinutes > policy.MaxMinutes {
			problems = append(problems, fmt.Sprintf("sla.%s.escalation_minutes exceeds max_minutes", stage))
		}
	}

	seen := make(map[string]struct{}, len(c.Directory))
	for _, entry := range c.Directory {
		id := strings.TrimSpace(entry.ID)
		if id == "" {
			problems = append(problems, "directory entries require an id")
			continue
		}
		if _, dup := seen[id]; dup {
			problems = append(problems, fmt.Sprintf("directory entry %q is duplicated", id))
		}
		seen[id] = struct{}{}
	}

	if len(problems) == 0 {
		return nil
	}
	return errors.New("invalid configuration: " + strings.Join(problems, "; "))
}
