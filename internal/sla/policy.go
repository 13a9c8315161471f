package sla

import (
	"docflow/internal/config"
	"docflow/internal/history"
)

// Policy holds the duration thresholds for one stage, in minutes.
type Policy struct {
	IdealMinutes      int
	MaxMinutes        int
	EscalationMinutes int
}

// PolicyTable maps stages to their SLA thresholds. Loaded once at startup and
// shared read-only by every component.
type PolicyTable struct {
	policies map[history.Stage]Policy
}

// defaultPolicy backstops stages missing from configuration so the monitor
// never divides by a zero threshold.
var defaultPolicy = Policy{IdealMinutes: 60, MaxMinutes: 120, EscalationMinutes: 90}

// NewPolicyTable builds a table from the configured per-stage thresholds.
// Unknown stage keys in the config are ignored; the delivered stage carries
// no policy because nothing is timed past delivery.
func NewPolicyTable(cfg *config.Config) PolicyTable {
	policies := make(map[history.Stage]Policy)
	if cfg != nil {
		for key, policy := range cfg.SLA {
			stage, ok := history.ParseStage(key)
			if !ok || stage.Terminal() {
				continue
			}
			policies[stage] = Policy{
				IdealMinutes:      policy.IdealMinutes,
				MaxMinutes:        policy.MaxMinutes,
				EscalationMinutes: policy.EscalationMinutes,
			}
		}
	}
	return PolicyTable{policies: policies}
}

// Lookup returns the policy for a stage, falling back to the default when the
// stage has none configured.
func (t PolicyTable) Lookup(stage history.Stage) Policy {
	if policy, ok := t.policies[stage]; ok {
		return policy
	}
	return defaultPolicy
}

// Has reports whether the stage carries an explicitly configured policy.
func (t PolicyTable) Has(stage history.Stage) bool {
	_, ok := t.policies[stage]
	return ok
}
