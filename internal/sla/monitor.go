package sla

import (
	"time"

	"docflow/internal/history"
)

// Status classifies a stage interval against its policy.
type Status string

const (
	WithinSLA  Status = "within_sla"
	NearBreach Status = "near_breach"
	Breached   Status = "breached"
)

// Breach describes one entry exceeding its stage's max threshold. Derived on
// demand from an entry plus the policy table; never persisted on its own.
type Breach struct {
	EntryID         int64         `json:"entry_id"`
	FileID          string        `json:"file_id"`
	Stage           history.Stage `json:"stage"`
	WorkerID        string        `json:"worker_id"`
	WorkerName      string        `json:"worker_name"`
	DurationMinutes int           `json:"duration_minutes"`
	MaxMinutes      int           `json:"max_minutes"`
	MinutesOver     int           `json:"minutes_over"`
	PenaltyPoints   int           `json:"penalty_points"`
	Open            bool          `json:"open"`
}

// Minutes returns the whole elapsed minutes for an entry, flooring partial
// minutes. An entry open for 59.9 minutes against a 60-minute threshold has
// not yet breached.
func Minutes(entry history.Entry, now time.Time) int {
	elapsed := entry.Duration(now)
	if elapsed < 0 {
		return 0
	}
	return int(elapsed / time.Minute)
}

// Evaluate classifies an entry against a policy at the given instant. Pure
// and stateless; safe to call redundantly from report generation and the
// periodic sweep.
func Evaluate(entry history.Entry, policy Policy, now time.Time) Status {
	minutes := Minutes(entry, now)
	switch {
	case minutes > policy.MaxMinutes:
		return Breached
	case policy.EscalationMinutes > 0 && minutes >= policy.EscalationMinutes:
		return NearBreach
	default:
		return WithinSLA
	}
}

// PenaltyPoints converts minutes over the max threshold into penalty points.
// Breaching by any amount up to 59 minutes costs one full 10-point unit; each
// additional full hour over adds another unit. The at-least-one-unit floor is
// a business rule, not rounding.
func PenaltyPoints(minutesOver int) int {
	if minutesOver <= 0 {
		return 0
	}
	return (1 + minutesOver/60) * 10
}

// BreachFor evaluates an entry and, when breached, materializes the breach
// record with duration and penalty populated.
func BreachFor(entry history.Entry, table PolicyTable, now time.Time) (Breach, bool) {
	policy := table.Lookup(entry.Stage)
	if Evaluate(entry, policy, now) != Breached {
		return Breach{}, false
	}
	minutes := Minutes(entry, now)
	over := minutes - policy.MaxMinutes
	return Breach{
		EntryID:         entry.ID,
		FileID:          entry.FileID,
		Stage:           entry.Stage,
		WorkerID:        entry.WorkerID,
		WorkerName:      entry.WorkerName,
		DurationMinutes: minutes,
		MaxMinutes:      policy.MaxMinutes,
		MinutesOver:     over,
		PenaltyPoints:   PenaltyPoints(over),
		Open:            entry.Open(),
	}, true
}
