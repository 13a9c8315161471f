package history

import "time"

// Entry records one timed attempt at a stage by one worker for one file.
// Entries are append-only; the single mutation is stamping CompletedAt when
// the stage finishes (plus the escalation marker and reassignment notes).
type Entry struct {
	ID             int64
	FileID         string
	Stage          Stage
	WorkerID       string
	WorkerName     string
	EnteredAt      time.Time
	AssignedAt     *time.Time
	CompletedAt    *time.Time
	EscalationSent bool
	Notes          string
}

// Open reports whether the entry is still being worked.
func (e Entry) Open() bool {
	return e.CompletedAt == nil
}

// Duration returns the elapsed time for the entry, using now for open entries.
func (e Entry) Duration(now time.Time) time.Duration {
	end := now
	if e.CompletedAt != nil {
		end = *e.CompletedAt
	}
	return end.Sub(e.EnteredAt)
}

// WorkerStatus is a worker presence record maintained from status_update
// control frames and read back by the one-way update emitter.
type WorkerStatus struct {
	WorkerID  string
	Status    string
	UpdatedAt time.Time
}

// Stats aggregates open-entry counts per stage plus delivered file totals.
type Stats struct {
	OpenByStage map[Stage]int
	Delivered   int
	Total       int
}
