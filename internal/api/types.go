package api

import (
	"time"

	"docflow/internal/history"
	"docflow/internal/notify"
	"docflow/internal/sla"
)

// HistoryEntry describes one stage-history row in a transport-friendly
// format. Timestamps are RFC3339 strings; empty when unset.
type HistoryEntry struct {
	ID              int64  `json:"id"`
	FileID          string `json:"file_id"`
	Stage           string `json:"stage"`
	WorkerID        string `json:"worker_id,omitempty"`
	WorkerName      string `json:"worker_name,omitempty"`
	EnteredAt       string `json:"entered_at"`
	CompletedAt     string `json:"completed_at,omitempty"`
	DurationMinutes int    `json:"duration_minutes"`
	Open            bool   `json:"open"`
	EscalationSent  bool   `json:"escalation_sent"`
	Notes           string `json:"notes,omitempty"`
}

// FileHistoryResponse wraps a file's full stage trail.
type FileHistoryResponse struct {
	FileID  string         `json:"file_id"`
	Entries []HistoryEntry `json:"entries"`
}

// CompleteRequest carries the worker identity finishing the current stage.
type CompleteRequest struct {
	WorkerID   string `json:"worker_id"`
	WorkerName string `json:"worker_name"`
}

// CompleteResponse reports the progression outcome.
type CompleteResponse struct {
	FileID          string        `json:"file_id"`
	PreviousStage   string        `json:"previous_stage"`
	DurationMinutes int           `json:"duration_minutes"`
	NextStage       string        `json:"next_stage,omitempty"`
	Delivered       bool          `json:"delivered"`
	Breach          *BreachReport `json:"breach,omitempty"`
}

// AssignRequest stamps a worker onto the file's open, unassigned entry.
type AssignRequest struct {
	WorkerID   string `json:"worker_id"`
	WorkerName string `json:"worker_name"`
}

// AssignResponse wraps the updated entry.
type AssignResponse struct {
	Entry HistoryEntry `json:"entry"`
}

// ReassignRequest moves a file's current stage to a different worker.
type ReassignRequest struct {
	Stage      string `json:"stage"`
	WorkerID   string `json:"worker_id"`
	WorkerName string `json:"worker_name"`
}

// ReassignResponse wraps the freshly opened entry.
type ReassignResponse struct {
	Entry HistoryEntry `json:"entry"`
}

// BreachReport mirrors an evaluated SLA breach.
type BreachReport struct {
	EntryID         int64  `json:"entry_id"`
	FileID          string `json:"file_id"`
	Stage           string `json:"stage"`
	WorkerID        string `json:"worker_id,omitempty"`
	WorkerName      string `json:"worker_name,omitempty"`
	DurationMinutes int    `json:"duration_minutes"`
	MaxMinutes      int    `json:"max_minutes"`
	MinutesOver     int    `json:"minutes_over"`
	PenaltyPoints   int    `json:"penalty_points"`
	Open            bool   `json:"open"`
}

// BreachListResponse is the on-demand SLA report payload.
type BreachListResponse struct {
	GeneratedAt   string         `json:"generated_at"`
	Breaches      []BreachReport `json:"breaches"`
	TotalPenalty  int            `json:"total_penalty"`
	EntriesScored int            `json:"entries_scored"`
}

// NotificationView describes a stored notification.
type NotificationView struct {
	ID        string `json:"id"`
	Recipient string `json:"recipient"`
	Role      string `json:"role"`
	Channel   string `json:"channel"`
	Subject   string `json:"subject"`
	Body      string `json:"body"`
	Priority  string `json:"priority"`
	CreatedAt string `json:"created_at"`
	Read      bool   `json:"read"`
}

// NotificationListResponse wraps a recipient's notifications.
type NotificationListResponse struct {
	Recipient     string             `json:"recipient"`
	Notifications []NotificationView `json:"notifications"`
}

// DaemonStatus aggregates daemon runtime information for API consumers.
type DaemonStatus struct {
	Running        bool           `json:"running"`
	PID            int            `json:"pid"`
	DatabasePath   string         `json:"database_path"`
	LockFilePath   string         `json:"lock_file_path"`
	Connections    int            `json:"connections"`
	ConnectedUsers int            `json:"connected_users"`
	OpenByStage    map[string]int `json:"open_by_stage"`
	Delivered      int            `json:"delivered"`
	TotalEntries   int            `json:"total_entries"`
}

// FromEntry converts a stage-history entry, computing its duration at the
// given instant for open entries.
func FromEntry(entry history.Entry, now time.Time) HistoryEntry {
	out := HistoryEntry{
		ID:              entry.ID,
		FileID:          entry.FileID,
		Stage:           string(entry.Stage),
		WorkerID:        entry.WorkerID,
		WorkerName:      entry.WorkerName,
		EnteredAt:       entry.EnteredAt.Format(time.RFC3339),
		DurationMinutes: sla.Minutes(entry, now),
		Open:            entry.Open(),
		EscalationSent:  entry.EscalationSent,
		Notes:           entry.Notes,
	}
	if entry.CompletedAt != nil {
		out.CompletedAt = entry.CompletedAt.Format(time.RFC3339)
	}
	return out
}

// FromBreach converts an evaluated breach.
func FromBreach(breach sla.Breach) BreachReport {
	return BreachReport{
		EntryID:         breach.EntryID,
		FileID:          breach.FileID,
		Stage:           string(breach.Stage),
		WorkerID:        breach.WorkerID,
		WorkerName:      breach.WorkerName,
		DurationMinutes: breach.DurationMinutes,
		MaxMinutes:      breach.MaxMinutes,
		MinutesOver:     breach.MinutesOver,
		PenaltyPoints:   breach.PenaltyPoints,
		Open:            breach.Open,
	}
}

// FromNotification converts a stored notification.
func FromNotification(n notify.Notification) NotificationView {
	return NotificationView{
		ID:        n.ID,
		Recipient: n.Recipient,
		Role:      string(n.Role),
		Channel:   string(n.Channel),
		Subject:   n.Subject,
		Body:      n.Body,
		Priority:  string(n.Priority),
		CreatedAt: n.CreatedAt.Format(time.RFC3339),
		Read:      n.Read,
	}
}
