package analytics

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"docflow/internal/config"
	"docflow/internal/history"
	"docflow/internal/sla"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS sla_events (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    file_id TEXT NOT NULL,
    stage TEXT NOT NULL,
    worker_id TEXT,
    worker_name TEXT,
    duration_minutes INTEGER NOT NULL,
    minutes_over INTEGER NOT NULL,
    penalty_points INTEGER NOT NULL,
    recorded_at TEXT NOT NULL,
    emitted INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_sla_events_pending ON sla_events(emitted) WHERE emitted = 0;
`

// BreachEvent is one breach row appended for asynchronous emission to
// real-time clients.
type BreachEvent struct {
	ID              int64
	FileID          string
	Stage           history.Stage
	WorkerID        string
	WorkerName      string
	DurationMinutes int
	MinutesOver     int
	PenaltyPoints   int
	RecordedAt      time.Time
	Emitted         bool
}

// Sink buffers breach events in SQLite until the emission sweep drains them
// into the broadcast hub. Shares the database file with the stage-history
// store but owns its own connection and table.
type Sink struct {
	db *sql.DB
}

// OpenSink connects to the analytics table in the shared database.
func OpenSink(cfg *config.Config) (*Sink, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}
	db, err := sql.Open("sqlite", history.DSN(cfg.DatabasePath()))
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create analytics schema: %w", err)
	}
	return &Sink{db: db}, nil
}

// Close closes the underlying database connection.
func (s *Sink) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Record appends a breach for later emission.
func (s *Sink) Record(ctx context.Context, breach sla.Breach, at time.Time) error {
	if _, err := s.db.ExecContext(
		ctx,
		`INSERT INTO sla_events (
            file_id, stage, worker_id, worker_name,
            duration_minutes, minutes_over, penalty_points, recorded_at, emitted
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0)`,
		breach.FileID,
		breach.Stage,
		breach.WorkerID,
		breach.WorkerName,
		breach.DurationMinutes,
		breach.MinutesOver,
		breach.PenaltyPoints,
		at.UTC().Format(time.RFC3339Nano),
	); err != nil {
		return fmt.Errorf("record breach event: %w", err)
	}
	return nil
}

// PendingBreachEvents returns unemitted events, oldest first, capped at limit.
func (s *Sink) PendingBreachEvents(ctx context.Context, limit int) ([]BreachEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT id, file_id, stage, worker_id, worker_name,
                duration_minutes, minutes_over, penalty_points, recorded_at, emitted
         FROM sla_events WHERE emitted = 0 ORDER BY id LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query pending breach events: %w", err)
	}
	defer rows.Close()

	var events []BreachEvent
	for rows.Next() {
		var (
			event       BreachEvent
			workerID    sql.NullString
			workerName  sql.NullString
			recordedRaw string
			emittedInt  int
		)
		if err := rows.Scan(
			&event.ID,
			&event.FileID,
			&event.Stage,
			&workerID,
			&workerName,
			&event.DurationMinutes,
			&event.MinutesOver,
			&event.PenaltyPoints,
			&recordedRaw,
			&emittedInt,
		); err != nil {
			return nil, err
		}
		event.WorkerID = workerID.String
		event.WorkerName = workerName.String
		event.Emitted = emittedInt != 0
		if recorded, err := time.Parse(time.RFC3339Nano, recordedRaw); err == nil {
			event.RecordedAt = recorded
		}
		events = append(events, event)
	}
	return events, rows.Err()
}

// MarkEmitted flags an event as delivered to the broadcast hub.
func (s *Sink) MarkEmitted(ctx context.Context, eventID int64) error {
	if _, err := s.db.ExecContext(
		ctx,
		`UPDATE sla_events SET emitted = 1 WHERE id = ?`,
		eventID,
	); err != nil {
		return fmt.Errorf("mark event emitted: %w", err)
	}
	return nil
}
