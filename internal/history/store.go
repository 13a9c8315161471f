package history

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"docflow/internal/config"
)

//go:embed schema.sql
var schemaSQL string

// schemaVersion is the current schema version. Bump this when the schema changes.
const schemaVersion = 1

// ErrSchemaMismatch indicates the database schema version doesn't match the expected version.
var ErrSchemaMismatch = errors.New("schema version mismatch")

// Store persists stage-history entries and worker presence in SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// Open initializes or connects to the stage-history database.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}
	return OpenPath(cfg.DatabasePath())
}

// DSN builds the connection string for the shared database file. The pragmas
// ride in the DSN so every pooled connection gets them; a plain Exec would
// configure only the one connection that happened to run it, leaving the rest
// with busy_timeout=0 and instant SQLITE_BUSY failures under write contention.
func DSN(dbPath string) string {
	return "file:" + dbPath + "?_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)&_pragma=busy_timeout(5000)"
}

// OpenPath opens the database at an explicit location. Most callers use Open;
// sibling stores sharing the database file use this.
func OpenPath(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", DSN(dbPath))
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	store := &Store{db: db, path: dbPath}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file location.
func (s *Store) Path() string {
	return s.path
}

func (s *Store) initSchema(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}

	var version int
	row := tx.QueryRowContext(ctx, "SELECT version FROM schema_version LIMIT 1")
	switch err := row.Scan(&version); {
	case errors.Is(err, sql.ErrNoRows):
		if _, err := tx.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
			return fmt.Errorf("record schema version: %w", err)
		}
	case err != nil:
		return fmt.Errorf("read schema version: %w", err)
	case version != schemaVersion:
		return fmt.Errorf("%w: database has version %d, expected %d", ErrSchemaMismatch, version, schemaVersion)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema: %w", err)
	}
	return nil
}

// Append inserts a new stage-history entry. When the entry carries a worker
// identity the assignment timestamp is stamped alongside EnteredAt.
func (s *Store) Append(ctx context.Context, entry Entry) (*Entry, error) {
	if entry.FileID == "" {
		return nil, errors.New("entry requires a file id")
	}
	if _, ok := stageSet[entry.Stage]; !ok {
		return nil, fmt.Errorf("unknown stage %q", entry.Stage)
	}
	if entry.EnteredAt.IsZero() {
		entry.EnteredAt = time.Now().UTC()
	}
	if entry.WorkerID != "" && entry.AssignedAt == nil {
		at := entry.EnteredAt
		entry.AssignedAt = &at
	}

	res, err := s.db.ExecContext(
		ctx,
		`INSERT INTO stage_history (
            file_id, stage, worker_id, worker_name,
            entered_at, assigned_at, completed_at, escalation_sent, notes
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.FileID,
		entry.Stage,
		nullableString(entry.WorkerID),
		nullableString(entry.WorkerName),
		entry.EnteredAt.UTC().Format(time.RFC3339Nano),
		nullableTime(entry.AssignedAt),
		nullableTime(entry.CompletedAt),
		boolToInt(entry.EscalationSent),
		nullableString(entry.Notes),
	)
	if err != nil {
		return nil, fmt.Errorf("insert entry: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(ctx, id)
}

// GetByID fetches a stage-history entry by identifier.
func (s *Store) GetByID(ctx context.Context, id int64) (*Entry, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+entryColumns+` FROM stage_history WHERE id = ?`, id)
	entry, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get entry: %w", err)
	}
	return entry, nil
}

// OpenEntry returns the file's single open entry, or nil when the file is
// idle between stages (or unknown).
func (s *Store) OpenEntry(ctx context.Context, fileID string) (*Entry, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT `+entryColumns+` FROM stage_history
         WHERE file_id = ? AND completed_at IS NULL ORDER BY id DESC LIMIT 1`,
		fileID,
	)
	entry, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open entry: %w", err)
	}
	return entry, nil
}

// LatestEntry returns the most recent entry for a file regardless of state.
func (s *Store) LatestEntry(ctx context.Context, fileID string) (*Entry, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT `+entryColumns+` FROM stage_history WHERE file_id = ? ORDER BY id DESC LIMIT 1`,
		fileID,
	)
	entry, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest entry: %w", err)
	}
	return entry, nil
}

// EntriesForFile returns the file's full stage history, oldest first.
func (s *Store) EntriesForFile(ctx context.Context, fileID string) ([]*Entry, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+entryColumns+` FROM stage_history WHERE file_id = ? ORDER BY id`,
		fileID,
	)
	if err != nil {
		return nil, fmt.Errorf("query file history: %w", err)
	}
	defer rows.Close()
	return collectEntries(rows)
}

// OpenEntries returns every open entry across all files, oldest first. The
// periodic SLA sweep walks this set.
func (s *Store) OpenEntries(ctx context.Context) ([]*Entry, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+entryColumns+` FROM stage_history WHERE completed_at IS NULL ORDER BY entered_at`,
	)
	if err != nil {
		return nil, fmt.Errorf("query open entries: %w", err)
	}
	defer rows.Close()
	return collectEntries(rows)
}

// StaleOpenEntries returns open entries entered before the cutoff, capped at
// limit to bound emitter tick cost.
func (s *Store) StaleOpenEntries(ctx context.Context, cutoff time.Time, limit int) ([]*Entry, error) {
	if limit <= 0 {
		limit = 25
	}
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+entryColumns+` FROM stage_history
         WHERE completed_at IS NULL AND entered_at < ?
         ORDER BY entered_at LIMIT ?`,
		cutoff.UTC().Format(time.RFC3339Nano),
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query stale open entries: %w", err)
	}
	defer rows.Close()
	return collectEntries(rows)
}

// RecentAssignments returns open entries whose worker was assigned at or
// after since. This feeds the one-way update emitter's task_assigned window.
func (s *Store) RecentAssignments(ctx context.Context, since time.Time) ([]*Entry, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+entryColumns+` FROM stage_history
         WHERE completed_at IS NULL AND assigned_at IS NOT NULL AND assigned_at >= ?
         ORDER BY assigned_at`,
		since.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return nil, fmt.Errorf("query recent assignments: %w", err)
	}
	defer rows.Close()
	return collectEntries(rows)
}

// CloseAndOpenNext stamps completed_at on the identified open entry and, in
// the same transaction, inserts the next entry when one is provided. The
// guarded update makes concurrent completions race-safe: exactly one caller
// sees the row close; the rest get ErrAlreadyCompleted and nothing persists.
func (s *Store) CloseAndOpenNext(ctx context.Context, entryID int64, completedAt time.Time, next *Entry) (*Entry, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin completion tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(
		ctx,
		`UPDATE stage_history SET completed_at = ? WHERE id = ? AND completed_at IS NULL`,
		completedAt.UTC().Format(time.RFC3339Nano),
		entryID,
	)
	if err != nil {
		return nil, fmt.Errorf("close entry: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("close entry rows: %w", err)
	}
	if affected == 0 {
		return nil, ErrAlreadyCompleted
	}

	var opened *Entry
	if next != nil {
		entry := *next
		if entry.EnteredAt.IsZero() {
			entry.EnteredAt = completedAt
		}
		insertRes, err := tx.ExecContext(
			ctx,
			`INSERT INTO stage_history (
                file_id, stage, worker_id, worker_name,
                entered_at, assigned_at, completed_at, escalation_sent, notes
            ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			entry.FileID,
			entry.Stage,
			nullableString(entry.WorkerID),
			nullableString(entry.WorkerName),
			entry.EnteredAt.UTC().Format(time.RFC3339Nano),
			nullableTime(entry.AssignedAt),
			nullableTime(entry.CompletedAt),
			boolToInt(entry.EscalationSent),
			nullableString(entry.Notes),
		)
		if err != nil {
			return nil, fmt.Errorf("open next entry: %w", err)
		}
		id, err := insertRes.LastInsertId()
		if err != nil {
			return nil, fmt.Errorf("next entry id: %w", err)
		}
		entry.ID = id
		opened = &entry
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit completion: %w", err)
	}
	return opened, nil
}

// AssignWorker stamps worker identity and assignment time on an open entry.
func (s *Store) AssignWorker(ctx context.Context, entryID int64, workerID, workerName string, at time.Time) error {
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE stage_history SET worker_id = ?, worker_name = ?, assigned_at = ?
         WHERE id = ? AND completed_at IS NULL`,
		workerID,
		workerName,
		at.UTC().Format(time.RFC3339Nano),
		entryID,
	)
	if err != nil {
		return fmt.Errorf("assign worker: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("assign worker rows: %w", err)
	}
	if affected == 0 {
		return ErrAlreadyCompleted
	}
	return nil
}

// MarkEscalated flips the escalation marker so the same breach is never
// re-escalated by a later sweep.
func (s *Store) MarkEscalated(ctx context.Context, entryID int64) error {
	if _, err := s.db.ExecContext(
		ctx,
		`UPDATE stage_history SET escalation_sent = 1 WHERE id = ?`,
		entryID,
	); err != nil {
		return fmt.Errorf("mark escalated: %w", err)
	}
	return nil
}

// CloseDangling closes any open entries for a file, annotating them with the
// supplied note. Reassignment uses this so rework never leaves an abandoned
// open entry behind.
func (s *Store) CloseDangling(ctx context.Context, fileID, note string, at time.Time) (int64, error) {
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE stage_history SET completed_at = ?, notes = ?
         WHERE file_id = ? AND completed_at IS NULL`,
		at.UTC().Format(time.RFC3339Nano),
		note,
		fileID,
	)
	if err != nil {
		return 0, fmt.Errorf("close dangling entries: %w", err)
	}
	return res.RowsAffected()
}

// UpsertWorkerStatus records worker presence from a status_update frame.
func (s *Store) UpsertWorkerStatus(ctx context.Context, workerID, status string, at time.Time) error {
	if workerID == "" {
		return errors.New("worker id required")
	}
	if _, err := s.db.ExecContext(
		ctx,
		`INSERT INTO worker_status (worker_id, status, updated_at) VALUES (?, ?, ?)
         ON CONFLICT(worker_id) DO UPDATE SET status = excluded.status, updated_at = excluded.updated_at`,
		workerID,
		status,
		at.UTC().Format(time.RFC3339Nano),
	); err != nil {
		return fmt.Errorf("upsert worker status: %w", err)
	}
	return nil
}

// RecentWorkerStatus returns presence rows updated at or after since.
func (s *Store) RecentWorkerStatus(ctx context.Context, since time.Time) ([]WorkerStatus, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT worker_id, status, updated_at FROM worker_status WHERE updated_at >= ? ORDER BY updated_at`,
		since.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return nil, fmt.Errorf("query worker status: %w", err)
	}
	defer rows.Close()

	var statuses []WorkerStatus
	for rows.Next() {
		var (
			ws  WorkerStatus
			raw string
		)
		if err := rows.Scan(&ws.WorkerID, &ws.Status, &raw); err != nil {
			return nil, err
		}
		if updated, err := parseTimeString(raw); err == nil {
			ws.UpdatedAt = updated
		}
		statuses = append(statuses, ws)
	}
	return statuses, rows.Err()
}

// Stats aggregates open entries per stage and counts delivered files.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	stats := Stats{OpenByStage: make(map[Stage]int)}

	rows, err := s.db.QueryContext(
		ctx,
		`SELECT stage, COUNT(1) FROM stage_history WHERE completed_at IS NULL GROUP BY stage`,
	)
	if err != nil {
		return stats, fmt.Errorf("open entry stats: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			stage Stage
			count int
		)
		if err := rows.Scan(&stage, &count); err != nil {
			return stats, err
		}
		stats.OpenByStage[stage] = count
	}
	if err := rows.Err(); err != nil {
		return stats, err
	}

	row := s.db.QueryRowContext(
		ctx,
		`SELECT COUNT(DISTINCT file_id) FROM stage_history WHERE stage = ?`,
		StageDelivered,
	)
	if err := row.Scan(&stats.Delivered); err != nil {
		return stats, fmt.Errorf("delivered stats: %w", err)
	}

	row = s.db.QueryRowContext(ctx, `SELECT COUNT(DISTINCT file_id) FROM stage_history`)
	if err := row.Scan(&stats.Total); err != nil {
		return stats, fmt.Errorf("total stats: %w", err)
	}
	return stats, nil
}

const entryColumns = "id, file_id, stage, worker_id, worker_name, entered_at, assigned_at, completed_at, escalation_sent, notes"

func collectEntries(rows *sql.Rows) ([]*Entry, error) {
	var entries []*Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func scanEntry(scanner interface{ Scan(dest ...any) error }) (*Entry, error) {
	var (
		id             int64
		fileID         string
		stageStr       string
		workerID       sql.NullString
		workerName     sql.NullString
		enteredRaw     string
		assignedRaw    sql.NullString
		completedRaw   sql.NullString
		escalationSent sql.NullInt64
		notes          sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&fileID,
		&stageStr,
		&workerID,
		&workerName,
		&enteredRaw,
		&assignedRaw,
		&completedRaw,
		&escalationSent,
		&notes,
	); err != nil {
		return nil, err
	}

	entry := &Entry{
		ID:         id,
		FileID:     fileID,
		Stage:      Stage(stageStr),
		WorkerID:   workerID.String,
		WorkerName: workerName.String,
		Notes:      notes.String,
	}
	if escalationSent.Valid {
		entry.EscalationSent = escalationSent.Int64 != 0
	}
	if entered, err := parseTimeString(enteredRaw); err == nil {
		entry.EnteredAt = entered
	}
	if assignedRaw.Valid {
		if assigned, err := parseTimeString(assignedRaw.String); err == nil {
			entry.AssignedAt = &assigned
		}
	}
	if completedRaw.Valid {
		if completed, err := parseTimeString(completedRaw.String); err == nil {
			entry.CompletedAt = &completed
		}
	}
	return entry, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullableTime(value *time.Time) any {
	if value == nil {
		return nil
	}
	return value.UTC().Format(time.RFC3339Nano)
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}
