package notify

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"docflow/internal/config"
	"docflow/internal/history"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS notifications (
    id TEXT PRIMARY KEY,
    recipient TEXT NOT NULL,
    role TEXT NOT NULL,
    channel TEXT NOT NULL,
    subject TEXT NOT NULL,
    body TEXT,
    payload TEXT,
    priority TEXT NOT NULL,
    created_at TEXT NOT NULL,
    read INTEGER NOT NULL DEFAULT 0,
    expires_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_notifications_recipient ON notifications(recipient, read);
CREATE INDEX IF NOT EXISTS idx_notifications_expiry ON notifications(expires_at);
`

// ErrNotFound indicates a mark-read attempt targeted a notification that does
// not exist or belongs to a different recipient.
var ErrNotFound = errors.New("notification not found")

// Store persists in-app notifications in SQLite. It shares the database file
// with the stage-history store but owns its own connection and table.
type Store struct {
	db        *sql.DB
	retention time.Duration
}

// OpenStore connects to the notification table in the shared database.
func OpenStore(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}
	db, err := sql.Open("sqlite", history.DSN(cfg.DatabasePath()))
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create notification schema: %w", err)
	}
	return &Store{
		db:        db,
		retention: time.Duration(cfg.Notifications.RetentionDays) * 24 * time.Hour,
	}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Insert durably persists a notification. Missing IDs, timestamps, and expiry
// are filled in from the store's retention window.
func (s *Store) Insert(ctx context.Context, n Notification) (*Notification, error) {
	if n.Recipient == "" {
		return nil, errors.New("notification requires a recipient")
	}
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	if n.ExpiresAt.IsZero() {
		n.ExpiresAt = n.CreatedAt.Add(s.retention)
	}
	n.Priority = ParsePriority(string(n.Priority))

	var payload any
	if len(n.Payload) > 0 {
		payload = string(n.Payload)
	}
	if _, err := s.db.ExecContext(
		ctx,
		`INSERT INTO notifications (
            id, recipient, role, channel, subject, body, payload,
            priority, created_at, read, expires_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		n.ID,
		n.Recipient,
		n.Role,
		n.Channel,
		n.Subject,
		n.Body,
		payload,
		n.Priority,
		n.CreatedAt.UTC().Format(time.RFC3339Nano),
		boolToInt(n.Read),
		n.ExpiresAt.UTC().Format(time.RFC3339Nano),
	); err != nil {
		return nil, fmt.Errorf("insert notification: %w", err)
	}
	return &n, nil
}

// MarkRead flips the read flag for a recipient's notification.
func (s *Store) MarkRead(ctx context.Context, id, recipient string) error {
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE notifications SET read = 1 WHERE id = ? AND recipient = ?`,
		id,
		recipient,
	)
	if err != nil {
		return fmt.Errorf("mark read: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark read rows: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// ListForRecipient returns unexpired notifications for a recipient, newest
// first. unreadOnly narrows to unread rows.
func (s *Store) ListForRecipient(ctx context.Context, recipient string, unreadOnly bool) ([]Notification, error) {
	query := `SELECT id, recipient, role, channel, subject, body, payload,
                 priority, created_at, read, expires_at
              FROM notifications
              WHERE recipient = ? AND expires_at > ?`
	if unreadOnly {
		query += ` AND read = 0`
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.db.QueryContext(ctx, query, recipient, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	var notifications []Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		notifications = append(notifications, n)
	}
	return notifications, rows.Err()
}

// PurgeExpired deletes rows past their expiry. The retention sweep calls this
// hourly; seven days is the default window.
func (s *Store) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(
		ctx,
		`DELETE FROM notifications WHERE expires_at <= ?`,
		now.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return 0, fmt.Errorf("purge expired notifications: %w", err)
	}
	return res.RowsAffected()
}

func scanNotification(rows *sql.Rows) (Notification, error) {
	var (
		n          Notification
		body       sql.NullString
		payload    sql.NullString
		createdRaw string
		readInt    int
		expiresRaw string
	)
	if err := rows.Scan(
		&n.ID,
		&n.Recipient,
		&n.Role,
		&n.Channel,
		&n.Subject,
		&body,
		&payload,
		&n.Priority,
		&createdRaw,
		&readInt,
		&expiresRaw,
	); err != nil {
		return Notification{}, err
	}
	n.Body = body.String
	if payload.Valid {
		n.Payload = []byte(payload.String)
	}
	n.Read = readInt != 0
	if created, err := time.Parse(time.RFC3339Nano, createdRaw); err == nil {
		n.CreatedAt = created
	}
	if expires, err := time.Parse(time.RFC3339Nano, expiresRaw); err == nil {
		n.ExpiresAt = expires
	}
	return n, nil
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}
