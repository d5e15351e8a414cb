package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Kinds of journaled events.
const (
	KindSpinDown      = "spin_down"
	KindSpinUp        = "spin_up"
	KindDeviceAdded   = "device_added"
	KindDeviceRemoved = "device_removed"
)

// Event is one journal row.
type Event struct {
	ID      int64
	Session string
	Device  string
	Kind    string
	At      time.Time
}

// Store is the journal handle. Each Open starts a new session so overlapping
// daemon runs remain distinguishable in the log.
type Store struct {
	db      *sql.DB
	session string
}

const schema = `
CREATE TABLE IF NOT EXISTS events (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    session    TEXT NOT NULL,
    device     TEXT NOT NULL,
    kind       TEXT NOT NULL,
    created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_events_created_at ON events (created_at);
`

// Open creates or connects to the journal database at path.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("ensure history directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open history db: %w", err)
	}

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply history schema: %w", err)
	}

	return &Store{db: db, session: uuid.NewString()}, nil
}

// Session returns the journal session ID for this store handle.
func (s *Store) Session() string {
	return s.session
}

// Close closes the underlying database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Append records one event.
func (s *Store) Append(ctx context.Context, device, kind string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO events (session, device, kind, created_at) VALUES (?, ?, ?, ?)`,
		s.session, device, kind, time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("append history event: %w", err)
	}
	return nil
}

// Recent returns up to limit events, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session, device, kind, created_at FROM events ORDER BY id DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var (
			e  Event
			at string
		)
		if err := rows.Scan(&e.ID, &e.Session, &e.Device, &e.Kind, &at); err != nil {
			return nil, fmt.Errorf("scan history row: %w", err)
		}
		if e.At, err = time.Parse(time.RFC3339Nano, at); err != nil {
			return nil, fmt.Errorf("parse history timestamp %q: %w", at, err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
