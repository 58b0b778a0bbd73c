// Package audit keeps the command journal: an append-only SQLite record
// of every resolved light command, shown by --history.
//
// The journal is an audit trail. Nothing in it is ever read back into the
// light store.
package audit

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// timeLayout is fixed-width so created_at sorts lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// Limits for Latest.
const (
	DefaultLimit = 20
	MaxLimit     = 1000
)

// Entry is one journal row.
type Entry struct {
	ID        string        `json:"id"`
	CommandID string        `json:"command_id"`
	LightID   int           `json:"light_id"`
	LightName string        `json:"light_name,omitempty"`
	Kind      string        `json:"kind"`
	Delta     string        `json:"delta"`
	Outcome   string        `json:"outcome"`
	Attempts  int           `json:"attempts"`
	Latency   time.Duration `json:"latency"`
	Error     string        `json:"error,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
}

// Repository stores journal entries.
type Repository interface {
	Append(ctx context.Context, e *Entry) error
	Latest(ctx context.Context, n int) ([]Entry, error)
}

// SQLiteRepository stores entries in the command_journal table.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a repository on an opened, migrated db.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Append inserts e. ID and CreatedAt are filled in when empty.
func (r *SQLiteRepository) Append(ctx context.Context, e *Entry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO command_journal
		   (id, command_id, light_id, light_name, kind, delta, outcome, attempts, latency_ms, error, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.CommandID, e.LightID, e.LightName, e.Kind, e.Delta, e.Outcome,
		e.Attempts, e.Latency.Milliseconds(), nullableString(e.Error),
		e.CreatedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("inserting journal entry: %w", err)
	}
	return nil
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// Latest returns up to n entries, newest first. n is clamped to
// [1, MaxLimit]; zero or negative means DefaultLimit.
func (r *SQLiteRepository) Latest(ctx context.Context, n int) ([]Entry, error) {
	if n <= 0 {
		n = DefaultLimit
	}
	n = min(n, MaxLimit)

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, command_id, light_id, light_name, kind, delta, outcome, attempts, latency_ms, error, created_at
		   FROM command_journal
		  ORDER BY created_at DESC, rowid DESC
		  LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("querying journal: %w", err)
	}
	defer rows.Close()

	entries := make([]Entry, 0, n)
	for rows.Next() {
		var e Entry
		var latencyMS int64
		var errText sql.NullString
		var createdAt string

		if err := rows.Scan(&e.ID, &e.CommandID, &e.LightID, &e.LightName, &e.Kind, &e.Delta,
			&e.Outcome, &e.Attempts, &latencyMS, &errText, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning journal entry: %w", err)
		}
		e.Latency = time.Duration(latencyMS) * time.Millisecond
		e.Error = errText.String

		e.CreatedAt, err = time.Parse(timeLayout, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing journal timestamp %q: %w", createdAt, err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating journal: %w", err)
	}
	return entries, nil
}
