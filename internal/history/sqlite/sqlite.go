package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/loykin/sentinel/internal/history"
)

// Sink implements history.Sink for SQLite (modernc.org/sqlite driver,
// CGO-free). DSN is a filesystem path; use ":memory:" for in-memory.
type Sink struct {
	db *sql.DB
}

// New opens a SQLite database at path and ensures the schema.
func New(path string) (*Sink, error) {
	p := strings.TrimSpace(strings.TrimPrefix(path, "sqlite://"))
	if p == "" {
		return nil, errors.New("empty sqlite path")
	}
	d, err := sql.Open("sqlite", p)
	if err != nil {
		return nil, err
	}
	// busy timeout helps with short concurrent locks
	_, _ = d.Exec("PRAGMA busy_timeout=3000;")
	s := &Sink{db: d}
	if err := s.ensureSchema(context.Background()); err != nil {
		_ = d.Close()
		return nil, err
	}
	return s, nil
}

func (s *Sink) ensureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS worker_history(
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			type TEXT NOT NULL,
			occurred_at TIMESTAMP NOT NULL,
			name TEXT NOT NULL,
			pid INTEGER NOT NULL,
			restarts INTEGER NOT NULL,
			exit_err TEXT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_worker_history_name ON worker_history(name);`,
		`CREATE INDEX IF NOT EXISTS idx_worker_history_occurred ON worker_history(occurred_at);`,
	}
	for _, q := range stmts {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return err
		}
	}
	return nil
}

func (s *Sink) Close() error { return s.db.Close() }

func (s *Sink) Send(ctx context.Context, e history.Event) error {
	var exitErr sql.NullString
	if e.Record.ExitErr != "" {
		exitErr = sql.NullString{String: e.Record.ExitErr, Valid: true}
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO worker_history(type, occurred_at, name, pid, restarts, exit_err)
		VALUES(?, ?, ?, ?, ?, ?);`,
		string(e.Type), e.OccurredAt.UTC(), e.Record.Name, e.Record.PID, e.Record.Restarts, exitErr)
	return err
}

// Recent returns the most recent events for a worker name, newest first.
func (s *Sink) Recent(ctx context.Context, name string, limit int) ([]history.Event, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT type, occurred_at, name, pid, restarts, exit_err
		FROM worker_history
		WHERE name=?
		ORDER BY occurred_at DESC, id DESC
		LIMIT ?;`, name, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	out := make([]history.Event, 0)
	for rows.Next() {
		var e history.Event
		var typ string
		var occurred time.Time
		var exitErr sql.NullString
		if err := rows.Scan(&typ, &occurred, &e.Record.Name, &e.Record.PID, &e.Record.Restarts, &exitErr); err != nil {
			return nil, err
		}
		e.Type = history.EventType(typ)
		e.OccurredAt = occurred
		if exitErr.Valid {
			e.Record.ExitErr = exitErr.String
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// PurgeOlderThan removes events older than the cutoff and reports how many.
func (s *Sink) PurgeOlderThan(ctx context.Context, olderThan time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM worker_history WHERE occurred_at < ?;`, olderThan.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
