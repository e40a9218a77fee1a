// Package history provides SQLite persistence for executed commands.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"github.com/mkvold/shellbridge/internal/logging"
	"github.com/mkvold/shellbridge/internal/sshexec"
)

const schema = `
CREATE TABLE IF NOT EXISTS executions (
	id          TEXT PRIMARY KEY,
	server_slug TEXT NOT NULL,
	command     TEXT NOT NULL,
	exit_code   INTEGER NOT NULL,
	error       TEXT NOT NULL DEFAULT '',
	started_at  TIMESTAMP NOT NULL,
	duration_ms INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_executions_slug_started
	ON executions(server_slug, started_at DESC);
`

// Entry is one recorded execution.
type Entry struct {
	ID        string
	Slug      string
	Command   string
	ExitCode  int
	Error     string
	StartedAt time.Time
	Duration  time.Duration
}

// Store persists execution history in SQLite. It implements
// sshexec.Recorder; recording failures are logged, never propagated.
type Store struct {
	db         *sql.DB
	maxEntries int
	log        zerolog.Logger
}

// Open opens (creating if needed) the history database at path. maxEntries
// caps retained rows; 0 or less means unlimited.
func Open(path string, maxEntries int) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create history directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open history database: %w", err)
	}
	// Single writer; the busy timeout covers concurrent CLI invocations.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(`PRAGMA journal_mode = WAL; PRAGMA busy_timeout = 5000;`); err != nil {
		db.Close()
		return nil, fmt.Errorf("configure history database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create history schema: %w", err)
	}

	return &Store{
		db:         db,
		maxEntries: maxEntries,
		log:        logging.Component("history"),
	}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Record stores one execution. Failures are logged and dropped so history
// can never fail a command.
func (s *Store) Record(ctx context.Context, rec sshexec.Record) {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO executions (id, server_slug, command, exit_code, error, started_at, duration_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Slug, rec.Command, rec.ExitCode, rec.Error,
		rec.StartedAt.UTC(), rec.Duration.Milliseconds(),
	)
	if err != nil {
		s.log.Warn().Err(err).Str("server", rec.Slug).Msg("record execution failed")
		return
	}
	if s.maxEntries > 0 {
		if err := s.Prune(ctx, s.maxEntries); err != nil {
			s.log.Warn().Err(err).Msg("prune history failed")
		}
	}
}

// Recent returns up to limit executions, newest first, optionally filtered
// by server slug.
func (s *Store) Recent(ctx context.Context, slug string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `SELECT id, server_slug, command, exit_code, error, started_at, duration_ms
		FROM executions`
	args := []any{}
	if slug != "" {
		query += ` WHERE server_slug = ?`
		args = append(args, slug)
	}
	query += ` ORDER BY started_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var durationMs int64
		if err := rows.Scan(&e.ID, &e.Slug, &e.Command, &e.ExitCode, &e.Error, &e.StartedAt, &durationMs); err != nil {
			return nil, fmt.Errorf("scan history row: %w", err)
		}
		e.Duration = time.Duration(durationMs) * time.Millisecond
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Prune deletes everything but the newest max rows.
func (s *Store) Prune(ctx context.Context, max int) error {
	if max <= 0 {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM executions WHERE id NOT IN (
			SELECT id FROM executions ORDER BY started_at DESC LIMIT ?
		)`, max)
	return err
}
