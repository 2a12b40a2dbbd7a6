// Package store persists session and command history to a local SQLite
// database for the dashboard and session summarization (SPEC_FULL.md
// domain stack). It is grounded on the teacher's internal/db package:
// same sql.Open pragma string, same goose migration wiring, same
// single-connection discipline — applied to a GDB-session schema instead
// of a tier-escalation schema. Unlike the teacher, persistence here is a
// write-behind audit trail: a Supervisor's in-memory state, not a row in
// this database, is the source of truth for whether a session is live.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"time"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"github.com/gdbmcp/gdbmcp/internal/session"
)

// Store wraps a *sql.DB holding the sessions/commands/console_lines
// tables.
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) the SQLite database at path and
// applies any pending migrations. path may be ":memory:" for tests.
func Open(path string) (*Store, error) {
	dsn := fmt.Sprintf("%s?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)", path)
	if path == ":memory:" {
		dsn = path
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open: %w", err)
	}
	// modernc.org/sqlite serializes access per *sql.DB; one connection
	// avoids SQLITE_BUSY storms under WAL the way the teacher's db.go does.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}

	migrations, err := fs.Sub(migrationFS, "migrations")
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("store: migrations sub fs: %w", err)
	}
	provider, err := goose.NewProvider(goose.DialectSQLite3, db, migrations)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("store: goose provider: %w", err)
	}
	if _, err := provider.Up(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: migrate up: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func timestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// CreateSession inserts a new session row, mirroring the Supervisor's
// creation. cmd/gdbmcp calls it from the manager's observation-forwarding
// goroutine on session-added, not from inside the Supervisor itself, so a
// store outage never blocks command execution.
func (s *Store) CreateSession(ctx context.Context, info session.Info) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, gdb_path, working_dir, program, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		info.ID, info.GDBPath, info.WorkingDir, info.Program, timestamp(info.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("store: create session: %w", err)
	}
	return nil
}

// EndSession records a session's terminal state and exit code.
func (s *Store) EndSession(ctx context.Context, sessionID, finalState string, exitCode int) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE sessions SET final_state = ?, exit_code = ?, ended_at = ? WHERE id = ?`,
		finalState, exitCode, timestamp(time.Now()), sessionID,
	)
	if err != nil {
		return fmt.Errorf("store: end session: %w", err)
	}
	return nil
}

// SaveSummary stores a generated transcript summary (internal/summarize)
// against a session.
func (s *Store) SaveSummary(ctx context.Context, sessionID, summary string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE sessions SET summary = ? WHERE id = ?`, summary, sessionID)
	if err != nil {
		return fmt.Errorf("store: save summary: %w", err)
	}
	return nil
}

// RecordCommand appends one executed command to a session's history. It
// is the natural sink for Manager.OnCommand / Supervisor.OnCommand.
func (s *Store) RecordCommand(ctx context.Context, r session.CommandResult) error {
	errMsg := ""
	if r.Err != nil {
		errMsg = r.Err.Error()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO commands (session_id, command, raw_output, error, timed_out, duration_ms, executed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.SessionID, r.Command, r.RawOutput, errMsg, r.TimedOut, r.Duration.Milliseconds(), timestamp(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("store: record command: %w", err)
	}
	return nil
}

// RecordConsoleLine appends one ~-stream console line, for dashboard
// scrollback beyond the Hub's in-memory ring buffer.
func (s *Store) RecordConsoleLine(ctx context.Context, sessionID, text string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO console_lines (session_id, text, created_at) VALUES (?, ?, ?)`,
		sessionID, text, timestamp(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("store: record console line: %w", err)
	}
	return nil
}

// CommandRecord is one row of a session's command history.
type CommandRecord struct {
	Command    string
	RawOutput  string
	Error      string
	TimedOut   bool
	DurationMs int64
	ExecutedAt time.Time
}

// ListCommands returns a session's command history in execution order.
func (s *Store) ListCommands(ctx context.Context, sessionID string) ([]CommandRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT command, raw_output, error, timed_out, duration_ms, executed_at
		FROM commands WHERE session_id = ? ORDER BY id ASC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("store: list commands: %w", err)
	}
	defer rows.Close()

	var out []CommandRecord
	for rows.Next() {
		var r CommandRecord
		var executedAt string
		if err := rows.Scan(&r.Command, &r.RawOutput, &r.Error, &r.TimedOut, &r.DurationMs, &executedAt); err != nil {
			return nil, fmt.Errorf("store: scan command: %w", err)
		}
		r.ExecutedAt, _ = time.Parse(time.RFC3339Nano, executedAt)
		out = append(out, r)
	}
	return out, rows.Err()
}

// SessionRecord is one row of the sessions table.
type SessionRecord struct {
	ID         string
	GDBPath    string
	WorkingDir string
	Program    string
	FinalState string
	ExitCode   int
	Summary    string
	CreatedAt  time.Time
	EndedAt    *time.Time
}

// ListSessions returns every recorded session, most recent first.
func (s *Store) ListSessions(ctx context.Context) ([]SessionRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, gdb_path, working_dir, program, final_state, exit_code, summary, created_at, ended_at
		FROM sessions ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("store: list sessions: %w", err)
	}
	defer rows.Close()

	var out []SessionRecord
	for rows.Next() {
		var r SessionRecord
		var createdAt string
		var endedAt sql.NullString
		if err := rows.Scan(&r.ID, &r.GDBPath, &r.WorkingDir, &r.Program, &r.FinalState, &r.ExitCode, &r.Summary, &createdAt, &endedAt); err != nil {
			return nil, fmt.Errorf("store: scan session: %w", err)
		}
		r.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		if endedAt.Valid {
			t, _ := time.Parse(time.RFC3339Nano, endedAt.String)
			r.EndedAt = &t
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
