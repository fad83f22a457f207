// Package history records executed shell commands in a local SQLite
// database so they can be reviewed with "bastion history".
package history

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/xdg/bastion/internal/shellexec"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Sources of an execution.
const (
	SourceTemplate = "template" // !{...} in a custom command
	SourceTool     = "tool"     // run_shell_command called by the model
	SourceExec     = "exec"     // bastion exec
)

// Entry is one executed command.
type Entry struct {
	ID          int64
	SessionID   string
	Source      string
	Command     string
	Cwd         string
	ExitCode    *int
	Signal      string
	Aborted     bool
	Error       string
	OutputBytes int
	StartedAt   time.Time
	Duration    time.Duration
}

// Recorder stores entries. *Store implements it.
type Recorder interface {
	Record(ctx context.Context, e Entry) error
}

// FromResult builds an Entry for a finished command.
func FromResult(source, command, cwd string, started time.Time, res *shellexec.Result) Entry {
	e := Entry{
		Source:    source,
		Command:   command,
		Cwd:       cwd,
		StartedAt: started.UTC(),
		Duration:  time.Since(started),
	}
	if res != nil {
		e.ExitCode = res.ExitCode
		e.Signal = res.Signal
		e.Aborted = res.Aborted
		e.OutputBytes = len(res.RawOutput)
		if res.Err != nil {
			e.Error = res.Err.Error()
		}
	}
	return e
}

// Store is a SQLite-backed Recorder.
type Store struct {
	db *sql.DB
}

// DefaultPath returns ~/.local/state/bastion/history.db, honouring
// XDG_STATE_HOME.
func DefaultPath() string {
	stateDir := os.Getenv("XDG_STATE_HOME")
	if stateDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			home = "."
		}
		stateDir = filepath.Join(home, ".local", "state")
	}
	return filepath.Join(stateDir, "bastion", "history.db")
}

// Open opens or creates the database at path and applies pending
// migrations. ":memory:" opens a private in-memory database.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
			return nil, fmt.Errorf("create history directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// One connection keeps ":memory:" databases shared and serialises writers.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		version TEXT PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}

	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)

	for _, f := range files {
		var applied int
		if err := s.db.QueryRow("SELECT COUNT(*) FROM schema_migrations WHERE version = ?", f).Scan(&applied); err != nil {
			return fmt.Errorf("check migration %s: %w", f, err)
		}
		if applied > 0 {
			continue
		}

		content, err := migrationsFS.ReadFile("migrations/" + f)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", f, err)
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("begin tx for %s: %w", f, err)
		}
		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("exec migration %s: %w", f, err)
		}
		if _, err := tx.Exec("INSERT INTO schema_migrations (version) VALUES (?)", f); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %s: %w", f, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %s: %w", f, err)
		}
	}
	return nil
}

// Record inserts e. The ID field is ignored.
func (s *Store) Record(ctx context.Context, e Entry) error {
	var exitCode sql.NullInt64
	if e.ExitCode != nil {
		exitCode = sql.NullInt64{Int64: int64(*e.ExitCode), Valid: true}
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO executions
		(session_id, source, command, cwd, exit_code, signal, aborted, error, output_bytes, started_at, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.SessionID, e.Source, e.Command, e.Cwd, exitCode, e.Signal, e.Aborted, e.Error,
		e.OutputBytes, e.StartedAt.UTC(), e.Duration.Milliseconds())
	if err != nil {
		return fmt.Errorf("record execution: %w", err)
	}
	return nil
}

// Recent returns up to limit entries, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	return s.query(ctx, `SELECT id, session_id, source, command, cwd, exit_code, signal, aborted, error, output_bytes, started_at, duration_ms
		FROM executions ORDER BY id DESC LIMIT ?`, limit)
}

// Session returns the entries of one session in execution order.
func (s *Store) Session(ctx context.Context, sessionID string) ([]Entry, error) {
	return s.query(ctx, `SELECT id, session_id, source, command, cwd, exit_code, signal, aborted, error, output_bytes, started_at, duration_ms
		FROM executions WHERE session_id = ? ORDER BY id`, sessionID)
}

func (s *Store) query(ctx context.Context, q string, args ...any) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query executions: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var exitCode sql.NullInt64
		var durationMs int64
		if err := rows.Scan(&e.ID, &e.SessionID, &e.Source, &e.Command, &e.Cwd, &exitCode,
			&e.Signal, &e.Aborted, &e.Error, &e.OutputBytes, &e.StartedAt, &durationMs); err != nil {
			return nil, fmt.Errorf("scan execution: %w", err)
		}
		if exitCode.Valid {
			code := int(exitCode.Int64)
			e.ExitCode = &code
		}
		e.Duration = time.Duration(durationMs) * time.Millisecond
		out = append(out, e)
	}
	return out, rows.Err()
}

// SessionRecorder stamps every entry with a session id before passing it on.
type SessionRecorder struct {
	Recorder  Recorder
	SessionID string
}

func (r SessionRecorder) Record(ctx context.Context, e Entry) error {
	if r.Recorder == nil {
		return nil
	}
	e.SessionID = r.SessionID
	return r.Recorder.Record(ctx, e)
}
