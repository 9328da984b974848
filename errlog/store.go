// Package errlog provides the local error log: a small sqlite database the
// front-end writes diagnostics to, and the commands exposing it.
//
// Each query is held in an sql file in the embedded `sql` directory so that it
// can also be run on the sqlite command line.
package errlog

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jmoiron/sqlx" // helper library
	_ "modernc.org/sqlite"    // pure go sqlite driver
)

//go:embed sql
var sqlEmbeddedFS embed.FS

// timeFormat is fixed width so that logged_at sorts lexically.
const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

// Levels are the accepted entry levels.
var Levels = []string{"debug", "info", "warn", "error"}

// Entry is a single error log record.
type Entry struct {
	ID       string    `json:"id"`
	LoggedAt time.Time `json:"logged_at"`
	Level    string    `json:"level"`
	Message  string    `json:"message"`
	Source   string    `json:"source,omitempty"`
	Window   string    `json:"window,omitempty"`
}

// entryRow is the database representation of an Entry.
type entryRow struct {
	ID       string `db:"id"`
	LoggedAt string `db:"logged_at"`
	Level    string `db:"level"`
	Message  string `db:"message"`
	Source   string `db:"source"`
	Window   string `db:"window_label"`
}

func (r entryRow) entry() (Entry, error) {
	t, err := time.Parse(timeFormat, r.LoggedAt)
	if err != nil {
		return Entry{}, fmt.Errorf("entry %s has invalid time %q: %w", r.ID, r.LoggedAt, err)
	}
	return Entry{
		ID:       r.ID,
		LoggedAt: t,
		Level:    r.Level,
		Message:  r.Message,
		Source:   r.Source,
		Window:   r.Window,
	}, nil
}

// Store wraps the sqlx connection for error log operations.
type Store struct {
	*sqlx.DB
	path string

	insertStmt  *sqlx.NamedStmt
	entriesStmt *sqlx.NamedStmt
}

// Open opens, and if necessary creates, the error log at dbPath.
func Open(ctx context.Context, dbPath string) (*Store, error) {

	// dataSource is the default setting for file-based databases.
	dataSource := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", dbPath)

	// for in-memory test databases, check the necessary cached setting is used.
	if strings.Contains(dbPath, ":memory:") {
		if !strings.Contains(dbPath, "cache=shared") {
			return nil, fmt.Errorf("in-memory connection %q should contain '?cache=shared'", dbPath)
		}
		dataSource = dbPath
	} else if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("could not create error log directory: %w", err)
		}
	}

	dbDB, err := sql.Open("sqlite", dataSource)
	if err != nil {
		return nil, err
	}
	dbDB.SetMaxOpenConns(1) // sqlite
	if err := dbDB.PingContext(ctx); err != nil {
		_ = dbDB.Close()
		return nil, fmt.Errorf("could not open error log %q: %w", dbPath, err)
	}

	s := &Store{
		DB:   sqlx.NewDb(dbDB, "sqlite"),
		path: dbPath,
	}
	if err := s.initSchema(ctx, "sql/schema.sql"); err != nil {
		_ = s.Close()
		return nil, err
	}
	if err := s.prepareNamedStatements(ctx); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("could not prepare named statements: %w", err)
	}
	return s, nil
}

// Path is the location the store was opened at.
func (s *Store) Path() string {
	return s.path
}

// initSchema creates the necessary tables if they don't already exist.
func (s *Store) initSchema(ctx context.Context, filePath string) error {
	schema, err := fs.ReadFile(sqlEmbeddedFS, filePath)
	if err != nil {
		return fmt.Errorf("could not read schema file at %q: %w", filePath, err)
	}
	if _, err := s.ExecContext(ctx, string(schema)); err != nil {
		return fmt.Errorf("failed to execute schema initialization: %w", err)
	}
	return nil
}

func (s *Store) prepareNamedStatements(ctx context.Context) error {
	var err error
	s.insertStmt, err = s.prepNamedStatement(ctx, "sql/entry_insert.sql")
	if err != nil {
		return err
	}
	s.entriesStmt, err = s.prepNamedStatement(ctx, "sql/entries.sql")
	return err
}

func (s *Store) prepNamedStatement(ctx context.Context, filePath string) (*sqlx.NamedStmt, error) {
	query, err := fs.ReadFile(sqlEmbeddedFS, filePath)
	if err != nil {
		return nil, fmt.Errorf("could not read %q: %w", filePath, err)
	}
	stmt, err := s.PrepareNamedContext(ctx, string(query))
	if err != nil {
		return nil, fmt.Errorf("could not prepare statement %q: %w", filePath, err)
	}
	return stmt, nil
}

// Write inserts an entry.
func (s *Store) Write(ctx context.Context, e Entry) error {
	row := entryRow{
		ID:       e.ID,
		LoggedAt: e.LoggedAt.UTC().Format(timeFormat),
		Level:    e.Level,
		Message:  e.Message,
		Source:   e.Source,
		Window:   e.Window,
	}
	if _, err := s.insertStmt.ExecContext(ctx, row); err != nil {
		return fmt.Errorf("error log insert: %w", err)
	}
	return nil
}

// Entries returns up to limit entries, newest first.
func (s *Store) Entries(ctx context.Context, limit int) ([]Entry, error) {
	var rows []entryRow
	if err := s.entriesStmt.SelectContext(ctx, &rows, map[string]any{"limit": limit}); err != nil {
		return nil, fmt.Errorf("error log query: %w", err)
	}
	entries := make([]Entry, 0, len(rows))
	for _, r := range rows {
		e, err := r.entry()
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// Close closes the prepared statements and the connection.
func (s *Store) Close() error {
	for _, stmt := range []*sqlx.NamedStmt{s.insertStmt, s.entriesStmt} {
		if stmt != nil {
			_ = stmt.Close()
		}
	}
	return s.DB.Close()
}
