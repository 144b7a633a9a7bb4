package storage

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// TimeLayout is the fixed-width timestamp format used for every time column.
// Fixed width keeps lexical and chronological ordering identical.
const TimeLayout = "2006-01-02T15:04:05.000000000Z"

// FormatTime renders t in TimeLayout (UTC).
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

// ParseTime parses a TimeLayout timestamp.
func ParseTime(s string) (time.Time, error) {
	return time.Parse(TimeLayout, s)
}

// Options tunes OpenSQLite.
type Options struct {
	// BusyTimeout is how long a writer waits on a locked database.
	BusyTimeout time.Duration
	// SkipFSCheck disables the local-filesystem check.
	SkipFSCheck bool
}

// OpenSQLite opens (and creates if needed) the SQLite database at path and
// ensures required tables exist.
func OpenSQLite(ctx context.Context, path string) (*sql.DB, error) {
	return OpenSQLiteWithOptions(ctx, path, Options{})
}

// OpenSQLiteWithOptions is OpenSQLite with explicit tuning.
func OpenSQLiteWithOptions(ctx context.Context, path string, opts Options) (*sql.DB, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create sqlite directory: %w", err)
	}
	if !opts.SkipFSCheck {
		if err := validateSQLiteFilesystem(path); err != nil {
			return nil, err
		}
	}
	if opts.BusyTimeout <= 0 {
		opts.BusyTimeout = 5 * time.Second
	}

	db, err := sql.Open("sqlite", dsn(path, opts))
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	if err := BootstrapSQLite(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// dsn applies pragmas per connection so every pooled connection shares the
// same busy timeout and journal mode.
func dsn(path string, opts Options) string {
	q := url.Values{}
	q.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", opts.BusyTimeout.Milliseconds()))
	q.Add("_pragma", "journal_mode(wal)")
	q.Add("_pragma", "foreign_keys(1)")
	q.Set("_txlock", "immediate")
	return "file:" + path + "?" + q.Encode()
}

// BootstrapSQLite creates tables/indexes if missing.
func BootstrapSQLite(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS work_item (
  id         TEXT PRIMARY KEY,
  transport  TEXT NOT NULL,
  payload    BLOB NOT NULL,
  created_at TEXT NOT NULL,
  claimed_at TEXT,
  attempts   INTEGER NOT NULL DEFAULT 0
);`,
		`CREATE TABLE IF NOT EXISTS dead_letter (
  id         TEXT PRIMARY KEY,
  item_id    TEXT NOT NULL,
  transport  TEXT NOT NULL,
  payload    BLOB NOT NULL,
  attempts   INTEGER NOT NULL,
  last_error TEXT,
  created_at TEXT NOT NULL,
  failed_at  TEXT NOT NULL
);`,
		`CREATE TABLE IF NOT EXISTS trigger_state (
  name     TEXT PRIMARY KEY,
  last_run TEXT
);`,
		`CREATE INDEX IF NOT EXISTS work_item_unclaimed_idx ON work_item(claimed_at, id);`,
		`CREATE INDEX IF NOT EXISTS work_item_transport_idx ON work_item(transport);`,
		`CREATE INDEX IF NOT EXISTS dead_letter_transport_idx ON dead_letter(transport, failed_at);`,
	}

	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("bootstrap sqlite: %w", err)
		}
	}
	return nil
}
