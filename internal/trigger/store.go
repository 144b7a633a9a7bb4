package trigger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mattjoyce/spool/internal/storage"
)

// Store persists the last run time of each trigger in trigger_state.
type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// LastRun returns the stored last run, or nil if the trigger never fired.
func (s *Store) LastRun(ctx context.Context, name string) (*time.Time, error) {
	if _, err := s.db.ExecContext(ctx, `INSERT OR IGNORE INTO trigger_state(name, last_run) VALUES(?, NULL);`, name); err != nil {
		return nil, fmt.Errorf("ensure trigger state %q: %w", name, err)
	}

	var last sql.NullString
	err := s.db.QueryRowContext(ctx, `SELECT last_run FROM trigger_state WHERE name = ?;`, name).Scan(&last)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && !last.Valid) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read trigger state %q: %w", name, err)
	}
	t, err := storage.ParseTime(last.String)
	if err != nil {
		return nil, fmt.Errorf("parse last_run for %q: %w", name, err)
	}
	return &t, nil
}

// CompareAndSwap sets last_run to next only if it still equals prev (nil
// meaning never run). It reports whether this caller won.
func (s *Store) CompareAndSwap(ctx context.Context, name string, prev *time.Time, next time.Time) (bool, error) {
	var prevArg any
	if prev != nil {
		prevArg = storage.FormatTime(*prev)
	}
	res, err := s.db.ExecContext(ctx, `
UPDATE trigger_state
SET last_run = ?
WHERE name = ? AND last_run IS ?;
`, storage.FormatTime(next), name, prevArg)
	if err != nil {
		return false, fmt.Errorf("update trigger state %q: %w", name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update trigger state %q: %w", name, err)
	}
	return n == 1, nil
}
