package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mattjoyce/spool/internal/storage"
)

// Store is the durable work item collection. Implementations must make Claim
// and ClaimNext safe across processes sharing the same backing store.
type Store interface {
	Insert(ctx context.Context, item WorkItem) error
	// ClaimNext claims the oldest unclaimed item whose transport is not in
	// ignored. It returns (nil, nil) when nothing is claimable.
	ClaimNext(ctx context.Context, ignored []string, now time.Time) (*WorkItem, error)
	// Claim claims one item by id. It returns false if the item is missing
	// or already claimed.
	Claim(ctx context.Context, id string, now time.Time) (bool, error)
	Delete(ctx context.Context, id string) error
	// Release clears the claim without touching the payload.
	Release(ctx context.Context, id string) error
	// ReleaseStale clears claims taken before cutoff.
	ReleaseStale(ctx context.Context, cutoff time.Time) (int, error)
	// MoveToDeadLetter atomically inserts dl and deletes the work item.
	MoveToDeadLetter(ctx context.Context, dl DeadLetter) error
	Get(ctx context.Context, id string) (*WorkItem, error)
	Stats(ctx context.Context) (Stats, error)
	DeadLetters(ctx context.Context, limit int) ([]DeadLetter, error)
	// RequeueDeadLetter atomically deletes dead letter id and inserts its
	// payload as a fresh unclaimed item with itemID.
	RequeueDeadLetter(ctx context.Context, id, itemID string, now time.Time) (*WorkItem, error)
}

// SQLiteStore implements Store on the work_item and dead_letter tables.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

func (s *SQLiteStore) Insert(ctx context.Context, item WorkItem) error {
	if item.ID == "" {
		return fmt.Errorf("item id is empty")
	}
	if item.Transport == "" {
		return fmt.Errorf("transport is empty")
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO work_item(id, transport, payload, created_at, claimed_at, attempts)
VALUES(?, ?, ?, ?, NULL, 0);
`, item.ID, item.Transport, item.Payload, storage.FormatTime(item.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert work item: %w", err)
	}
	return nil
}

// ClaimNext selects and claims in one statement. SQLite serialises writers,
// so the conditional update cannot be won by two callers.
func (s *SQLiteStore) ClaimNext(ctx context.Context, ignored []string, now time.Time) (*WorkItem, error) {
	var (
		filter strings.Builder
		args   []any
	)
	if len(ignored) > 0 {
		filter.WriteString(" AND transport NOT IN (")
		for i, t := range ignored {
			if i > 0 {
				filter.WriteString(", ")
			}
			filter.WriteString("?")
			args = append(args, t)
		}
		filter.WriteString(")")
	}
	args = append(args, storage.FormatTime(now))

	row := s.db.QueryRowContext(ctx, `
WITH next AS (
  SELECT id
  FROM work_item
  WHERE claimed_at IS NULL`+filter.String()+`
  ORDER BY id ASC
  LIMIT 1
)
UPDATE work_item
SET claimed_at = ?, attempts = attempts + 1
WHERE id IN (SELECT id FROM next) AND claimed_at IS NULL
RETURNING id, transport, payload, created_at, claimed_at, attempts;
`, args...)

	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("claim next work item: %w", err)
	}
	return item, nil
}

func (s *SQLiteStore) Claim(ctx context.Context, id string, now time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
UPDATE work_item
SET claimed_at = ?, attempts = attempts + 1
WHERE id = ? AND claimed_at IS NULL;
`, storage.FormatTime(now), id)
	if err != nil {
		return false, fmt.Errorf("claim work item: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("claim work item: %w", err)
	}
	return n == 1, nil
}

func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM work_item WHERE id = ?;`, id); err != nil {
		return fmt.Errorf("delete work item: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Release(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE work_item SET claimed_at = NULL WHERE id = ?;`, id)
	if err != nil {
		return fmt.Errorf("release work item: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrItemNotFound
	}
	return nil
}

func (s *SQLiteStore) ReleaseStale(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `
UPDATE work_item
SET claimed_at = NULL
WHERE claimed_at IS NOT NULL AND claimed_at < ?;
`, storage.FormatTime(cutoff))
	if err != nil {
		return 0, fmt.Errorf("release stale claims: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("release stale claims: %w", err)
	}
	return int(n), nil
}

func (s *SQLiteStore) MoveToDeadLetter(ctx context.Context, dl DeadLetter) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
INSERT INTO dead_letter(id, item_id, transport, payload, attempts, last_error, created_at, failed_at)
VALUES(?, ?, ?, ?, ?, ?, ?, ?);
`, dl.ID, dl.ItemID, dl.Transport, dl.Payload, dl.Attempts, dl.LastError,
		storage.FormatTime(dl.CreatedAt), storage.FormatTime(dl.FailedAt)); err != nil {
		return fmt.Errorf("insert dead letter: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM work_item WHERE id = ?;`, dl.ItemID); err != nil {
		return fmt.Errorf("delete dead-lettered item: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit dead letter: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (*WorkItem, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT id, transport, payload, created_at, claimed_at, attempts
FROM work_item
WHERE id = ?;
`, id)
	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrItemNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get work item: %w", err)
	}
	return item, nil
}

func (s *SQLiteStore) Stats(ctx context.Context) (Stats, error) {
	st := Stats{ByTransport: map[string]int{}}

	rows, err := s.db.QueryContext(ctx, `
SELECT transport, COUNT(*), SUM(CASE WHEN claimed_at IS NULL THEN 0 ELSE 1 END), MIN(created_at)
FROM work_item
GROUP BY transport;
`)
	if err != nil {
		return st, fmt.Errorf("query stats: %w", err)
	}
	defer rows.Close()

	var oldest string
	for rows.Next() {
		var (
			transport string
			total     int
			claimed   int
			first     string
		)
		if err := rows.Scan(&transport, &total, &claimed, &first); err != nil {
			return st, fmt.Errorf("scan stats: %w", err)
		}
		st.ByTransport[transport] = total
		st.Total += total
		st.Claimed += claimed
		if oldest == "" || first < oldest {
			oldest = first
		}
	}
	if err := rows.Err(); err != nil {
		return st, fmt.Errorf("iterate stats: %w", err)
	}
	if oldest != "" {
		if t, err := storage.ParseTime(oldest); err == nil {
			st.Oldest = &t
		}
	}

	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM dead_letter;`).Scan(&st.DeadLetters); err != nil {
		return st, fmt.Errorf("count dead letters: %w", err)
	}
	return st, nil
}

func (s *SQLiteStore) DeadLetters(ctx context.Context, limit int) ([]DeadLetter, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT id, item_id, transport, payload, attempts, last_error, created_at, failed_at
FROM dead_letter
ORDER BY failed_at DESC
LIMIT ?;
`, limit)
	if err != nil {
		return nil, fmt.Errorf("list dead letters: %w", err)
	}
	defer rows.Close()

	var out []DeadLetter
	for rows.Next() {
		dl, err := scanDeadLetter(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *dl)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate dead letters: %w", err)
	}
	return out, nil
}

func (s *SQLiteStore) RequeueDeadLetter(ctx context.Context, id, itemID string, now time.Time) (*WorkItem, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	dl, err := scanDeadLetter(tx.QueryRowContext(ctx, `
DELETE FROM dead_letter
WHERE id = ?
RETURNING id, item_id, transport, payload, attempts, last_error, created_at, failed_at;
`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrItemNotFound
	}
	if err != nil {
		return nil, err
	}

	item := WorkItem{ID: itemID, Transport: dl.Transport, Payload: dl.Payload, CreatedAt: now}
	if _, err := tx.ExecContext(ctx, `
INSERT INTO work_item(id, transport, payload, created_at, claimed_at, attempts)
VALUES(?, ?, ?, ?, NULL, 0);
`, item.ID, item.Transport, item.Payload, storage.FormatTime(now)); err != nil {
		return nil, fmt.Errorf("requeue dead letter: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit requeue: %w", err)
	}
	return &item, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanItem(row scanner) (*WorkItem, error) {
	var (
		item       WorkItem
		createdAtS string
		claimedAtS sql.NullString
	)
	if err := row.Scan(&item.ID, &item.Transport, &item.Payload, &createdAtS, &claimedAtS, &item.Attempts); err != nil {
		return nil, err
	}
	if t, err := storage.ParseTime(createdAtS); err == nil {
		item.CreatedAt = t
	}
	if claimedAtS.Valid {
		if t, err := storage.ParseTime(claimedAtS.String); err == nil {
			item.ClaimedAt = &t
		}
	}
	return &item, nil
}

func scanDeadLetter(row scanner) (*DeadLetter, error) {
	var (
		dl         DeadLetter
		lastError  sql.NullString
		createdAtS string
		failedAtS  string
	)
	if err := row.Scan(&dl.ID, &dl.ItemID, &dl.Transport, &dl.Payload, &dl.Attempts, &lastError, &createdAtS, &failedAtS); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan dead letter: %w", err)
	}
	dl.LastError = lastError.String
	if t, err := storage.ParseTime(createdAtS); err == nil {
		dl.CreatedAt = t
	}
	if t, err := storage.ParseTime(failedAtS); err == nil {
		dl.FailedAt = t
	}
	return &dl, nil
}
