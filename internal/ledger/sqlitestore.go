package ledger

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/nudge-project/nudge/pkg/errclass"
	"github.com/nudge-project/nudge/pkg/model"
)

const timeFormat = time.RFC3339Nano

const schema = `CREATE TABLE IF NOT EXISTS ledger (
	timeline       TEXT PRIMARY KEY,
	quit_count     INTEGER NOT NULL DEFAULT 0 CHECK (quit_count >= 0),
	deferred_until TEXT NOT NULL DEFAULT '',
	updated_at     TEXT NOT NULL DEFAULT ''
)`

// SQLiteStore keeps one row per timeline. Each increment is a single
// UPSERT statement, so SQLite's write lock provides the single-writer
// discipline and busy_timeout makes concurrent writers wait their turn.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the ledger database at path.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("ledger path is required")
	}
	cleanPath := filepath.Clean(path)
	if err := os.MkdirAll(filepath.Dir(cleanPath), 0755); err != nil {
		return nil, fmt.Errorf("create ledger dir: %w", err)
	}

	dsn := cleanPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(FULL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create ledger table: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Load(timeline string) (model.LedgerRecord, error) {
	row := s.db.QueryRow(
		`SELECT quit_count, deferred_until, updated_at FROM ledger WHERE timeline = ?`, timeline)
	rec, err := scanRecord(timeline, row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.LedgerRecord{Timeline: timeline}, nil
	}
	return rec, err
}

// Increment is one UPSERT. When the limit is reached the DO UPDATE WHERE
// clause matches nothing and RETURNING yields no row.
func (s *SQLiteStore) Increment(timeline string, until, now time.Time, limit int) (model.LedgerRecord, error) {
	row := s.db.QueryRow(`
		INSERT INTO ledger (timeline, quit_count, deferred_until, updated_at)
		VALUES (?1, 1, ?2, ?3)
		ON CONFLICT (timeline) DO UPDATE SET
			quit_count = ledger.quit_count + 1,
			deferred_until = excluded.deferred_until,
			updated_at = excluded.updated_at
		WHERE ?4 <= 0 OR ledger.quit_count < ?4
		RETURNING quit_count, deferred_until, updated_at`,
		timeline, formatTime(until), formatTime(now), limit)
	rec, err := scanRecord(timeline, row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.LedgerRecord{}, ErrLimitReached
	}
	if err != nil {
		return model.LedgerRecord{}, fmt.Errorf("increment ledger: %w", err)
	}
	return rec, nil
}

func (s *SQLiteStore) Reset(timeline string, now time.Time) error {
	_, err := s.db.Exec(`
		INSERT INTO ledger (timeline, quit_count, deferred_until, updated_at)
		VALUES (?, 0, '', ?)
		ON CONFLICT (timeline) DO UPDATE SET
			quit_count = 0, deferred_until = '', updated_at = excluded.updated_at`,
		timeline, formatTime(now))
	if err != nil {
		return fmt.Errorf("reset ledger: %w", err)
	}
	return nil
}

// Close closes the underlying SQLite database.
func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func scanRecord(timeline string, row *sql.Row) (model.LedgerRecord, error) {
	var (
		count          int
		until, updated string
	)
	if err := row.Scan(&count, &until, &updated); err != nil {
		return model.LedgerRecord{}, err
	}
	rec := model.LedgerRecord{Timeline: timeline, QuitCount: count}
	var err error
	if rec.DeferredUntil, err = parseTime(until); err != nil {
		return model.LedgerRecord{}, err
	}
	if rec.UpdatedAt, err = parseTime(updated); err != nil {
		return model.LedgerRecord{}, err
	}
	return rec, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeFormat)
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(timeFormat, s)
	if err != nil {
		return time.Time{}, errclass.ErrLedgerCorrupt.WithMessagef("ledger time %q: %v", s, err)
	}
	return t, nil
}

var _ Store = (*SQLiteStore)(nil)
