package dedupe

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/corvidlabs/missionbridge/internal/shared"
)

// SQLiteStore persists seen eventIds so the dedup window survives a
// process restart. It is consulted only when the in-memory Ring
// reports a miss, and every remembered id is written through to both.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (creating if necessary) a SQLite-backed dedup
// store at dbPath, with WAL/busy-timeout settings in the DSN and a single
// open connection.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS seen_events (
		event_id TEXT PRIMARY KEY,
		seen_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_seen_at ON seen_events(seen_at);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Seen reports whether eventID has been recorded.
func (s *SQLiteStore) Seen(ctx context.Context, eventID string) (bool, error) {
	var discard string
	err := s.db.QueryRowContext(ctx, `SELECT event_id FROM seen_events WHERE event_id = ?`, eventID).Scan(&discard)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query seen_events: %w", err)
	}
	return true, nil
}

// Remember records eventID, retrying up to three times with exponential
// backoff on SQLite busy/locked errors.
func (s *SQLiteStore) Remember(ctx context.Context, eventID string) error {
	const maxRetries = 3
	baseDelay := 100 * time.Millisecond

	var lastErr error
	for i := 0; i < maxRetries; i++ {
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO seen_events (event_id, seen_at) VALUES (?, ?) ON CONFLICT(event_id) DO NOTHING`,
			eventID, time.Now().Unix())
		if err == nil {
			return nil
		}
		lastErr = err
		if !shared.IsSQLiteConflictError(err) {
			return fmt.Errorf("insert seen_events: %w", err)
		}
		if i < maxRetries-1 {
			delay := baseDelay * time.Duration(1<<i)
			slog.Debug("dedupe: sqlite busy, retrying", "attempt", i+1, "delay", delay)
			time.Sleep(delay)
		}
	}
	return fmt.Errorf("insert seen_events after %d attempts: %w", maxRetries, lastErr)
}

// Prune deletes entries older than ttl, bounding the table's growth.
func (s *SQLiteStore) Prune(ctx context.Context, ttl time.Duration) (int64, error) {
	threshold := time.Now().Add(-ttl).Unix()
	result, err := s.db.ExecContext(ctx, `DELETE FROM seen_events WHERE seen_at < ?`, threshold)
	if err != nil {
		return 0, fmt.Errorf("prune seen_events: %w", err)
	}
	return result.RowsAffected()
}

// Close closes the underlying database handle.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}
