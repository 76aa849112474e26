// Package store is the durable layer behind resumability and deduplication:
// an append-only SQLite row store for agent outputs, synthesis results,
// completed checkpoints, validate attempts, and the pipeline event log.
// Writes never overwrite; reads return the most recent matching row.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	sqlite3 "github.com/mattn/go-sqlite3"

	"github.com/rmclaren/quorumpipe/internal/retry"
)

// DefaultPoolSize bounds concurrent store handles. Callers block (with
// timeout) when the pool is exhausted rather than opening more connections.
const DefaultPoolSize = 4

// DefaultAcquireTimeout is how long a caller waits for a pool slot.
const DefaultAcquireTimeout = 5 * time.Second

// Store wraps the SQLite database with a bounded handle pool and
// retry-on-contention writes.
type Store struct {
	conn           *sql.DB
	path           string
	slots          chan struct{}
	acquireTimeout time.Duration
	writePolicy    retry.Policy
}

// Options tunes pool size and contention retry. Zero values take defaults.
type Options struct {
	PoolSize       int
	AcquireTimeout time.Duration
	WritePolicy    retry.Policy
}

// DefaultPath returns ~/.quorumpipe/pipeline.db, creating the directory.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home directory: %w", err)
	}
	dir := filepath.Join(home, ".quorumpipe")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create directory %s: %w", dir, err)
	}
	return filepath.Join(dir, "pipeline.db"), nil
}

// Open opens or creates the database at path and applies the schema.
func Open(path string, opts Options) (*Store, error) {
	if opts.PoolSize <= 0 {
		opts.PoolSize = DefaultPoolSize
	}
	if opts.AcquireTimeout <= 0 {
		opts.AcquireTimeout = DefaultAcquireTimeout
	}
	if opts.WritePolicy.MaxAttempts == 0 {
		opts.WritePolicy = retry.Contention()
	}

	conn, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	conn.SetMaxOpenConns(opts.PoolSize)
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("set journal mode: %w", err)
	}
	if _, err := conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	s := &Store{
		conn:           conn,
		path:           path,
		slots:          make(chan struct{}, opts.PoolSize),
		acquireTimeout: opts.AcquireTimeout,
		writePolicy:    opts.WritePolicy,
	}
	for i := 0; i < opts.PoolSize; i++ {
		s.slots <- struct{}{}
	}

	if err := s.migrate(); err != nil {
		conn.Close()
		return nil, err
	}
	return s, nil
}

// OpenDefault opens the store at the default path with default options.
func OpenDefault() (*Store, error) {
	path, err := DefaultPath()
	if err != nil {
		return nil, err
	}
	return Open(path, Options{})
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.conn.Close()
}

// Path returns the database file path.
func (s *Store) Path() string { return s.path }

const schemaV1 = `
CREATE TABLE IF NOT EXISTS schema_version (
    version    INTEGER PRIMARY KEY,
    applied_at TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS agent_artifacts (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    spec_id    TEXT NOT NULL,
    stage      TEXT NOT NULL,
    run_id     TEXT NOT NULL DEFAULT '',
    agent      TEXT NOT NULL,
    kind       TEXT NOT NULL CHECK(kind IN ('output','synthesis','verdict','gate')),
    content    TEXT NOT NULL,
    created_at TEXT NOT NULL DEFAULT (datetime('now'))
);
CREATE INDEX IF NOT EXISTS idx_artifacts_lookup
    ON agent_artifacts(spec_id, stage, kind, agent, id DESC);
CREATE INDEX IF NOT EXISTS idx_artifacts_run
    ON agent_artifacts(spec_id, stage, run_id);

CREATE TABLE IF NOT EXISTS completed_checkpoints (
    spec_id      TEXT NOT NULL,
    checkpoint   TEXT NOT NULL,
    run_id       TEXT NOT NULL DEFAULT '',
    completed_at TEXT NOT NULL DEFAULT (datetime('now')),
    UNIQUE(spec_id, checkpoint)
);

CREATE TABLE IF NOT EXISTS validate_attempts (
    payload_hash TEXT PRIMARY KEY,
    spec_id      TEXT NOT NULL,
    stage        TEXT NOT NULL,
    run_id       TEXT NOT NULL DEFAULT '',
    attempt      INTEGER NOT NULL DEFAULT 1,
    dedupe_count INTEGER NOT NULL DEFAULT 0,
    first_seen   TEXT NOT NULL DEFAULT (datetime('now')),
    last_seen    TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS pipeline_events (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    spec_id    TEXT NOT NULL,
    run_id     TEXT NOT NULL DEFAULT '',
    stage      TEXT NOT NULL,
    event      TEXT NOT NULL,
    detail     TEXT,
    created_at TEXT NOT NULL DEFAULT (datetime('now'))
);
CREATE INDEX IF NOT EXISTS idx_events_spec ON pipeline_events(spec_id, id DESC);
`

func (s *Store) migrate() error {
	if _, err := s.conn.Exec(schemaV1); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	if _, err := s.conn.Exec(
		`INSERT OR IGNORE INTO schema_version (version) VALUES (1)`,
	); err != nil {
		return fmt.Errorf("record schema version: %w", err)
	}
	return nil
}

// acquire takes a pool slot, blocking up to the acquire timeout.
func (s *Store) acquire(ctx context.Context) (release func(), err error) {
	timer := time.NewTimer(s.acquireTimeout)
	defer timer.Stop()
	select {
	case <-s.slots:
		return func() { s.slots <- struct{}{} }, nil
	case <-timer.C:
		return nil, fmt.Errorf("store pool exhausted after %s", s.acquireTimeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// contention reports whether err is a locked/busy error worth retrying.
func contention(err error) bool {
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.Code == sqlite3.ErrBusy || se.Code == sqlite3.ErrLocked
	}
	return false
}

// exec runs a write statement under a pool slot, retrying on contention with
// short exponential backoff before surfacing failure.
func (s *Store) exec(ctx context.Context, query string, args ...any) error {
	release, err := s.acquire(ctx)
	if err != nil {
		return err
	}
	defer release()

	_, err = s.execLocked(ctx, query, args...)
	return err
}

// execLocked is the contention-retry write path for callers that already
// hold a pool slot.
func (s *Store) execLocked(ctx context.Context, query string, args ...any) (sql.Result, error) {
	var res sql.Result
	err := retry.Do(ctx, s.writePolicy, func(ctx context.Context) error {
		r, err := s.conn.ExecContext(ctx, query, args...)
		if err != nil {
			if contention(err) {
				return err
			}
			return retry.Permanent(err)
		}
		res = r
		return nil
	})
	return res, err
}
