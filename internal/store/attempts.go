package store

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"fmt"
	"strings"

	"github.com/rmclaren/quorumpipe/internal/retry"
)

// AttemptOutcome says whether a validate payload is new work or a repeat.
type AttemptOutcome string

const (
	// Fresh means the hash has not been seen; a dispatch may proceed.
	Fresh AttemptOutcome = "fresh"
	// Duplicate means an identical payload was already submitted; no new
	// dispatch happens.
	Duplicate AttemptOutcome = "duplicate"
)

// Attempt is the dedup record for one payload hash.
type Attempt struct {
	PayloadHash string
	SpecID      string
	Stage       string
	RunID       string
	Attempt     int
	DedupeCount int
	Outcome     AttemptOutcome
}

// PayloadHash computes the deterministic dedup hash over
// (mode, stage, spec id, trimmed payload).
func PayloadHash(mode, stg, specID, payload string) string {
	h := sha256.New()
	h.Write([]byte(mode))
	h.Write([]byte("|"))
	h.Write([]byte(stg))
	h.Write([]byte("|"))
	h.Write([]byte(specID))
	h.Write([]byte("|"))
	h.Write([]byte(strings.TrimSpace(payload)))
	return fmt.Sprintf("%x", h.Sum(nil))
}

// BeginAttempt consults the dedup table before a validate-style dispatch.
// A new hash inserts an attempt row and returns Fresh; a known hash bumps
// the dedupe counter and returns Duplicate so the caller skips dispatch.
// The read and the write run in one transaction, retried on lock contention
// like every other store write.
func (s *Store) BeginAttempt(ctx context.Context, hash, specID, stg, runID string) (*Attempt, error) {
	release, err := s.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	var out *Attempt
	err = retry.Do(ctx, s.writePolicy, func(ctx context.Context) error {
		a, err := s.beginAttemptTx(ctx, hash, specID, stg, runID)
		if err != nil {
			if contention(err) {
				return err
			}
			return retry.Permanent(err)
		}
		out = a
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) beginAttemptTx(ctx context.Context, hash, specID, stg, runID string) (*Attempt, error) {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin attempt: %w", err)
	}
	defer tx.Rollback()

	var a Attempt
	row := tx.QueryRowContext(ctx,
		`SELECT payload_hash, spec_id, stage, run_id, attempt, dedupe_count
		 FROM validate_attempts WHERE payload_hash = ?`, hash)
	err = row.Scan(&a.PayloadHash, &a.SpecID, &a.Stage, &a.RunID, &a.Attempt, &a.DedupeCount)
	switch {
	case err == sql.ErrNoRows:
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO validate_attempts (payload_hash, spec_id, stage, run_id, attempt) VALUES (?, ?, ?, ?, 1)`,
			hash, specID, stg, runID,
		); err != nil {
			return nil, fmt.Errorf("insert attempt: %w", err)
		}
		a = Attempt{
			PayloadHash: hash,
			SpecID:      specID,
			Stage:       stg,
			RunID:       runID,
			Attempt:     1,
			Outcome:     Fresh,
		}
	case err != nil:
		return nil, fmt.Errorf("query attempt: %w", err)
	default:
		if _, err := tx.ExecContext(ctx,
			`UPDATE validate_attempts SET dedupe_count = dedupe_count + 1, last_seen = datetime('now')
			 WHERE payload_hash = ?`, hash,
		); err != nil {
			return nil, fmt.Errorf("bump dedupe count: %w", err)
		}
		a.DedupeCount++
		a.Outcome = Duplicate
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit attempt: %w", err)
	}
	return &a, nil
}

// Attempts lists the dedup records for a spec, newest first.
func (s *Store) Attempts(ctx context.Context, specID string) ([]Attempt, error) {
	release, err := s.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	rows, err := s.conn.QueryContext(ctx,
		`SELECT payload_hash, spec_id, stage, run_id, attempt, dedupe_count
		 FROM validate_attempts WHERE spec_id = ? ORDER BY last_seen DESC`, specID)
	if err != nil {
		return nil, fmt.Errorf("query attempts: %w", err)
	}
	defer rows.Close()

	var out []Attempt
	for rows.Next() {
		var a Attempt
		if err := rows.Scan(&a.PayloadHash, &a.SpecID, &a.Stage, &a.RunID, &a.Attempt, &a.DedupeCount); err != nil {
			return nil, fmt.Errorf("scan attempt: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
