package store

import (
	"context"
	"fmt"
)

// CompleteCheckpoint records a checkpoint in the completed set. The set is
// append-only and memoized: recording the same checkpoint twice is a no-op,
// so a checkpoint enters the set at most once.
func (s *Store) CompleteCheckpoint(ctx context.Context, specID, checkpoint, runID string) error {
	if err := s.exec(ctx,
		`INSERT OR IGNORE INTO completed_checkpoints (spec_id, checkpoint, run_id) VALUES (?, ?, ?)`,
		specID, checkpoint, runID,
	); err != nil {
		return fmt.Errorf("complete checkpoint: %w", err)
	}
	return nil
}

// CheckpointDone reports whether the checkpoint is in the completed set.
// Consulted before every quality-gate dispatch; this is the sole gate for
// skip-on-resume.
func (s *Store) CheckpointDone(ctx context.Context, specID, checkpoint string) (bool, error) {
	release, err := s.acquire(ctx)
	if err != nil {
		return false, err
	}
	defer release()

	var n int
	err = s.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM completed_checkpoints WHERE spec_id = ? AND checkpoint = ?`,
		specID, checkpoint,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("query checkpoint: %w", err)
	}
	return n > 0, nil
}

// CompletedCheckpoints returns the completed checkpoint names for a spec.
func (s *Store) CompletedCheckpoints(ctx context.Context, specID string) ([]string, error) {
	release, err := s.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	rows, err := s.conn.QueryContext(ctx,
		`SELECT checkpoint FROM completed_checkpoints WHERE spec_id = ? ORDER BY completed_at, checkpoint`,
		specID,
	)
	if err != nil {
		return nil, fmt.Errorf("query completed checkpoints: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan checkpoint: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}
