package store

import (
	"context"
	"database/sql"
	"fmt"
)

// Event is one row in the append-only pipeline event log.
type Event struct {
	ID        int64
	SpecID    string
	RunID     string
	Stage     string
	Event     string
	Detail    string
	CreatedAt string
}

// LogEvent appends a pipeline event. Event logging is best-effort telemetry;
// callers usually ignore the error.
func (s *Store) LogEvent(ctx context.Context, specID, runID, stg, event, detail string) error {
	if err := s.exec(ctx,
		`INSERT INTO pipeline_events (spec_id, run_id, stage, event, detail) VALUES (?, ?, ?, ?, ?)`,
		specID, runID, stg, event, detail,
	); err != nil {
		return fmt.Errorf("log event: %w", err)
	}
	return nil
}

// Events returns the newest events for a spec, most recent first.
func (s *Store) Events(ctx context.Context, specID string, limit int) ([]Event, error) {
	release, err := s.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	if limit <= 0 {
		limit = 50
	}
	rows, err := s.conn.QueryContext(ctx,
		`SELECT id, spec_id, run_id, stage, event, detail, created_at
		 FROM pipeline_events WHERE spec_id = ? ORDER BY id DESC LIMIT ?`,
		specID, limit)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var e Event
		var detail sql.NullString
		if err := rows.Scan(&e.ID, &e.SpecID, &e.RunID, &e.Stage, &e.Event, &detail, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.Detail = detail.String
		out = append(out, e)
	}
	return out, rows.Err()
}
