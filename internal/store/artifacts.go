package store

import (
	"context"
	"database/sql"
	"fmt"
)

// ArtifactKind distinguishes row types in the append-only artifact table.
type ArtifactKind string

const (
	// KindOutput is a raw agent output for a stage.
	KindOutput ArtifactKind = "output"
	// KindSynthesis is the judge's synthesized result for a stage.
	KindSynthesis ArtifactKind = "synthesis"
	// KindVerdict is a recorded consensus verdict.
	KindVerdict ArtifactKind = "verdict"
	// KindGate is a quality-gate resolution record.
	KindGate ArtifactKind = "gate"
)

// Artifact is one durable row keyed by (spec, stage, run[, agent]).
type Artifact struct {
	ID        int64
	SpecID    string
	Stage     string
	RunID     string
	Agent     string
	Kind      ArtifactKind
	Content   string
	CreatedAt string
}

// PutArtifact appends one row. Writes never overwrite; the newest row wins
// on read. The single INSERT keeps cancellation all-or-nothing.
func (s *Store) PutArtifact(ctx context.Context, a Artifact) error {
	if a.SpecID == "" || a.Stage == "" || a.Kind == "" {
		return fmt.Errorf("artifact missing key fields (spec=%q stage=%q kind=%q)", a.SpecID, a.Stage, a.Kind)
	}
	if err := s.exec(ctx,
		`INSERT INTO agent_artifacts (spec_id, stage, run_id, agent, kind, content) VALUES (?, ?, ?, ?, ?, ?)`,
		a.SpecID, a.Stage, a.RunID, a.Agent, string(a.Kind), a.Content,
	); err != nil {
		return fmt.Errorf("put artifact: %w", err)
	}
	return nil
}

// LatestOutputs returns, for each agent with rows under (spec, stage), the
// most recent output row. When runID is non-empty, only rows from that run
// are considered, isolating the current branch from abandoned runs.
func (s *Store) LatestOutputs(ctx context.Context, specID, stg, runID string) ([]Artifact, error) {
	release, err := s.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	query := `
		SELECT a.id, a.spec_id, a.stage, a.run_id, a.agent, a.kind, a.content, a.created_at
		FROM agent_artifacts a
		JOIN (
			SELECT agent, MAX(id) AS max_id
			FROM agent_artifacts
			WHERE spec_id = ? AND stage = ? AND kind = 'output'
			  AND (? = '' OR run_id = ?)
			GROUP BY agent
		) latest ON a.id = latest.max_id
		ORDER BY a.agent`
	rows, err := s.conn.QueryContext(ctx, query, specID, stg, runID, runID)
	if err != nil {
		return nil, fmt.Errorf("query latest outputs: %w", err)
	}
	defer rows.Close()
	return scanArtifacts(rows)
}

// LatestArtifact returns the most recent row of the given kind for
// (spec, stage), or nil if none exists.
func (s *Store) LatestArtifact(ctx context.Context, specID, stg string, kind ArtifactKind) (*Artifact, error) {
	release, err := s.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	row := s.conn.QueryRowContext(ctx,
		`SELECT id, spec_id, stage, run_id, agent, kind, content, created_at
		 FROM agent_artifacts
		 WHERE spec_id = ? AND stage = ? AND kind = ?
		 ORDER BY id DESC LIMIT 1`,
		specID, stg, string(kind),
	)
	var a Artifact
	var kindStr string
	err = row.Scan(&a.ID, &a.SpecID, &a.Stage, &a.RunID, &a.Agent, &kindStr, &a.Content, &a.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query latest %s: %w", kind, err)
	}
	a.Kind = ArtifactKind(kindStr)
	return &a, nil
}

// CountArtifacts returns the number of rows stored for a spec.
func (s *Store) CountArtifacts(ctx context.Context, specID string) (int64, error) {
	release, err := s.acquire(ctx)
	if err != nil {
		return 0, err
	}
	defer release()

	var n int64
	err = s.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM agent_artifacts WHERE spec_id = ?`, specID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count artifacts: %w", err)
	}
	return n, nil
}

// ListSpecs returns the distinct spec ids with stored artifacts.
func (s *Store) ListSpecs(ctx context.Context) ([]string, error) {
	release, err := s.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	rows, err := s.conn.QueryContext(ctx,
		`SELECT DISTINCT spec_id FROM agent_artifacts ORDER BY spec_id`)
	if err != nil {
		return nil, fmt.Errorf("list specs: %w", err)
	}
	defer rows.Close()

	var specs []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan spec id: %w", err)
		}
		specs = append(specs, id)
	}
	return specs, rows.Err()
}

// ClearSpec removes every row for a spec: artifacts, checkpoints, attempts,
// and events. Persisted state is otherwise retained indefinitely; this is
// the explicit external clear operation.
func (s *Store) ClearSpec(ctx context.Context, specID string) (int64, error) {
	release, err := s.acquire(ctx)
	if err != nil {
		return 0, err
	}
	defer release()

	res, err := s.execLocked(ctx,
		`DELETE FROM agent_artifacts WHERE spec_id = ?`, specID)
	if err != nil {
		return 0, fmt.Errorf("clear artifacts: %w", err)
	}
	removed, _ := res.RowsAffected()

	for _, q := range []string{
		`DELETE FROM completed_checkpoints WHERE spec_id = ?`,
		`DELETE FROM validate_attempts WHERE spec_id = ?`,
		`DELETE FROM pipeline_events WHERE spec_id = ?`,
	} {
		if _, err := s.execLocked(ctx, q, specID); err != nil {
			return removed, fmt.Errorf("clear spec rows: %w", err)
		}
	}
	return removed, nil
}

func scanArtifacts(rows *sql.Rows) ([]Artifact, error) {
	var out []Artifact
	for rows.Next() {
		var a Artifact
		var kindStr string
		if err := rows.Scan(&a.ID, &a.SpecID, &a.Stage, &a.RunID, &a.Agent, &kindStr, &a.Content, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan artifact: %w", err)
		}
		a.Kind = ArtifactKind(kindStr)
		out = append(out, a)
	}
	return out, rows.Err()
}
