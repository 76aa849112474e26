// Package analytics summarizes stored pipeline activity: per-stage agent
// latency and token usage, checkpoint progress, and dedup hit rates. All
// numbers come from the durable store, so they survive process restarts.
package analytics

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"

	"github.com/rmclaren/quorumpipe/internal/agent"
	"github.com/rmclaren/quorumpipe/internal/stage"
	"github.com/rmclaren/quorumpipe/internal/store"
)

// StageStats holds latency and usage stats for one stage.
type StageStats struct {
	Stage        string  `json:"stage"`
	Outputs      int     `json:"outputs"`
	Failures     int     `json:"failures"`
	InputTokens  int     `json:"input_tokens"`
	OutputTokens int     `json:"output_tokens"`
	AvgSeconds   float64 `json:"avg_seconds"`
	P50Seconds   float64 `json:"p50_seconds"`
	P95Seconds   float64 `json:"p95_seconds"`
}

// Summary is the full stored-activity report for one spec.
type Summary struct {
	SpecID         string       `json:"spec_id"`
	Stages         []StageStats `json:"stages"`
	Checkpoints    []string     `json:"checkpoints"`
	DedupeHits     int          `json:"dedupe_hits"`
	TotalArtifacts int64        `json:"total_artifacts"`
}

// Summarize builds the report from the latest stored outputs per stage.
func Summarize(ctx context.Context, st *store.Store, specID string) (*Summary, error) {
	summary := &Summary{SpecID: specID}

	for _, s := range stage.All() {
		rows, err := st.LatestOutputs(ctx, specID, s.Key(), "")
		if err != nil {
			return nil, fmt.Errorf("load %s outputs: %w", s.Key(), err)
		}
		if len(rows) == 0 {
			continue
		}

		stats := StageStats{Stage: s.Key()}
		var seconds []float64
		for _, row := range rows {
			var out agent.Output
			if err := json.Unmarshal([]byte(row.Content), &out); err != nil {
				continue
			}
			stats.Outputs++
			stats.InputTokens += out.InputTokens
			stats.OutputTokens += out.OutputTokens
			if !out.Succeeded() {
				stats.Failures++
			}
			if out.Duration > 0 {
				seconds = append(seconds, out.Duration.Seconds())
			}
		}
		sort.Float64s(seconds)
		stats.AvgSeconds = avg(seconds)
		stats.P50Seconds = percentile(seconds, 50)
		stats.P95Seconds = percentile(seconds, 95)
		summary.Stages = append(summary.Stages, stats)
	}

	cps, err := st.CompletedCheckpoints(ctx, specID)
	if err != nil {
		return nil, err
	}
	summary.Checkpoints = cps

	attempts, err := st.Attempts(ctx, specID)
	if err != nil {
		return nil, err
	}
	for _, a := range attempts {
		summary.DedupeHits += a.DedupeCount
	}

	total, err := st.CountArtifacts(ctx, specID)
	if err != nil {
		return nil, err
	}
	summary.TotalArtifacts = total
	return summary, nil
}

func avg(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return math.Round(sum/float64(len(values))*10) / 10
}

func percentile(sorted []float64, p int) float64 {
	if len(sorted) == 0 {
		return 0
	}
	rank := float64(p) / 100.0 * float64(len(sorted)-1)
	lower := int(math.Floor(rank))
	upper := int(math.Ceil(rank))
	if lower == upper || upper >= len(sorted) {
		return math.Round(sorted[lower]*10) / 10
	}
	weight := rank - float64(lower)
	return math.Round((sorted[lower]*(1-weight)+sorted[upper]*weight)*10) / 10
}
