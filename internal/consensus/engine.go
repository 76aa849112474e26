// Package consensus turns a stage's unreliable, sometimes-conflicting agent
// outputs into a single verdict, recovering artifacts through a three-tier
// fallback chain when the orchestrator's outputs are gone.
package consensus

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/rmclaren/quorumpipe/internal/agent"
	"github.com/rmclaren/quorumpipe/internal/evidence"
	"github.com/rmclaren/quorumpipe/internal/store"
)

// ArchiveService is the tier-2 external lookup: a remote archive of agent
// outputs consulted when the primary store has nothing.
type ArchiveService interface {
	Fetch(ctx context.Context, specID, stg string) ([]agent.Output, error)
}

// Engine computes verdicts and owns artifact recovery.
type Engine struct {
	store    *store.Store
	archive  ArchiveService
	evidence *evidence.Repository
	judge    Judge
	progress io.Writer
}

// NewEngine creates an Engine. archive and judge may be nil: without an
// archive tier 2 is skipped; without a judge no conflicts are detected and
// no synthesis is stored.
func NewEngine(st *store.Store, archive ArchiveService, ev *evidence.Repository, judge Judge, progress io.Writer) *Engine {
	if progress == nil {
		progress = io.Discard
	}
	return &Engine{store: st, archive: archive, evidence: ev, judge: judge, progress: progress}
}

// Evaluate computes the verdict for a stage. When outputs is empty the
// engine first recovers artifacts through the fallback chain. The verdict
// and (when the pipeline may proceed) the judge's synthesis are persisted;
// a Degraded verdict also records its missing agents for later follow-up.
func (e *Engine) Evaluate(ctx context.Context, specID, stg, runID string, expected []string, outputs []agent.Output) (*Verdict, error) {
	if len(outputs) == 0 {
		recovered, err := e.Recover(ctx, specID, stg, runID)
		if err != nil {
			return nil, err
		}
		outputs = recovered
	}

	// Order-independence: everything downstream sees name-sorted outputs.
	sorted := append([]agent.Output(nil), outputs...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Agent < sorted[j].Agent })

	conflicts, err := e.detectConflicts(ctx, sorted)
	if err != nil {
		return nil, err
	}

	v := Compute(expected, sorted, conflicts)

	switch v.Status {
	case Degraded:
		fmt.Fprintf(e.progress, "[%s] %s: consensus degraded, missing agents: %s\n",
			specID, stg, strings.Join(v.Missing, ", "))
		detail, _ := json.Marshal(map[string]any{"missing": v.Missing})
		_ = e.store.LogEvent(ctx, specID, runID, stg, "degraded_follow_up", string(detail))
	case Conflicted:
		fmt.Fprintf(e.progress, "[%s] %s: consensus conflict (%d found)\n", specID, stg, len(v.Conflicts))
	case Unknown:
		fmt.Fprintf(e.progress, "[%s] %s: consensus unknown, %d/%d agents present\n",
			specID, stg, len(v.Present), len(expected))
	}

	if err := e.persistVerdict(ctx, specID, stg, runID, &v); err != nil {
		return nil, err
	}
	if v.Proceed() && e.judge != nil {
		if err := e.persistSynthesis(ctx, specID, stg, runID, sorted); err != nil {
			// Synthesis is an enrichment, not a gate; the verdict stands.
			fmt.Fprintf(e.progress, "[%s] %s: synthesis failed: %v\n", specID, stg, err)
		}
	}
	return &v, nil
}

// detectConflicts runs the judge over every pair of successful outputs.
// Pairwise comparison is O(n^2) but n is the stage roster size (<=5).
func (e *Engine) detectConflicts(ctx context.Context, outputs []agent.Output) ([]Conflict, error) {
	if e.judge == nil {
		return nil, nil
	}

	var present []agent.Output
	for _, o := range outputs {
		if o.Succeeded() {
			present = append(present, o)
		}
	}

	var conflicts []Conflict
	for i := 0; i < len(present); i++ {
		for j := i + 1; j < len(present); j++ {
			c, err := e.judge.CompareForConflict(ctx, present[i], present[j])
			if err != nil {
				return nil, fmt.Errorf("compare %s/%s: %w", present[i].Agent, present[j].Agent, err)
			}
			if c != nil {
				conflicts = append(conflicts, *c)
			}
		}
	}
	return conflicts, nil
}

// Recover walks the three-tier fallback chain: durable store, then the
// archive service, then raw evidence records. Each tier is tried only when
// the previous returned empty or errored, and a lower tier's hit is written
// back to the store so the next read stops at tier 1.
func (e *Engine) Recover(ctx context.Context, specID, stg, runID string) ([]agent.Output, error) {
	rows, err := e.store.LatestOutputs(ctx, specID, stg, runID)
	if err != nil {
		fmt.Fprintf(e.progress, "[%s] %s: store lookup failed, trying archive: %v\n", specID, stg, err)
	}
	if len(rows) == 0 && runID != "" {
		// A resumed run has a fresh run id; fall back to any-run rows.
		rows, err = e.store.LatestOutputs(ctx, specID, stg, "")
		if err != nil {
			fmt.Fprintf(e.progress, "[%s] %s: store lookup failed, trying archive: %v\n", specID, stg, err)
		}
	}
	if len(rows) > 0 {
		outputs := make([]agent.Output, 0, len(rows))
		for _, row := range rows {
			var out agent.Output
			if err := json.Unmarshal([]byte(row.Content), &out); err != nil {
				continue
			}
			outputs = append(outputs, out)
		}
		if len(outputs) > 0 {
			return outputs, nil
		}
	}

	if e.archive != nil {
		outputs, err := e.archive.Fetch(ctx, specID, stg)
		if err != nil {
			fmt.Fprintf(e.progress, "[%s] %s: archive lookup failed, trying evidence: %v\n", specID, stg, err)
		} else if len(outputs) > 0 {
			e.writeBack(ctx, specID, stg, runID, outputs)
			return outputs, nil
		}
	}

	if e.evidence != nil {
		records, err := e.evidence.Load(specID, stg)
		if err != nil {
			return nil, fmt.Errorf("evidence recovery: %w", err)
		}
		if len(records) > 0 {
			outputs := make([]agent.Output, 0, len(records))
			for _, rec := range records {
				outputs = append(outputs, agent.Output{
					Agent:   rec.Agent,
					Stage:   rec.Stage,
					Content: rec.Content,
					Status:  agent.StatusSuccess,
				})
			}
			e.writeBack(ctx, specID, stg, runID, outputs)
			return outputs, nil
		}
	}

	return nil, fmt.Errorf("no artifacts found for %s stage %s in store, archive, or evidence", specID, stg)
}

// writeBack repopulates tier 1 with outputs recovered from a lower tier.
func (e *Engine) writeBack(ctx context.Context, specID, stg, runID string, outputs []agent.Output) {
	for i := range outputs {
		payload, err := json.Marshal(&outputs[i])
		if err != nil {
			continue
		}
		if err := e.store.PutArtifact(ctx, store.Artifact{
			SpecID:  specID,
			Stage:   stg,
			RunID:   runID,
			Agent:   outputs[i].Agent,
			Kind:    store.KindOutput,
			Content: string(payload),
		}); err != nil {
			fmt.Fprintf(e.progress, "[%s] %s: write-back for %s failed: %v\n", specID, stg, outputs[i].Agent, err)
		}
	}
}

func (e *Engine) persistVerdict(ctx context.Context, specID, stg, runID string, v *Verdict) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal verdict: %w", err)
	}
	if err := e.store.PutArtifact(ctx, store.Artifact{
		SpecID:  specID,
		Stage:   stg,
		RunID:   runID,
		Agent:   "consensus",
		Kind:    store.KindVerdict,
		Content: string(payload),
	}); err != nil {
		return fmt.Errorf("persist verdict: %w", err)
	}
	return nil
}

func (e *Engine) persistSynthesis(ctx context.Context, specID, stg, runID string, outputs []agent.Output) error {
	var present []agent.Output
	for _, o := range outputs {
		if o.Succeeded() {
			present = append(present, o)
		}
	}
	syn, err := e.judge.Synthesize(ctx, present)
	if err != nil {
		return fmt.Errorf("synthesize: %w", err)
	}
	payload, err := json.Marshal(syn)
	if err != nil {
		return fmt.Errorf("marshal synthesis: %w", err)
	}
	if err := e.store.PutArtifact(ctx, store.Artifact{
		SpecID:  specID,
		Stage:   stg,
		RunID:   runID,
		Agent:   "judge",
		Kind:    store.KindSynthesis,
		Content: string(payload),
	}); err != nil {
		return fmt.Errorf("persist synthesis: %w", err)
	}
	return nil
}

// ResolveConflicts hands a conflicted stage to the judge for resolution.
// Callers invoke it only when every conflict is below critical severity; a
// critical conflict always waits for a human. On success the synthesis is
// persisted and the stage may proceed on the judge's merged content.
func (e *Engine) ResolveConflicts(ctx context.Context, specID, stg, runID string, outputs []agent.Output, conflicts []Conflict) error {
	if e.judge == nil {
		return fmt.Errorf("resolve conflicts: no judge configured")
	}
	if err := e.persistSynthesis(ctx, specID, stg, runID, outputs); err != nil {
		return fmt.Errorf("resolve conflicts: %w", err)
	}
	detail, _ := json.Marshal(map[string]any{"conflicts": len(conflicts)})
	if err := e.store.LogEvent(ctx, specID, runID, stg, "conflicts_auto_resolved", string(detail)); err != nil {
		fmt.Fprintf(e.progress, "[%s] %s: event log failed: %v\n", specID, stg, err)
	}
	fmt.Fprintf(e.progress, "[%s] %s: %d conflicts auto-resolved by judge\n", specID, stg, len(conflicts))
	return nil
}

// StageContext returns the text fed to the next stage's prompts: the
// synthesis when one exists, otherwise the concatenated latest outputs.
func (e *Engine) StageContext(ctx context.Context, specID, stg string) (string, error) {
	if row, err := e.store.LatestArtifact(ctx, specID, stg, store.KindSynthesis); err == nil && row != nil {
		var syn Synthesis
		if err := json.Unmarshal([]byte(row.Content), &syn); err == nil {
			if syn.Content != "" {
				return syn.Content, nil
			}
			if syn.Summary != "" {
				return syn.Summary, nil
			}
		}
	}

	rows, err := e.store.LatestOutputs(ctx, specID, stg, "")
	if err != nil {
		return "", fmt.Errorf("load stage context: %w", err)
	}
	var b strings.Builder
	for _, row := range rows {
		var out agent.Output
		if err := json.Unmarshal([]byte(row.Content), &out); err != nil {
			continue
		}
		fmt.Fprintf(&b, "### %s\n%s\n\n", out.Agent, out.Content)
	}
	return b.String(), nil
}
