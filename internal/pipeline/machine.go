package pipeline

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/rmclaren/quorumpipe/internal/agent"
	"github.com/rmclaren/quorumpipe/internal/consensus"
	"github.com/rmclaren/quorumpipe/internal/gate"
	"github.com/rmclaren/quorumpipe/internal/orchestrator"
	"github.com/rmclaren/quorumpipe/internal/stage"
	"github.com/rmclaren/quorumpipe/internal/store"
)

// Machine drives a spec through the six stages. Each iteration runs the
// stage's bound quality checkpoint (if any), the guardrail, the agent
// roster, and the consensus engine, then advances. Abort is honored at
// phase boundaries only; an in-flight agent call finishes or times out on
// its own context.
type Machine struct {
	store       *store.Store
	orch        *orchestrator.Orchestrator
	engine      *consensus.Engine
	gates       *gate.Machine
	guardrail   Guardrail
	roster      *agent.Registry
	tier        agent.Tier
	stages      map[stage.Stage]stage.Descriptor
	checkpoints map[stage.Checkpoint]bool
	progress    io.Writer
}

type MachineOptions struct {
	// Guardrail defaults to StoreGuardrail when nil.
	Guardrail Guardrail
	// Roster defaults to agent.DefaultRegistry when nil.
	Roster *agent.Registry
	Tier   agent.Tier
	// Stages defaults to stage.Defaults when empty.
	Stages []stage.Descriptor
	// Checkpoints limits which quality checkpoints run. Nil means all of
	// them; an explicit empty slice disables checkpoints entirely.
	Checkpoints []stage.Checkpoint
	Progress    io.Writer
}

func NewMachine(st *store.Store, orch *orchestrator.Orchestrator, engine *consensus.Engine, gates *gate.Machine, opts MachineOptions) *Machine {
	if opts.Guardrail == nil {
		opts.Guardrail = NewStoreGuardrail(st)
	}
	if opts.Roster == nil {
		opts.Roster = agent.DefaultRegistry()
	}
	if opts.Tier == "" {
		opts.Tier = agent.TierStandard
	}
	if len(opts.Stages) == 0 {
		opts.Stages = stage.Defaults()
	}
	if opts.Progress == nil {
		opts.Progress = io.Discard
	}
	stages := make(map[stage.Stage]stage.Descriptor, len(opts.Stages))
	for _, d := range opts.Stages {
		stages[d.Stage] = d
	}
	if opts.Checkpoints == nil {
		all := stage.Checkpoints()
		opts.Checkpoints = all[:]
	}
	checkpoints := make(map[stage.Checkpoint]bool, len(opts.Checkpoints))
	for _, cp := range opts.Checkpoints {
		checkpoints[cp] = true
	}
	return &Machine{
		store:       st,
		orch:        orch,
		engine:      engine,
		gates:       gates,
		guardrail:   opts.Guardrail,
		roster:      opts.Roster,
		tier:        opts.Tier,
		stages:      stages,
		checkpoints: checkpoints,
		progress:    opts.Progress,
	}
}

// Request starts or resumes one pipeline run. Brief is the feature text fed
// to the first executed stage; on resume it may be empty, in which case the
// upstream stage's stored artifacts supply the context.
type Request struct {
	SpecID     string
	Brief      string
	StartIndex int
}

// Execute runs the pipeline from the request's start index to Complete.
// On halt the returned Run reflects the phase reached; durable state is
// preserved so a later resume does not repeat finished work.
func (m *Machine) Execute(ctx context.Context, req Request) (*Run, error) {
	if req.SpecID == "" {
		return nil, fmt.Errorf("pipeline: spec id is required")
	}
	if req.StartIndex < 0 || req.StartIndex >= stage.Count {
		return nil, fmt.Errorf("pipeline: start index %d out of range [0,%d)", req.StartIndex, stage.Count)
	}

	run := newRun(req.SpecID, req.StartIndex)
	defer func() { run.Duration = time.Since(run.StartedAt) }()

	if err := m.store.LogEvent(ctx, run.SpecID, run.RunID, "", "run_started",
		fmt.Sprintf(`{"start_index":%d}`, req.StartIndex)); err != nil {
		return run, fmt.Errorf("pipeline: %w", err)
	}

	for idx := req.StartIndex; idx < stage.Count; idx++ {
		st := stage.Stage(idx)
		if err := m.runStage(ctx, run, st, req.Brief); err != nil {
			return run, err
		}
	}

	run.Phase = PhaseComplete{}
	_ = m.store.LogEvent(ctx, run.SpecID, run.RunID, "", "run_completed",
		fmt.Sprintf(`{"degraded":%d}`, len(run.degraded)))
	fmt.Fprintf(m.progress, "[%s] pipeline complete (run %s)\n", run.SpecID, run.RunID)
	return run, nil
}

func (m *Machine) runStage(ctx context.Context, run *Run, st stage.Stage, brief string) error {
	if err := ctx.Err(); err != nil {
		return &HaltError{Stage: st, Phase: run.Phase.String(), Reason: "aborted", Err: err}
	}

	// The checkpoint bound to this stage runs first; already-completed
	// checkpoints skip without touching their analyzer, which is what makes
	// resume idempotent. Checkpoints dropped from the configured set never
	// run at all.
	if cp, ok := stage.CheckpointBefore(st); ok && m.gates != nil && m.checkpoints[cp] {
		run.Phase = PhaseQualityGate{Checkpoint: cp, Sub: gate.PhaseExecuting}
		outcome, err := m.gates.RunCheckpoint(ctx, run.SpecID, run.RunID, cp)
		if err != nil {
			return &HaltError{Stage: st, Phase: "quality_gate", Reason: "checkpoint failed", Err: err}
		}
		if !outcome.Skipped {
			fmt.Fprintf(m.progress, "[%s] checkpoint %s: %d issues (%d auto, %d escalated)\n",
				run.SpecID, cp.Name(), outcome.TotalIssues, outcome.AutoResolved(), outcome.Escalated())
		}
	}

	run.Phase = PhaseGuardrail{Stage: st}
	if err := m.guardrail.Check(ctx, run.SpecID, st); err != nil {
		return &HaltError{Stage: st, Phase: "guardrail", Reason: "precondition failed", Err: err}
	}

	stageCtx, err := m.stageContext(ctx, run.SpecID, st, brief)
	if err != nil {
		return &HaltError{Stage: st, Phase: "guardrail", Reason: "load upstream context", Err: err}
	}

	desc, ok := m.stages[st]
	if !ok {
		return &HaltError{Stage: st, Phase: "guardrail", Reason: fmt.Sprintf("no descriptor for stage %s", st.Key())}
	}
	agents := m.roster.For(m.tier, st)
	if desc.AgentCount > 0 && desc.AgentCount < len(agents) {
		agents = agents[:desc.AgentCount]
	}
	expected := make([]string, len(agents))
	for i, a := range agents {
		expected[i] = a.Name
	}

	outputs, err := m.dispatch(ctx, run, st, desc, agents, stageCtx)
	if err != nil {
		return err
	}

	run.Phase = PhaseCheckingConsensus{Stage: st}
	v, err := m.engine.Evaluate(ctx, run.SpecID, st.Key(), run.RunID, expected, outputs)
	if err != nil {
		return &HaltError{Stage: st, Phase: "checking_consensus", Reason: "evaluate", Err: err}
	}
	if v.Proceed() {
		return nil
	}
	if v.Status == consensus.Conflicted && len(v.CriticalConflicts()) == 0 {
		if len(outputs) == 0 {
			outputs, err = m.engine.Recover(ctx, run.SpecID, st.Key(), run.RunID)
			if err != nil {
				return &HaltError{Stage: st, Phase: "checking_consensus", Reason: "recover for resolution", Verdict: v, Err: err}
			}
		}
		if err := m.engine.ResolveConflicts(ctx, run.SpecID, st.Key(), run.RunID, outputs, v.Conflicts); err != nil {
			return &HaltError{Stage: st, Phase: "checking_consensus", Reason: "conflict resolution failed", Verdict: v, Err: err}
		}
		return nil
	}
	return &HaltError{
		Stage:   st,
		Phase:   "checking_consensus",
		Reason:  fmt.Sprintf("verdict %s", v.Status),
		Verdict: v,
	}
}

// dispatch runs the stage roster unless deduplication suppresses it. A
// suppressed dispatch returns no outputs; the consensus engine then reads
// the cached rows from the first attempt.
func (m *Machine) dispatch(ctx context.Context, run *Run, st stage.Stage, desc stage.Descriptor, agents []agent.Descriptor, stageCtx string) ([]agent.Output, error) {
	if st == stage.Validate {
		hash := store.PayloadHash(string(m.tier), st.Key(), run.SpecID, stageCtx)
		att, err := m.store.BeginAttempt(ctx, hash, run.SpecID, st.Key(), run.RunID)
		if err != nil {
			return nil, &HaltError{Stage: st, Phase: "executing_agents", Reason: "begin attempt", Err: err}
		}
		if att.Outcome == store.Duplicate {
			fmt.Fprintf(m.progress, "[%s] %s: duplicate payload, reusing attempt %d (seen %d times)\n",
				run.SpecID, st.Key(), att.Attempt, att.DedupeCount)
			_ = m.store.LogEvent(ctx, run.SpecID, run.RunID, st.Key(), "validate_deduplicated",
				fmt.Sprintf(`{"attempt":%d,"dedupe_count":%d}`, att.Attempt, att.DedupeCount))
			return nil, nil
		}
	}

	names := make([]string, len(agents))
	for i, a := range agents {
		names[i] = a.Name
	}
	run.Phase = PhaseExecutingAgents{Stage: st, Agents: names}
	outputs, err := m.orch.RunStage(ctx, orchestrator.StageRequest{
		SpecID:  run.SpecID,
		RunID:   run.RunID,
		Stage:   st,
		Pattern: desc.Pattern,
		Agents:  agents,
		Context: stageCtx,
	})
	if err != nil {
		return nil, &HaltError{Stage: st, Phase: "executing_agents", Reason: "stage dispatch", Err: err}
	}
	run.noteOutputs(outputs)
	return outputs, nil
}

// stageContext picks the prompt context for a stage: the brief for the
// first stage, the upstream synthesis or concatenated outputs otherwise.
func (m *Machine) stageContext(ctx context.Context, specID string, st stage.Stage, brief string) (string, error) {
	if st == stage.Specify {
		return brief, nil
	}
	return m.engine.StageContext(ctx, specID, (st - 1).Key())
}
