// Package gate runs quality checkpoints: deterministic analyzers report
// issues, issues are triaged by confidence and severity, medium-confidence
// answers go to an external judge, and everything unresolved goes to a
// human. A checkpoint completes at most once per spec.
package gate

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/rmclaren/quorumpipe/internal/orchestrator"
	"github.com/rmclaren/quorumpipe/internal/stage"
	"github.com/rmclaren/quorumpipe/internal/store"
)

// Phase names the sub-machine states, mostly for progress output and tests.
type Phase string

const (
	PhaseExecuting     Phase = "executing"
	PhaseProcessing    Phase = "processing"
	PhaseValidating    Phase = "validating"
	PhaseAwaitingHuman Phase = "awaiting_human"
)

// Outcome summarizes one checkpoint run.
type Outcome struct {
	Checkpoint  stage.Checkpoint
	Skipped     bool
	TotalIssues int
	Resolutions []Resolved
}

// AutoResolved counts resolutions that never reached a human.
func (o *Outcome) AutoResolved() int {
	n := 0
	for _, r := range o.Resolutions {
		if r.Resolution != ResolutionUser {
			n++
		}
	}
	return n
}

// Escalated counts resolutions supplied by the operator.
func (o *Outcome) Escalated() int {
	return len(o.Resolutions) - o.AutoResolved()
}

// Machine drives the checkpoint sub-state-machine.
type Machine struct {
	store     *store.Store
	analyzers AnalyzerSet
	validator Validator
	escalator Escalator
	registry  *orchestrator.RunRegistry
	progress  io.Writer
}

// NewMachine creates a Machine. validator may be nil, in which case
// medium-confidence issues escalate straight to the human.
func NewMachine(st *store.Store, analyzers AnalyzerSet, validator Validator, escalator Escalator, reg *orchestrator.RunRegistry, progress io.Writer) *Machine {
	if progress == nil {
		progress = io.Discard
	}
	return &Machine{
		store:     st,
		analyzers: analyzers,
		validator: validator,
		escalator: escalator,
		registry:  reg,
		progress:  progress,
	}
}

// RunCheckpoint executes one quality checkpoint. Completed checkpoints are
// skipped without invoking their analyzer (the memoization invariant behind
// skip-on-resume). On success the checkpoint joins the completed set before
// control returns to the pipeline.
func (m *Machine) RunCheckpoint(ctx context.Context, specID, runID string, cp stage.Checkpoint) (*Outcome, error) {
	done, err := m.store.CheckpointDone(ctx, specID, cp.Name())
	if err != nil {
		return nil, fmt.Errorf("checkpoint lookup: %w", err)
	}
	if done {
		fmt.Fprintf(m.progress, "[%s] checkpoint %s already completed, skipping\n", specID, cp.Name())
		return &Outcome{Checkpoint: cp, Skipped: true}, nil
	}

	release, err := m.registry.Begin(specID, cp.Gates(), runID)
	if err != nil {
		return nil, err
	}
	defer release()

	// Executing: deterministic analyzer dispatch.
	m.report(specID, cp, PhaseExecuting, "running analyzer %s", cp.Analyzer())
	analyzer, err := m.analyzers.Lookup(cp.Analyzer())
	if err != nil {
		return nil, err
	}
	issues, err := analyzer.Analyze(specID)
	if err != nil {
		return nil, fmt.Errorf("analyzer %s: %w", cp.Analyzer(), err)
	}

	outcome := &Outcome{Checkpoint: cp, TotalIssues: len(issues)}
	if len(issues) == 0 {
		return outcome, m.complete(ctx, specID, runID, cp, outcome)
	}

	// Processing: triage by (confidence, severity).
	m.report(specID, cp, PhaseProcessing, "classifying %d issues", len(issues))
	var toValidate, toEscalate []Issue
	for _, issue := range issues {
		switch Triage(issue) {
		case DecisionAuto:
			answer, _ := issue.MajorityAnswer()
			if answer == "" {
				answer = issue.SuggestedFix
			}
			outcome.Resolutions = append(outcome.Resolutions, Resolved{
				Issue: issue, Answer: answer, Resolution: ResolutionAuto,
			})
		case DecisionValidate:
			toValidate = append(toValidate, issue)
		case DecisionEscalate:
			toEscalate = append(toEscalate, issue)
		}
	}

	// Validating: judge pass over medium-confidence majority answers.
	if len(toValidate) > 0 {
		m.report(specID, cp, PhaseValidating, "validating %d majority answers", len(toValidate))
		for _, issue := range toValidate {
			majority, _ := issue.MajorityAnswer()
			if m.validator == nil {
				toEscalate = append(toEscalate, issue)
				continue
			}
			result, err := m.validator.ValidateMajority(ctx, issue, majority)
			if err != nil {
				return nil, fmt.Errorf("validate %q: %w", issue.ID, err)
			}
			if result.Agrees && result.Confidence == ConfidenceHigh {
				outcome.Resolutions = append(outcome.Resolutions, Resolved{
					Issue: issue, Answer: majority, Resolution: ResolutionValidated,
				})
			} else {
				if result.RecommendedAnswer != "" {
					issue.SuggestedFix = result.RecommendedAnswer
				}
				toEscalate = append(toEscalate, issue)
			}
		}
	}

	// AwaitingHuman: blocks until every escalated issue has an answer.
	if len(toEscalate) > 0 {
		m.report(specID, cp, PhaseAwaitingHuman, "%d issues need a human", len(toEscalate))
		for _, issue := range toEscalate {
			answer, err := m.escalator.Present(ctx, Question{
				ID:          issue.ID,
				Analyzer:    issue.Analyzer,
				Question:    issue.Description,
				Context:     issue.Context,
				Answers:     issue.Answers,
				Severity:    issue.Severity,
				Recommended: issue.SuggestedFix,
			})
			if err != nil {
				return nil, fmt.Errorf("escalate %q: %w", issue.ID, err)
			}
			outcome.Resolutions = append(outcome.Resolutions, Resolved{
				Issue: issue, Answer: answer, Resolution: ResolutionUser,
			})
		}
	}

	return outcome, m.complete(ctx, specID, runID, cp, outcome)
}

// complete durably records every resolution, then memoizes the checkpoint.
func (m *Machine) complete(ctx context.Context, specID, runID string, cp stage.Checkpoint, outcome *Outcome) error {
	for _, r := range outcome.Resolutions {
		payload, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("marshal resolution: %w", err)
		}
		if err := m.store.PutArtifact(ctx, store.Artifact{
			SpecID:  specID,
			Stage:   cp.Name(),
			RunID:   runID,
			Agent:   r.Issue.Analyzer,
			Kind:    store.KindGate,
			Content: string(payload),
		}); err != nil {
			return fmt.Errorf("record resolution: %w", err)
		}
	}
	if err := m.store.CompleteCheckpoint(ctx, specID, cp.Name(), runID); err != nil {
		return err
	}
	_ = m.store.LogEvent(ctx, specID, runID, cp.Gates().Key(), "checkpoint_completed", cp.Name())
	return nil
}

func (m *Machine) report(specID string, cp stage.Checkpoint, phase Phase, format string, args ...any) {
	fmt.Fprintf(m.progress, "[%s] checkpoint %s (%s): %s\n", specID, cp.Name(), phase, fmt.Sprintf(format, args...))
}

// Decision is the triage result for one issue.
type Decision int

const (
	DecisionAuto Decision = iota
	DecisionValidate
	DecisionEscalate
)

// Triage applies the classification rule. Critical severity and low
// confidence always reach a human; a high-confidence issue auto-resolves
// when it is minor or its answers are unanimous; medium confidence goes to
// the judge. Everything else escalates rather than erroring.
func Triage(issue Issue) Decision {
	if issue.Severity == SeverityCritical || issue.Confidence == ConfidenceLow {
		return DecisionEscalate
	}
	if issue.Confidence == ConfidenceHigh {
		_, unanimous := issue.MajorityAnswer()
		if issue.Severity == SeverityMinor || unanimous {
			return DecisionAuto
		}
		return DecisionEscalate
	}
	if issue.Confidence == ConfidenceMedium {
		return DecisionValidate
	}
	return DecisionEscalate
}
