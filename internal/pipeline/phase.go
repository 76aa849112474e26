package pipeline

import (
	"fmt"

	"github.com/rmclaren/quorumpipe/internal/gate"
	"github.com/rmclaren/quorumpipe/internal/stage"
)

// Phase is the pipeline's current position, modeled as a sealed sum type.
// The quality-gate sub-phase travels as data inside PhaseQualityGate, so an
// "in a gate and also executing agents" combination cannot be represented.
type Phase interface {
	isPhase()
	String() string
}

// PhaseGuardrail validates stage preconditions before any agent spawns.
type PhaseGuardrail struct {
	Stage stage.Stage
}

// PhaseExecutingAgents covers the window where the orchestrator owns the
// stage roster.
type PhaseExecutingAgents struct {
	Stage  stage.Stage
	Agents []string
}

// PhaseCheckingConsensus covers verdict computation over the stage outputs.
type PhaseCheckingConsensus struct {
	Stage stage.Stage
}

// PhaseQualityGate covers the gate sub-machine for one checkpoint.
type PhaseQualityGate struct {
	Checkpoint stage.Checkpoint
	Sub        gate.Phase
}

// PhaseComplete is the terminal phase.
type PhaseComplete struct{}

func (PhaseGuardrail) isPhase()         {}
func (PhaseExecutingAgents) isPhase()   {}
func (PhaseCheckingConsensus) isPhase() {}
func (PhaseQualityGate) isPhase()       {}
func (PhaseComplete) isPhase()          {}

func (p PhaseGuardrail) String() string {
	return fmt.Sprintf("guardrail(%s)", p.Stage.Key())
}

func (p PhaseExecutingAgents) String() string {
	return fmt.Sprintf("executing_agents(%s)", p.Stage.Key())
}

func (p PhaseCheckingConsensus) String() string {
	return fmt.Sprintf("checking_consensus(%s)", p.Stage.Key())
}

func (p PhaseQualityGate) String() string {
	return fmt.Sprintf("quality_gate(%s/%s)", p.Checkpoint.Name(), p.Sub)
}

func (PhaseComplete) String() string { return "complete" }
