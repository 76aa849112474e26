package stage

import (
	"fmt"
	"strings"
)

// Stage identifies one of the six ordered pipeline stages.
type Stage int

const (
	Specify Stage = iota
	Plan
	Tasks
	Implement
	Validate
	Audit
)

// Count is the number of stages in the pipeline.
const Count = 6

// All returns the stages in pipeline order.
func All() [Count]Stage {
	return [Count]Stage{Specify, Plan, Tasks, Implement, Validate, Audit}
}

// Key returns the canonical lowercase name used in storage keys and config.
func (s Stage) Key() string {
	switch s {
	case Specify:
		return "specify"
	case Plan:
		return "plan"
	case Tasks:
		return "tasks"
	case Implement:
		return "implement"
	case Validate:
		return "validate"
	case Audit:
		return "audit"
	}
	return fmt.Sprintf("stage(%d)", int(s))
}

// String returns the display name.
func (s Stage) String() string {
	switch s {
	case Specify:
		return "Specify"
	case Plan:
		return "Plan"
	case Tasks:
		return "Tasks"
	case Implement:
		return "Implement"
	case Validate:
		return "Validate"
	case Audit:
		return "Audit"
	}
	return fmt.Sprintf("Stage(%d)", int(s))
}

// Valid reports whether s is one of the six pipeline stages.
func (s Stage) Valid() bool {
	return s >= Specify && s <= Audit
}

// Next returns the following stage and false once the pipeline is exhausted.
func (s Stage) Next() (Stage, bool) {
	if s >= Audit {
		return s, false
	}
	return s + 1, true
}

// Parse resolves a stage from its key or display name (case-insensitive).
func Parse(name string) (Stage, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "specify":
		return Specify, nil
	case "plan":
		return Plan, nil
	case "tasks":
		return Tasks, nil
	case "implement":
		return Implement, nil
	case "validate":
		return Validate, nil
	case "audit":
		return Audit, nil
	}
	return 0, fmt.Errorf("unknown stage %q", name)
}

// Pattern selects how a stage's agents are executed.
type Pattern string

const (
	// Sequential runs agents one after another, each prompt fed the
	// transcript of the agents before it.
	Sequential Pattern = "sequential"
	// Parallel dispatches all agents concurrently and waits for the full set.
	Parallel Pattern = "parallel"
)

// ParsePattern validates an execution pattern string from config.
func ParsePattern(s string) (Pattern, error) {
	switch Pattern(strings.ToLower(strings.TrimSpace(s))) {
	case Sequential:
		return Sequential, nil
	case Parallel:
		return Parallel, nil
	}
	return "", fmt.Errorf("unknown execution pattern %q", s)
}

// Descriptor is the static definition of a stage, loaded at startup.
type Descriptor struct {
	Stage      Stage
	Pattern    Pattern
	AgentCount int
	// Timeout strings are resolved by the config layer; the descriptor
	// carries only what the state machine needs to drive execution.
}

// Defaults returns the built-in stage topology: early design stages fan out
// in parallel for independent perspectives, implementation and audit run
// sequentially so later agents build on earlier output.
func Defaults() []Descriptor {
	return []Descriptor{
		{Stage: Specify, Pattern: Parallel, AgentCount: 3},
		{Stage: Plan, Pattern: Parallel, AgentCount: 3},
		{Stage: Tasks, Pattern: Parallel, AgentCount: 3},
		{Stage: Implement, Pattern: Sequential, AgentCount: 2},
		{Stage: Validate, Pattern: Parallel, AgentCount: 3},
		{Stage: Audit, Pattern: Sequential, AgentCount: 2},
	}
}
