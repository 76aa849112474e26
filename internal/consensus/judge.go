package consensus

import (
	"context"

	"github.com/rmclaren/quorumpipe/internal/agent"
)

// Synthesis is the judge's merged view over a stage's agent outputs.
type Synthesis struct {
	Summary    string   `json:"summary"`
	Agreements []string `json:"agreements,omitempty"`
	Conflicts  []string `json:"conflicts,omitempty"`
	Content    string   `json:"content,omitempty"`
}

// Judge is the external synthesis/conflict collaborator. How a judge grades
// a conflict minor/moderate/critical is its own affair; this layer only
// consumes the label.
type Judge interface {
	// Synthesize merges a set of agent outputs into one result.
	Synthesize(ctx context.Context, outputs []agent.Output) (*Synthesis, error)
	// CompareForConflict inspects one pair of outputs. A nil Conflict means
	// the pair agrees.
	CompareForConflict(ctx context.Context, a, b agent.Output) (*Conflict, error)
}
