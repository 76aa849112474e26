package pipeline

import (
	"context"
	"fmt"

	"github.com/rmclaren/quorumpipe/internal/stage"
	"github.com/rmclaren/quorumpipe/internal/store"
)

// Guardrail checks a stage's preconditions before any agent spawns.
// A returned error is permanent: the run halts rather than retries.
type Guardrail interface {
	Check(ctx context.Context, specID string, st stage.Stage) error
}

// GuardrailFunc adapts a function to the Guardrail interface.
type GuardrailFunc func(ctx context.Context, specID string, st stage.Stage) error

func (f GuardrailFunc) Check(ctx context.Context, specID string, st stage.Stage) error {
	return f(ctx, specID, st)
}

// StoreGuardrail is the default precondition: every stage after the first
// needs at least one durable artifact from the stage before it. A run that
// lost its upstream output has nothing to feed the next roster and must
// halt rather than prompt agents with an empty context.
type StoreGuardrail struct {
	store *store.Store
}

func NewStoreGuardrail(st *store.Store) *StoreGuardrail {
	return &StoreGuardrail{store: st}
}

func (g *StoreGuardrail) Check(ctx context.Context, specID string, st stage.Stage) error {
	if st == stage.Specify {
		return nil
	}
	prev := st - 1
	rows, err := g.store.LatestOutputs(ctx, specID, prev.Key(), "")
	if err != nil {
		return fmt.Errorf("guardrail %s: %w", st.Key(), err)
	}
	if len(rows) == 0 {
		return fmt.Errorf("guardrail %s: no artifacts for upstream stage %s", st.Key(), prev.Key())
	}
	return nil
}
