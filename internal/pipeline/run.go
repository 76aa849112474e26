package pipeline

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/rmclaren/quorumpipe/internal/agent"
)

// Run is one active pipeline execution. It lives only for the duration of
// the Execute call that created it: durable state (artifacts, checkpoints,
// events) belongs to the store, while the run carries in-memory bookkeeping
// that is cheap to recompute on resume.
type Run struct {
	SpecID     string
	RunID      string
	StartIndex int
	Phase      Phase

	StartedAt    time.Time
	Duration     time.Duration
	InputTokens  int
	OutputTokens int

	degraded map[string]struct{}
}

func newRun(specID string, startIndex int) *Run {
	return &Run{
		SpecID:     specID,
		RunID:      NewRunID(specID),
		StartIndex: startIndex,
		Phase:      PhaseGuardrail{},
		StartedAt:  time.Now().UTC(),
		degraded:   make(map[string]struct{}),
	}
}

// NewRunID builds a branch-style run identifier: the spec id, a UTC
// timestamp, and a short random suffix so two runs started in the same
// second stay distinct.
func NewRunID(specID string) string {
	ts := time.Now().UTC().Format("20060102T150405")
	return fmt.Sprintf("%s-%s-%s", specID, ts, uuid.NewString()[:8])
}

// DegradedAgents returns the sorted set of agents that failed or timed out
// at some stage while the run still proceeded on quorum.
func (r *Run) DegradedAgents() []string {
	names := make([]string, 0, len(r.degraded))
	for name := range r.degraded {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *Run) noteOutputs(outputs []agent.Output) {
	for _, o := range outputs {
		r.InputTokens += o.InputTokens
		r.OutputTokens += o.OutputTokens
		if !o.Succeeded() {
			r.degraded[o.Agent] = struct{}{}
		}
	}
}
