package consensus

import (
	"sort"

	"github.com/rmclaren/quorumpipe/internal/agent"
)

// Status is the categorical judgment for a stage's agent outputs.
type Status string

const (
	// Ok means every expected agent is present and nothing conflicts.
	Ok Status = "ok"
	// Degraded means quorum held (>= 2/3 present) with no conflicts.
	Degraded Status = "degraded"
	// Conflicted means at least one pairwise conflict was detected.
	Conflicted Status = "conflict"
	// Unknown means too few agents succeeded to say anything.
	Unknown Status = "unknown"
)

// Severity grades a detected conflict.
type Severity string

const (
	SeverityMinor    Severity = "minor"
	SeverityModerate Severity = "moderate"
	SeverityCritical Severity = "critical"
)

// Conflict is a disagreement between two agents' outputs.
type Conflict struct {
	AgentA   string   `json:"agent_a"`
	AgentB   string   `json:"agent_b"`
	Issue    string   `json:"issue"`
	Severity Severity `json:"severity"`
}

// Verdict is derived from a set of outputs; it is recomputed each time and
// never mutated in place.
type Verdict struct {
	Status    Status     `json:"status"`
	Present   []string   `json:"present"`
	Missing   []string   `json:"missing"`
	Conflicts []Conflict `json:"conflicts,omitempty"`
}

// Proceed reports whether the pipeline may advance past this verdict.
func (v *Verdict) Proceed() bool {
	return v.Status == Ok || v.Status == Degraded
}

// CriticalConflicts returns the conflicts that need a human.
func (v *Verdict) CriticalConflicts() []Conflict {
	var out []Conflict
	for _, c := range v.Conflicts {
		if c.Severity == SeverityCritical {
			out = append(out, c)
		}
	}
	return out
}

// Quorum returns the minimum present count for a degraded-but-valid result:
// ceil(2n/3).
func Quorum(n int) int {
	return (2*n + 2) / 3
}

// Compute derives the verdict from (expected agents, outputs, conflicts).
// It is a pure function and order-independent: present and missing sets are
// sorted by agent name before the rule is applied. The rule, in order:
// any conflict wins, then full presence, then quorum, then Unknown.
func Compute(expected []string, outputs []agent.Output, conflicts []Conflict) Verdict {
	present := make([]string, 0, len(outputs))
	seen := make(map[string]bool, len(outputs))
	for i := range outputs {
		if outputs[i].Succeeded() && !seen[outputs[i].Agent] {
			seen[outputs[i].Agent] = true
			present = append(present, outputs[i].Agent)
		}
	}
	sort.Strings(present)

	missing := make([]string, 0)
	for _, name := range expected {
		if !seen[name] {
			missing = append(missing, name)
		}
	}
	sort.Strings(missing)

	v := Verdict{Present: present, Missing: missing, Conflicts: conflicts}
	switch {
	case len(conflicts) > 0:
		v.Status = Conflicted
	case len(present) == len(expected):
		v.Status = Ok
	case len(present) >= Quorum(len(expected)):
		v.Status = Degraded
	default:
		v.Status = Unknown
	}
	return v
}
