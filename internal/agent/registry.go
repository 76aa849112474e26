package agent

import (
	"fmt"
	"sort"
	"strings"

	"github.com/rmclaren/quorumpipe/internal/stage"
)

// Tier selects a cost/quality band for agent selection.
type Tier string

const (
	TierFast     Tier = "fast"
	TierStandard Tier = "standard"
	TierPremium  Tier = "premium"
)

// ParseTier validates a tier string from config.
func ParseTier(s string) (Tier, error) {
	switch Tier(strings.ToLower(strings.TrimSpace(s))) {
	case TierFast:
		return TierFast, nil
	case TierStandard:
		return TierStandard, nil
	case TierPremium:
		return TierPremium, nil
	}
	return "", fmt.Errorf("unknown agent tier %q", s)
}

type rosterKey struct {
	tier  Tier
	stage stage.Stage
}

// Registry maps (tier, stage) to the agents expected to work that stage.
// Loaded once at startup from config plus built-in defaults; read-only after.
type Registry struct {
	roster map[rosterKey][]Descriptor
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{roster: make(map[rosterKey][]Descriptor)}
}

// DefaultRegistry returns the built-in roster: every stage staffed at every
// tier, with the premium tier adding a heavier reviewer on sequential stages.
func DefaultRegistry() *Registry {
	r := NewRegistry()

	fast := []Descriptor{
		{Name: "gemini", CostWeight: 0.4, Tags: []string{"drafting"}},
		{Name: "claude", CostWeight: 0.6, Tags: []string{"analysis"}},
		{Name: "codex", CostWeight: 0.5, Tags: []string{"code"}},
	}
	standard := []Descriptor{
		{Name: "gemini", CostWeight: 1.0, Tags: []string{"drafting"}},
		{Name: "claude", CostWeight: 1.2, Tags: []string{"analysis"}},
		{Name: "codex", CostWeight: 1.1, Tags: []string{"code"}},
	}
	premium := []Descriptor{
		{Name: "claude", CostWeight: 2.0, Tags: []string{"analysis"}},
		{Name: "codex", CostWeight: 1.8, Tags: []string{"code"}},
		{Name: "gpt-pro", CostWeight: 3.0, Tags: []string{"review", "synthesis"}},
	}

	for _, st := range stage.All() {
		r.Register(TierFast, st, fast...)
		r.Register(TierStandard, st, standard...)
		r.Register(TierPremium, st, premium...)
	}

	// Sequential stages need fewer, stronger agents.
	for _, st := range []stage.Stage{stage.Implement, stage.Audit} {
		seq := []Descriptor{
			{Name: "claude", CostWeight: 1.2, Tags: []string{"code"}},
			{Name: "codex", CostWeight: 1.1, Tags: []string{"code", "review"}},
		}
		r.Replace(TierFast, st, seq)
		r.Replace(TierStandard, st, seq)
		r.Replace(TierPremium, st, []Descriptor{
			{Name: "claude", CostWeight: 2.0, Tags: []string{"code"}},
			{Name: "gpt-pro", CostWeight: 3.0, Tags: []string{"review", "synthesis"}},
		})
	}

	return r
}

// Register appends agents to the roster for (tier, stage).
func (r *Registry) Register(tier Tier, st stage.Stage, agents ...Descriptor) {
	k := rosterKey{tier: tier, stage: st}
	r.roster[k] = append(r.roster[k], agents...)
}

// Replace overwrites the roster for (tier, stage).
func (r *Registry) Replace(tier Tier, st stage.Stage, agents []Descriptor) {
	r.roster[rosterKey{tier: tier, stage: st}] = append([]Descriptor(nil), agents...)
}

// For returns the agents staffed for (tier, stage), sorted by name so callers
// see a deterministic roster regardless of registration order.
func (r *Registry) For(tier Tier, st stage.Stage) []Descriptor {
	agents := append([]Descriptor(nil), r.roster[rosterKey{tier: tier, stage: st}]...)
	sort.Slice(agents, func(i, j int) bool { return agents[i].Name < agents[j].Name })
	return agents
}
