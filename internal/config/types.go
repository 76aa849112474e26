package config

import (
	"fmt"
	"time"

	"github.com/rmclaren/quorumpipe/internal/retry"
	"github.com/rmclaren/quorumpipe/internal/stage"
)

// Config is the top-level structure parsed from pipeline YAML.
type Config struct {
	Pipeline Pipeline `yaml:"pipeline"`
}

// Pipeline defines the full run configuration: identity, agent tier,
// storage locations, retry policy, and per-stage overrides.
type Pipeline struct {
	Name        string        `yaml:"name"`
	Tier        string        `yaml:"tier"`
	StorePath   string        `yaml:"store_path"`
	EvidenceDir string        `yaml:"evidence_dir"`
	TemplateDir string        `yaml:"template_dir"`
	Defaults    StageDefaults `yaml:"defaults"`
	Retry       Retry         `yaml:"retry"`
	Stages      []Stage       `yaml:"stages"`
	Checkpoints []string      `yaml:"checkpoints"`
}

// StageDefaults holds values applied to stages that don't set their own.
type StageDefaults struct {
	Pattern      string `yaml:"pattern"`
	Agents       int    `yaml:"agents"`
	AgentTimeout string `yaml:"agent_timeout"`
	StageTimeout string `yaml:"stage_timeout"`
}

// Retry mirrors the exponential backoff policy in YAML form.
type Retry struct {
	MaxAttempts  int     `yaml:"max_attempts"`
	InitialDelay string  `yaml:"initial_delay"`
	Multiplier   float64 `yaml:"multiplier"`
}

// Stage overrides the execution pattern or roster size for one stage.
type Stage struct {
	ID      string `yaml:"id"`
	Pattern string `yaml:"pattern"`
	Agents  int    `yaml:"agents"`
}

// Descriptors converts the configured stages into runtime descriptors,
// starting from the built-in defaults and overlaying any overrides.
func (p *Pipeline) Descriptors() ([]stage.Descriptor, error) {
	byStage := make(map[stage.Stage]stage.Descriptor, stage.Count)
	for _, d := range stage.Defaults() {
		byStage[d.Stage] = d
	}
	for _, s := range p.Stages {
		st, err := stage.Parse(s.ID)
		if err != nil {
			return nil, fmt.Errorf("stage %q: %w", s.ID, err)
		}
		d := byStage[st]
		if s.Pattern != "" {
			pat, err := stage.ParsePattern(s.Pattern)
			if err != nil {
				return nil, fmt.Errorf("stage %q: %w", s.ID, err)
			}
			d.Pattern = pat
		}
		if s.Agents > 0 {
			d.AgentCount = s.Agents
		}
		byStage[st] = d
	}
	out := make([]stage.Descriptor, 0, stage.Count)
	for _, st := range stage.All() {
		out = append(out, byStage[st])
	}
	return out, nil
}

// CheckpointSet resolves the configured checkpoint names into runtime
// checkpoints. The loader defaults an absent list to all three, so an empty
// result only happens when the config explicitly disables checkpoints.
func (p *Pipeline) CheckpointSet() ([]stage.Checkpoint, error) {
	out := make([]stage.Checkpoint, 0, len(p.Checkpoints))
	for _, name := range p.Checkpoints {
		cp, err := stage.ParseCheckpoint(name)
		if err != nil {
			return nil, fmt.Errorf("checkpoint %q: %w", name, err)
		}
		out = append(out, cp)
	}
	return out, nil
}

// Policy converts the YAML retry block into a runtime policy. Unset fields
// keep the default policy's values.
func (r *Retry) Policy() (retry.Policy, error) {
	p := retry.Default()
	if r.MaxAttempts > 0 {
		p.MaxAttempts = r.MaxAttempts
	}
	if r.InitialDelay != "" {
		d, err := time.ParseDuration(r.InitialDelay)
		if err != nil {
			return p, fmt.Errorf("retry.initial_delay: %w", err)
		}
		p.InitialDelay = d
	}
	if r.Multiplier > 0 {
		p.Multiplier = r.Multiplier
	}
	return p, nil
}

// AgentTimeoutDuration parses the per-agent timeout, zero when unset.
func (d *StageDefaults) AgentTimeoutDuration() (time.Duration, error) {
	if d.AgentTimeout == "" {
		return 0, nil
	}
	return time.ParseDuration(d.AgentTimeout)
}

// StageTimeoutDuration parses the whole-stage timeout, zero when unset.
func (d *StageDefaults) StageTimeoutDuration() (time.Duration, error) {
	if d.StageTimeout == "" {
		return 0, nil
	}
	return time.ParseDuration(d.StageTimeout)
}
