package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rmclaren/quorumpipe/internal/stage"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "quorumpipe.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
pipeline:
  name: payments-pipeline
  tier: premium
  store_path: /tmp/payments.db
  defaults:
    agent_timeout: 5m
    stage_timeout: 30m
  retry:
    max_attempts: 5
    initial_delay: 250ms
    multiplier: 1.5
  stages:
    - id: implement
      agents: 3
    - id: audit
      pattern: parallel
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	p := cfg.Pipeline
	if p.Name != "payments-pipeline" || p.Tier != "premium" {
		t.Errorf("identity = %q/%q", p.Name, p.Tier)
	}
	if p.StorePath != "/tmp/payments.db" {
		t.Errorf("store path = %q", p.StorePath)
	}
	if len(p.Stages) != 2 {
		t.Fatalf("stages = %v", p.Stages)
	}
	// Unset checkpoints fall back to the full set.
	if len(p.Checkpoints) != 3 {
		t.Errorf("checkpoints = %v", p.Checkpoints)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("missing file must fail")
	}
}

func TestLoad_BadYAML(t *testing.T) {
	path := writeConfig(t, "pipeline: [not a mapping")
	if _, err := Load(path); err == nil {
		t.Error("malformed yaml must fail")
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := &Config{}
	applyDefaults(cfg)
	p := cfg.Pipeline
	if p.Name != "quorumpipe" || p.Tier != "standard" {
		t.Errorf("defaults = %q/%q", p.Name, p.Tier)
	}
	want := []string{"before-specify", "after-specify", "after-tasks"}
	if len(p.Checkpoints) != len(want) {
		t.Fatalf("checkpoints = %v", p.Checkpoints)
	}
	for i, name := range want {
		if p.Checkpoints[i] != name {
			t.Errorf("checkpoint[%d] = %q, want %q", i, p.Checkpoints[i], name)
		}
	}
}

func TestApplyDefaults_StageInheritance(t *testing.T) {
	cfg := &Config{Pipeline: Pipeline{
		Defaults: StageDefaults{Pattern: "parallel", Agents: 4},
		Stages: []Stage{
			{ID: "plan"},
			{ID: "implement", Pattern: "sequential", Agents: 2},
		},
	}}
	applyDefaults(cfg)
	if s := cfg.Pipeline.Stages[0]; s.Pattern != "parallel" || s.Agents != 4 {
		t.Errorf("plan = %+v, want inherited defaults", s)
	}
	if s := cfg.Pipeline.Stages[1]; s.Pattern != "sequential" || s.Agents != 2 {
		t.Errorf("implement = %+v, explicit values must win", s)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name  string
		cfg   Config
		field string
	}{
		{
			name:  "missing name",
			cfg:   Config{Pipeline: Pipeline{Tier: "standard"}},
			field: "pipeline.name",
		},
		{
			name:  "bad tier",
			cfg:   Config{Pipeline: Pipeline{Name: "p", Tier: "platinum"}},
			field: "pipeline.tier",
		},
		{
			name: "unknown stage id",
			cfg: Config{Pipeline: Pipeline{Name: "p", Tier: "fast",
				Stages: []Stage{{ID: "deploy"}}}},
			field: "pipeline.stages[0].id",
		},
		{
			name: "duplicate stage",
			cfg: Config{Pipeline: Pipeline{Name: "p", Tier: "fast",
				Stages: []Stage{{ID: "plan"}, {ID: "plan"}}}},
			field: "pipeline.stages[1].id",
		},
		{
			name: "bad pattern",
			cfg: Config{Pipeline: Pipeline{Name: "p", Tier: "fast",
				Stages: []Stage{{ID: "plan", Pattern: "round-robin"}}}},
			field: "pipeline.stages[0].pattern",
		},
		{
			name: "negative agents",
			cfg: Config{Pipeline: Pipeline{Name: "p", Tier: "fast",
				Stages: []Stage{{ID: "plan", Agents: -1}}}},
			field: "pipeline.stages[0].agents",
		},
		{
			name: "unknown checkpoint",
			cfg: Config{Pipeline: Pipeline{Name: "p", Tier: "fast",
				Checkpoints: []string{"after-deploy"}}},
			field: "pipeline.checkpoints[0]",
		},
		{
			name: "multiplier below one",
			cfg: Config{Pipeline: Pipeline{Name: "p", Tier: "fast",
				Retry: Retry{Multiplier: 0.5}}},
			field: "pipeline.retry.multiplier",
		},
		{
			name: "bad initial delay",
			cfg: Config{Pipeline: Pipeline{Name: "p", Tier: "fast",
				Retry: Retry{InitialDelay: "soon"}}},
			field: "pipeline.retry.initial_delay",
		},
		{
			name: "bad agent timeout",
			cfg: Config{Pipeline: Pipeline{Name: "p", Tier: "fast",
				Defaults: StageDefaults{AgentTimeout: "fast"}}},
			field: "pipeline.defaults.agent_timeout",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := Validate(&tt.cfg)
			for _, e := range errs {
				if e.Field == tt.field {
					return
				}
			}
			t.Errorf("no error for %s in %v", tt.field, errs)
		})
	}
}

func TestValidate_CleanConfig(t *testing.T) {
	cfg := &Config{}
	applyDefaults(cfg)
	if errs := Validate(cfg); len(errs) != 0 {
		t.Errorf("defaulted config should validate: %v", errs)
	}
}

func TestDescriptors(t *testing.T) {
	p := Pipeline{Stages: []Stage{
		{ID: "implement", Pattern: "parallel", Agents: 4},
	}}
	descs, err := p.Descriptors()
	if err != nil {
		t.Fatalf("descriptors: %v", err)
	}
	if len(descs) != stage.Count {
		t.Fatalf("len = %d", len(descs))
	}
	byStage := make(map[stage.Stage]stage.Descriptor)
	for _, d := range descs {
		byStage[d.Stage] = d
	}
	if d := byStage[stage.Implement]; d.Pattern != stage.Parallel || d.AgentCount != 4 {
		t.Errorf("implement = %+v, override must apply", d)
	}
	// Untouched stages keep their built-in shape.
	if d := byStage[stage.Audit]; d.Pattern != stage.Sequential || d.AgentCount != 2 {
		t.Errorf("audit = %+v, want built-in default", d)
	}
}

func TestDescriptors_BadStage(t *testing.T) {
	p := Pipeline{Stages: []Stage{{ID: "deploy"}}}
	if _, err := p.Descriptors(); err == nil || !strings.Contains(err.Error(), "deploy") {
		t.Errorf("err = %v, want the bad id named", err)
	}
}

func TestCheckpointSet(t *testing.T) {
	p := Pipeline{Checkpoints: []string{"before-specify", "after-tasks"}}
	cps, err := p.CheckpointSet()
	if err != nil {
		t.Fatalf("checkpoint set: %v", err)
	}
	want := []stage.Checkpoint{stage.BeforeSpecify, stage.AfterTasks}
	if len(cps) != len(want) {
		t.Fatalf("set = %v", cps)
	}
	for i := range want {
		if cps[i] != want[i] {
			t.Errorf("set[%d] = %v, want %v", i, cps[i], want[i])
		}
	}

	// An explicitly empty list stays empty rather than nil, which is how
	// the machine tells "disabled" apart from "use defaults".
	p = Pipeline{Checkpoints: []string{}}
	cps, err = p.CheckpointSet()
	if err != nil {
		t.Fatalf("empty set: %v", err)
	}
	if cps == nil || len(cps) != 0 {
		t.Errorf("empty config should yield an empty non-nil set, got %v", cps)
	}

	p = Pipeline{Checkpoints: []string{"after-deploy"}}
	if _, err := p.CheckpointSet(); err == nil || !strings.Contains(err.Error(), "after-deploy") {
		t.Errorf("err = %v, want the bad name named", err)
	}
}

func TestRetryPolicy(t *testing.T) {
	r := Retry{MaxAttempts: 7, InitialDelay: "50ms", Multiplier: 3}
	p, err := r.Policy()
	if err != nil {
		t.Fatalf("policy: %v", err)
	}
	if p.MaxAttempts != 7 || p.InitialDelay != 50*time.Millisecond || p.Multiplier != 3 {
		t.Errorf("policy = %+v", p)
	}

	// Unset fields keep the default policy.
	p, err = (&Retry{}).Policy()
	if err != nil {
		t.Fatal(err)
	}
	if p.MaxAttempts != 3 || p.InitialDelay != 100*time.Millisecond || p.Multiplier != 2 {
		t.Errorf("default policy = %+v", p)
	}

	if _, err := (&Retry{InitialDelay: "never"}).Policy(); err == nil {
		t.Error("bad delay must fail")
	}
}

func TestTimeoutDurations(t *testing.T) {
	d := StageDefaults{AgentTimeout: "90s", StageTimeout: "1h"}
	at, err := d.AgentTimeoutDuration()
	if err != nil || at != 90*time.Second {
		t.Errorf("agent timeout = %v, %v", at, err)
	}
	st, err := d.StageTimeoutDuration()
	if err != nil || st != time.Hour {
		t.Errorf("stage timeout = %v, %v", st, err)
	}

	zero := StageDefaults{}
	if at, err := zero.AgentTimeoutDuration(); err != nil || at != 0 {
		t.Errorf("unset agent timeout = %v, %v", at, err)
	}
}
