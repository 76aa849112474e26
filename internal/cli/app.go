package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/rmclaren/quorumpipe/internal/agent"
	"github.com/rmclaren/quorumpipe/internal/analyzers"
	"github.com/rmclaren/quorumpipe/internal/config"
	"github.com/rmclaren/quorumpipe/internal/consensus"
	"github.com/rmclaren/quorumpipe/internal/evidence"
	"github.com/rmclaren/quorumpipe/internal/gate"
	"github.com/rmclaren/quorumpipe/internal/orchestrator"
	"github.com/rmclaren/quorumpipe/internal/pipeline"
	"github.com/rmclaren/quorumpipe/internal/store"
)

// app wires the durable layers and the state machine together for one
// command invocation.
type app struct {
	cfg     *config.Config
	store   *store.Store
	machine *pipeline.Machine
}

// newApp builds the full stack from the resolved config. The returned
// cleanup closes the store.
func newApp(cmd *cobra.Command) (*app, func(), error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}
	p := cfg.Pipeline

	tier, err := agent.ParseTier(p.Tier)
	if err != nil {
		return nil, nil, err
	}
	descriptors, err := p.Descriptors()
	if err != nil {
		return nil, nil, err
	}
	policy, err := p.Retry.Policy()
	if err != nil {
		return nil, nil, err
	}
	agentTimeout, err := p.Defaults.AgentTimeoutDuration()
	if err != nil {
		return nil, nil, fmt.Errorf("defaults.agent_timeout: %w", err)
	}
	stageTimeout, err := p.Defaults.StageTimeoutDuration()
	if err != nil {
		return nil, nil, fmt.Errorf("defaults.stage_timeout: %w", err)
	}
	checkpoints, err := p.CheckpointSet()
	if err != nil {
		return nil, nil, err
	}

	st, err := openStore(p)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() { st.Close() }

	ev, err := openEvidence(p)
	if err != nil {
		cleanup()
		return nil, nil, err
	}

	progress := cmd.ErrOrStderr()
	registry := orchestrator.NewRunRegistry()
	exec := agent.NewCLIExecutor(nil)
	orch := orchestrator.New(exec, st, ev, registry, orchestrator.Options{
		Policy:       policy,
		AgentTimeout: agentTimeout,
		StageTimeout: stageTimeout,
		Progress:     progress,
		TemplateDir:  p.TemplateDir,
	})
	engine := consensus.NewEngine(st, nil, ev, nil, progress)
	gates := gate.NewMachine(st, analyzers.Registry(st), nil,
		NewTerminalEscalator(cmd.InOrStdin(), cmd.OutOrStdout()), registry, progress)
	machine := pipeline.NewMachine(st, orch, engine, gates, pipeline.MachineOptions{
		Tier:        tier,
		Stages:      descriptors,
		Checkpoints: checkpoints,
		Progress:    progress,
	})

	return &app{cfg: cfg, store: st, machine: machine}, cleanup, nil
}

// openStoreOnly opens just the durable store for read-side commands.
func openStoreOnly(cmd *cobra.Command) (*store.Store, func(), error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}
	st, err := openStore(cfg.Pipeline)
	if err != nil {
		return nil, nil, err
	}
	return st, func() { st.Close() }, nil
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	var cfg *config.Config
	var err error
	if path != "" {
		cfg, err = config.Load(path)
	} else {
		cfg, err = config.LoadDefault()
	}
	if err != nil {
		return nil, err
	}
	if errs := config.Validate(cfg); len(errs) > 0 {
		for _, e := range errs {
			fmt.Fprintf(os.Stderr, "config: %s\n", e)
		}
		return nil, fmt.Errorf("invalid config: %d errors", len(errs))
	}
	return cfg, nil
}

func openStore(p config.Pipeline) (*store.Store, error) {
	if p.StorePath != "" {
		return store.Open(p.StorePath, store.Options{})
	}
	return store.OpenDefault()
}

func openEvidence(p config.Pipeline) (*evidence.Repository, error) {
	if p.EvidenceDir != "" {
		if err := os.MkdirAll(p.EvidenceDir, 0o755); err != nil {
			return nil, fmt.Errorf("mkdir %s: %w", p.EvidenceDir, err)
		}
		return evidence.NewRepository(p.EvidenceDir), nil
	}
	return evidence.DefaultRepository()
}
