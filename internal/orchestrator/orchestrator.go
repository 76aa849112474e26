// Package orchestrator dispatches a stage's agents sequentially or in
// parallel, wraps every call with bounded retry, and writes resolved outputs
// through to the durable store and the evidence repository.
package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rmclaren/quorumpipe/internal/agent"
	"github.com/rmclaren/quorumpipe/internal/evidence"
	"github.com/rmclaren/quorumpipe/internal/prompt"
	"github.com/rmclaren/quorumpipe/internal/retry"
	"github.com/rmclaren/quorumpipe/internal/stage"
	"github.com/rmclaren/quorumpipe/internal/store"
)

// Orchestrator composes an Executor with the durable layers. One instance
// serves a whole run; it is safe for concurrent stage requests on distinct
// (spec, stage) keys.
type Orchestrator struct {
	exec     agent.Executor
	store    *store.Store
	evidence *evidence.Repository
	registry *RunRegistry
	policy   retry.Policy
	progress io.Writer

	agentTimeout time.Duration
	stageTimeout time.Duration
	overrideDir  string
}

// Options configures an Orchestrator. Zero durations take defaults.
type Options struct {
	Policy       retry.Policy
	AgentTimeout time.Duration
	StageTimeout time.Duration
	Progress     io.Writer
	// TemplateDir holds project-level prompt overrides.
	TemplateDir string
}

// New creates an Orchestrator.
func New(exec agent.Executor, st *store.Store, ev *evidence.Repository, reg *RunRegistry, opts Options) *Orchestrator {
	if opts.Policy.MaxAttempts == 0 {
		opts.Policy = retry.Default()
	}
	if opts.AgentTimeout <= 0 {
		opts.AgentTimeout = 10 * time.Minute
	}
	if opts.StageTimeout <= 0 {
		opts.StageTimeout = 45 * time.Minute
	}
	if opts.Progress == nil {
		opts.Progress = io.Discard
	}
	return &Orchestrator{
		exec:         exec,
		store:        st,
		evidence:     ev,
		registry:     reg,
		policy:       opts.Policy,
		progress:     opts.Progress,
		agentTimeout: opts.AgentTimeout,
		stageTimeout: opts.StageTimeout,
		overrideDir:  opts.TemplateDir,
	}
}

// StageRequest describes one stage's worth of agent work.
type StageRequest struct {
	SpecID  string
	RunID   string
	Stage   stage.Stage
	Pattern stage.Pattern
	Agents  []agent.Descriptor
	// Context is the upstream artifact text substituted into prompts.
	Context string
}

// RunStage executes all agents for a stage and returns the full output set.
// Individual failures and timeouts become failed outputs rather than errors:
// the caller's consensus engine decides whether quorum survived. Expiry of
// the whole-stage timeout likewise marks the unresolved agents Timeout and
// returns the set. The error return covers orchestration-level problems only
// (duplicate spawn, template failure, caller cancellation).
func (o *Orchestrator) RunStage(ctx context.Context, req StageRequest) ([]agent.Output, error) {
	if len(req.Agents) == 0 {
		return nil, fmt.Errorf("stage %s has no agents", req.Stage.Key())
	}

	release, err := o.registry.Begin(req.SpecID, req.Stage, req.RunID)
	if err != nil {
		return nil, err
	}
	defer release()

	tmpl, err := prompt.ForStage(req.Stage.Key(), o.overrideDir)
	if err != nil {
		return nil, fmt.Errorf("load stage template: %w", err)
	}

	// parent distinguishes a caller abort from the stage deadline below.
	parent := ctx
	ctx, cancel := context.WithTimeout(ctx, o.stageTimeout)
	defer cancel()

	fmt.Fprintf(o.progress, "[%s] %s: dispatching %d agents (%s)\n",
		req.SpecID, req.Stage.Key(), len(req.Agents), req.Pattern)

	var outputs []agent.Output
	switch req.Pattern {
	case stage.Sequential:
		outputs, err = o.runSequential(ctx, parent, req, tmpl)
	case stage.Parallel:
		outputs, err = o.runParallel(ctx, parent, req, tmpl)
	default:
		return nil, fmt.Errorf("unknown execution pattern %q", req.Pattern)
	}
	if err != nil {
		return nil, err
	}

	// Persist on the parent: the stage context may already be past its
	// deadline while the outputs it resolved still need to land.
	for i := range outputs {
		o.persist(parent, req, &outputs[i])
	}
	return outputs, nil
}

// runSequential runs agents strictly one after another. Agent k's prompt
// carries the accumulated transcript of agents 1..k-1, so ordering is
// deterministic and feedback-driven.
func (o *Orchestrator) runSequential(ctx, parent context.Context, req StageRequest, tmpl string) ([]agent.Output, error) {
	outputs := make([]agent.Output, 0, len(req.Agents))
	var transcript strings.Builder

	for i, desc := range req.Agents {
		if err := ctx.Err(); err != nil {
			if parent.Err() != nil {
				return nil, err
			}
			// Stage deadline hit: the agents that never ran resolve as
			// timeouts so the verdict still counts the finished ones.
			for _, rest := range req.Agents[i:] {
				outputs = append(outputs, timeoutOutput(req, rest, err))
			}
			return outputs, nil
		}

		rendered, err := prompt.Render(tmpl, prompt.Vars{
			"spec_id":    req.SpecID,
			"stage":      req.Stage.Key(),
			"agent":      desc.Name,
			"context":    req.Context,
			"transcript": transcript.String(),
		})
		if err != nil {
			return nil, fmt.Errorf("render prompt for %s: %w", desc.Name, err)
		}

		out := o.runAgent(ctx, req, desc, rendered)
		outputs = append(outputs, out)

		if out.Succeeded() {
			fmt.Fprintf(&transcript, "### %s\n%s\n\n", desc.Name, out.Content)
		}
	}
	return outputs, nil
}

// runParallel dispatches every agent before awaiting any, then waits for the
// full set to resolve. Result order is not meaningful; consumers sort by
// agent name before any deterministic computation.
func (o *Orchestrator) runParallel(ctx, parent context.Context, req StageRequest, tmpl string) ([]agent.Output, error) {
	outputs := make([]agent.Output, len(req.Agents))

	g, gctx := errgroup.WithContext(ctx)
	for i, desc := range req.Agents {
		i, desc := i, desc
		rendered, err := prompt.Render(tmpl, prompt.Vars{
			"spec_id":    req.SpecID,
			"stage":      req.Stage.Key(),
			"agent":      desc.Name,
			"context":    req.Context,
			"transcript": "",
		})
		if err != nil {
			return nil, fmt.Errorf("render prompt for %s: %w", desc.Name, err)
		}

		g.Go(func() error {
			outputs[i] = o.runAgent(gctx, req, desc, rendered)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	// Every slot resolved (runAgent converts a blown deadline into a
	// Timeout output); only a caller abort discards the set.
	if err := parent.Err(); err != nil {
		return nil, err
	}
	return outputs, nil
}

// timeoutOutput marks an agent that never got to run before the stage
// deadline, so the output set still has one entry per agent.
func timeoutOutput(req StageRequest, desc agent.Descriptor, err error) agent.Output {
	return agent.Output{
		Agent:  desc.Name,
		Stage:  req.Stage.Key(),
		Status: agent.StatusTimeout,
		Error:  err.Error(),
	}
}

// runAgent wraps one executor call with the retry policy and converts the
// final failure into a failed/timeout output so the stage keeps going with
// its remaining agents.
func (o *Orchestrator) runAgent(ctx context.Context, req StageRequest, desc agent.Descriptor, rendered string) agent.Output {
	task := agent.Task{
		Agent:     desc,
		Stage:     req.Stage,
		SpecID:    req.SpecID,
		RunID:     req.RunID,
		Prompt:    rendered,
		Timeout:   o.agentTimeout,
		StartedAt: time.Now(),
	}

	var result *agent.Output
	err := retry.Do(ctx, o.policy, func(ctx context.Context) error {
		callCtx, cancel := context.WithTimeout(ctx, o.agentTimeout)
		defer cancel()

		out, err := o.exec.Submit(callCtx, task)
		if err != nil {
			return err
		}
		if out == nil {
			return retry.Permanent(agent.NewError(agent.KindMalformed, desc.Name, "executor returned no output", nil))
		}
		result = out
		return nil
	})

	elapsed := time.Since(task.StartedAt)
	if err != nil {
		status := agent.StatusFailed
		if agent.KindOf(err) == agent.KindTimeout || errors.Is(err, context.DeadlineExceeded) {
			status = agent.StatusTimeout
		}
		fmt.Fprintf(o.progress, "[%s] %s: agent %s %s after %s: %v\n",
			req.SpecID, req.Stage.Key(), desc.Name, status, elapsed.Round(time.Millisecond), err)
		return agent.Output{
			Agent:    desc.Name,
			Stage:    req.Stage.Key(),
			Status:   status,
			Duration: elapsed,
			Error:    err.Error(),
		}
	}

	result.Agent = desc.Name
	result.Stage = req.Stage.Key()
	if result.Status == "" {
		result.Status = agent.StatusSuccess
	}
	result.Duration = elapsed
	fmt.Fprintf(o.progress, "[%s] %s: agent %s %s in %s\n",
		req.SpecID, req.Stage.Key(), desc.Name, result.Status, elapsed.Round(time.Millisecond))
	return *result
}

// persist writes a successful output through to the store and the evidence
// repository; failures go to the event log. Store writes are a single
// insert each, so a cancelled run never leaves a partial row.
func (o *Orchestrator) persist(ctx context.Context, req StageRequest, out *agent.Output) {
	if !out.Succeeded() {
		detail, _ := json.Marshal(map[string]string{
			"agent":  out.Agent,
			"status": string(out.Status),
			"error":  out.Error,
		})
		_ = o.store.LogEvent(ctx, req.SpecID, req.RunID, req.Stage.Key(), "agent_failed", string(detail))
		return
	}

	payload, err := json.Marshal(out)
	if err != nil {
		fmt.Fprintf(o.progress, "[%s] %s: marshal output for %s: %v\n",
			req.SpecID, req.Stage.Key(), out.Agent, err)
		return
	}
	if err := o.store.PutArtifact(ctx, store.Artifact{
		SpecID:  req.SpecID,
		Stage:   req.Stage.Key(),
		RunID:   req.RunID,
		Agent:   out.Agent,
		Kind:    store.KindOutput,
		Content: string(payload),
	}); err != nil {
		fmt.Fprintf(o.progress, "[%s] %s: cache write for %s failed: %v\n",
			req.SpecID, req.Stage.Key(), out.Agent, err)
	}
	if o.evidence != nil {
		if _, err := o.evidence.Write(evidence.Record{
			SpecID:  req.SpecID,
			Stage:   req.Stage.Key(),
			RunID:   req.RunID,
			Agent:   out.Agent,
			Content: out.Content,
		}); err != nil {
			fmt.Fprintf(o.progress, "[%s] %s: evidence write for %s failed: %v\n",
				req.SpecID, req.Stage.Key(), out.Agent, err)
		}
	}
}
