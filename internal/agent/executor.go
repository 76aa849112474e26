package agent

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// CommandRunner abstracts worker invocation for testability.
type CommandRunner interface {
	Run(ctx context.Context, name string, args []string, stdin string) (stdout, stderr string, exitCode int, err error)
}

// ExecRunner implements CommandRunner by shelling out.
type ExecRunner struct{}

func (e *ExecRunner) Run(ctx context.Context, name string, args []string, stdin string) (string, string, int, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdin = strings.NewReader(stdin)

	var stdoutBuf, stderrBuf strings.Builder
	cmd.Stdout = &stdoutBuf
	cmd.Stderr = &stderrBuf

	err := cmd.Run()
	exitCode := 0
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode()
		} else {
			return stdoutBuf.String(), stderrBuf.String(), -1, fmt.Errorf("exec: %w", err)
		}
	}
	return stdoutBuf.String(), stderrBuf.String(), exitCode, nil
}

// CLIExecutor submits tasks to agent worker CLIs. The agent's name doubles
// as its binary: the rendered prompt goes to stdin, the response is raw
// stdout. Extra per-agent arguments can be registered up front.
type CLIExecutor struct {
	runner CommandRunner
	args   map[string][]string
}

func NewCLIExecutor(runner CommandRunner) *CLIExecutor {
	if runner == nil {
		runner = &ExecRunner{}
	}
	return &CLIExecutor{runner: runner, args: make(map[string][]string)}
}

// SetArgs registers extra command-line arguments for one agent binary.
func (e *CLIExecutor) SetArgs(agentName string, args ...string) {
	e.args[agentName] = args
}

func (e *CLIExecutor) Submit(ctx context.Context, t Task) (*Output, error) {
	start := time.Now()
	stdout, stderr, exitCode, err := e.runner.Run(ctx, t.Agent.Name, e.args[t.Agent.Name], t.Prompt)
	elapsed := time.Since(start)

	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, NewError(KindTimeout, t.Agent.Name, "call exceeded deadline", ctx.Err())
		}
		return nil, NewError(KindUnavailable, t.Agent.Name, "worker not runnable", err)
	}
	if exitCode != 0 {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, NewError(KindTimeout, t.Agent.Name, "call exceeded deadline", ctx.Err())
		}
		if authFailure(stderr) {
			return nil, NewError(KindNotAuthenticated, t.Agent.Name,
				fmt.Sprintf("exit %d: %s", exitCode, firstLine(stderr)), nil)
		}
		return nil, NewError(KindCallFailed, t.Agent.Name,
			fmt.Sprintf("exit %d: %s", exitCode, firstLine(stderr)), nil)
	}
	content := strings.TrimSpace(stdout)
	if content == "" {
		return nil, NewError(KindMalformed, t.Agent.Name, "empty response", nil)
	}

	return &Output{
		Agent:        t.Agent.Name,
		Stage:        t.Stage.Key(),
		Content:      content,
		InputTokens:  approxTokens(t.Prompt),
		OutputTokens: approxTokens(content),
		Status:       StatusSuccess,
		Duration:     elapsed,
	}, nil
}

func authFailure(stderr string) bool {
	s := strings.ToLower(stderr)
	return strings.Contains(s, "not authenticated") ||
		strings.Contains(s, "not logged in") ||
		strings.Contains(s, "api key")
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

// approxTokens estimates usage when a worker reports none. Four bytes per
// token tracks the tokenizers the workers use closely enough for cost
// bookkeeping.
func approxTokens(s string) int {
	return (len(s) + 3) / 4
}
