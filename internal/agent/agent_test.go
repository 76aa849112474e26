package agent

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"testing"
	"time"

	"github.com/rmclaren/quorumpipe/internal/stage"
)

func TestError_Transient(t *testing.T) {
	tests := []struct {
		kind ErrorKind
		want bool
	}{
		{KindUnavailable, true},
		{KindCallFailed, true},
		{KindTimeout, true},
		{KindNotAuthenticated, false},
		{KindMalformed, false},
	}
	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			err := NewError(tt.kind, "claude", "x", nil)
			if err.Transient() != tt.want {
				t.Errorf("Transient = %v, want %v", err.Transient(), tt.want)
			}
		})
	}
}

func TestKindOf(t *testing.T) {
	wrapped := fmt.Errorf("submit: %w", NewError(KindTimeout, "codex", "deadline", nil))
	if got := KindOf(wrapped); got != KindTimeout {
		t.Errorf("KindOf wrapped = %s, want timeout", got)
	}
	if got := KindOf(errors.New("plain")); got != KindCallFailed {
		t.Errorf("KindOf plain = %s, want call_failed", got)
	}
}

func TestRegistry_SortedRoster(t *testing.T) {
	r := NewRegistry()
	r.Register(TierStandard, stage.Plan,
		Descriptor{Name: "zeta"}, Descriptor{Name: "alpha"}, Descriptor{Name: "mid"})

	agents := r.For(TierStandard, stage.Plan)
	names := make([]string, len(agents))
	for i, a := range agents {
		names[i] = a.Name
	}
	if !reflect.DeepEqual(names, []string{"alpha", "mid", "zeta"}) {
		t.Errorf("names = %v, want sorted", names)
	}
}

func TestDefaultRegistry_EveryStageStaffed(t *testing.T) {
	r := DefaultRegistry()
	for _, tier := range []Tier{TierFast, TierStandard, TierPremium} {
		for _, st := range stage.All() {
			if agents := r.For(tier, st); len(agents) == 0 {
				t.Errorf("no agents for (%s, %s)", tier, st.Key())
			}
		}
	}
	// Sequential stages run a tighter roster.
	if n := len(r.For(TierStandard, stage.Implement)); n != 2 {
		t.Errorf("implement roster = %d agents, want 2", n)
	}
}

// fakeRunner scripts one CommandRunner response.
type fakeRunner struct {
	stdout   string
	stderr   string
	exitCode int
	err      error
	gotName  string
	gotStdin string
}

func (f *fakeRunner) Run(ctx context.Context, name string, args []string, stdin string) (string, string, int, error) {
	f.gotName = name
	f.gotStdin = stdin
	return f.stdout, f.stderr, f.exitCode, f.err
}

func task(name string) Task {
	return Task{
		Agent:  Descriptor{Name: name},
		Stage:  stage.Plan,
		SpecID: "spec-1",
		Prompt: "do the thing",
	}
}

func TestCLIExecutor_Success(t *testing.T) {
	runner := &fakeRunner{stdout: "  result text\n"}
	exec := NewCLIExecutor(runner)

	out, err := exec.Submit(context.Background(), task("claude"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if runner.gotName != "claude" {
		t.Errorf("invoked %q, want agent name as binary", runner.gotName)
	}
	if runner.gotStdin != "do the thing" {
		t.Errorf("stdin = %q", runner.gotStdin)
	}
	if out.Content != "result text" {
		t.Errorf("content = %q, want trimmed stdout", out.Content)
	}
	if out.Status != StatusSuccess {
		t.Errorf("status = %s", out.Status)
	}
	if out.OutputTokens == 0 || out.InputTokens == 0 {
		t.Error("token estimates should be non-zero")
	}
}

func TestCLIExecutor_ErrorKinds(t *testing.T) {
	tests := []struct {
		name   string
		runner *fakeRunner
		want   ErrorKind
	}{
		{"binary missing", &fakeRunner{err: errors.New("exec: not found"), exitCode: -1}, KindUnavailable},
		{"nonzero exit", &fakeRunner{exitCode: 2, stderr: "panic"}, KindCallFailed},
		{"auth failure", &fakeRunner{exitCode: 1, stderr: "error: not logged in"}, KindNotAuthenticated},
		{"empty stdout", &fakeRunner{stdout: "   \n"}, KindMalformed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exec := NewCLIExecutor(tt.runner)
			_, err := exec.Submit(context.Background(), task("codex"))
			if err == nil {
				t.Fatal("expected error")
			}
			if got := KindOf(err); got != tt.want {
				t.Errorf("kind = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestCLIExecutor_Timeout(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Millisecond)
	defer cancel()
	<-ctx.Done()

	runner := &fakeRunner{err: errors.New("signal: killed"), exitCode: -1}
	exec := NewCLIExecutor(runner)

	_, err := exec.Submit(ctx, task("gemini"))
	if got := KindOf(err); got != KindTimeout {
		t.Errorf("kind = %s, want timeout when the deadline expired", got)
	}
}
