package cli

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/rmclaren/quorumpipe/internal/gate"
)

func TestTerminalEscalator_ReadsAnswer(t *testing.T) {
	var out bytes.Buffer
	esc := NewTerminalEscalator(strings.NewReader("use postgres\n"), &out)

	answer, err := esc.Present(context.Background(), gate.Question{
		ID:          "q1",
		Analyzer:    "clarify",
		Severity:    gate.SeverityCritical,
		Question:    "which database?",
		Answers:     map[string]string{"claude": "postgres", "codex": "sqlite"},
		Recommended: "postgres",
	})
	if err != nil {
		t.Fatalf("present: %v", err)
	}
	if answer != "use postgres" {
		t.Errorf("answer = %q", answer)
	}

	prompt := out.String()
	if !strings.Contains(prompt, "which database?") {
		t.Error("question missing from the prompt")
	}
	if !strings.Contains(prompt, "claude suggests: postgres") {
		t.Error("agent suggestions missing from the prompt")
	}
	if !strings.Contains(prompt, "recommended: postgres") {
		t.Error("recommendation missing from the prompt")
	}
}

func TestTerminalEscalator_EmptyAnswerTakesRecommended(t *testing.T) {
	var out bytes.Buffer
	esc := NewTerminalEscalator(strings.NewReader("\n"), &out)

	answer, err := esc.Present(context.Background(), gate.Question{
		ID:          "q1",
		Question:    "which database?",
		Recommended: "postgres",
	})
	if err != nil {
		t.Fatalf("present: %v", err)
	}
	if answer != "postgres" {
		t.Errorf("answer = %q, want the recommendation", answer)
	}
}

func TestTerminalEscalator_AbortStopsWaiting(t *testing.T) {
	// A pipe with no writer: the read blocks until the run is aborted.
	pr, pw := io.Pipe()
	t.Cleanup(func() { pw.Close() })
	esc := NewTerminalEscalator(pr, io.Discard)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := esc.Present(ctx, gate.Question{ID: "q1", Question: "still there?"})
		done <- err
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("err = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Present did not return after abort")
	}
}

func TestTerminalEscalator_EOFWithoutAnswerFails(t *testing.T) {
	esc := NewTerminalEscalator(strings.NewReader(""), io.Discard)
	if _, err := esc.Present(context.Background(), gate.Question{ID: "q1", Question: "anyone?"}); err == nil {
		t.Error("EOF before any input must fail")
	}
}
