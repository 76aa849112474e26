package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/rmclaren/quorumpipe/internal/gate"
)

// TerminalEscalator presents escalated gate questions on the terminal and
// blocks until the operator answers. There is no timeout: an unanswered
// question suspends the run indefinitely.
type TerminalEscalator struct {
	in  *bufio.Reader
	out io.Writer
}

func NewTerminalEscalator(in io.Reader, out io.Writer) *TerminalEscalator {
	return &TerminalEscalator{in: bufio.NewReader(in), out: out}
}

func (t *TerminalEscalator) Present(ctx context.Context, q gate.Question) (string, error) {
	fmt.Fprintf(t.out, "\n[%s/%s] %s\n", q.Analyzer, q.Severity, q.Question)
	if q.Context != "" {
		fmt.Fprintf(t.out, "  context: %s\n", q.Context)
	}
	if len(q.Answers) > 0 {
		agents := make([]string, 0, len(q.Answers))
		for a := range q.Answers {
			agents = append(agents, a)
		}
		sort.Strings(agents)
		for _, a := range agents {
			fmt.Fprintf(t.out, "  %s suggests: %s\n", a, q.Answers[a])
		}
	}
	if q.Recommended != "" {
		fmt.Fprintf(t.out, "  recommended: %s\n", q.Recommended)
	}
	fmt.Fprint(t.out, "answer> ")

	// The read happens on its own goroutine so an aborted run stops waiting
	// for the operator. A stdin read cannot be interrupted, so on abort the
	// goroutine is left behind until the line (or EOF) arrives.
	type readResult struct {
		line string
		err  error
	}
	ch := make(chan readResult, 1)
	go func() {
		line, err := t.in.ReadString('\n')
		ch <- readResult{line: line, err: err}
	}()

	var line string
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		if res.err != nil && res.line == "" {
			return "", fmt.Errorf("read answer: %w", res.err)
		}
		line = res.line
	}

	answer := strings.TrimSpace(line)
	if answer == "" && q.Recommended != "" {
		answer = q.Recommended
	}
	return answer, nil
}
