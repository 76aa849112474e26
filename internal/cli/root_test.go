package cli

import (
	"bytes"
	"strings"
	"testing"
)

func executeCommand(args ...string) (string, error) {
	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	// Reset the sticky --help flag so one test's help invocation does not
	// leak into the next command execution.
	for _, c := range append(rootCmd.Commands(), rootCmd) {
		if f := c.Flags().Lookup("help"); f != nil {
			f.Value.Set("false")
			f.Changed = false
		}
	}
	return buf.String(), err
}

func TestVersionCommand(t *testing.T) {
	SetVersion("test-version")
	out, err := executeCommand("version")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "test-version") {
		t.Errorf("expected version output to contain 'test-version', got: %s", out)
	}
}

func TestRootHelp(t *testing.T) {
	out, err := executeCommand("--help")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expectedSubcommands := []string{
		"run", "resume", "status", "checkpoints", "attempts",
		"events", "stats", "clear", "version",
	}
	for _, sub := range expectedSubcommands {
		if !strings.Contains(out, sub) {
			t.Errorf("help output missing subcommand %q", sub)
		}
	}
}

func TestCommandHelp(t *testing.T) {
	for _, sub := range []string{"run", "resume", "status", "stats", "clear"} {
		out, err := executeCommand(sub, "--help")
		if err != nil {
			t.Errorf("%s --help failed: %v", sub, err)
		}
		if out == "" {
			t.Errorf("%s --help produced no output", sub)
		}
	}
}

func TestRunRequiresBrief(t *testing.T) {
	if _, err := executeCommand("run", "spec-1"); err == nil {
		t.Error("run without a brief should fail")
	}
}

func TestUnknownCommand(t *testing.T) {
	_, err := executeCommand("nonexistent")
	if err == nil {
		t.Error("expected error for unknown command, got nil")
	}
}
