package prompt

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestRender_SimpleVars(t *testing.T) {
	tmpl := "Agent {{agent}} working on {{spec_id}}."
	result, err := Render(tmpl, Vars{"agent": "claude", "spec_id": "spec-42"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != "Agent claude working on spec-42." {
		t.Errorf("got %q", result)
	}
}

func TestRender_MissingVar(t *testing.T) {
	_, err := Render("Hello {{agent}}, stage {{stage}}.", Vars{"agent": "claude"})
	if err == nil {
		t.Fatal("expected error for missing variable")
	}
	if !strings.Contains(err.Error(), "stage") {
		t.Errorf("error should name the missing variable: %v", err)
	}
}

func TestRender_ConditionalIncluded(t *testing.T) {
	tmpl := "Start.{{#if transcript}} Prior: {{transcript}}.{{/if}} End."

	with, err := Render(tmpl, Vars{"transcript": "notes"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if with != "Start. Prior: notes. End." {
		t.Errorf("got %q", with)
	}

	without, err := Render(tmpl, Vars{"transcript": ""})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if without != "Start. End." {
		t.Errorf("got %q", without)
	}
}

func TestRender_NestedConditionals(t *testing.T) {
	tmpl := "{{#if a}}A{{#if b}}B{{/if}}{{/if}}"

	got, err := Render(tmpl, Vars{"a": "1", "b": "1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "AB" {
		t.Errorf("got %q, want AB", got)
	}

	got, err = Render(tmpl, Vars{"a": "1", "b": ""})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "A" {
		t.Errorf("got %q, want A", got)
	}
}

func TestRender_DanglingClose(t *testing.T) {
	if _, err := Render("text {{/if}}", Vars{}); err == nil {
		t.Error("dangling close tag should fail")
	}
}

func TestRender_UnclosedOpen(t *testing.T) {
	if _, err := Render("{{#if a}} body", Vars{"a": "1"}); err == nil {
		t.Error("unclosed conditional should fail")
	}
}

func TestForStage_BuiltinsCoverAllStages(t *testing.T) {
	for _, key := range []string{"specify", "plan", "tasks", "implement", "validate", "audit"} {
		tmpl, err := ForStage(key, "")
		if err != nil {
			t.Fatalf("ForStage(%q): %v", key, err)
		}
		if !strings.Contains(tmpl, "{{spec_id}}") {
			t.Errorf("%s template should reference the spec id", key)
		}
	}
	if _, err := ForStage("deploy", ""); err == nil {
		t.Error("unknown stage should fail")
	}
}

func TestForStage_OverrideWins(t *testing.T) {
	dir := t.TempDir()
	custom := "custom plan prompt for {{spec_id}}"
	if err := os.WriteFile(filepath.Join(dir, "plan.md"), []byte(custom), 0o644); err != nil {
		t.Fatal(err)
	}

	tmpl, err := ForStage("plan", dir)
	if err != nil {
		t.Fatalf("ForStage: %v", err)
	}
	if tmpl != custom {
		t.Errorf("override not used, got %q", tmpl)
	}

	// Other stages keep their built-ins.
	tmpl, err = ForStage("audit", dir)
	if err != nil {
		t.Fatalf("ForStage: %v", err)
	}
	if tmpl == custom {
		t.Error("audit should not pick up the plan override")
	}
}
