package evidence

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestWrite_CreatesTimestampedRecord(t *testing.T) {
	repo := NewRepository(t.TempDir())

	path, err := repo.Write(Record{
		SpecID: "spec-1", Stage: "plan", Agent: "claude", Content: "analysis",
	})
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	if !strings.HasPrefix(filepath.Base(path), "plan_claude_") {
		t.Errorf("file name %q should carry stage and agent", filepath.Base(path))
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("stat evidence file: %v", err)
	}

	entries, err := os.ReadDir(filepath.Join(repo.BaseDir(), "spec-1"))
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".tmp-") {
			t.Errorf("temp file %q left behind", e.Name())
		}
	}
}

func TestWrite_RejectsMissingKeys(t *testing.T) {
	repo := NewRepository(t.TempDir())
	if _, err := repo.Write(Record{SpecID: "spec-1", Stage: "plan"}); err == nil {
		t.Error("record without agent should be rejected")
	}
}

func TestLoad_LatestPerAgent(t *testing.T) {
	repo := NewRepository(t.TempDir())

	writes := []Record{
		{SpecID: "spec-1", Stage: "plan", Agent: "claude", Content: "old"},
		{SpecID: "spec-1", Stage: "plan", Agent: "claude", Content: "new"},
		{SpecID: "spec-1", Stage: "plan", Agent: "codex", Content: "only"},
		{SpecID: "spec-1", Stage: "tasks", Agent: "claude", Content: "other stage"},
	}
	for _, rec := range writes {
		if _, err := repo.Write(rec); err != nil {
			t.Fatalf("write: %v", err)
		}
	}

	records, err := repo.Load("spec-1", "plan")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("records = %d, want one per agent", len(records))
	}
	byAgent := make(map[string]string)
	for _, rec := range records {
		byAgent[rec.Agent] = rec.Content
	}
	if byAgent["claude"] != "new" {
		t.Errorf("claude content = %q, want the newer record", byAgent["claude"])
	}
	if byAgent["codex"] != "only" {
		t.Errorf("codex content = %q", byAgent["codex"])
	}
}

func TestLoad_MissingSpecIsEmpty(t *testing.T) {
	repo := NewRepository(t.TempDir())
	records, err := repo.Load("nope", "plan")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if records != nil {
		t.Errorf("records = %v, want nil for unknown spec", records)
	}
}
