// Package evidence is the file-backed artifact repository: raw agent output
// written alongside the durable store, and the last line of recovery when
// both the store and the archive service come up empty.
package evidence

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Record is one agent output persisted as an evidence file.
type Record struct {
	SpecID     string `json:"spec_id"`
	Stage      string `json:"stage"`
	RunID      string `json:"run_id,omitempty"`
	Agent      string `json:"agent"`
	Content    string `json:"content"`
	RecordedAt string `json:"recorded_at"`
}

// Repository stores evidence files under baseDir/<spec>/<stage>_<agent>_<ts>.json.
type Repository struct {
	baseDir string
}

// NewRepository creates a Repository rooted at baseDir.
func NewRepository(baseDir string) *Repository {
	return &Repository{baseDir: baseDir}
}

// DefaultRepository returns a Repository at ~/.quorumpipe/evidence.
func DefaultRepository() (*Repository, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("get home dir: %w", err)
	}
	dir := filepath.Join(home, ".quorumpipe", "evidence")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("mkdir %s: %w", dir, err)
	}
	return &Repository{baseDir: dir}, nil
}

// BaseDir returns the repository root.
func (r *Repository) BaseDir() string { return r.baseDir }

// Write persists one record atomically. Evidence files are append-only at
// the directory level: each write gets a fresh timestamped name.
func (r *Repository) Write(rec Record) (string, error) {
	if rec.SpecID == "" || rec.Stage == "" || rec.Agent == "" {
		return "", fmt.Errorf("evidence record missing key fields (spec=%q stage=%q agent=%q)",
			rec.SpecID, rec.Stage, rec.Agent)
	}
	if rec.RecordedAt == "" {
		rec.RecordedAt = time.Now().UTC().Format(time.RFC3339)
	}

	name := fmt.Sprintf("%s_%s_%s.json", rec.Stage, rec.Agent, time.Now().UTC().Format("20060102T150405.000000000"))
	path := filepath.Join(r.baseDir, rec.SpecID, name)
	if err := writeJSONAtomic(path, rec); err != nil {
		return "", err
	}
	return path, nil
}

// Load returns the most recent record per agent for (spec, stage), or nil
// when no evidence exists. Lexical order on the timestamped names gives
// newest-last, so later files for the same agent replace earlier ones.
func (r *Repository) Load(specID, stg string) ([]Record, error) {
	dir := filepath.Join(r.baseDir, specID)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read evidence dir %s: %w", dir, err)
	}

	prefix := stg + "_"
	byAgent := make(map[string]Record)
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, ".json") {
			continue
		}
		var rec Record
		if err := readJSON(filepath.Join(dir, name), &rec); err != nil {
			continue // unreadable evidence is skipped, not fatal
		}
		if rec.Agent == "" {
			continue
		}
		byAgent[rec.Agent] = rec
	}

	if len(byAgent) == 0 {
		return nil, nil
	}
	out := make([]Record, 0, len(byAgent))
	for _, rec := range byAgent {
		out = append(out, rec)
	}
	return out, nil
}

// writeJSONAtomic writes v as indented JSON via temp-file-and-rename so a
// cancelled run never leaves a partial record.
func writeJSONAtomic(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal json: %w", err)
	}
	data = append(data, '\n')

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		if tmpName != "" {
			os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename %s -> %s: %w", tmpName, path, err)
	}
	tmpName = ""
	return nil
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("unmarshal %s: %w", path, err)
	}
	return nil
}
