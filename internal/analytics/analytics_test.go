package analytics

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/rmclaren/quorumpipe/internal/agent"
	"github.com/rmclaren/quorumpipe/internal/stage"
	"github.com/rmclaren/quorumpipe/internal/store"
)

func testStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"), store.Options{})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func putOutput(t *testing.T, s *store.Store, specID string, st stage.Stage, out agent.Output) {
	t.Helper()
	out.Stage = st.Key()
	payload, err := json.Marshal(out)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.PutArtifact(context.Background(), store.Artifact{
		SpecID: specID, Stage: st.Key(), RunID: "r1", Agent: out.Agent,
		Kind: store.KindOutput, Content: string(payload),
	}); err != nil {
		t.Fatal(err)
	}
}

func TestSummarize(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	putOutput(t, s, "spec-1", stage.Specify, agent.Output{
		Agent: "claude", Content: "a", Status: agent.StatusSuccess,
		InputTokens: 100, OutputTokens: 40, Duration: 2 * time.Second,
	})
	putOutput(t, s, "spec-1", stage.Specify, agent.Output{
		Agent: "gemini", Content: "b", Status: agent.StatusSuccess,
		InputTokens: 80, OutputTokens: 60, Duration: 4 * time.Second,
	})
	putOutput(t, s, "spec-1", stage.Specify, agent.Output{
		Agent: "codex", Status: agent.StatusFailed, Error: "call failed",
		Duration: time.Second,
	})
	putOutput(t, s, "spec-1", stage.Plan, agent.Output{
		Agent: "claude", Content: "plan", Status: agent.StatusSuccess,
		OutputTokens: 30, Duration: 6 * time.Second,
	})

	if err := s.CompleteCheckpoint(ctx, "spec-1", "before-specify", "r1"); err != nil {
		t.Fatal(err)
	}
	hash := store.PayloadHash("standard", "validate", "spec-1", "payload")
	for i := 0; i < 3; i++ {
		if _, err := s.BeginAttempt(ctx, hash, "spec-1", "validate", "r1"); err != nil {
			t.Fatal(err)
		}
	}

	sum, err := Summarize(ctx, s, "spec-1")
	if err != nil {
		t.Fatalf("summarize: %v", err)
	}
	if sum.SpecID != "spec-1" || len(sum.Stages) != 2 {
		t.Fatalf("summary = %+v", sum)
	}

	spec := sum.Stages[0]
	if spec.Stage != "specify" {
		t.Fatalf("first stage = %s, want pipeline order", spec.Stage)
	}
	if spec.Outputs != 3 || spec.Failures != 1 {
		t.Errorf("counts = %d/%d", spec.Outputs, spec.Failures)
	}
	if spec.InputTokens != 180 || spec.OutputTokens != 100 {
		t.Errorf("tokens = %d/%d", spec.InputTokens, spec.OutputTokens)
	}
	// Durations 1s, 2s, 4s.
	if spec.AvgSeconds != 2.3 {
		t.Errorf("avg = %v", spec.AvgSeconds)
	}
	if spec.P50Seconds != 2.0 {
		t.Errorf("p50 = %v", spec.P50Seconds)
	}

	if len(sum.Checkpoints) != 1 || sum.Checkpoints[0] != "before-specify" {
		t.Errorf("checkpoints = %v", sum.Checkpoints)
	}
	if sum.DedupeHits != 2 {
		t.Errorf("dedupe hits = %d", sum.DedupeHits)
	}
	if sum.TotalArtifacts != 4 {
		t.Errorf("total artifacts = %d", sum.TotalArtifacts)
	}
}

func TestSummarize_LatestRowWins(t *testing.T) {
	s := testStore(t)

	putOutput(t, s, "spec-1", stage.Audit, agent.Output{
		Agent: "claude", Status: agent.StatusFailed, Duration: time.Second,
	})
	putOutput(t, s, "spec-1", stage.Audit, agent.Output{
		Agent: "claude", Content: "done", Status: agent.StatusSuccess,
		OutputTokens: 25, Duration: 3 * time.Second,
	})

	sum, err := Summarize(context.Background(), s, "spec-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(sum.Stages) != 1 {
		t.Fatalf("stages = %+v", sum.Stages)
	}
	audit := sum.Stages[0]
	if audit.Outputs != 1 || audit.Failures != 0 || audit.OutputTokens != 25 {
		t.Errorf("stats = %+v, want only the retried row", audit)
	}
}

func TestSummarize_EmptySpec(t *testing.T) {
	s := testStore(t)
	sum, err := Summarize(context.Background(), s, "nothing")
	if err != nil {
		t.Fatalf("summarize: %v", err)
	}
	if len(sum.Stages) != 0 || sum.TotalArtifacts != 0 || sum.DedupeHits != 0 {
		t.Errorf("summary = %+v", sum)
	}
}

func TestPercentile(t *testing.T) {
	sorted := []float64{1, 2, 3, 4, 10}
	if got := percentile(sorted, 50); got != 3 {
		t.Errorf("p50 = %v", got)
	}
	if got := percentile(sorted, 100); got != 10 {
		t.Errorf("p100 = %v", got)
	}
	if got := percentile(nil, 95); got != 0 {
		t.Errorf("empty = %v", got)
	}
	if got := avg([]float64{1, 2}); got != 1.5 {
		t.Errorf("avg = %v", got)
	}
}
