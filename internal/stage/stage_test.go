package stage

import "testing"

func TestStage_IndicesAndKeys(t *testing.T) {
	wants := []struct {
		st  Stage
		idx int
		key string
	}{
		{Specify, 0, "specify"},
		{Plan, 1, "plan"},
		{Tasks, 2, "tasks"},
		{Implement, 3, "implement"},
		{Validate, 4, "validate"},
		{Audit, 5, "audit"},
	}
	for _, w := range wants {
		if int(w.st) != w.idx {
			t.Errorf("%s index = %d, want %d", w.key, int(w.st), w.idx)
		}
		if w.st.Key() != w.key {
			t.Errorf("key = %q, want %q", w.st.Key(), w.key)
		}
	}
	if Count != 6 {
		t.Errorf("Count = %d, want 6", Count)
	}
}

func TestParse_RoundTrip(t *testing.T) {
	for _, st := range All() {
		got, err := Parse(st.Key())
		if err != nil {
			t.Fatalf("Parse(%q): %v", st.Key(), err)
		}
		if got != st {
			t.Errorf("Parse(%q) = %v, want %v", st.Key(), got, st)
		}
	}
	if _, err := Parse("deploy"); err == nil {
		t.Error("Parse of unknown stage should fail")
	}
}

func TestNext_StopsAtAudit(t *testing.T) {
	if next, ok := Implement.Next(); !ok || next != Validate {
		t.Errorf("Implement.Next() = %v, %v", next, ok)
	}
	if _, ok := Audit.Next(); ok {
		t.Error("Audit must be terminal")
	}
}

func TestDefaults_CoverEveryStage(t *testing.T) {
	seen := make(map[Stage]Descriptor)
	for _, d := range Defaults() {
		seen[d.Stage] = d
	}
	for _, st := range All() {
		d, ok := seen[st]
		if !ok {
			t.Fatalf("no default descriptor for %s", st.Key())
		}
		if d.AgentCount < 1 {
			t.Errorf("%s agent count = %d", st.Key(), d.AgentCount)
		}
	}
	if seen[Implement].Pattern != Sequential {
		t.Errorf("implement pattern = %s, want sequential", seen[Implement].Pattern)
	}
	if seen[Plan].Pattern != Parallel {
		t.Errorf("plan pattern = %s, want parallel", seen[Plan].Pattern)
	}
}

func TestCheckpointBindings(t *testing.T) {
	wants := []struct {
		cp       Checkpoint
		name     string
		analyzer string
		gates    Stage
	}{
		{BeforeSpecify, "before-specify", "clarify", Plan},
		{AfterSpecify, "after-specify", "checklist", Tasks},
		{AfterTasks, "after-tasks", "analyze", Implement},
	}
	for _, w := range wants {
		if w.cp.Name() != w.name {
			t.Errorf("name = %q, want %q", w.cp.Name(), w.name)
		}
		if w.cp.Analyzer() != w.analyzer {
			t.Errorf("%s analyzer = %q, want %q", w.name, w.cp.Analyzer(), w.analyzer)
		}
		if w.cp.Gates() != w.gates {
			t.Errorf("%s gates %s, want %s", w.name, w.cp.Gates().Key(), w.gates.Key())
		}
	}
}

func TestCheckpointBefore(t *testing.T) {
	if cp, ok := CheckpointBefore(Plan); !ok || cp != BeforeSpecify {
		t.Errorf("CheckpointBefore(Plan) = %v, %v", cp, ok)
	}
	if _, ok := CheckpointBefore(Specify); ok {
		t.Error("specify has no checkpoint")
	}
	if _, ok := CheckpointBefore(Validate); ok {
		t.Error("validate has no checkpoint")
	}
}
