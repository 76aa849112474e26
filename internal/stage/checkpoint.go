package stage

import (
	"fmt"
	"strings"
)

// Checkpoint is a named quality gate bound to a point before a specific stage.
type Checkpoint int

const (
	// BeforeSpecify runs the clarify analyzer before planning begins, so
	// ambiguities in the freshly written spec are resolved early.
	BeforeSpecify Checkpoint = iota
	// AfterSpecify runs the checklist analyzer before task breakdown.
	AfterSpecify
	// AfterTasks runs the full consistency analyzer before implementation.
	AfterTasks
)

// Checkpoints returns all checkpoints in pipeline order.
func Checkpoints() [3]Checkpoint {
	return [3]Checkpoint{BeforeSpecify, AfterSpecify, AfterTasks}
}

// Name returns the canonical checkpoint name used in the completed set.
func (c Checkpoint) Name() string {
	switch c {
	case BeforeSpecify:
		return "before-specify"
	case AfterSpecify:
		return "after-specify"
	case AfterTasks:
		return "after-tasks"
	}
	return fmt.Sprintf("checkpoint(%d)", int(c))
}

// Analyzer returns the name of the deterministic analyzer bound to this gate.
func (c Checkpoint) Analyzer() string {
	switch c {
	case BeforeSpecify:
		return "clarify"
	case AfterSpecify:
		return "checklist"
	case AfterTasks:
		return "analyze"
	}
	return ""
}

// Gates returns the stage the checkpoint guards: the gate runs after the
// producing stage completes and before this stage's agents are spawned.
func (c Checkpoint) Gates() Stage {
	switch c {
	case BeforeSpecify:
		return Plan
	case AfterSpecify:
		return Tasks
	case AfterTasks:
		return Implement
	}
	return Specify
}

// ParseCheckpoint resolves a checkpoint from its canonical name.
func ParseCheckpoint(name string) (Checkpoint, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "before-specify":
		return BeforeSpecify, nil
	case "after-specify":
		return AfterSpecify, nil
	case "after-tasks":
		return AfterTasks, nil
	}
	return 0, fmt.Errorf("unknown checkpoint %q", name)
}

// CheckpointBefore returns the checkpoint guarding entry to the given stage,
// if one is bound there.
func CheckpointBefore(s Stage) (Checkpoint, bool) {
	for _, c := range Checkpoints() {
		if c.Gates() == s {
			return c, true
		}
	}
	return 0, false
}
