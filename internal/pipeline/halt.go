package pipeline

import (
	"errors"
	"fmt"

	"github.com/rmclaren/quorumpipe/internal/consensus"
	"github.com/rmclaren/quorumpipe/internal/stage"
)

// HaltError stops a run at a phase boundary. All durable state written up
// to the halt (artifacts, verdicts, completed checkpoints, attempts) stays
// in place, so a later resume from Stage does not repeat finished work.
type HaltError struct {
	Stage   stage.Stage
	Phase   string
	Reason  string
	Verdict *consensus.Verdict
	Err     error
}

func (e *HaltError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("pipeline halted at %s (%s): %s: %v", e.Stage.Key(), e.Phase, e.Reason, e.Err)
	}
	return fmt.Sprintf("pipeline halted at %s (%s): %s", e.Stage.Key(), e.Phase, e.Reason)
}

func (e *HaltError) Unwrap() error { return e.Err }

// Halted reports whether err is (or wraps) a HaltError and returns it.
func Halted(err error) (*HaltError, bool) {
	var halt *HaltError
	if errors.As(err, &halt) {
		return halt, true
	}
	return nil, false
}
