package orchestrator

import (
	"fmt"
	"sync"

	"github.com/rmclaren/quorumpipe/internal/stage"
)

// ErrInFlight is returned when a (spec, stage) orchestration is already
// running. Sentinel so callers can branch with errors.Is.
var ErrInFlight = fmt.Errorf("orchestration already in flight")

type flightKey struct {
	specID string
	stage  stage.Stage
}

// RunRegistry is the single-flight guard: at most one orchestration may be
// active for a given (spec, stage) at a time. Insert and remove are atomic
// with respect to concurrent spawn attempts for the same key.
type RunRegistry struct {
	mu       sync.Mutex
	inflight map[flightKey]string // key -> run id
}

// NewRunRegistry returns an empty registry. One registry is created per
// session and passed to every component; there is no process-wide instance.
func NewRunRegistry() *RunRegistry {
	return &RunRegistry{inflight: make(map[flightKey]string)}
}

// Begin claims (spec, stage) for runID. It returns a release func on
// success, or ErrInFlight (wrapped with the holder's run id) when another
// run already holds the key.
func (r *RunRegistry) Begin(specID string, st stage.Stage, runID string) (func(), error) {
	k := flightKey{specID: specID, stage: st}

	r.mu.Lock()
	defer r.mu.Unlock()
	if holder, ok := r.inflight[k]; ok {
		return nil, fmt.Errorf("%s %s held by run %s: %w", specID, st.Key(), holder, ErrInFlight)
	}
	r.inflight[k] = runID

	var once sync.Once
	return func() {
		once.Do(func() {
			r.mu.Lock()
			delete(r.inflight, k)
			r.mu.Unlock()
		})
	}, nil
}

// Active reports whether (spec, stage) is currently claimed.
func (r *RunRegistry) Active(specID string, st stage.Stage) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.inflight[flightKey{specID: specID, stage: st}]
	return ok
}
