package agent

import (
	"context"
	"time"

	"github.com/rmclaren/quorumpipe/internal/stage"
)

// Descriptor is immutable capability metadata for one agent.
type Descriptor struct {
	Name       string   `json:"name"`
	CostWeight float64  `json:"cost_weight"`
	Tags       []string `json:"tags,omitempty"`
}

// Task is one in-flight agent invocation. It is owned by the orchestrator
// and discarded once resolved.
type Task struct {
	Agent     Descriptor
	Stage     stage.Stage
	SpecID    string
	RunID     string
	Prompt    string
	Timeout   time.Duration
	StartedAt time.Time
}

// Status classifies a resolved task.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
	StatusTimeout Status = "timeout"
)

// Output is the immutable result of a completed task.
type Output struct {
	Agent        string        `json:"agent"`
	Stage        string        `json:"stage"`
	Content      string        `json:"content"`
	InputTokens  int           `json:"input_tokens"`
	OutputTokens int           `json:"output_tokens"`
	Status       Status        `json:"status"`
	Duration     time.Duration `json:"duration"`
	Error        string        `json:"error,omitempty"`
}

// Succeeded reports whether the output counts toward quorum.
func (o *Output) Succeeded() bool {
	return o != nil && o.Status == StatusSuccess
}

// Executor submits a prompt to one agent and returns its output or a typed
// error. Implementations are external collaborators (model CLIs, services);
// they must honor ctx cancellation and the task timeout.
type Executor interface {
	Submit(ctx context.Context, task Task) (*Output, error)
}
