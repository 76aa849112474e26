package gate

import (
	"context"
	"fmt"
)

// Analyzer is the deterministic quality analyzer contract: pure local
// computation, no network cost, synchronous.
type Analyzer interface {
	Analyze(specID string) ([]Issue, error)
}

// AnalyzerFunc adapts a function to the Analyzer interface.
type AnalyzerFunc func(specID string) ([]Issue, error)

func (f AnalyzerFunc) Analyze(specID string) ([]Issue, error) { return f(specID) }

// AnalyzerSet binds analyzers by name so checkpoints resolve their gate.
type AnalyzerSet map[string]Analyzer

// Lookup returns the named analyzer or an error naming what is missing.
func (s AnalyzerSet) Lookup(name string) (Analyzer, error) {
	a, ok := s[name]
	if !ok {
		return nil, fmt.Errorf("no analyzer registered for %q", name)
	}
	return a, nil
}

// ValidationResult is the judge's opinion on a majority answer.
type ValidationResult struct {
	Agrees            bool       `json:"agrees"`
	Confidence        Confidence `json:"confidence"`
	RecommendedAnswer string     `json:"recommended_answer,omitempty"`
	Reasoning         string     `json:"reasoning,omitempty"`
}

// Validator is the external judge used for medium-confidence issues.
type Validator interface {
	ValidateMajority(ctx context.Context, issue Issue, majority string) (*ValidationResult, error)
}

// Question is one escalated issue presented to a human.
type Question struct {
	ID          string            `json:"id"`
	Analyzer    string            `json:"analyzer"`
	Question    string            `json:"question"`
	Context     string            `json:"context,omitempty"`
	Answers     map[string]string `json:"answers,omitempty"`
	Severity    Severity          `json:"severity"`
	Recommended string            `json:"recommended,omitempty"`
}

// Escalator is the human escalation contract. Present blocks until the
// operator answers; there is deliberately no timeout here.
type Escalator interface {
	Present(ctx context.Context, q Question) (string, error)
}
