package gate

import (
	"sort"
)

// Confidence is the agreement level behind a reported issue.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// Severity grades how much an issue matters.
type Severity string

const (
	SeverityMinor     Severity = "minor"
	SeverityImportant Severity = "important"
	SeverityCritical  Severity = "critical"
)

// Resolution records how an issue was settled.
type Resolution string

const (
	// ResolutionAuto means the majority answer was applied without review.
	ResolutionAuto Resolution = "auto"
	// ResolutionValidated means the judge confirmed the majority answer.
	ResolutionValidated Resolution = "validated"
	// ResolutionUser means a human supplied the answer.
	ResolutionUser Resolution = "user"
)

// Issue is one problem reported by an analyzer.
type Issue struct {
	ID          string            `json:"id"`
	Analyzer    string            `json:"analyzer"`
	Description string            `json:"description"`
	Confidence  Confidence        `json:"confidence"`
	Severity    Severity          `json:"severity"`
	Context     string            `json:"context,omitempty"`
	// Answers holds candidate answers keyed by their source (one per
	// analyzer voice); the majority answer is derived from it.
	Answers      map[string]string `json:"answers,omitempty"`
	SuggestedFix string            `json:"suggested_fix,omitempty"`
}

// Resolved pairs an issue with its applied answer.
type Resolved struct {
	Issue      Issue      `json:"issue"`
	Answer     string     `json:"answer"`
	Resolution Resolution `json:"resolution"`
}

// MajorityAnswer returns the most common answer and whether every voice
// agreed on it. Ties break lexically so the result is deterministic.
func (i *Issue) MajorityAnswer() (answer string, unanimous bool) {
	if len(i.Answers) == 0 {
		return "", false
	}

	counts := make(map[string]int)
	for _, a := range i.Answers {
		counts[a]++
	}
	answers := make([]string, 0, len(counts))
	for a := range counts {
		answers = append(answers, a)
	}
	sort.Strings(answers)

	best := answers[0]
	for _, a := range answers[1:] {
		if counts[a] > counts[best] {
			best = a
		}
	}
	return best, counts[best] == len(i.Answers)
}
