// Package analyzers holds the built-in deterministic quality analyzers:
// pure local scans over stored stage artifacts, no network cost. External
// analyzers can replace any of them by registering under the same name.
package analyzers

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rmclaren/quorumpipe/internal/agent"
	"github.com/rmclaren/quorumpipe/internal/gate"
	"github.com/rmclaren/quorumpipe/internal/stage"
	"github.com/rmclaren/quorumpipe/internal/store"
)

// clarifyMarker flags an unresolved ambiguity left in a spec draft.
const clarifyMarker = "[NEEDS CLARIFICATION"

// checklistSections are the headings a complete spec carries.
var checklistSections = []string{
	"## Overview",
	"## Requirements",
	"## Acceptance",
}

// Registry binds the built-in analyzers under the names the checkpoints
// resolve: clarify, checklist, analyze.
func Registry(st *store.Store) gate.AnalyzerSet {
	return gate.AnalyzerSet{
		"clarify":   gate.AnalyzerFunc(func(specID string) ([]gate.Issue, error) { return clarify(st, specID) }),
		"checklist": gate.AnalyzerFunc(func(specID string) ([]gate.Issue, error) { return checklist(st, specID) }),
		"analyze":   gate.AnalyzerFunc(func(specID string) ([]gate.Issue, error) { return analyze(st, specID) }),
	}
}

// clarify scans the specify-stage output for clarification markers. Each
// marker becomes one issue; a marker that names a default resolves
// automatically, the rest go to a human.
func clarify(st *store.Store, specID string) ([]gate.Issue, error) {
	content, err := stageText(st, specID, stage.Specify)
	if err != nil {
		return nil, err
	}

	var issues []gate.Issue
	rest := content
	for n := 1; ; n++ {
		i := strings.Index(rest, clarifyMarker)
		if i < 0 {
			break
		}
		rest = rest[i+len(clarifyMarker):]
		marker := rest
		if j := strings.IndexByte(marker, ']'); j >= 0 {
			marker = marker[:j]
		}
		marker = strings.TrimPrefix(marker, ":")
		marker = strings.TrimSpace(marker)

		issue := gate.Issue{
			ID:          fmt.Sprintf("clarify-%d", n),
			Analyzer:    "clarify",
			Description: fmt.Sprintf("unresolved clarification: %s", marker),
			Confidence:  gate.ConfidenceLow,
			Severity:    gate.SeverityImportant,
			Context:     marker,
		}
		if _, def, ok := strings.Cut(marker, "default:"); ok {
			issue.Confidence = gate.ConfidenceHigh
			issue.Severity = gate.SeverityMinor
			issue.SuggestedFix = strings.TrimSpace(def)
		}
		issues = append(issues, issue)
	}
	return issues, nil
}

// checklist verifies the spec draft carries the required sections.
func checklist(st *store.Store, specID string) ([]gate.Issue, error) {
	content, err := stageText(st, specID, stage.Specify)
	if err != nil {
		return nil, err
	}

	var issues []gate.Issue
	for _, section := range checklistSections {
		if strings.Contains(content, section) {
			continue
		}
		name := strings.TrimPrefix(section, "## ")
		issues = append(issues, gate.Issue{
			ID:           fmt.Sprintf("checklist-%s", strings.ToLower(name)),
			Analyzer:     "checklist",
			Description:  fmt.Sprintf("spec is missing a %s section", name),
			Confidence:   gate.ConfidenceHigh,
			Severity:     gate.SeverityMinor,
			SuggestedFix: fmt.Sprintf("add a %q section", section),
		})
	}
	return issues, nil
}

// analyze cross-checks the task breakdown for placeholders that would reach
// implementation unresolved.
func analyze(st *store.Store, specID string) ([]gate.Issue, error) {
	content, err := stageText(st, specID, stage.Tasks)
	if err != nil {
		return nil, err
	}

	var issues []gate.Issue
	n := 0
	for _, line := range strings.Split(content, "\n") {
		if !strings.Contains(line, "TBD") && !strings.Contains(line, "???") {
			continue
		}
		n++
		issues = append(issues, gate.Issue{
			ID:          fmt.Sprintf("analyze-%d", n),
			Analyzer:    "analyze",
			Description: "task contains an unresolved placeholder",
			Confidence:  gate.ConfidenceMedium,
			Severity:    gate.SeverityImportant,
			Context:     strings.TrimSpace(line),
		})
	}
	return issues, nil
}

// stageText concatenates the latest stored outputs for a stage. Analyzers
// are synchronous by contract, so reads run on a background context.
func stageText(st *store.Store, specID string, s stage.Stage) (string, error) {
	rows, err := st.LatestOutputs(context.Background(), specID, s.Key(), "")
	if err != nil {
		return "", fmt.Errorf("load %s artifacts: %w", s.Key(), err)
	}
	var b strings.Builder
	for _, row := range rows {
		var out agent.Output
		if err := json.Unmarshal([]byte(row.Content), &out); err != nil {
			continue
		}
		b.WriteString(out.Content)
		b.WriteString("\n")
	}
	return b.String(), nil
}
