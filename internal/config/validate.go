package config

import (
	"fmt"
	"time"

	"github.com/rmclaren/quorumpipe/internal/agent"
	"github.com/rmclaren/quorumpipe/internal/stage"
)

// ValidationError represents a single validation issue with a config.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validate checks a Config for structural and semantic errors.
// It returns a slice of all validation errors found (empty if valid).
func Validate(cfg *Config) []ValidationError {
	var errs []ValidationError
	p := cfg.Pipeline

	if p.Name == "" {
		errs = append(errs, ValidationError{Field: "pipeline.name", Message: "is required"})
	}
	if _, err := agent.ParseTier(p.Tier); err != nil {
		errs = append(errs, ValidationError{Field: "pipeline.tier", Message: err.Error()})
	}

	seen := make(map[string]bool)
	for i, s := range p.Stages {
		prefix := fmt.Sprintf("pipeline.stages[%d]", i)
		if s.ID == "" {
			errs = append(errs, ValidationError{Field: prefix + ".id", Message: "is required"})
			continue
		}
		if _, err := stage.Parse(s.ID); err != nil {
			errs = append(errs, ValidationError{Field: prefix + ".id", Message: err.Error()})
			continue
		}
		if seen[s.ID] {
			errs = append(errs, ValidationError{
				Field:   prefix + ".id",
				Message: fmt.Sprintf("duplicate stage %q", s.ID),
			})
		}
		seen[s.ID] = true

		if s.Pattern != "" {
			if _, err := stage.ParsePattern(s.Pattern); err != nil {
				errs = append(errs, ValidationError{Field: prefix + ".pattern", Message: err.Error()})
			}
		}
		if s.Agents < 0 {
			errs = append(errs, ValidationError{Field: prefix + ".agents", Message: "must be non-negative"})
		}
	}

	for i, name := range p.Checkpoints {
		if _, err := stage.ParseCheckpoint(name); err != nil {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("pipeline.checkpoints[%d]", i),
				Message: err.Error(),
			})
		}
	}

	if p.Retry.MaxAttempts < 0 {
		errs = append(errs, ValidationError{Field: "pipeline.retry.max_attempts", Message: "must be non-negative"})
	}
	if p.Retry.Multiplier != 0 && p.Retry.Multiplier < 1 {
		errs = append(errs, ValidationError{Field: "pipeline.retry.multiplier", Message: "must be >= 1"})
	}
	if p.Retry.InitialDelay != "" {
		if _, err := time.ParseDuration(p.Retry.InitialDelay); err != nil {
			errs = append(errs, ValidationError{Field: "pipeline.retry.initial_delay", Message: err.Error()})
		}
	}
	for _, field := range []struct {
		name  string
		value string
	}{
		{"pipeline.defaults.agent_timeout", p.Defaults.AgentTimeout},
		{"pipeline.defaults.stage_timeout", p.Defaults.StageTimeout},
	} {
		if field.value == "" {
			continue
		}
		if _, err := time.ParseDuration(field.value); err != nil {
			errs = append(errs, ValidationError{Field: field.name, Message: err.Error()})
		}
	}

	return errs
}
