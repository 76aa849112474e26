// Package retry provides a bounded exponential-backoff combinator shared by
// the agent execution and store write paths. Retries stay local to the call
// site: a caller that receives nil error never learns how many attempts ran.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Policy describes a retry schedule as a plain value so call sites can carry
// it in config instead of duplicating loop-with-sleep logic.
type Policy struct {
	MaxAttempts  int           `yaml:"max_attempts" json:"max_attempts"`
	InitialDelay time.Duration `yaml:"initial_delay" json:"initial_delay"`
	Multiplier   float64       `yaml:"multiplier" json:"multiplier"`
}

// Default is the agent-call schedule: 3 attempts, 100ms doubling backoff.
func Default() Policy {
	return Policy{MaxAttempts: 3, InitialDelay: 100 * time.Millisecond, Multiplier: 2}
}

// Contention is the store write schedule: short delays, more attempts.
func Contention() Policy {
	return Policy{MaxAttempts: 5, InitialDelay: 50 * time.Millisecond, Multiplier: 2}
}

// Backoff returns the delay after the given 1-based failed attempt.
func (p Policy) Backoff(attempt int) time.Duration {
	d := p.InitialDelay
	for i := 1; i < attempt; i++ {
		d = time.Duration(float64(d) * p.Multiplier)
	}
	return d
}

// transient is implemented by errors that are worth retrying.
type transient interface {
	Transient() bool
}

type permanentError struct{ err error }

func (p *permanentError) Error() string { return p.err.Error() }
func (p *permanentError) Unwrap() error { return p.err }

// Permanent marks an error so Do surfaces it without further attempts.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// Retryable reports whether err should be retried: anything not marked
// Permanent and not self-reporting Transient()==false.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	var pe *permanentError
	if errors.As(err, &pe) {
		return false
	}
	var tr transient
	if errors.As(err, &tr) {
		return tr.Transient()
	}
	return true
}

// Do runs fn until it succeeds, exhausts the policy, or hits a permanent
// error. Backoff sleeps respect ctx cancellation. The returned error is the
// last failure, wrapped with the attempt count when attempts were exhausted.
func Do(ctx context.Context, p Policy, fn func(ctx context.Context) error) error {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if !Retryable(lastErr) {
			var pe *permanentError
			if errors.As(lastErr, &pe) {
				return pe.err
			}
			return lastErr
		}
		if attempt == p.MaxAttempts {
			break
		}

		select {
		case <-time.After(p.Backoff(attempt)):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	return fmt.Errorf("after %d attempts: %w", p.MaxAttempts, lastErr)
}
