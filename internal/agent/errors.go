package agent

import (
	"errors"
	"fmt"
)

// ErrorKind classifies executor failures. The retry layer treats timeouts,
// unavailability, and unclassified call failures as transient; auth and
// malformed-response errors never retry.
type ErrorKind int

const (
	// KindUnavailable means the agent binary or service could not be reached.
	KindUnavailable ErrorKind = iota
	// KindNotAuthenticated means credentials were missing or rejected.
	KindNotAuthenticated
	// KindCallFailed means the process or call failed for an unspecified reason.
	KindCallFailed
	// KindTimeout means the per-agent deadline expired.
	KindTimeout
	// KindMalformed means the agent responded but the payload was unusable.
	KindMalformed
)

func (k ErrorKind) String() string {
	switch k {
	case KindUnavailable:
		return "unavailable"
	case KindNotAuthenticated:
		return "not_authenticated"
	case KindCallFailed:
		return "call_failed"
	case KindTimeout:
		return "timeout"
	case KindMalformed:
		return "malformed"
	}
	return fmt.Sprintf("error_kind(%d)", int(k))
}

// Error is the typed failure returned by an Executor.
type Error struct {
	Kind  ErrorKind
	Agent string
	Msg   string
	Err   error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("agent %s %s: %s: %v", e.Agent, e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("agent %s %s: %s", e.Agent, e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// Transient reports whether the failure is worth retrying.
func (e *Error) Transient() bool {
	switch e.Kind {
	case KindTimeout, KindUnavailable, KindCallFailed:
		return true
	}
	return false
}

// NewError builds a typed executor error.
func NewError(kind ErrorKind, agentName, msg string, cause error) *Error {
	return &Error{Kind: kind, Agent: agentName, Msg: msg, Err: cause}
}

// KindOf extracts the error kind, defaulting to KindCallFailed for
// unclassified errors.
func KindOf(err error) ErrorKind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindCallFailed
}
