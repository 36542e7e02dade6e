package pipeline

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a pipeline-stage failure so batch loops can decide
// retry vs fail-fast without inspecting error strings.
type ErrorKind int

const (
	// KindTransientNetwork covers timeouts, 5xx, 429, connection reset.
	KindTransientNetwork ErrorKind = iota
	// KindPermanentNetwork covers 4xx other than 408/429.
	KindPermanentNetwork
	// KindParseError covers malformed feed content or unreadable HTML.
	KindParseError
	// KindInvalidTask covers a missing id/url or a missing HTML file at
	// parse time. Never retried.
	KindInvalidTask
	// KindDependencyDown covers the queue substrate or state store being
	// unreachable. Aborts the whole batch rather than failing one task.
	KindDependencyDown
	// KindResourceExhaustion covers disk write failures.
	KindResourceExhaustion
)

func (k ErrorKind) String() string {
	switch k {
	case KindTransientNetwork:
		return "transient_network"
	case KindPermanentNetwork:
		return "permanent_network"
	case KindParseError:
		return "parse_error"
	case KindInvalidTask:
		return "invalid_task"
	case KindDependencyDown:
		return "dependency_down"
	case KindResourceExhaustion:
		return "resource_exhaustion"
	default:
		return "unknown"
	}
}

// StageError is the tagged error variant every engine returns for a
// per-task failure. Callers switch on Kind to choose retry vs fail-fast;
// they never pattern-match on Error() text.
type StageError struct {
	Kind ErrorKind
	Err  error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// NewStageError wraps err with kind, or returns nil if err is nil.
func NewStageError(kind ErrorKind, err error) error {
	if err == nil {
		return nil
	}
	return &StageError{Kind: kind, Err: err}
}

// Retryable reports whether a task that failed with err should be
// re-queued with backoff (true) or failed immediately with no retry
// (false). Errors that are not a *StageError are treated as transient —
// conservative, since an un-tagged error is a bug in the caller, not a
// reason to lose the task.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	var se *StageError
	if !errors.As(err, &se) {
		return true
	}
	switch se.Kind {
	case KindTransientNetwork, KindResourceExhaustion:
		return true
	case KindPermanentNetwork:
		return true // retried like transient errors, up to the task's retry_count bound
	case KindParseError, KindInvalidTask:
		return false
	case KindDependencyDown:
		return false // the batch aborts instead of per-task retrying
	default:
		return true
	}
}

// KindOf extracts the ErrorKind from err, defaulting to
// KindTransientNetwork when err is not a *StageError.
func KindOf(err error) ErrorKind {
	var se *StageError
	if errors.As(err, &se) {
		return se.Kind
	}
	return KindTransientNetwork
}
