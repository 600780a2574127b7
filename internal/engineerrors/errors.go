// Package engineerrors provides the structured error type shared by
// every layer of the retrieval engine. Each kind carries a distinct
// recovery policy: Transient, ContentDrift, SchemaMismatch, TaskDropped,
// InvalidInput and Fatal.
package engineerrors

import "fmt"

// Kind classifies an error for the purposes of caller-visible policy.
type Kind string

const (
	// Transient covers embedder rate-limits and temporary I/O;
	// callers retry with back-off and only see this after retries
	// are exhausted.
	Transient Kind = "TRANSIENT"
	// ContentDrift means hydration could not match a stored chunk to
	// the live file even after the sliding-window search. Not fatal;
	// the affected document is queued for re-indexing.
	ContentDrift Kind = "CONTENT_DRIFT"
	// SchemaMismatch means a loaded shard's (model, dimension) does
	// not match what the worker is currently running.
	SchemaMismatch Kind = "SCHEMA_MISMATCH"
	// TaskDropped means a queued command was superseded by a worker
	// swap (session id changed) before it ran.
	TaskDropped Kind = "TASK_DROPPED"
	// InvalidInput means the caller supplied something malformed or
	// forbidden (e.g. a path-traversal attempt).
	InvalidInput Kind = "INVALID_INPUT"
	// Fatal means the worker itself cannot continue.
	Fatal Kind = "FATAL"
)

// EngineError is the engine's single exported error type. It is
// deliberately flat so every caller can branch on Kind without type
// assertions on anything else.
type EngineError struct {
	Kind    Kind
	Message string
	Details map[string]string
	Cause   error
}

// Error implements the error interface.
func (e *EngineError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

// Unwrap supports errors.Is/As against the wrapped cause.
func (e *EngineError) Unwrap() error {
	return e.Cause
}

// Is lets errors.Is match purely on Kind, so callers can write
// errors.Is(err, engineerrors.New(engineerrors.TaskDropped, "", nil)).
func (e *EngineError) Is(target error) bool {
	t, ok := target.(*EngineError)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// WithDetail attaches a key/value detail and returns e for chaining.
func (e *EngineError) WithDetail(key, value string) *EngineError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// New creates an EngineError of the given kind.
func New(kind Kind, message string, cause error) *EngineError {
	return &EngineError{Kind: kind, Message: message, Cause: cause}
}

// Retryable reports whether the error's kind is meant to be retried
// locally by the caller rather than surfaced.
func (k Kind) Retryable() bool {
	switch k {
	case Transient, TaskDropped:
		return true
	default:
		return false
	}
}

// LocalRecovery reports whether an error of this kind should be
// recovered from locally (never surfaced as an operation failure).
func (k Kind) LocalRecovery() bool {
	switch k {
	case Transient, ContentDrift, TaskDropped:
		return true
	default:
		return false
	}
}

// IsKind reports whether err is an *EngineError of the given kind.
func IsKind(err error, kind Kind) bool {
	ee, ok := err.(*EngineError)
	if !ok {
		return false
	}
	return ee.Kind == kind
}
