package domain

import "fmt"

// ExecutionError indicates a query failed or timed out against the engine.
// It is always localized to the measurement or profiling run that
// triggered it; only a baseline failure ends a session.
type ExecutionError struct {
	Message string
}

func (e *ExecutionError) Error() string { return e.Message }

// CandidateError indicates the reasoning service returned unparsable or
// disallowed SQL. Localized to one iteration.
type CandidateError struct {
	Message string
}

func (e *CandidateError) Error() string { return e.Message }

// ReasoningError indicates a transport, timeout, or protocol failure
// talking to the reasoning service. Localized to one iteration.
type ReasoningError struct {
	Message string
}

func (e *ReasoningError) Error() string { return e.Message }

// NotFoundError indicates a relation was not found in the catalog.
// Non-fatal: callers proceed with degraded context.
type NotFoundError struct {
	Message string
}

func (e *NotFoundError) Error() string { return e.Message }

// ConfigError indicates invalid configuration. Fatal before a session
// starts.
type ConfigError struct {
	Message string
}

func (e *ConfigError) Error() string { return e.Message }

// ErrExecution creates an ExecutionError with a formatted message.
func ErrExecution(format string, args ...interface{}) *ExecutionError {
	return &ExecutionError{Message: fmt.Sprintf(format, args...)}
}

// ErrCandidate creates a CandidateError with a formatted message.
func ErrCandidate(format string, args ...interface{}) *CandidateError {
	return &CandidateError{Message: fmt.Sprintf(format, args...)}
}

// ErrReasoning creates a ReasoningError with a formatted message.
func ErrReasoning(format string, args ...interface{}) *ReasoningError {
	return &ReasoningError{Message: fmt.Sprintf(format, args...)}
}

// ErrNotFound creates a NotFoundError with a formatted message.
func ErrNotFound(format string, args ...interface{}) *NotFoundError {
	return &NotFoundError{Message: fmt.Sprintf(format, args...)}
}

// ErrConfig creates a ConfigError with a formatted message.
func ErrConfig(format string, args ...interface{}) *ConfigError {
	return &ConfigError{Message: fmt.Sprintf(format, args...)}
}
