// Package errs defines the typed error kinds from the error-handling design:
// configuration, transient-backend, malformed-structured-output, validation,
// knowledge-store, and supervisor-rerun-exceeded failures, plus the
// retryable-message classifier shared by the agent runtime and the
// ingestion pipeline.
package errs

import (
	"errors"
	"fmt"
	"strings"
)

// Kind distinguishes the error taxonomies in the error-handling design.
type Kind string

const (
	KindConfiguration       Kind = "configuration_error"
	KindTransientBackend    Kind = "transient_backend_error"
	KindMalformedStructured Kind = "malformed_structured_output"
	KindValidation          Kind = "validation_error"
	KindKnowledgeStore      Kind = "knowledge_store_error"
	KindSupervisorRerun     Kind = "supervisor_rerun_exceeded"
)

// StageError is a structured error carrying kind and message, suitable for
// recording as a domain.ErrorEntry and for surfacing to the external caller
// never as a silent empty result.
type StageError struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *StageError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *StageError) Unwrap() error { return e.Err }

func New(kind Kind, message string, cause error) *StageError {
	return &StageError{Kind: kind, Message: message, Err: cause}
}

func Configuration(format string, args ...any) *StageError {
	return New(KindConfiguration, fmt.Sprintf(format, args...), nil)
}

func Transient(cause error, format string, args ...any) *StageError {
	return New(KindTransientBackend, fmt.Sprintf(format, args...), cause)
}

func Malformed(cause error, format string, args ...any) *StageError {
	return New(KindMalformedStructured, fmt.Sprintf(format, args...), cause)
}

func Validation(format string, args ...any) *StageError {
	return New(KindValidation, fmt.Sprintf(format, args...), nil)
}

func KnowledgeStore(cause error, format string, args ...any) *StageError {
	return New(KindKnowledgeStore, fmt.Sprintf(format, args...), cause)
}

func SupervisorRerunExceeded(format string, args ...any) *StageError {
	return New(KindSupervisorRerun, fmt.Sprintf(format, args...), nil)
}

// Is reports whether err is a StageError of the given kind.
func Is(err error, kind Kind) bool {
	var se *StageError
	if errors.As(err, &se) {
		return se.Kind == kind
	}
	return false
}

// retryablePatterns mirrors the classifier the agent runtime's predecessor
// used for backend call failures: timeouts, rate limits, 5xx, and
// connection resets are worth retrying; anything else is not.
var retryablePatterns = []string{
	"timeout", "rate_limit", "rate limit", "too many requests",
	"429", "500", "502", "503", "504",
	"connection reset", "connection refused", "eof",
	"overloaded", "capacity",
}

// IsRetryable classifies an error message as transient.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	lower := strings.ToLower(err.Error())
	for _, pattern := range retryablePatterns {
		if strings.Contains(lower, pattern) {
			return true
		}
	}
	return false
}
