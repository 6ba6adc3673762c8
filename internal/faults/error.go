// Package faults defines the typed error taxonomy for the fetch engine: the
// FetchError type, the process-wide code registry, and the classifier that
// maps raw failures onto registered codes.
package faults

import (
	"fmt"
	"time"
)

// Category groups errors by the subsystem that produced them.
type Category string

// Supported error categories.
const (
	CategoryNetwork    Category = "network"
	CategoryFile       Category = "file"
	CategoryValidation Category = "validation"
	CategorySession    Category = "session"
	CategoryUnknown    Category = "unknown"
)

// Severity ranks an error for alerting and degradation decisions.
type Severity int

// Severity levels, lowest first.
const (
	SeverityWarning Severity = iota
	SeverityError
	SeverityCritical
)

// String returns the lowercase label used in logs and metrics.
func (s Severity) String() string {
	switch s {
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// FetchError is an immutable classified failure. It carries everything the
// dispatcher needs to decide between retry, fallback, and terminal failure.
type FetchError struct {
	Code              string
	Category          Category
	Severity          Severity
	Message           string
	Retryable         bool
	FallbackAvailable bool
	Context           map[string]any
	Cause             error
	Timestamp         time.Time
}

// Error implements the error interface.
func (e *FetchError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes the underlying cause for errors.Is / errors.As.
func (e *FetchError) Unwrap() error {
	return e.Cause
}

// WithContext returns a copy of the error with the given key/value merged
// into its context map. The receiver is never mutated.
func (e *FetchError) WithContext(key string, value any) *FetchError {
	clone := *e
	clone.Context = make(map[string]any, len(e.Context)+1)
	for k, v := range e.Context {
		clone.Context[k] = v
	}
	clone.Context[key] = value
	return &clone
}

// New builds a FetchError from a registered descriptor. It panics if the
// code was never registered; callers should only pass catalog constants.
func New(code string, message string, cause error) *FetchError {
	desc, ok := DefaultRegistry().Lookup(code)
	if !ok {
		panic(fmt.Sprintf("faults: unregistered error code %q", code))
	}
	if message == "" {
		message = desc.Description
	}
	return &FetchError{
		Code:              desc.Code,
		Category:          desc.Category,
		Severity:          desc.Severity,
		Message:           message,
		Retryable:         desc.Retryable,
		FallbackAvailable: desc.FallbackAvailable,
		Cause:             cause,
		Timestamp:         time.Now().UTC(),
	}
}
