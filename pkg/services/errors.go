// Package services contains the business logic: dataset profiling, query
// translation and execution, visualization selection, insight synthesis, and
// feedback-driven prompt optimization.
package services

import (
	"fmt"
)

// ExecutionErrorKind classifies why a generated expression failed to run.
type ExecutionErrorKind string

const (
	ExecDisallowedOperation ExecutionErrorKind = "disallowed_operation"
	ExecRuntimeException    ExecutionErrorKind = "runtime_exception"
	ExecTimeout             ExecutionErrorKind = "timeout"
	ExecEmptyResult         ExecutionErrorKind = "empty_result"
)

// ExecutionError is returned when a generated expression fails validation or
// evaluation. Message is safe to show to users; Detail is for logs only.
type ExecutionError struct {
	Kind    ExecutionErrorKind
	Message string
	Detail  error
}

func (e *ExecutionError) Error() string {
	if e.Detail != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Detail)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *ExecutionError) Unwrap() error { return e.Detail }

func newExecutionError(kind ExecutionErrorKind, message string, detail error) *ExecutionError {
	return &ExecutionError{Kind: kind, Message: message, Detail: detail}
}

// TranslationError is returned when the model cannot produce a usable
// structured translation, after the retry.
type TranslationError struct {
	Message string
	Cause   error
}

func (e *TranslationError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("translation failed: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("translation failed: %s", e.Message)
}

func (e *TranslationError) Unwrap() error { return e.Cause }

// OptimizationError is returned when an exemplar rebuild cannot complete.
// The previous exemplar set stays in service.
type OptimizationError struct {
	Message string
	Cause   error
}

func (e *OptimizationError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("optimization failed: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("optimization failed: %s", e.Message)
}

func (e *OptimizationError) Unwrap() error { return e.Cause }
