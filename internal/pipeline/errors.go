package pipeline

import (
	"context"
	"errors"
	"fmt"
)

// ErrorType classifies a pipeline error.
type ErrorType string

const (
	ErrorTypeConfig    ErrorType = "config"
	ErrorTypeExecution ErrorType = "execution"
	ErrorTypeTransient ErrorType = "transient"
	ErrorTypeTimeout   ErrorType = "timeout"
	ErrorTypeInterrupt ErrorType = "interrupt"
	ErrorTypeFatal     ErrorType = "fatal"
)

// PipelineError carries the classification the manager uses to decide
// between retrying a record and retiring it.
type PipelineError struct {
	Type      ErrorType `json:"type"`
	Stage     string    `json:"stage,omitempty"`
	Record    string    `json:"record,omitempty"`
	Message   string    `json:"message"`
	Cause     error     `json:"-"`
	Retryable bool      `json:"retryable"`
}

func (e *PipelineError) Error() string {
	if e == nil {
		return "unknown pipeline error"
	}
	if e.Record != "" {
		return fmt.Sprintf("[%s] %s: %s", e.Type, e.Record, e.Message)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

func (e *PipelineError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// NewConfigError reports a rejected configuration. Fatal before any work.
func NewConfigError(message string, cause error) *PipelineError {
	return &PipelineError{Type: ErrorTypeConfig, Message: message, Cause: cause}
}

// NewTransientError marks a per-record failure worth retrying, such as a
// rate limit or a flaky connection.
func NewTransientError(cause error) *PipelineError {
	return &PipelineError{
		Type:      ErrorTypeTransient,
		Message:   cause.Error(),
		Cause:     cause,
		Retryable: true,
	}
}

// NewTimeoutError reports an attempt that exceeded its budget. Retryable.
func NewTimeoutError(stage, record string) *PipelineError {
	return &PipelineError{
		Type:      ErrorTypeTimeout,
		Stage:     stage,
		Record:    record,
		Message:   "attempt timed out",
		Retryable: true,
	}
}

// NewInterruptError marks a record that was in flight when the run was
// shut down. Not retryable within this run; a later run re-attempts it.
func NewInterruptError(stage, record string) *PipelineError {
	return &PipelineError{
		Type:    ErrorTypeInterrupt,
		Stage:   stage,
		Record:  record,
		Message: "interrupted by shutdown",
	}
}

// NewFatalError reports an unrecoverable run-level failure, such as a
// checkpoint file that cannot be written.
func NewFatalError(message string, cause error) *PipelineError {
	return &PipelineError{Type: ErrorTypeFatal, Message: message, Cause: cause}
}

// IsRetryable decides whether a failed attempt should be retried.
// Deadline expiry counts as transient; unclassified errors are retried
// too, since the attempt budget bounds them either way.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var perr *PipelineError
	if errors.As(err, &perr) {
		return perr.Retryable
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	return true
}

// IsInterrupt reports whether the error marks a shutdown interruption.
func IsInterrupt(err error) bool {
	var perr *PipelineError
	return errors.As(err, &perr) && perr.Type == ErrorTypeInterrupt
}
