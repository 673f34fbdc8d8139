package engine

import (
	"errors"
	"fmt"
)

// ErrorClass classifies a failure for the stage executor.
type ErrorClass string

const (
	// ErrorClassFatal halts the run immediately.
	// Examples: primary repository clone failure, required package install failure.
	ErrorClassFatal ErrorClass = "fatal"

	// ErrorClassDegraded is logged and the run continues toward a
	// "completed with warnings" outcome.
	// Examples: package cache refresh failure, plugin repository clone failure.
	ErrorClassDegraded ErrorClass = "degraded"

	// ErrorClassIgnorable is logged and skipped without affecting the outcome.
	// Examples: sanitizer I/O errors on a single file.
	ErrorClassIgnorable ErrorClass = "ignorable"
)

// EngineError represents a classified error with context.
// nolint:revive // EngineError is intentionally named to distinguish from standard errors
type EngineError struct {
	// Class is the error classification.
	Class ErrorClass `json:"class"`

	// Message is the human-readable error message.
	Message string `json:"message"`

	// Code is an optional error code for programmatic handling.
	Code string `json:"code,omitempty"`

	// Stage is the stage that raised the error, if known.
	Stage string `json:"stage,omitempty"`

	// Operation is the sub-step being performed (e.g. "enable").
	Operation string `json:"operation,omitempty"`

	// Err is the underlying error that caused this error.
	Err error `json:"-"`

	// Details contains additional context-specific information.
	Details map[string]interface{} `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *EngineError) Error() string {
	prefix := fmt.Sprintf("[%s] %s", e.Class, e.Message)
	switch {
	case e.Stage != "" && e.Operation != "":
		prefix = fmt.Sprintf("%s (stage=%s, operation=%s)", prefix, e.Stage, e.Operation)
	case e.Stage != "":
		prefix = fmt.Sprintf("%s (stage=%s)", prefix, e.Stage)
	case e.Operation != "":
		prefix = fmt.Sprintf("%s (operation=%s)", prefix, e.Operation)
	}
	if e.Err != nil {
		return prefix + ": " + e.Err.Error()
	}
	return prefix
}

// Unwrap returns the underlying error for error chain inspection.
func (e *EngineError) Unwrap() error {
	return e.Err
}

// Is implements error equality checking for errors.Is.
func (e *EngineError) Is(target error) bool {
	t, ok := target.(*EngineError)
	if !ok {
		return false
	}
	return e.Class == t.Class && e.Code == t.Code
}

// NewFatalError creates a new fatal error.
func NewFatalError(message string, err error) *EngineError {
	return &EngineError{
		Class:   ErrorClassFatal,
		Message: message,
		Err:     err,
	}
}

// NewDegradedError creates a new degraded (non-fatal) error.
func NewDegradedError(message string, err error) *EngineError {
	return &EngineError{
		Class:   ErrorClassDegraded,
		Message: message,
		Err:     err,
	}
}

// NewIgnorableError creates a new ignorable error.
func NewIgnorableError(message string, err error) *EngineError {
	return &EngineError{
		Class:   ErrorClassIgnorable,
		Message: message,
		Err:     err,
	}
}

// WithStage adds stage context to an error.
func (e *EngineError) WithStage(stage string) *EngineError {
	e.Stage = stage
	return e
}

// WithOperation adds operation context to an error.
func (e *EngineError) WithOperation(operation string) *EngineError {
	e.Operation = operation
	return e
}

// WithCode adds an error code to an error.
func (e *EngineError) WithCode(code string) *EngineError {
	e.Code = code
	return e
}

// WithDetail adds a detail field to the error context.
func (e *EngineError) WithDetail(key string, value interface{}) *EngineError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// ClassOf returns the class of the first EngineError in err's chain.
func ClassOf(err error) (ErrorClass, bool) {
	var e *EngineError
	if errors.As(err, &e) {
		return e.Class, true
	}
	return "", false
}

// IsFatal returns true if the error is classified as fatal.
func IsFatal(err error) bool {
	class, ok := ClassOf(err)
	return ok && class == ErrorClassFatal
}

// IsDegraded returns true if the error is classified as degraded.
func IsDegraded(err error) bool {
	class, ok := ClassOf(err)
	return ok && class == ErrorClassDegraded
}

// IsIgnorable returns true if the error is classified as ignorable.
func IsIgnorable(err error) bool {
	class, ok := ClassOf(err)
	return ok && class == ErrorClassIgnorable
}

// Common error codes.
const (
	ErrCodeConfigInvalid      = "CONFIG_INVALID"
	ErrCodePackageInstall     = "PACKAGE_INSTALL"
	ErrCodeCacheRefresh       = "CACHE_REFRESH"
	ErrCodeVersionManager     = "VERSION_MANAGER"
	ErrCodeRuntimeUnavailable = "RUNTIME_UNAVAILABLE"
	ErrCodeOptionalTool       = "OPTIONAL_TOOL"
	ErrCodeCloneFailed        = "CLONE_FAILED"
	ErrCodeUpdateFailed       = "UPDATE_FAILED"
	ErrCodeDependencies       = "DEPENDENCIES_FAILED"
	ErrCodeRenderFailed       = "RENDER_FAILED"
	ErrCodeServiceActivation  = "SERVICE_ACTIVATION"
	ErrCodeSanitize           = "SANITIZE_IO"
	ErrCodeCancelled          = "CANCELLED"
	ErrCodeInternal           = "INTERNAL_ERROR"
)
