// Package errors provides structured error types for varsnap. Each error
// carries a machine-readable code plus a hint telling the user how to
// recover. Most capture failures trace back to "the debugger is not paused"
// and the hints say so explicitly.
package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
	"time"
)

// ErrorCode represents a category of error for programmatic handling
type ErrorCode string

const (
	// Session errors
	CodeSessionNotFound     ErrorCode = "SESSION_NOT_FOUND"
	CodeSessionLimitReached ErrorCode = "SESSION_LIMIT_REACHED"
	CodeSessionNoClient     ErrorCode = "SESSION_NO_CLIENT"
	CodeNoActiveSession     ErrorCode = "NO_ACTIVE_SESSION"

	// Adapter errors
	CodeAdapterNotSupported  ErrorCode = "ADAPTER_NOT_SUPPORTED"
	CodeAdapterSpawnFailed   ErrorCode = "ADAPTER_SPAWN_FAILED"
	CodeAdapterConnectFailed ErrorCode = "ADAPTER_CONNECT_FAILED"

	// Protocol errors
	CodeDAPInitFailed   ErrorCode = "DAP_INIT_FAILED"
	CodeDAPLaunchFailed ErrorCode = "DAP_LAUNCH_FAILED"
	CodeDAPAttachFailed ErrorCode = "DAP_ATTACH_FAILED"
	CodeStepTimeout     ErrorCode = "STEP_TIMEOUT"

	// Capture errors
	CodeNoThreads           ErrorCode = "NO_THREADS"
	CodeNoStackFrames       ErrorCode = "NO_STACK_FRAMES"
	CodeInvalidExpression   ErrorCode = "INVALID_EXPRESSION"
	CodeEvaluationFailed    ErrorCode = "EVALUATION_FAILED"
	CodeSnapshotWriteFailed ErrorCode = "SNAPSHOT_WRITE_FAILED"

	// Parameter errors
	CodeMissingParameter ErrorCode = "MISSING_PARAMETER"
	CodeInvalidParameter ErrorCode = "INVALID_PARAMETER"

	// Runtime errors
	CodeBreakpointFailed ErrorCode = "BREAKPOINT_FAILED"
)

// DebugError is a structured error with a recovery hint and optional
// context details.
type DebugError struct {
	// Code is a machine-readable error category
	Code ErrorCode `json:"code"`

	// Message is a human-readable description of what went wrong
	Message string `json:"message"`

	// Hint provides actionable guidance on how to fix the error
	Hint string `json:"hint,omitempty"`

	// Details contains additional context (e.g., the invalid value)
	Details map[string]interface{} `json:"details,omitempty"`

	// Cause is the underlying error, if any
	Cause error `json:"-"`
}

// Error implements the error interface
func (e *DebugError) Error() string {
	var sb strings.Builder
	sb.WriteString(e.Message)

	if e.Hint != "" {
		sb.WriteString(" | Hint: ")
		sb.WriteString(e.Hint)
	}

	return sb.String()
}

// Unwrap returns the underlying error for error chaining
func (e *DebugError) Unwrap() error {
	return e.Cause
}

// WithDetails adds details to the error
func (e *DebugError) WithDetails(key string, value interface{}) *DebugError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// --- Session Errors ---

// SessionNotFound creates an error for when a session ID doesn't exist
func SessionNotFound(sessionID string) *DebugError {
	return &DebugError{
		Code:    CodeSessionNotFound,
		Message: fmt.Sprintf("session '%s' not found", sessionID),
		Hint:    "Use debug_list_sessions to see active sessions, or debug_launch to create one.",
		Details: map[string]interface{}{
			"sessionId": sessionID,
		},
	}
}

// SessionLimitReached creates an error when max sessions is reached
func SessionLimitReached(maxSessions int) *DebugError {
	return &DebugError{
		Code:    CodeSessionLimitReached,
		Message: fmt.Sprintf("maximum number of sessions (%d) reached", maxSessions),
		Hint:    "Use debug_disconnect to terminate an existing session first.",
		Details: map[string]interface{}{
			"maxSessions": maxSessions,
		},
	}
}

// SessionNoClient creates an error when a session has no active client
func SessionNoClient(sessionID string) *DebugError {
	return &DebugError{
		Code:    CodeSessionNoClient,
		Message: fmt.Sprintf("session '%s' has no active debug client", sessionID),
		Hint:    "The session may have terminated or failed to initialize. Disconnect it and launch a new one.",
		Details: map[string]interface{}{
			"sessionId": sessionID,
		},
	}
}

// NoActiveSession creates an error when a capture is requested with no
// debug target to capture from
func NoActiveSession() *DebugError {
	return &DebugError{
		Code:    CodeNoActiveSession,
		Message: "no active debug session",
		Hint:    "Launch or attach a debug session and pause it at a breakpoint before capturing.",
	}
}

// --- Adapter Errors ---

// AdapterNotSupported creates an error for unsupported languages
func AdapterNotSupported(language string, supported []string) *DebugError {
	return &DebugError{
		Code:    CodeAdapterNotSupported,
		Message: fmt.Sprintf("no debug adapter available for language: %s", language),
		Hint:    fmt.Sprintf("Supported languages are: %s.", strings.Join(supported, ", ")),
		Details: map[string]interface{}{
			"requestedLanguage":  language,
			"supportedLanguages": supported,
		},
	}
}

// AdapterSpawnFailed creates an error when adapter spawn fails
func AdapterSpawnFailed(language string, err error) *DebugError {
	return &DebugError{
		Code:    CodeAdapterSpawnFailed,
		Message: fmt.Sprintf("failed to spawn debug adapter for %s: %v", language, err),
		Hint:    "Ensure the debug adapter is installed. For Go: install Delve. For Python: pip install debugpy. For JavaScript: Node.js must be on PATH.",
		Cause:   err,
		Details: map[string]interface{}{
			"language": language,
		},
	}
}

// AdapterConnectFailed creates an error when connecting to adapter fails
func AdapterConnectFailed(address string, err error) *DebugError {
	return &DebugError{
		Code:    CodeAdapterConnectFailed,
		Message: fmt.Sprintf("failed to connect to debug adapter at %s: %v", address, err),
		Hint:    "The debug adapter may have failed to start or crashed. Check that the program path is correct.",
		Cause:   err,
		Details: map[string]interface{}{
			"address": address,
		},
	}
}

// --- Protocol Errors ---

// DAPInitFailed creates an error for DAP initialization failures
func DAPInitFailed(err error) *DebugError {
	return &DebugError{
		Code:    CodeDAPInitFailed,
		Message: fmt.Sprintf("debug adapter initialization failed: %v", err),
		Hint:    "The debug adapter may be incompatible or crashed during startup.",
		Cause:   err,
	}
}

// DAPLaunchFailed creates an error for launch failures
func DAPLaunchFailed(program string, err error) *DebugError {
	return &DebugError{
		Code:    CodeDAPLaunchFailed,
		Message: fmt.Sprintf("failed to launch program: %v", err),
		Hint:    "Check that the program path is correct and the program compiles/runs on its own.",
		Cause:   err,
		Details: map[string]interface{}{
			"program": program,
		},
	}
}

// DAPAttachFailed creates an error for attach failures
func DAPAttachFailed(err error) *DebugError {
	return &DebugError{
		Code:    CodeDAPAttachFailed,
		Message: fmt.Sprintf("failed to attach to process: %v", err),
		Hint:    "Ensure the target process is running and listening on the specified port.",
		Cause:   err,
	}
}

// StepTimeout creates an error for a protocol call exceeding its deadline.
// Named after the capture step that stalled so the user knows where the
// sequence stopped.
func StepTimeout(step string, timeout time.Duration) *DebugError {
	return &DebugError{
		Code:    CodeStepTimeout,
		Message: fmt.Sprintf("%s request timed out after %s", step, timeout),
		Hint:    "The debugger may not be paused. Stop at a breakpoint and retry; the capture is not retried automatically.",
		Details: map[string]interface{}{
			"step":    step,
			"timeout": timeout.String(),
		},
	}
}

// --- Capture Errors ---

// NoThreads creates an error when the debuggee reports no threads
func NoThreads() *DebugError {
	return &DebugError{
		Code:    CodeNoThreads,
		Message: "no threads available in the debuggee",
		Hint:    "The program may have terminated or not started yet. Pause at a breakpoint first.",
	}
}

// NoStackFrames creates an error when the paused thread has no frames
func NoStackFrames() *DebugError {
	return &DebugError{
		Code:    CodeNoStackFrames,
		Message: "no stack frames available on the first thread",
		Hint:    "The thread is not stopped in user code. Pause at a breakpoint in your own source and retry.",
	}
}

// InvalidExpression creates an error for expressions outside the capture
// scope (single variable or property access only)
func InvalidExpression(expression, reason string) *DebugError {
	return &DebugError{
		Code:    CodeInvalidExpression,
		Message: fmt.Sprintf("not a valid expression to capture: %s", reason),
		Hint:    "Select a single variable or property access (e.g. 'order.items'), on one line, not a literal.",
		Details: map[string]interface{}{
			"expression": expression,
		},
	}
}

// EvaluationFailed creates an error for expression evaluation failures
func EvaluationFailed(expression string, err error) *DebugError {
	return &DebugError{
		Code:    CodeEvaluationFailed,
		Message: fmt.Sprintf("failed to evaluate expression '%s': %v", expression, err),
		Hint:    "Check that the expression is in scope in the current frame.",
		Cause:   err,
		Details: map[string]interface{}{
			"expression": expression,
		},
	}
}

// SnapshotWriteFailed creates an error when the snapshot cannot be persisted
func SnapshotWriteFailed(err error) *DebugError {
	return &DebugError{
		Code:    CodeSnapshotWriteFailed,
		Message: fmt.Sprintf("failed to write snapshot: %v", err),
		Hint:    "Check that the snapshot directory exists and is writable.",
		Cause:   err,
	}
}

// --- Parameter Errors ---

// MissingParameter creates an error for missing required parameters
func MissingParameter(paramName, description string) *DebugError {
	return &DebugError{
		Code:    CodeMissingParameter,
		Message: fmt.Sprintf("required parameter '%s' is missing", paramName),
		Hint:    description,
		Details: map[string]interface{}{
			"parameter": paramName,
		},
	}
}

// InvalidParameter creates an error for invalid parameter values
func InvalidParameter(paramName string, value interface{}, expected string) *DebugError {
	return &DebugError{
		Code:    CodeInvalidParameter,
		Message: fmt.Sprintf("invalid value for parameter '%s': %v", paramName, value),
		Hint:    fmt.Sprintf("Expected: %s", expected),
		Details: map[string]interface{}{
			"parameter": paramName,
			"value":     value,
			"expected":  expected,
		},
	}
}

// --- Runtime Errors ---

// BreakpointFailed creates an error for breakpoint failures
func BreakpointFailed(path string, line int, reason string) *DebugError {
	return &DebugError{
		Code:    CodeBreakpointFailed,
		Message: fmt.Sprintf("could not set breakpoint at %s:%d", path, line),
		Hint:    fmt.Sprintf("Reason: %s. Ensure the line contains executable code.", reason),
		Details: map[string]interface{}{
			"path":   path,
			"line":   line,
			"reason": reason,
		},
	}
}

// FromError creates a DebugError from a generic error, preserving any
// existing structure
func FromError(err error) *DebugError {
	var de *DebugError
	if stderrors.As(err, &de) {
		return de
	}
	return &DebugError{
		Code:    "UNKNOWN_ERROR",
		Message: err.Error(),
		Cause:   err,
	}
}
