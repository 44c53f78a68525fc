// Package types defines shared data types used across varsnap.
//
// These cover the debug-session surface (Language, SessionStatus, session
// descriptions) and the capture location types (SourceLocation,
// FrameIdentity). The persisted snapshot record itself lives in
// internal/snapshot; the types here are the contracts between the session
// layer, the capture engine, and the command layer.
package types

// Language represents a supported programming language
type Language string

const (
	LanguageGo         Language = "go"
	LanguagePython     Language = "python"
	LanguageJavaScript Language = "javascript"
	LanguageTypeScript Language = "typescript"
)

// SessionStatus represents the status of a debug session
type SessionStatus string

const (
	SessionStatusInitializing SessionStatus = "initializing"
	SessionStatusRunning      SessionStatus = "running"
	SessionStatusStopped      SessionStatus = "stopped"
	SessionStatusTerminated   SessionStatus = "terminated"
)

// SessionInfo describes a debug session to the command layer
type SessionInfo struct {
	SessionID string        `json:"sessionId"`
	Language  Language      `json:"language"`
	Status    SessionStatus `json:"status"`
	PID       int           `json:"pid,omitempty"`
	Program   string        `json:"program,omitempty"`
}

// SourceLocation identifies the line a capture originated from
type SourceLocation struct {
	File     string `json:"file"`
	Line     int    `json:"line"`
	Function string `json:"function"`
}

// FrameIdentity is the stack frame a capture evaluated in. Kept only
// for traceability; the numeric id is meaningless after the session ends.
type FrameIdentity struct {
	Name string `json:"name"`
	ID   int    `json:"id"`
}
