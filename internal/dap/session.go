package dap

import (
	"context"
	"fmt"
	"log"
	"os/exec"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/varsnap/varsnap/pkg/types"
)

// Session represents one active debug session: the adapter connection plus
// the spawned adapter process, if this side spawned it.
type Session struct {
	ID        string
	Language  types.Language
	Status    types.SessionStatus
	Client    *Client
	Process   *exec.Cmd
	PID       int
	Program   string
	CreatedAt time.Time

	mu sync.RWMutex
}

// GetInfo returns the session description for the command layer.
func (s *Session) GetInfo() types.SessionInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return types.SessionInfo{
		SessionID: s.ID,
		Language:  s.Language,
		Status:    s.Status,
		PID:       s.PID,
		Program:   s.Program,
	}
}

// SessionManager owns session lifecycle. Captures resolve their debug
// target here: either an explicit session ID or the most recently created
// live session.
type SessionManager struct {
	sessions map[string]*Session
	mu       sync.RWMutex

	maxSessions    int
	sessionTimeout time.Duration

	ctx    context.Context
	cancel context.CancelFunc
}

// NewSessionManager creates a session manager and starts its cleanup loop.
func NewSessionManager(maxSessions int, sessionTimeout time.Duration) *SessionManager {
	ctx, cancel := context.WithCancel(context.Background())
	sm := &SessionManager{
		sessions:       make(map[string]*Session),
		maxSessions:    maxSessions,
		sessionTimeout: sessionTimeout,
		ctx:            ctx,
		cancel:         cancel,
	}

	go sm.cleanupLoop()

	return sm
}

// cleanupLoop periodically removes sessions past the timeout.
func (sm *SessionManager) cleanupLoop() {
	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-sm.ctx.Done():
			return
		case <-ticker.C:
			sm.cleanupExpiredSessions()
		}
	}
}

func (sm *SessionManager) cleanupExpiredSessions() {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	now := time.Now()
	for id, session := range sm.sessions {
		if now.Sub(session.CreatedAt) > sm.sessionTimeout {
			sm.terminateLocked(id, true)
		}
	}
}

// CreateSession registers a new session.
func (sm *SessionManager) CreateSession(language types.Language, program string) (*Session, error) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if len(sm.sessions) >= sm.maxSessions {
		return nil, fmt.Errorf("maximum number of sessions (%d) reached", sm.maxSessions)
	}

	session := &Session{
		ID:        uuid.New().String(),
		Language:  language,
		Status:    types.SessionStatusInitializing,
		Program:   program,
		CreatedAt: time.Now(),
	}

	sm.sessions[session.ID] = session
	return session, nil
}

// GetSession retrieves a session by ID.
func (sm *SessionManager) GetSession(id string) (*Session, error) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	session, ok := sm.sessions[id]
	if !ok {
		return nil, fmt.Errorf("session not found: %s", id)
	}
	return session, nil
}

// ActiveSession resolves the capture target: the session with the given ID,
// or, when id is empty, the most recently created session with a live
// client. Returns nil when no target exists.
func (sm *SessionManager) ActiveSession(id string) *Session {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	if id != "" {
		return sm.sessions[id]
	}

	var newest *Session
	for _, s := range sm.sessions {
		if s.Client == nil || s.Status == types.SessionStatusTerminated {
			continue
		}
		if newest == nil || s.CreatedAt.After(newest.CreatedAt) {
			newest = s
		}
	}
	return newest
}

// ListSessions returns all active sessions.
func (sm *SessionManager) ListSessions() []*Session {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	sessions := make([]*Session, 0, len(sm.sessions))
	for _, session := range sm.sessions {
		sessions = append(sessions, session)
	}
	return sessions
}

// TerminateSession terminates a session and cleans up its resources.
func (sm *SessionManager) TerminateSession(id string, terminateDebuggee bool) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if _, ok := sm.sessions[id]; !ok {
		return fmt.Errorf("session not found: %s", id)
	}
	sm.terminateLocked(id, terminateDebuggee)
	return nil
}

// terminateLocked disconnects and removes a session (lock held).
func (sm *SessionManager) terminateLocked(id string, terminateDebuggee bool) {
	session, ok := sm.sessions[id]
	if !ok {
		return
	}

	if session.Client != nil {
		if err := session.Client.Disconnect(terminateDebuggee); err != nil {
			log.Printf("Warning: failed to disconnect session %s: %v (continuing cleanup)", id, err)
		}
		if err := session.Client.Close(); err != nil {
			log.Printf("Warning: failed to close client for session %s: %v (continuing cleanup)", id, err)
		}
	}

	// Platform-specific implementation (process_unix.go / process_windows.go)
	if err := killProcessGroup(session.PID, session.Process); err != nil {
		log.Printf("Warning: failed to kill process group for session %s (PID %d): %v", id, session.PID, err)
	}

	session.Status = types.SessionStatusTerminated
	delete(sm.sessions, id)
}

// SetSessionClient sets the DAP client for a session.
func (sm *SessionManager) SetSessionClient(id string, client *Client) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	session, ok := sm.sessions[id]
	if !ok {
		return fmt.Errorf("session not found: %s", id)
	}
	session.Client = client
	return nil
}

// SetSessionProcess sets the spawned adapter process for a session.
func (sm *SessionManager) SetSessionProcess(id string, cmd *exec.Cmd, pid int) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	session, ok := sm.sessions[id]
	if !ok {
		return fmt.Errorf("session not found: %s", id)
	}
	session.Process = cmd
	session.PID = pid
	return nil
}

// UpdateSessionStatus updates the status of a session.
func (sm *SessionManager) UpdateSessionStatus(id string, status types.SessionStatus) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	session, ok := sm.sessions[id]
	if !ok {
		return fmt.Errorf("session not found: %s", id)
	}

	session.mu.Lock()
	session.Status = status
	session.mu.Unlock()
	return nil
}

// Close shuts down the manager and all sessions.
func (sm *SessionManager) Close() {
	sm.cancel()

	sm.mu.Lock()
	defer sm.mu.Unlock()

	for id := range sm.sessions {
		sm.terminateLocked(id, true)
	}
}
