package session

import (
	"context"
	"time"
)

// Session is the bookkeeping record of one SSE connection.
type Session struct {
	ID         string     `json:"id"`
	CreatedAt  time.Time  `json:"created_at"`
	LastAccess time.Time  `json:"last_access"`
	ExpiresAt  time.Time  `json:"expires_at"`
	ClientInfo ClientInfo `json:"client_info"`
}

// ClientInfo describes the peer. Name and Version are filled from the MCP
// initialize request once the client sends it.
type ClientInfo struct {
	RemoteAddr string `json:"remote_addr"`
	UserAgent  string `json:"user_agent"`
	Name       string `json:"name,omitempty"`
	Version    string `json:"version,omitempty"`
}

// IsExpired checks if the session has expired
func (s *Session) IsExpired() bool {
	return time.Now().After(s.ExpiresAt)
}

// Refresh updates the last access time and extends expiration
func (s *Session) Refresh(timeout time.Duration) {
	now := time.Now()
	s.LastAccess = now
	s.ExpiresAt = now.Add(timeout)
}

// Age is the time since the session was created.
func (s *Session) Age() time.Duration {
	return time.Since(s.CreatedAt)
}

// SessionManager defines the interface for session management operations
type SessionManager interface {
	// CreateSession generates a new session ID and stores it
	CreateSession(ctx context.Context, clientInfo ClientInfo) (*Session, error)

	// ValidateSession checks if a session ID is valid and active
	ValidateSession(ctx context.Context, sessionID string) (*Session, error)

	// RefreshSession updates the last activity timestamp
	RefreshSession(ctx context.Context, sessionID string) error

	// IdentifyClient records the client name and version from the MCP handshake
	IdentifyClient(ctx context.Context, sessionID, name, version string) error

	// DeleteSession removes a session from the store
	DeleteSession(ctx context.Context, sessionID string) error

	// CleanupExpiredSessions removes and returns all expired sessions
	CleanupExpiredSessions(ctx context.Context) ([]*Session, error)

	// GetActiveSessionCount returns the number of active sessions
	GetActiveSessionCount(ctx context.Context) (int, error)

	// GetSessionStats returns detailed statistics about sessions
	GetSessionStats(ctx context.Context) (map[string]any, error)
}

// SessionStore defines the interface for session storage operations.
// Implementations store and return copies.
type SessionStore interface {
	Set(ctx context.Context, sessionID string, session *Session) error
	Get(ctx context.Context, sessionID string) (*Session, error)
	Delete(ctx context.Context, sessionID string) error
	List(ctx context.Context) ([]*Session, error)
	Count(ctx context.Context) (int, error)
	Close() error
}
