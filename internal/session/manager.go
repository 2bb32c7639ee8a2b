package session

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// DefaultSessionTimeout applies when ManagerConfig leaves SessionTimeout unset.
const DefaultSessionTimeout = 30 * time.Minute

// DefaultSessionManager implements SessionManager on top of a SessionStore.
type DefaultSessionManager struct {
	store     SessionStore
	generator *SessionIDGenerator
	timeout   time.Duration
	logger    zerolog.Logger

	// serializes read-modify-write updates on the store
	updateMu sync.Mutex
}

// ManagerConfig contains configuration for the session manager
type ManagerConfig struct {
	SessionTimeout time.Duration
}

// NewDefaultSessionManager creates a new session manager
func NewDefaultSessionManager(store SessionStore, config ManagerConfig, logger zerolog.Logger) *DefaultSessionManager {
	timeout := config.SessionTimeout
	if timeout <= 0 {
		timeout = DefaultSessionTimeout
	}
	return &DefaultSessionManager{
		store:     store,
		generator: NewSessionIDGenerator(),
		timeout:   timeout,
		logger:    logger.With().Str("component", "session_manager").Logger(),
	}
}

// Timeout is the idle period after which a session expires.
func (m *DefaultSessionManager) Timeout() time.Duration {
	return m.timeout
}

// CreateSession generates a new session ID and stores it
func (m *DefaultSessionManager) CreateSession(ctx context.Context, clientInfo ClientInfo) (*Session, error) {
	sessionID, err := m.generator.Generate()
	if err != nil {
		m.logger.Error().
			Err(err).
			Str("remote_addr", clientInfo.RemoteAddr).
			Msg("Failed to generate session ID")
		return nil, err
	}

	now := time.Now()
	session := &Session{
		ID:         sessionID,
		CreatedAt:  now,
		LastAccess: now,
		ExpiresAt:  now.Add(m.timeout),
		ClientInfo: clientInfo,
	}

	if err := m.store.Set(ctx, sessionID, session); err != nil {
		m.logger.Error().
			Err(err).
			Str("session_id", sessionID).
			Msg("Failed to store session")
		return nil, newSessionStorageError("create", err)
	}

	m.logger.Info().
		Str("session_id", sessionID).
		Str("remote_addr", clientInfo.RemoteAddr).
		Str("user_agent", clientInfo.UserAgent).
		Time("expires_at", session.ExpiresAt).
		Msg("Session created")

	return session, nil
}

// ValidateSession checks the ID format and returns the live session.
// An expired session is removed and reported as SESSION_EXPIRED.
func (m *DefaultSessionManager) ValidateSession(ctx context.Context, sessionID string) (*Session, error) {
	if err := m.generator.Validate(sessionID); err != nil {
		m.logger.Debug().
			Str("session_id", sessionID).
			Err(err).
			Msg("Session ID format validation failed")
		return nil, err
	}

	session, err := m.store.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	if session.IsExpired() {
		m.logger.Debug().
			Str("session_id", sessionID).
			Time("expires_at", session.ExpiresAt).
			Msg("Session has expired")

		if deleteErr := m.store.Delete(ctx, sessionID); deleteErr != nil && !IsNotFound(deleteErr) {
			m.logger.Warn().
				Err(deleteErr).
				Str("session_id", sessionID).
				Msg("Failed to delete expired session")
		}
		return nil, newSessionExpiredError(sessionID)
	}

	return session, nil
}

// RefreshSession extends the expiry of a live session.
func (m *DefaultSessionManager) RefreshSession(ctx context.Context, sessionID string) error {
	return m.update(ctx, sessionID, "refresh", func(s *Session) {
		s.Refresh(m.timeout)
	})
}

// IdentifyClient stores the name and version the client announced in its
// initialize request. It also counts as activity.
func (m *DefaultSessionManager) IdentifyClient(ctx context.Context, sessionID, name, version string) error {
	err := m.update(ctx, sessionID, "identify", func(s *Session) {
		s.ClientInfo.Name = name
		s.ClientInfo.Version = version
		s.Refresh(m.timeout)
	})
	if err == nil {
		m.logger.Info().
			Str("session_id", sessionID).
			Str("client_name", name).
			Str("client_version", version).
			Msg("Client identified")
	}
	return err
}

func (m *DefaultSessionManager) update(ctx context.Context, sessionID, op string, fn func(*Session)) error {
	m.updateMu.Lock()
	defer m.updateMu.Unlock()

	session, err := m.ValidateSession(ctx, sessionID)
	if err != nil {
		return err
	}

	fn(session)

	if err := m.store.Set(ctx, sessionID, session); err != nil {
		m.logger.Error().
			Err(err).
			Str("session_id", sessionID).
			Str("operation", op).
			Msg("Failed to update session")
		return newSessionStorageError(op, err)
	}
	return nil
}

// DeleteSession removes a session from the store
func (m *DefaultSessionManager) DeleteSession(ctx context.Context, sessionID string) error {
	m.updateMu.Lock()
	defer m.updateMu.Unlock()

	if err := m.store.Delete(ctx, sessionID); err != nil {
		return err
	}

	m.logger.Info().
		Str("session_id", sessionID).
		Msg("Session deleted")

	return nil
}

// CleanupExpiredSessions removes all expired sessions and returns the ones it
// removed, so their streams can be closed.
func (m *DefaultSessionManager) CleanupExpiredSessions(ctx context.Context) ([]*Session, error) {
	m.updateMu.Lock()
	defer m.updateMu.Unlock()

	sessions, err := m.store.List(ctx)
	if err != nil {
		m.logger.Error().
			Err(err).
			Msg("Failed to list sessions for cleanup")
		return nil, newSessionStorageError("cleanup_list", err)
	}

	now := time.Now()
	var removed []*Session
	for _, session := range sessions {
		if !now.After(session.ExpiresAt) {
			continue
		}
		if err := m.store.Delete(ctx, session.ID); err != nil {
			m.logger.Warn().
				Err(err).
				Str("session_id", session.ID).
				Msg("Failed to delete expired session during cleanup")
			continue
		}
		removed = append(removed, session)
	}

	if len(removed) > 0 {
		m.logger.Info().
			Int("deleted_count", len(removed)).
			Int("total_sessions", len(sessions)).
			Msg("Cleanup completed")
	}

	return removed, nil
}

// GetActiveSessionCount returns the number of active sessions
func (m *DefaultSessionManager) GetActiveSessionCount(ctx context.Context) (int, error) {
	count, err := m.store.Count(ctx)
	if err != nil {
		m.logger.Error().
			Err(err).
			Msg("Failed to get active session count")
		return 0, newSessionStorageError("count", err)
	}
	return count, nil
}

// GetSessionStats returns statistics about sessions
func (m *DefaultSessionManager) GetSessionStats(ctx context.Context) (map[string]any, error) {
	sessions, err := m.store.List(ctx)
	if err != nil {
		return nil, newSessionStorageError("stats", err)
	}

	now := time.Now()
	active, expired, identified := 0, 0, 0
	for _, session := range sessions {
		if now.After(session.ExpiresAt) {
			expired++
		} else {
			active++
		}
		if session.ClientInfo.Name != "" {
			identified++
		}
	}

	stats := map[string]any{
		"total_sessions":      len(sessions),
		"active_sessions":     active,
		"expired_sessions":    expired,
		"identified_sessions": identified,
		"session_timeout":     m.timeout.String(),
	}

	if storeStats, ok := m.store.(interface{ GetStats() map[string]any }); ok {
		for k, v := range storeStats.GetStats() {
			stats["store_"+k] = v
		}
	}

	return stats, nil
}
