package telemetry

import (
	"context"

	"sap-mcp-sse/internal/session"
)

// SessionManagerWrapper wraps a session manager to add telemetry
type SessionManagerWrapper struct {
	session.SessionManager
	metrics *Metrics
}

// NewSessionManagerWrapper creates a new telemetry-aware session manager wrapper
func NewSessionManagerWrapper(manager session.SessionManager, metrics *Metrics) *SessionManagerWrapper {
	return &SessionManagerWrapper{
		SessionManager: manager,
		metrics:        metrics,
	}
}

// CreateSession wraps the original CreateSession to add telemetry
func (w *SessionManagerWrapper) CreateSession(ctx context.Context, clientInfo session.ClientInfo) (*session.Session, error) {
	sess, err := w.SessionManager.CreateSession(ctx, clientInfo)
	if err == nil {
		w.metrics.RecordSessionCreated()
	}
	return sess, err
}

// DeleteSession wraps the original DeleteSession to add telemetry
func (w *SessionManagerWrapper) DeleteSession(ctx context.Context, sessionID string) error {
	sess, getErr := w.SessionManager.ValidateSession(ctx, sessionID)

	err := w.SessionManager.DeleteSession(ctx, sessionID)
	if err == nil && getErr == nil {
		w.metrics.RecordSessionDeleted(sess.Age())
	}
	return err
}

// CleanupExpiredSessions records every session the sweep removed.
func (w *SessionManagerWrapper) CleanupExpiredSessions(ctx context.Context) ([]*session.Session, error) {
	removed, err := w.SessionManager.CleanupExpiredSessions(ctx)
	for _, sess := range removed {
		w.metrics.RecordSessionExpired(sess.Age())
	}
	return removed, err
}
