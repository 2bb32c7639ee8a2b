package session

import (
	"context"
	"net/http"

	"github.com/go-chi/render"
	"github.com/rs/zerolog"
)

const (
	// HeaderName carries the session ID on streamable-style clients.
	HeaderName = "Mcp-Session-Id"
	// QueryParam carries the session ID on the SSE message endpoint.
	QueryParam = "sessionId"
)

// SessionMiddleware resolves the session of a request and stores it in the
// request context.
type SessionMiddleware struct {
	manager SessionManager
	logger  zerolog.Logger
}

// NewSessionMiddleware creates a new session middleware
func NewSessionMiddleware(manager SessionManager, logger zerolog.Logger) *SessionMiddleware {
	return &SessionMiddleware{
		manager: manager,
		logger:  logger.With().Str("component", "session_middleware").Logger(),
	}
}

type sessionContextKey string

const (
	SessionContextKey sessionContextKey = "session"
)

// SessionIDFromRequest returns the session ID from the query string, falling
// back to the Mcp-Session-Id header.
func SessionIDFromRequest(r *http.Request) string {
	if id := r.URL.Query().Get(QueryParam); id != "" {
		return id
	}
	return r.Header.Get(HeaderName)
}

// Handler returns the HTTP middleware. Requests without a live session are
// rejected: 400 for a missing or malformed ID, 404 for an unknown or expired one.
func (m *SessionMiddleware) Handler() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}

			sessionID := SessionIDFromRequest(r)
			if sessionID == "" {
				m.sendError(w, r, http.StatusBadRequest, "missing session ID", "")
				return
			}

			session, err := m.manager.ValidateSession(r.Context(), sessionID)
			if err != nil {
				m.logger.Debug().
					Err(err).
					Str("session_id", sessionID).
					Str("path", r.URL.Path).
					Msg("Session validation failed")

				m.sendError(w, r, statusForError(err), err.Error(), ErrorCode(err))
				return
			}

			ctx := context.WithValue(r.Context(), SessionContextKey, session)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func statusForError(err error) int {
	switch ErrorCode(err) {
	case ErrSessionInvalid:
		return http.StatusBadRequest
	case ErrSessionNotFound, ErrSessionExpired:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func (m *SessionMiddleware) sendError(w http.ResponseWriter, r *http.Request, status int, message, code string) {
	body := map[string]any{
		"message": message,
		"code":    status,
	}
	if code != "" {
		body["error_code"] = code
	}
	render.Status(r, status)
	render.JSON(w, r, map[string]any{"error": body})
}

// GetSessionFromContext retrieves the session from request context
func GetSessionFromContext(ctx context.Context) (*Session, bool) {
	session, ok := ctx.Value(SessionContextKey).(*Session)
	return session, ok && session != nil
}

// SessionInfo represents session information for responses
type SessionInfo struct {
	ID            string `json:"id"`
	CreatedAt     string `json:"created_at"`
	ExpiresAt     string `json:"expires_at"`
	RemoteAddr    string `json:"remote_addr"`
	UserAgent     string `json:"user_agent"`
	ClientName    string `json:"client_name,omitempty"`
	ClientVersion string `json:"client_version,omitempty"`
}

// GetSessionInfo extracts session information for API responses
func GetSessionInfo(session *Session) SessionInfo {
	return SessionInfo{
		ID:            session.ID,
		CreatedAt:     session.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
		ExpiresAt:     session.ExpiresAt.Format("2006-01-02T15:04:05Z07:00"),
		RemoteAddr:    session.ClientInfo.RemoteAddr,
		UserAgent:     session.ClientInfo.UserAgent,
		ClientName:    session.ClientInfo.Name,
		ClientVersion: session.ClientInfo.Version,
	}
}
