package session

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/rs/zerolog"
)

// SessionHandler serves read-only session endpoints.
type SessionHandler struct {
	manager SessionManager
	cleanup *CleanupService
	logger  zerolog.Logger
}

// NewSessionHandler creates a new session handler. cleanup may be nil.
func NewSessionHandler(manager SessionManager, cleanup *CleanupService, logger zerolog.Logger) *SessionHandler {
	return &SessionHandler{
		manager: manager,
		cleanup: cleanup,
		logger:  logger.With().Str("component", "session_handler").Logger(),
	}
}

// SessionStatusResponse represents the response for session status
type SessionStatusResponse struct {
	Success bool        `json:"success"`
	Session SessionInfo `json:"session"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Success bool           `json:"success"`
	Error   map[string]any `json:"error"`
}

// Routes mounts the handler under a chi router.
func (h *SessionHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.GetSession)
	r.Get("/stats", h.GetSessionStats)
	r.Get("/{sessionID}", h.GetSession)
	return r
}

// GetSession handles GET /sessions/{sessionID}
func (h *SessionHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if sessionID == "" {
		sessionID = r.Header.Get(HeaderName)
	}
	if sessionID == "" {
		h.sendError(w, r, http.StatusBadRequest, "session ID required", nil)
		return
	}

	session, err := h.manager.ValidateSession(r.Context(), sessionID)
	if err != nil {
		h.sendError(w, r, statusForError(err), err.Error(), map[string]any{
			"error_code": ErrorCode(err),
		})
		return
	}

	render.JSON(w, r, SessionStatusResponse{
		Success: true,
		Session: GetSessionInfo(session),
	})
}

// GetSessionStats handles GET /sessions/stats
func (h *SessionHandler) GetSessionStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.manager.GetSessionStats(r.Context())
	if err != nil {
		h.logger.Error().
			Err(err).
			Msg("Failed to get session stats")
		h.sendError(w, r, http.StatusInternalServerError, "failed to get session stats", map[string]any{
			"error_code": ErrorCode(err),
		})
		return
	}

	if h.cleanup != nil {
		for k, v := range h.cleanup.GetStats() {
			stats["cleanup_"+k] = v
		}
	}

	render.JSON(w, r, map[string]any{
		"success": true,
		"stats":   stats,
	})
}

func (h *SessionHandler) sendError(w http.ResponseWriter, r *http.Request, status int, message string, details map[string]any) {
	body := map[string]any{
		"message": message,
		"code":    status,
	}
	if details != nil {
		body["details"] = details
	}
	render.Status(r, status)
	render.JSON(w, r, ErrorResponse{Success: false, Error: body})
}
