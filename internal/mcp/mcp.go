// Package mcp serves the Model Context Protocol over the HTTP+SSE transport.
// A client opens GET /sse, receives the message endpoint, and POSTs JSON-RPC
// requests there; every response arrives as a "message" event on its stream.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"sap-mcp-sse/internal/session"
	"sap-mcp-sse/internal/tools"
)

const (
	// ProtocolVersion is the newest MCP revision this server speaks.
	ProtocolVersion = "2024-11-05"

	DefaultKeepAlive   = 15 * time.Second
	DefaultMessagePath = "/message"

	maxMessageBytes = 1 << 20
	eventBuffer     = 16
)

// ToolProvider is the registry as seen by the dispatcher.
type ToolProvider interface {
	Definitions() []tools.Definition
	Call(ctx context.Context, name string, args json.RawMessage) (json.RawMessage, error)
}

// StreamObserver is notified when streams open and close.
type StreamObserver interface {
	StreamOpened()
	StreamClosed()
}

// Options configures a Server. Zero values pick the defaults.
type Options struct {
	Name    string
	Version string

	// MessagePath is advertised in the endpoint event.
	MessagePath string
	KeepAlive   time.Duration

	Observer StreamObserver
	// OnClose runs once per connection after it closed.
	OnClose func(sessionID, reason string)
}

// Server owns the live SSE connections.
type Server struct {
	tools    ToolProvider
	sessions session.SessionManager
	opts     Options
	logger   zerolog.Logger

	mu      sync.RWMutex
	conns   map[string]*conn
	closing bool

	inflight sync.WaitGroup
}

// NewServer creates a dispatcher bound to a tool provider and session manager.
func NewServer(provider ToolProvider, sessions session.SessionManager, opts Options, logger zerolog.Logger) *Server {
	if opts.Name == "" {
		opts.Name = "sap-mcp-sse"
	}
	if opts.Version == "" {
		opts.Version = "dev"
	}
	if opts.MessagePath == "" {
		opts.MessagePath = DefaultMessagePath
	}
	if opts.KeepAlive <= 0 {
		opts.KeepAlive = DefaultKeepAlive
	}
	return &Server{
		tools:    provider,
		sessions: sessions,
		opts:     opts,
		logger:   logger.With().Str("component", "mcp").Logger(),
		conns:    make(map[string]*conn),
	}
}

// ConnectionCount returns the number of open streams.
func (s *Server) ConnectionCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.conns)
}

func (s *Server) lookup(sessionID string) (*conn, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.conns[sessionID]
	return c, ok
}

// HandleStream serves GET /sse. It blocks for the lifetime of the stream.
func (s *Server) HandleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	sess, err := s.sessions.CreateSession(r.Context(), session.ClientInfo{
		RemoteAddr: r.RemoteAddr,
		UserAgent:  r.UserAgent(),
	})
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to create session for stream")
		http.Error(w, "failed to create session", http.StatusInternalServerError)
		return
	}

	c := newConn(sess.ID, eventBuffer)
	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		_ = s.sessions.DeleteSession(r.Context(), sess.ID)
		http.Error(w, "server shutting down", http.StatusServiceUnavailable)
		return
	}
	s.conns[sess.ID] = c
	s.mu.Unlock()
	if s.opts.Observer != nil {
		s.opts.Observer.StreamOpened()
	}

	logger := s.logger.With().
		Str("session_id", sess.ID).
		Str("request_id", middleware.GetReqID(r.Context())).
		Logger()

	// client disconnect is the default; closeConn keeps the first reason
	defer s.closeConn(c, CloseClientDisconnect)

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	endpoint := fmt.Sprintf("%s?%s=%s", s.opts.MessagePath, session.QueryParam, url.QueryEscape(sess.ID))
	if err := writeEvent(w, "endpoint", []byte(endpoint)); err != nil {
		logger.Warn().Err(err).Msg("Handshake failed")
		s.closeConn(c, CloseWriteError)
		return
	}
	flusher.Flush()

	if !c.markStreaming() {
		return
	}
	logger.Info().Str("endpoint", endpoint).Msg("SSE stream opened")

	if defs, err := json.Marshal(map[string]any{"tools": s.tools.Definitions()}); err == nil {
		if err := writeEvent(w, "tools", defs); err != nil {
			s.closeConn(c, CloseWriteError)
			return
		}
		flusher.Flush()
	}

	ticker := time.NewTicker(s.opts.KeepAlive)
	defer ticker.Stop()

	for {
		select {
		case ev := <-c.events:
			// done and events can both be ready; closed wins
			if c.isClosed() {
				return
			}
			if err := writeEvent(w, ev.name, ev.data); err != nil {
				logger.Warn().Err(err).Msg("Failed to write event")
				s.closeConn(c, CloseWriteError)
				return
			}
			flusher.Flush()

		case <-ticker.C:
			if c.isClosed() {
				return
			}
			if err := writeComment(w, "ping"); err != nil {
				s.closeConn(c, CloseWriteError)
				return
			}
			flusher.Flush()
			if err := s.sessions.RefreshSession(r.Context(), c.sessionID); err != nil && session.IsNotFound(err) {
				s.closeConn(c, CloseExpired)
				return
			}

		case <-c.done:
			return

		case <-r.Context().Done():
			return
		}
	}
}

// HandleMessage serves POST /message. The request is answered with 202 and
// its JSON-RPC response is delivered on the stream.
func (s *Server) HandleMessage(w http.ResponseWriter, r *http.Request) {
	c, ok := s.connFor(r)
	if !ok {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}

	body, err := readBody(w, r)
	if err != nil {
		http.Error(w, "could not read request body", http.StatusBadRequest)
		return
	}

	if err := s.sessions.RefreshSession(r.Context(), c.sessionID); err != nil && session.IsNotFound(err) {
		s.closeConn(c, CloseExpired)
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}

	// Add must not race the Wait in Close
	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		http.Error(w, "server shutting down", http.StatusServiceUnavailable)
		return
	}
	s.inflight.Add(1)
	s.mu.Unlock()

	msg, parseErr := parseMessage(body)
	w.WriteHeader(http.StatusAccepted)

	// the handler outlives this POST; keep its values but not its cancellation
	ctx := context.WithoutCancel(r.Context())
	go func() {
		defer s.inflight.Done()
		s.handle(ctx, c, msg, parseErr)
	}()
}

// HandleClose serves DELETE /message, the explicit close.
func (s *Server) HandleClose(w http.ResponseWriter, r *http.Request) {
	c, ok := s.connFor(r)
	if !ok {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}
	s.closeConn(c, CloseClientRequest)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) connFor(r *http.Request) (*conn, bool) {
	sessionID := session.SessionIDFromRequest(r)
	if sess, ok := session.GetSessionFromContext(r.Context()); ok {
		sessionID = sess.ID
	}
	if sessionID == "" {
		return nil, false
	}
	c, ok := s.lookup(sessionID)
	if !ok || c.State() == stateClosed {
		return nil, false
	}
	return c, true
}

// CloseSession closes the stream of sessionID, if one is open.
func (s *Server) CloseSession(sessionID, reason string) bool {
	c, ok := s.lookup(sessionID)
	if !ok {
		return false
	}
	return s.closeConn(c, reason)
}

func (s *Server) closeConn(c *conn, reason string) bool {
	if !c.close(reason) {
		return false
	}

	s.mu.Lock()
	if s.conns[c.sessionID] == c {
		delete(s.conns, c.sessionID)
	}
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.sessions.DeleteSession(ctx, c.sessionID); err != nil && !session.IsNotFound(err) {
		s.logger.Warn().Err(err).Str("session_id", c.sessionID).Msg("Failed to delete session")
	}

	if s.opts.Observer != nil {
		s.opts.Observer.StreamClosed()
	}
	if s.opts.OnClose != nil {
		s.opts.OnClose(c.sessionID, reason)
	}

	s.logger.Info().
		Str("session_id", c.sessionID).
		Str("reason", reason).
		Dur("duration", time.Since(c.openedAt)).
		Msg("SSE stream closed")
	return true
}

// Close closes every stream and waits for in-flight handlers until ctx ends.
// New streams and messages are refused from then on.
func (s *Server) Close(ctx context.Context) error {
	s.mu.Lock()
	s.closing = true
	open := make([]*conn, 0, len(s.conns))
	for _, c := range s.conns {
		open = append(open, c)
	}
	s.mu.Unlock()

	for _, c := range open {
		s.closeConn(c, CloseShutdown)
	}

	drained := make(chan struct{})
	go func() {
		s.inflight.Wait()
		close(drained)
	}()

	select {
	case <-drained:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for in-flight requests: %w", ctx.Err())
	}
}

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	defer r.Body.Close()

	buf, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxMessageBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, fmt.Errorf("message exceeds %d bytes", maxMessageBytes)
		}
		return nil, err
	}
	return buf, nil
}
