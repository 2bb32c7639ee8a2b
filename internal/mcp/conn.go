package mcp

import (
	"bytes"
	"fmt"
	"io"
	"sync"
	"time"
)

type connState int

const (
	stateIdle connState = iota
	stateStreaming
	stateClosed
)

func (s connState) String() string {
	switch s {
	case stateIdle:
		return "idle"
	case stateStreaming:
		return "streaming"
	case stateClosed:
		return "closed"
	}
	return "unknown"
}

// Close reasons, used in logs and the OnClose hook.
const (
	CloseClientDisconnect = "client_disconnect"
	CloseClientRequest    = "client_request"
	CloseWriteError       = "write_error"
	CloseShutdown         = "shutdown"
	CloseExpired          = "expired"
)

type event struct {
	name string
	data []byte
}

// conn is one SSE stream. Only the stream handler writes to the response;
// everything else hands events over through send.
type conn struct {
	sessionID string
	openedAt  time.Time
	events    chan event
	done      chan struct{}

	mu    sync.RWMutex
	state connState

	closeOnce   sync.Once
	closeReason string
}

func newConn(sessionID string, buffer int) *conn {
	return &conn{
		sessionID: sessionID,
		openedAt:  time.Now(),
		events:    make(chan event, buffer),
		done:      make(chan struct{}),
	}
}

func (c *conn) State() connState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// isClosed reports whether close has run, without taking the state lock.
func (c *conn) isClosed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// markStreaming moves Idle to Streaming. It fails if the connection closed
// during the handshake.
func (c *conn) markStreaming() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != stateIdle {
		return false
	}
	c.state = stateStreaming
	return true
}

// send queues an event for the stream handler. It reports false once the
// connection is closed; the events channel itself is never closed.
func (c *conn) send(ev event) bool {
	if c.State() == stateClosed {
		return false
	}
	select {
	case c.events <- ev:
		return true
	case <-c.done:
		return false
	}
}

// close transitions to Closed. Only the first call has an effect and only it
// returns true.
func (c *conn) close(reason string) bool {
	first := false
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.state = stateClosed
		c.closeReason = reason
		c.mu.Unlock()
		close(c.done)
		first = true
	})
	return first
}

// writeEvent writes one SSE event. Multi-line payloads are split over several
// data fields.
func writeEvent(w io.Writer, name string, data []byte) error {
	var buf bytes.Buffer
	if name != "" {
		fmt.Fprintf(&buf, "event: %s\n", name)
	}
	for _, line := range bytes.Split(data, []byte("\n")) {
		buf.WriteString("data: ")
		buf.Write(bytes.TrimSuffix(line, []byte("\r")))
		buf.WriteByte('\n')
	}
	buf.WriteByte('\n')
	_, err := w.Write(buf.Bytes())
	return err
}

func writeComment(w io.Writer, text string) error {
	_, err := fmt.Fprintf(w, ": %s\n\n", text)
	return err
}
