package telemetry

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"

	"sap-mcp-sse/internal/session"
	"sap-mcp-sse/internal/tools"
)

func TestNewMetrics_IndependentRegistries(t *testing.T) {
	// two instances in one process must not collide
	a := NewMetrics()
	b := NewMetrics()

	a.RecordUpstreamRequest("2xx", time.Millisecond)

	if got := testutil.ToFloat64(a.SAPRequestsTotal.WithLabelValues("2xx")); got != 1 {
		t.Errorf("Expected 1, got %v", got)
	}
	if got := testutil.ToFloat64(b.SAPRequestsTotal.WithLabelValues("2xx")); got != 0 {
		t.Errorf("Expected 0, got %v", got)
	}
}

func TestMetricsHandler(t *testing.T) {
	m := NewMetrics()
	m.RecordToolExecution("fetch_due_notifications", "success", time.Second)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	body := rec.Body.String()
	for _, want := range []string{
		`mcp_tool_executions_total{status="success",tool_name="fetch_due_notifications"} 1`,
		"go_goroutines",
		"sap_odata_request_duration_seconds",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("Expected exposition to contain %q", want)
		}
	}
}

type flushRecorder struct {
	*httptest.ResponseRecorder
	flushed bool
}

func (f *flushRecorder) Flush() { f.flushed = true }

func TestHTTPMetricsMiddleware(t *testing.T) {
	m := NewMetrics()

	r := chi.NewRouter()
	r.Use(HTTPMetricsMiddleware(m, zerolog.Nop()))
	r.Get("/sessions/{sessionID}", func(w http.ResponseWriter, r *http.Request) {
		if _, ok := w.(http.Flusher); !ok {
			t.Error("Wrapped writer lost http.Flusher")
		}
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte("short"))
		w.(http.Flusher).Flush()
	})

	rec := &flushRecorder{ResponseRecorder: httptest.NewRecorder()}
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/sessions/sess.1.abc", nil))

	if !rec.flushed {
		t.Error("Flush did not reach the underlying writer")
	}
	got := testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "/sessions/{sessionID}", "418"))
	if got != 1 {
		t.Errorf("Expected 1 request under the route pattern, got %v", got)
	}
	if v := testutil.ToFloat64(m.HTTPRequestsInFlight); v != 0 {
		t.Errorf("In-flight gauge should return to 0, got %v", v)
	}
}

func TestToolRegistryWrapper(t *testing.T) {
	m := NewMetrics()
	reg := tools.NewRegistry(zerolog.Nop())
	err := reg.Register(tools.Descriptor{
		Name: "echo",
		Handler: func(ctx context.Context, args tools.Args) (json.RawMessage, error) {
			return json.RawMessage(`{"ok":true}`), nil
		},
	})
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	w := NewToolRegistryWrapper(reg, m)
	if _, err := w.Call(context.Background(), "echo", nil); err != nil {
		t.Fatalf("Call failed: %v", err)
	}
	if _, err := w.Call(context.Background(), "nope", nil); err == nil {
		t.Fatal("Expected error for unknown tool")
	}

	if got := testutil.ToFloat64(m.MCPToolExecutions.WithLabelValues("echo", "success")); got != 1 {
		t.Errorf("Expected 1 success, got %v", got)
	}
	if got := testutil.ToFloat64(m.MCPToolExecutions.WithLabelValues("unknown", "error")); got != 1 {
		t.Errorf("Expected 1 unknown error, got %v", got)
	}
}

func TestSessionManagerWrapper(t *testing.T) {
	m := NewMetrics()
	logger := zerolog.Nop()
	store := session.NewMemoryStore(logger)
	base := session.NewDefaultSessionManager(store, session.ManagerConfig{SessionTimeout: time.Hour}, logger)
	w := NewSessionManagerWrapper(base, m)
	ctx := context.Background()

	kept, _ := w.CreateSession(ctx, session.ClientInfo{})
	stale, _ := w.CreateSession(ctx, session.ClientInfo{})

	if err := w.DeleteSession(ctx, kept.ID); err != nil {
		t.Fatalf("DeleteSession failed: %v", err)
	}

	stale.ExpiresAt = time.Now().Add(-time.Second)
	_ = store.Set(ctx, stale.ID, stale)
	if _, err := w.CleanupExpiredSessions(ctx); err != nil {
		t.Fatalf("Cleanup failed: %v", err)
	}

	for action, want := range map[string]float64{"created": 2, "deleted": 1, "expired": 1} {
		if got := testutil.ToFloat64(m.MCPSessionsTotal.WithLabelValues(action)); got != want {
			t.Errorf("%s: expected %v, got %v", action, want, got)
		}
	}

	NewSystemMetricsCollector(m, w, logger, time.Minute).Collect(ctx)
	if got := testutil.ToFloat64(m.MCPSessionsActive); got != 0 {
		t.Errorf("Expected 0 active sessions, got %v", got)
	}
}
