package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestCleanupService_RunOnceReportsExpired(t *testing.T) {
	manager, store := newTestManager(time.Hour)
	defer store.Close()
	ctx := context.Background()

	stale, _ := manager.CreateSession(ctx, ClientInfo{})
	stale.ExpiresAt = time.Now().Add(-time.Minute)
	_ = store.Set(ctx, stale.ID, stale)
	_, _ = manager.CreateSession(ctx, ClientInfo{})

	var expired []string
	cleanup := NewCleanupService(manager, CleanupConfig{
		CleanupInterval: time.Hour,
		OnExpired:       func(s *Session) { expired = append(expired, s.ID) },
	}, zerolog.Nop())

	n, err := cleanup.RunOnce(ctx)
	if err != nil {
		t.Fatalf("RunOnce failed: %v", err)
	}
	if n != 1 {
		t.Errorf("Expected 1 removed session, got %d", n)
	}
	if len(expired) != 1 || expired[0] != stale.ID {
		t.Errorf("OnExpired got %v", expired)
	}
}

func TestCleanupService_StartStop(t *testing.T) {
	manager, store := newTestManager(20 * time.Millisecond)
	defer store.Close()
	ctx := context.Background()

	session, _ := manager.CreateSession(ctx, ClientInfo{})

	var mu sync.Mutex
	var expired []string
	cleanup := NewCleanupService(manager, CleanupConfig{
		CleanupInterval: 10 * time.Millisecond,
		OnExpired: func(s *Session) {
			mu.Lock()
			expired = append(expired, s.ID)
			mu.Unlock()
		},
	}, zerolog.Nop())

	if err := cleanup.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if !cleanup.IsRunning() {
		t.Fatal("Cleanup service should be running")
	}
	// second start is a no-op
	_ = cleanup.Start(ctx)

	deadline := time.Now().Add(2 * time.Second)
	for {
		mu.Lock()
		done := len(expired) == 1
		mu.Unlock()
		if done {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("Expired session was never swept")
		}
		time.Sleep(5 * time.Millisecond)
	}

	if err := cleanup.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if cleanup.IsRunning() {
		t.Error("Cleanup service should be stopped")
	}

	mu.Lock()
	defer mu.Unlock()
	if expired[0] != session.ID {
		t.Errorf("Expected %s swept, got %v", session.ID, expired)
	}

	// restart after stop
	if err := cleanup.Start(ctx); err != nil {
		t.Fatalf("Restart failed: %v", err)
	}
	_ = cleanup.Stop()
}
