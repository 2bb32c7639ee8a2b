package session

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// DefaultCleanupInterval applies when CleanupConfig leaves the interval unset.
const DefaultCleanupInterval = time.Minute

// CleanupService periodically removes expired sessions.
type CleanupService struct {
	manager   SessionManager
	interval  time.Duration
	onExpired func(*Session)
	logger    zerolog.Logger

	stopCh    chan struct{}
	stoppedCh chan struct{}

	mutex   sync.RWMutex
	running bool
}

// CleanupConfig contains configuration for the cleanup service.
// OnExpired, if set, is called for every session the sweep removed.
type CleanupConfig struct {
	CleanupInterval time.Duration
	OnExpired       func(*Session)
}

// NewCleanupService creates a new cleanup service
func NewCleanupService(manager SessionManager, config CleanupConfig, logger zerolog.Logger) *CleanupService {
	interval := config.CleanupInterval
	if interval <= 0 {
		interval = DefaultCleanupInterval
	}
	return &CleanupService{
		manager:   manager,
		interval:  interval,
		onExpired: config.OnExpired,
		logger:    logger.With().Str("component", "cleanup_service").Logger(),
	}
}

// Start begins the cleanup loop. It returns immediately.
func (c *CleanupService) Start(ctx context.Context) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.running {
		c.logger.Warn().Msg("Cleanup service is already running")
		return nil
	}

	c.logger.Info().
		Dur("interval", c.interval).
		Msg("Starting session cleanup service")

	c.stopCh = make(chan struct{})
	c.stoppedCh = make(chan struct{})
	c.running = true
	go c.run(ctx, c.stopCh, c.stoppedCh)

	return nil
}

// Stop signals the loop and waits for it to exit.
func (c *CleanupService) Stop() error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if !c.running {
		return nil
	}

	close(c.stopCh)
	<-c.stoppedCh

	c.running = false
	c.logger.Info().Msg("Session cleanup service stopped")

	return nil
}

// IsRunning returns whether the cleanup service is currently running
func (c *CleanupService) IsRunning() bool {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return c.running
}

// RunOnce performs a single sweep and returns the number of sessions removed.
func (c *CleanupService) RunOnce(ctx context.Context) (int, error) {
	start := time.Now()
	removed, err := c.manager.CleanupExpiredSessions(ctx)
	if err != nil {
		c.logger.Error().
			Err(err).
			Dur("duration", time.Since(start)).
			Msg("Session cleanup failed")
		return 0, err
	}

	if c.onExpired != nil {
		for _, s := range removed {
			c.onExpired(s)
		}
	}

	c.logger.Debug().
		Int("deleted_count", len(removed)).
		Dur("duration", time.Since(start)).
		Msg("Session cleanup completed")

	return len(removed), nil
}

func (c *CleanupService) run(ctx context.Context, stopCh <-chan struct{}, stoppedCh chan<- struct{}) {
	defer close(stoppedCh)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.logger.Info().Msg("Cleanup service stopping due to context cancellation")
			return

		case <-stopCh:
			return

		case <-ticker.C:
			cleanupCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
			_, _ = c.RunOnce(cleanupCtx)
			cancel()
		}
	}
}

// GetStats returns statistics about the cleanup service
func (c *CleanupService) GetStats() map[string]any {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	return map[string]any{
		"running":          c.running,
		"cleanup_interval": c.interval.String(),
	}
}
