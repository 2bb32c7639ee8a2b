package telemetry

import (
	"context"
	"runtime"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// SessionCounter reports the number of live sessions.
type SessionCounter interface {
	GetActiveSessionCount(ctx context.Context) (int, error)
}

// SystemMetricsCollector collects system-level metrics periodically
type SystemMetricsCollector struct {
	metrics  *Metrics
	sessions SessionCounter
	logger   zerolog.Logger
	interval time.Duration
	done     chan struct{}
	stopOnce sync.Once
}

// NewSystemMetricsCollector creates a new system metrics collector. sessions
// may be nil.
func NewSystemMetricsCollector(metrics *Metrics, sessions SessionCounter, logger zerolog.Logger, interval time.Duration) *SystemMetricsCollector {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &SystemMetricsCollector{
		metrics:  metrics,
		sessions: sessions,
		logger:   logger.With().Str("component", "system_metrics").Logger(),
		interval: interval,
		done:     make(chan struct{}),
	}
}

// Start collects until ctx is cancelled or Stop is called. It blocks.
func (c *SystemMetricsCollector) Start(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	c.logger.Info().
		Dur("interval", c.interval).
		Msg("Starting system metrics collection")

	c.Collect(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			c.logger.Info().Msg("Stopping system metrics collection")
			return
		case <-ticker.C:
			c.Collect(ctx)
		}
	}
}

// Stop stops the metrics collection
func (c *SystemMetricsCollector) Stop() {
	c.stopOnce.Do(func() { close(c.done) })
}

// Collect takes one sample.
func (c *SystemMetricsCollector) Collect(ctx context.Context) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	active := 0
	if c.sessions != nil {
		n, err := c.sessions.GetActiveSessionCount(ctx)
		if err != nil {
			c.logger.Warn().Err(err).Msg("Failed to count sessions")
		} else {
			active = n
		}
	}

	c.metrics.UpdateSystemMetrics(runtime.NumGoroutine(), m.Alloc, active)

	c.logger.Debug().
		Int("goroutines", runtime.NumGoroutine()).
		Uint64("memory_bytes", m.Alloc).
		Int("sessions", active).
		Msg("Updated system metrics")
}
