package cleanup

import (
	"context"
	"log/slog"
	"time"

	"github.com/terra-clan/koi-prep/internal/session"
)

// Sessions is the part of the session registry the cleaner needs
type Sessions interface {
	Idle(cutoff time.Time) []*session.Session
	Delete(id string) error
}

// Cleaner handles periodic eviction of idle sessions
type Cleaner struct {
	sessions Sessions
	ttl      time.Duration
	interval time.Duration
	now      func() time.Time
}

// NewCleaner creates a new cleanup worker evicting sessions idle for
// longer than ttl
func NewCleaner(sessions Sessions, ttl, interval time.Duration) *Cleaner {
	if interval <= 0 {
		interval = 5 * time.Minute
	}

	return &Cleaner{
		sessions: sessions,
		ttl:      ttl,
		interval: interval,
		now:      time.Now,
	}
}

// Start begins the cleanup worker in a goroutine
func (c *Cleaner) Start(ctx context.Context) {
	go c.run(ctx)
}

// run is the main loop for the cleanup worker
func (c *Cleaner) run(ctx context.Context) {
	slog.Info("cleanup worker started", "interval", c.interval, "idle_ttl", c.ttl)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	// Run immediately on start
	c.cleanup()

	for {
		select {
		case <-ctx.Done():
			slog.Info("cleanup worker stopped")
			return
		case <-ticker.C:
			c.cleanup()
		}
	}
}

// cleanup evicts idle sessions; busy ones are skipped by the registry and
// retried on the next cycle. It returns the number of evicted sessions.
func (c *Cleaner) cleanup() int {
	slog.Debug("running cleanup cycle")

	idle := c.sessions.Idle(c.now().Add(-c.ttl))
	if len(idle) == 0 {
		slog.Debug("no idle sessions found")
		return 0
	}

	slog.Info("found idle sessions", "count", len(idle))

	evicted := 0
	for _, sess := range idle {
		slog.Info("evicting idle session",
			"id", sess.ID(),
			"step", sess.Step(),
			"last_activity", sess.LastActivity(),
		)

		if err := c.sessions.Delete(sess.ID()); err != nil {
			slog.Error("failed to evict idle session",
				"error", err,
				"id", sess.ID(),
			)
			continue
		}
		evicted++
	}

	return evicted
}
