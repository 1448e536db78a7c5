package cleanup

import (
	"context"
	"log/slog"
	"time"
)

// Sweeper drops expired in-memory state and reports how much it removed
type Sweeper interface {
	Sweep(ctx context.Context) (int, error)
}

// Cleaner periodically sweeps expired rate limit windows
type Cleaner struct {
	sweeper  Sweeper
	interval time.Duration
}

// NewCleaner creates a new cleanup worker
func NewCleaner(sweeper Sweeper, interval time.Duration) *Cleaner {
	if interval <= 0 {
		interval = 5 * time.Minute
	}

	return &Cleaner{
		sweeper:  sweeper,
		interval: interval,
	}
}

// Start begins the cleanup worker in a goroutine. The returned channel is
// closed once the worker has stopped.
func (c *Cleaner) Start(ctx context.Context) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		c.run(ctx)
	}()
	return done
}

// run is the main loop for the cleanup worker
func (c *Cleaner) run(ctx context.Context) {
	slog.Info("cleanup worker started", "interval", c.interval)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("cleanup worker stopped")
			return
		case <-ticker.C:
			c.cleanup(ctx)
		}
	}
}

func (c *Cleaner) cleanup(ctx context.Context) {
	slog.Debug("running cleanup cycle")

	removed, err := c.sweeper.Sweep(ctx)
	if err != nil {
		slog.Error("cleanup cycle failed", "error", err)
		return
	}

	if removed > 0 {
		slog.Info("expired entries removed", "count", removed)
	}
}
