package imagecache

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// SweepResult reports one sweeper run.
type SweepResult struct {
	Removed  int
	Duration time.Duration
	Err      error
}

// SweeperConfig configures StartSweeper.
type SweeperConfig struct {
	// MaxAge is passed to InvalidateOlderThan. Default: 24 hours
	MaxAge time.Duration
	// Interval between runs. Default: 6 hours
	Interval time.Duration
	// OnSweep is called after each run (optional). main uses it to vacuum
	// the database after large deletions.
	OnSweep func(SweepResult)
}

// DefaultSweeperConfig returns the retention schedule used in production.
func DefaultSweeperConfig() SweeperConfig {
	return SweeperConfig{
		MaxAge:   DefaultMaxAge,
		Interval: 6 * time.Hour,
	}
}

// StartSweeper runs InvalidateOlderThan once immediately and then every
// Interval until ctx is cancelled. The returned channel is closed when the
// goroutine exits.
//
// The sweeper shares nothing with request handling beyond the store.
//
// Example:
//
//	done := cache.StartSweeper(ctx, imagecache.DefaultSweeperConfig())
//	...
//	cancel()
//	<-done
func (c *Cache) StartSweeper(ctx context.Context, config SweeperConfig) <-chan struct{} {
	def := DefaultSweeperConfig()
	if config.MaxAge <= 0 {
		config.MaxAge = def.MaxAge
	}
	if config.Interval <= 0 {
		config.Interval = def.Interval
	}

	done := make(chan struct{})
	go func() {
		defer close(done)

		c.sweep(ctx, config)

		ticker := time.NewTicker(config.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				c.logger.Debug("Cache sweeper stopped")
				return
			case <-ticker.C:
				c.sweep(ctx, config)
			}
		}
	}()
	return done
}

func (c *Cache) sweep(ctx context.Context, config SweeperConfig) {
	start := time.Now()
	removed, err := c.InvalidateOlderThan(ctx, config.MaxAge)
	result := SweepResult{Removed: removed, Duration: time.Since(start), Err: err}

	if err != nil {
		c.logger.Warn("Cache sweep failed", zap.Error(err))
	} else {
		c.logger.Debug("Cache sweep finished",
			zap.Int("removed", removed),
			zap.Duration("duration", result.Duration),
		)
	}

	if config.OnSweep != nil {
		config.OnSweep(result)
	}
}
