package driver

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"time"
)

const (
	// scheduleJitter is the maximum random offset applied to the sync interval
	scheduleJitter = 30 * time.Second
)

// Scheduler runs SyncAll on a fixed interval with jitter.
type Scheduler struct {
	driver   *Driver
	interval time.Duration
}

// NewScheduler creates a scheduler over the driver. A non-positive interval
// disables scheduling; Start then returns immediately.
func NewScheduler(driver *Driver, interval time.Duration) *Scheduler {
	return &Scheduler{
		driver:   driver,
		interval: interval,
	}
}

// nextInterval returns the configured interval with a random jitter applied,
// so multiple instances sharing a metadata database spread their runs out.
func (s *Scheduler) nextInterval() time.Duration {
	if s.interval <= 2*scheduleJitter {
		return s.interval
	}
	//nolint:gosec // G404: non-cryptographic randomness is fine for jitter
	offset := time.Duration(rand.Int64N(int64(2*scheduleJitter))) - scheduleJitter
	return s.interval + offset
}

// Start runs the schedule loop until the context is cancelled. The first
// run happens immediately. Per-run errors other than cancellation are
// logged, not returned; the loop keeps going.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.interval <= 0 {
		slog.Info("Background sync disabled, no interval configured")
		return nil
	}

	interval := s.nextInterval()
	slog.Info("Starting background sync schedule",
		"base_interval", s.interval,
		"actual_interval", interval)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.runOnce(ctx)

	for {
		select {
		case <-ticker.C:
			s.runOnce(ctx)
			ticker.Reset(s.nextInterval())
		case <-ctx.Done():
			slog.Info("Background sync schedule stopping")
			return nil
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context) {
	if _, err := s.driver.SyncAll(ctx, "", nil); err != nil && ctx.Err() == nil {
		slog.Error("Scheduled sync run failed", "error", err)
	}
}
