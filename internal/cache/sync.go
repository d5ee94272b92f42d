package cache

import (
	"context"
	"log/slog"
	"time"
)

// Start launches the background availability sync: one run immediately,
// then one per interval. Calling Start on a cache that is already running
// is a no-op with a warning; at most one sync worker exists per cache.
func (c *SchedulingCache) Start() {
	c.mu.Lock()
	if c.syncCancel != nil {
		c.mu.Unlock()
		slog.Warn("background sync already running")
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	c.syncCancel = cancel
	c.mu.Unlock()

	c.syncWG.Add(1)
	go c.syncLoop(ctx)

	slog.Info("background sync started", "interval", c.cfg.SyncInterval)
}

// Stop halts the background sync. It is idempotent and returns within the
// sync run budget: cancellation aborts any in-flight fetch rather than
// waiting it out.
func (c *SchedulingCache) Stop() {
	c.mu.Lock()
	cancel := c.syncCancel
	c.syncCancel = nil
	c.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()

	done := make(chan struct{})
	go func() {
		c.syncWG.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(c.cfg.SyncRunTimeout):
		slog.Warn("background sync did not stop within budget")
	}

	slog.Info("background sync stopped")
}

func (c *SchedulingCache) syncLoop(ctx context.Context) {
	defer c.syncWG.Done()

	c.syncOnce(ctx)

	ticker := time.NewTicker(c.cfg.SyncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.syncOnce(ctx)
		}
	}
}

// syncOnce fetches the full availability list unconditionally and replaces
// the cached entry. A failed run leaves the existing entry untouched so a
// broken upstream never manufactures a miss.
func (c *SchedulingCache) syncOnce(ctx context.Context) {
	runCtx, cancel := context.WithTimeout(ctx, c.cfg.SyncRunTimeout)
	defer cancel()

	start := time.Now()
	slots, err := c.fetcher.FetchAvailableSlots(runCtx, c.cfg.MaxSlots)
	if err != nil {
		slog.Error("background sync failed", "error", err)
		return
	}

	c.mu.Lock()
	c.availability = NewEntry(slots, c.cfg.AvailabilityTTL)
	c.stats.syncCount++
	c.stats.lastSync = time.Now()
	c.mu.Unlock()

	slog.Info("synced availability", "slots", len(slots), "duration", time.Since(start))
}
