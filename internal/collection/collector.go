package collection

import (
	"context"
	"time"

	"github.com/heliolux/helio-core/internal/device"
	"github.com/heliolux/helio-core/internal/protocol"
)

// collector runs the collection loop for one device.
//
// Poll-only clients are polled at the device's interval. Clients that
// implement protocol.Subscriber are driven by pushed notifications
// instead, with a slow backstop poll catching points the device stops
// publishing.
type collector struct {
	cfg      device.Config
	client   protocol.Client
	interval time.Duration
	cache    *LatestCache
	sink     Sink
	stats    *statsTracker
	logger   Logger

	cancel context.CancelFunc
	done   chan struct{}
}

// unitIndex maps point names to display units once at start.
func (c *collector) unitIndex() map[string]string {
	units := make(map[string]string, len(c.cfg.Points))
	for _, p := range c.cfg.Points {
		units[p.Name] = p.Unit
	}
	return units
}

// run is the collector's goroutine body.
func (c *collector) run(ctx context.Context) {
	defer close(c.done)

	units := c.unitIndex()

	if sub, ok := c.client.(protocol.Subscriber); ok {
		if ch, err := sub.Subscribe(ctx, c.cfg.Points); err == nil {
			c.runSubscribed(ctx, ch, units)
			return
		} else {
			c.logger.Warn("subscribe failed, falling back to polling",
				"device_id", c.cfg.ID, "error", err)
		}
	}
	c.runPolling(ctx, c.interval, units)
}

func (c *collector) runPolling(ctx context.Context, interval time.Duration, units map[string]string) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// One immediate cycle so readings appear without waiting a full
	// interval.
	c.collect(ctx, units)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// Cycles run synchronously: a poll that overruns the
			// interval makes the ticker drop the missed ticks, so slow
			// devices skip cycles instead of stacking them.
			dur := c.collect(ctx, units)
			if dur > interval {
				c.logger.Warn("collection cycle overran interval",
					"device_id", c.cfg.ID,
					"duration", dur.String(),
					"interval", interval.String())
			}
		}
	}
}

func (c *collector) runSubscribed(ctx context.Context, ch <-chan protocol.Notification, units map[string]string) {
	backstop := time.NewTicker(c.interval)
	defer backstop.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case n, ok := <-ch:
			if !ok {
				// Push stream ended; keep the device alive on polls.
				c.runPolling(ctx, c.interval, units)
				return
			}
			c.cache.Update(c.cfg.ID, n.Point, n.Value, units[n.Point], n.Timestamp)
			c.stats.recordPush()
			c.sink.WriteDataPoint(c.cfg.ID, n.Timestamp, string(device.QualityGood),
				map[string]any{n.Point: n.Value})
		case <-backstop.C:
			c.collect(ctx, units)
		}
	}
}

// collect runs one poll cycle: read every point, update the cache,
// forward good readings to the sink, and fold the outcome into stats.
// Returns the cycle duration.
func (c *collector) collect(ctx context.Context, units map[string]string) time.Duration {
	start := time.Now()
	values, errs := c.client.PollAll(ctx, c.cfg.Points)
	now := time.Now()

	good := make(map[string]any, len(values))
	for name, v := range values {
		c.cache.Update(c.cfg.ID, name, v, units[name], now)
		good[name] = v
	}

	var lastErr error
	for name, err := range errs {
		c.cache.MarkStale(c.cfg.ID, name)
		lastErr = err
		c.logger.Debug("point read failed",
			"device_id", c.cfg.ID, "point", name, "error", err)
	}

	if len(good) > 0 {
		// Only points that read successfully reach the sink; staleness
		// for the failed ones lives in the cache.
		c.sink.WriteDataPoint(c.cfg.ID, now, string(device.QualityGood), good)
	}

	dur := time.Since(start)
	c.stats.recordCycle(len(good), len(errs), dur, lastErr)

	snap := c.stats.Snapshot()
	c.sink.WriteCollectorStat(c.cfg.ID, snap.PointsCollected, snap.FailureCount,
		float64(snap.AverageCollectionTime.Microseconds())/1000.0)
	return dur
}
