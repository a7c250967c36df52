package collection

import (
	"sync"
	"time"

	"github.com/heliolux/helio-core/internal/device"
)

// LatestCache holds the most recent reading per device point. Reads
// that fail keep the previous value with Quality downgraded to stale,
// so consumers always see the last trustworthy number and how much to
// trust it. All methods are thread-safe.
type LatestCache struct {
	mu     sync.RWMutex
	points map[string]map[string]device.DataPoint // deviceID -> point name -> reading
}

// NewLatestCache creates an empty cache.
func NewLatestCache() *LatestCache {
	return &LatestCache{points: make(map[string]map[string]device.DataPoint)}
}

// Update stores a fresh good reading.
func (c *LatestCache) Update(deviceID, name string, value any, unit string, ts time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	m, ok := c.points[deviceID]
	if !ok {
		m = make(map[string]device.DataPoint)
		c.points[deviceID] = m
	}
	m[name] = device.DataPoint{
		DeviceID:  deviceID,
		Name:      name,
		Value:     value,
		Unit:      unit,
		Quality:   device.QualityGood,
		Timestamp: ts,
	}
}

// MarkStale downgrades a point's quality after a failed read. The last
// value and timestamp are kept. A point that never had a good reading
// records as bad with no value.
func (c *LatestCache) MarkStale(deviceID, name string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	m, ok := c.points[deviceID]
	if !ok {
		m = make(map[string]device.DataPoint)
		c.points[deviceID] = m
	}
	dp, ok := m[name]
	if !ok {
		m[name] = device.DataPoint{
			DeviceID: deviceID,
			Name:     name,
			Quality:  device.QualityBad,
		}
		return
	}
	if dp.Quality == device.QualityGood {
		dp.Quality = device.QualityStale
	}
	m[name] = dp
}

// Get returns one point's latest reading.
func (c *LatestCache) Get(deviceID, name string) (device.DataPoint, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	m, ok := c.points[deviceID]
	if !ok {
		return device.DataPoint{}, false
	}
	dp, ok := m[name]
	return dp, ok
}

// Device returns a copy of every cached point for a device.
func (c *LatestCache) Device(deviceID string) map[string]device.DataPoint {
	c.mu.RLock()
	defer c.mu.RUnlock()

	m, ok := c.points[deviceID]
	if !ok {
		return nil
	}
	out := make(map[string]device.DataPoint, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Drop removes a device's cached points when its collector stops.
func (c *LatestCache) Drop(deviceID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.points, deviceID)
}
