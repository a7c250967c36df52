package collection

import (
	"sync"
	"time"
)

// Status describes a collector's health.
type Status string

const (
	// StatusRunning means recent collections succeeded.
	StatusRunning Status = "running"

	// StatusError means the most recent collection had failures.
	StatusError Status = "error"

	// StatusStopped means the collector is not running.
	StatusStopped Status = "stopped"
)

// Stats is a snapshot of one collector's counters.
type Stats struct {
	DeviceID string `json:"device_id"`

	// PointsCollected counts successful point reads since start.
	PointsCollected int64 `json:"points_collected"`

	// FailureCount counts failed point reads since start.
	FailureCount int64 `json:"failure_count"`

	// LastCollection is when the last collection cycle finished.
	LastCollection time.Time `json:"last_collection"`

	// AverageCollectionTime is the rolling mean cycle duration.
	AverageCollectionTime time.Duration `json:"average_collection_time"`

	// Status summarises collector health.
	Status Status `json:"status"`

	// LastError is the most recent point failure, empty when the last
	// cycle was clean.
	LastError string `json:"last_error,omitempty"`
}

// statsTracker accumulates counters behind a mutex; Snapshot hands out
// value copies.
type statsTracker struct {
	mu    sync.Mutex
	stats Stats

	cycles        int64
	totalDuration time.Duration
}

func newStatsTracker(deviceID string) *statsTracker {
	return &statsTracker{stats: Stats{DeviceID: deviceID, Status: StatusRunning}}
}

// recordCycle folds one collection cycle into the counters.
func (t *statsTracker) recordCycle(collected, failed int, dur time.Duration, lastErr error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.stats.PointsCollected += int64(collected)
	t.stats.FailureCount += int64(failed)
	t.stats.LastCollection = time.Now()

	t.cycles++
	t.totalDuration += dur
	t.stats.AverageCollectionTime = t.totalDuration / time.Duration(t.cycles)

	if failed > 0 {
		t.stats.Status = StatusError
		if lastErr != nil {
			t.stats.LastError = lastErr.Error()
		}
	} else {
		t.stats.Status = StatusRunning
		t.stats.LastError = ""
	}
}

// recordPush counts one subscription-delivered point.
func (t *statsTracker) recordPush() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stats.PointsCollected++
	t.stats.LastCollection = time.Now()
}

func (t *statsTracker) markStopped() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stats.Status = StatusStopped
}

// Snapshot returns a copy of the current counters.
func (t *statsTracker) Snapshot() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stats
}
