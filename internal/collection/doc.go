// Package collection runs the real-time data pipeline: one collector
// per device polling (or receiving pushes) through its protocol client,
// a shared latest-value cache with per-point quality, per-collector
// statistics, and a sink carrying readings to time-series storage.
//
// Collectors are isolated: each runs its own goroutine with its own
// interval, an overrunning cycle skips the next tick instead of
// stacking, and one point's read failure downgrades only that point to
// stale. Push-capable clients (MQTT, BACnet COV) are
// subscription-driven with a slow backstop poll.
package collection
