// Package safety implements the graduated safety response for lighting
// hardware: a fixed-cadence sweep over the latest-value cache that
// checks device temperatures, circuit breaker loads, and configured
// zone limits, then answers violations with alerts, intensity
// reductions, or shutdowns.
//
// The monitor observes only through the collection cache; its only
// device I/O is corrective intensity writes, routed through the same
// protocol client the device's collector already holds.
package safety
