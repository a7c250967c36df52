// Package gateway composes the integration runtime: the device
// registry, per-protocol clients, data collection, discovery, and the
// safety monitor, wired together explicitly with no package-level
// state. cmd/heliocore constructs one Gateway and runs it.
package gateway
