// Package device defines the gateway's device model: protocol-agnostic
// device configuration, per-point protocol address mappings, collected
// data points with quality flags, and a thread-safe registry.
//
// A device's Config names its protocol, transport connection, and the
// data points the gateway reads or writes. Each PointMapping carries
// exactly one protocol-specific address section matching the device's
// protocol; Validate enforces this at load time so addressing mistakes
// surface at startup instead of mid-poll.
//
// The Registry is the single source of truth for which devices exist.
// Configuration populates it at startup and discovery adds to it at
// runtime.
package device
