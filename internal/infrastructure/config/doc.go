// Package config loads and validates HelioLux Core configuration.
//
// Configuration is YAML-first with a small set of environment variable
// overrides (HELIOLUX_*) for secrets and deployment-specific endpoints.
// Defaults are applied before the file is read, so a minimal config file
// only needs to state what differs from the reference deployment.
//
// The safety section doubles as the external configuration input for the
// electrical model: circuit breakers, zone membership, and safety limits
// are plain records consumed by the safety monitor at startup.
package config
