// Package logging provides structured logging for HelioLux Core.
//
// It wraps log/slog with configuration-driven format and level selection
// and a small set of default fields (service, version). Components that
// need logging accept a narrow Logger interface so tests can inject a
// no-op or capturing implementation.
package logging
