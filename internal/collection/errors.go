package collection

import "errors"

var (
	// ErrAlreadyCollecting is returned when starting a collector for a
	// device that already has one.
	ErrAlreadyCollecting = errors.New("collection: already collecting")

	// ErrNotCollecting is returned when stopping or querying a device
	// that has no running collector.
	ErrNotCollecting = errors.New("collection: not collecting")

	// ErrNoClient is returned when the client factory cannot build a
	// protocol client for a device.
	ErrNoClient = errors.New("collection: no protocol client")
)
