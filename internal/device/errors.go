package device

import "errors"

// Domain errors for the device package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, device.ErrNotFound) {
//	    // handle not found case
//	}
var (
	// ErrNotFound is returned when a device ID does not exist.
	ErrNotFound = errors.New("device: not found")

	// ErrExists is returned when registering a device with an ID that
	// already exists.
	ErrExists = errors.New("device: already exists")

	// ErrInvalidConfig is returned when device configuration fails
	// validation.
	ErrInvalidConfig = errors.New("device: invalid config")

	// ErrInvalidProtocol is returned when a protocol value is not
	// recognised.
	ErrInvalidProtocol = errors.New("device: invalid protocol")

	// ErrInvalidPoint is returned when a point mapping fails validation.
	ErrInvalidPoint = errors.New("device: invalid point mapping")
)
