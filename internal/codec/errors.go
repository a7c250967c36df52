package codec

import "errors"

// Domain-specific errors for register codec operations.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrUnknownFormat is returned for an unrecognised register format.
	ErrUnknownFormat = errors.New("codec: unknown register format")

	// ErrShortBuffer is returned when the raw buffer doesn't match the
	// format's register count.
	ErrShortBuffer = errors.New("codec: buffer length mismatch")

	// ErrOutOfRange is returned when an encoded value doesn't fit the
	// target integer format.
	ErrOutOfRange = errors.New("codec: value out of range")
)
