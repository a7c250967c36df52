package hlp

import "errors"

var (
	// ErrFrameTooShort indicates a buffer smaller than the minimum
	// frame size was offered for decoding.
	ErrFrameTooShort = errors.New("hlp: frame too short")

	// ErrChecksum indicates the frame's CRC32 did not match its
	// contents. The frame must be discarded.
	ErrChecksum = errors.New("hlp: checksum mismatch")

	// ErrTruncated indicates the frame's declared lengths extend past
	// the end of the buffer.
	ErrTruncated = errors.New("hlp: frame truncated")

	// ErrEncode indicates a message could not be serialized, for
	// example because a field exceeds its wire-format limit.
	ErrEncode = errors.New("hlp: encode failed")

	// ErrDecode indicates a payload could not be parsed as the
	// expected message body.
	ErrDecode = errors.New("hlp: decode failed")
)
