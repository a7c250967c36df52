package hlp

import (
	"sync/atomic"
	"time"
)

// Version is the 3-part protocol version in a frame header.
type Version struct {
	Major uint8
	Minor uint8
	Patch uint8
}

// CurrentVersion is the protocol version this codec speaks.
func CurrentVersion() Version {
	return Version{Major: VersionMajor, Minor: VersionMinor, Patch: VersionPatch}
}

// Message is one HLP frame, decoded or ready to encode.
//
// Messages are immutable after construction: a resend builds a new
// message with a fresh sequence number rather than mutating an old one.
type Message struct {
	// Version of the protocol the sender speaks.
	Version Version

	// Type is the 16-bit command code.
	Type MessageType

	// Sequence increments per outgoing message and wraps modulo 2^32.
	Sequence uint32

	// Timestamp is the sender's clock, millisecond precision.
	// The wire carries only the low 48 bits of the epoch-millisecond
	// count, which is sufficient until the year 10889.
	Timestamp time.Time

	// DeviceID addresses the fixture (or identifies the sender on
	// responses). UTF-8, at most 65535 bytes on the wire.
	DeviceID string

	// Payload is the command-specific JSON document, empty for
	// parameterless messages like status requests.
	Payload []byte
}

// NewMessage builds a message of the given type with the current
// protocol version and a timestamp of now.
func NewMessage(msgType MessageType, deviceID string, seq uint32, payload []byte) Message {
	return Message{
		Version:   CurrentVersion(),
		Type:      msgType,
		Sequence:  seq,
		Timestamp: time.Now(),
		DeviceID:  deviceID,
		Payload:   payload,
	}
}

// SequenceCounter issues monotonically increasing sequence numbers for
// outgoing messages, wrapping at 2^32-1. Safe for concurrent use.
type SequenceCounter struct {
	n atomic.Uint32
}

// NewSequenceCounter returns a counter whose first Next() call yields start.
func NewSequenceCounter(start uint32) *SequenceCounter {
	c := &SequenceCounter{}
	c.n.Store(start)
	return c
}

// Next returns the current sequence number and advances the counter.
func (c *SequenceCounter) Next() uint32 {
	return c.n.Add(1) - 1
}
