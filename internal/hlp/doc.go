// Package hlp implements the HelioLux Lighting Protocol, the binary
// framing used to command HelioLux fixtures directly over TCP or UDP.
//
// A frame is a fixed header (protocol version, message type, sequence
// number, 48-bit millisecond timestamp), a length-prefixed device ID, a
// length-prefixed JSON payload, and a CRC32 trailer computed over every
// preceding byte. Frames that fail the checksum are discarded rather
// than partially trusted.
//
// Encode and Decode are pure functions over byte slices; transport is
// the caller's concern. SequenceCounter provides wrap-safe sequence
// numbering for a sending session.
package hlp
