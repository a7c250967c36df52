package hlp

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"time"
)

// Frame layout constants. All multi-byte integers are big-endian.
//
//	[version:3×1B][reserved:1B][messageType:2B][sequence:4B]
//	[timestamp:6B ms since epoch][deviceIdLen:2B][deviceId]
//	[payloadLen:4B][payload UTF-8 JSON][crc32:4B]
const (
	versionSize   = 3
	reservedSize  = 1
	typeSize      = 2
	sequenceSize  = 4
	timestampSize = 6
	idLenSize     = 2
	payloadLenSize = 4
	checksumSize  = 4

	// HeaderSize is the fixed prefix before the device-ID length field.
	// Stream readers use it to frame incoming bytes.
	HeaderSize = versionSize + reservedSize + typeSize + sequenceSize + timestampSize

	// MinFrameSize is the smallest valid frame: empty device ID and
	// empty payload.
	MinFrameSize = HeaderSize + idLenSize + payloadLenSize + checksumSize

	// MaxDeviceIDLen is the largest device ID the 2-byte length field
	// can carry.
	MaxDeviceIDLen = 0xFFFF

	// MaxPayloadLen bounds payloads to something a fixture can buffer.
	// The 4-byte length field allows more, but fixtures reject frames
	// over 1 MiB.
	MaxPayloadLen = 1 << 20

	// timestampMask keeps the low 48 bits of the epoch-millisecond count.
	timestampMask = (uint64(1) << 48) - 1
)

// Encode serializes a message to its wire representation.
//
// The CRC32 trailer (IEEE polynomial, the standard reflected form with
// 0xFFFFFFFF init/final XOR) is computed over every byte preceding the
// checksum field. The output is byte-for-byte reproducible for identical
// input, which physical fixtures rely on.
func Encode(m Message) ([]byte, error) {
	idLen := len(m.DeviceID)
	if idLen > MaxDeviceIDLen {
		return nil, fmt.Errorf("%w: device ID is %d bytes, max %d", ErrEncode, idLen, MaxDeviceIDLen)
	}
	if len(m.Payload) > MaxPayloadLen {
		return nil, fmt.Errorf("%w: payload is %d bytes, max %d", ErrEncode, len(m.Payload), MaxPayloadLen)
	}

	total := MinFrameSize + idLen + len(m.Payload)
	buf := make([]byte, 0, total)

	// Header
	buf = append(buf, m.Version.Major, m.Version.Minor, m.Version.Patch)
	buf = append(buf, 0x00) // reserved
	buf = binary.BigEndian.AppendUint16(buf, uint16(m.Type))
	buf = binary.BigEndian.AppendUint32(buf, m.Sequence)
	buf = appendTimestamp(buf, m.Timestamp)

	// Device ID
	buf = binary.BigEndian.AppendUint16(buf, uint16(idLen))
	buf = append(buf, m.DeviceID...)

	// Payload
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(m.Payload)))
	buf = append(buf, m.Payload...)

	// Checksum over everything so far
	sum := crc32.ChecksumIEEE(buf)
	buf = binary.BigEndian.AppendUint32(buf, sum)

	return buf, nil
}

// Decode parses a wire frame back into a Message.
//
// The frame is rejected with ErrChecksum when the recomputed CRC32
// differs from the trailer, and with ErrFrameTooShort / ErrTruncated
// when the buffer can't contain the fields it declares. Unknown message
// type codes decode as TypeNack rather than failing.
func Decode(data []byte) (Message, error) {
	if len(data) < MinFrameSize {
		return Message{}, fmt.Errorf("%w: %d bytes, need at least %d", ErrFrameTooShort, len(data), MinFrameSize)
	}

	// Verify the checksum before trusting any declared length.
	body := data[:len(data)-checksumSize]
	declared := binary.BigEndian.Uint32(data[len(data)-checksumSize:])
	if crc32.ChecksumIEEE(body) != declared {
		return Message{}, fmt.Errorf("%w: declared 0x%08X", ErrChecksum, declared)
	}

	var m Message
	m.Version = Version{Major: data[0], Minor: data[1], Patch: data[2]}
	// data[3] reserved
	m.Type = MessageType(binary.BigEndian.Uint16(data[4:6]))
	if !m.Type.IsKnown() {
		m.Type = TypeNack
	}
	m.Sequence = binary.BigEndian.Uint32(data[6:10])
	m.Timestamp = parseTimestamp(data[10:16])

	offset := HeaderSize

	idLen := int(binary.BigEndian.Uint16(data[offset : offset+idLenSize]))
	offset += idLenSize
	if offset+idLen+payloadLenSize+checksumSize > len(data) {
		return Message{}, fmt.Errorf("%w: device ID length %d exceeds frame", ErrTruncated, idLen)
	}
	m.DeviceID = string(data[offset : offset+idLen])
	offset += idLen

	payloadLen := int(binary.BigEndian.Uint32(data[offset : offset+payloadLenSize]))
	offset += payloadLenSize
	if offset+payloadLen+checksumSize != len(data) {
		return Message{}, fmt.Errorf("%w: payload length %d does not match frame", ErrTruncated, payloadLen)
	}
	if payloadLen > 0 {
		m.Payload = make([]byte, payloadLen)
		copy(m.Payload, data[offset:offset+payloadLen])
	}

	return m, nil
}

// appendTimestamp writes the low 48 bits of the epoch-millisecond count.
func appendTimestamp(buf []byte, t time.Time) []byte {
	ms := uint64(t.UnixMilli()) & timestampMask
	return append(buf,
		byte(ms>>40), byte(ms>>32), byte(ms>>24),
		byte(ms>>16), byte(ms>>8), byte(ms),
	)
}

// parseTimestamp reads a 6-byte millisecond timestamp.
func parseTimestamp(data []byte) time.Time {
	ms := uint64(data[0])<<40 | uint64(data[1])<<32 | uint64(data[2])<<24 |
		uint64(data[3])<<16 | uint64(data[4])<<8 | uint64(data[5])
	return time.UnixMilli(int64(ms)).UTC()
}
