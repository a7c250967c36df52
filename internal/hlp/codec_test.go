package hlp

import (
	"bytes"
	"encoding/binary"
	"errors"
	"hash/crc32"
	"strings"
	"testing"
	"time"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	tests := []struct {
		name    string
		msg     Message
	}{
		{
			name: "set intensity with payload",
			msg: Message{
				Version:   CurrentVersion(),
				Type:      TypeSetIntensity,
				Sequence:  42,
				Timestamp: time.UnixMilli(1765432100000).UTC(),
				DeviceID:  "fixture-7",
				Payload:   []byte(`{"channels":[{"channelId":0,"intensity":75,"rampTime":10}]}`),
			},
		},
		{
			name: "status request no payload",
			msg: Message{
				Version:   CurrentVersion(),
				Type:      TypeStatusRequest,
				Sequence:  7,
				Timestamp: time.UnixMilli(1700000000123).UTC(),
				DeviceID:  "fixture-12",
			},
		},
		{
			name: "broadcast discovery empty device id",
			msg: Message{
				Version:   CurrentVersion(),
				Type:      TypeDiscoveryRequest,
				Sequence:  0,
				Timestamp: time.UnixMilli(1).UTC(),
			},
		},
		{
			name: "sequence at wrap boundary",
			msg: Message{
				Version:   CurrentVersion(),
				Type:      TypeAck,
				Sequence:  0xFFFFFFFF,
				Timestamp: time.UnixMilli(1765432100000).UTC(),
				DeviceID:  "fixture-1",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frame, err := Encode(tt.msg)
			if err != nil {
				t.Fatalf("Encode() error = %v", err)
			}

			got, err := Decode(frame)
			if err != nil {
				t.Fatalf("Decode() error = %v", err)
			}

			if got.Version != tt.msg.Version {
				t.Errorf("Version = %v, want %v", got.Version, tt.msg.Version)
			}
			if got.Type != tt.msg.Type {
				t.Errorf("Type = %v, want %v", got.Type, tt.msg.Type)
			}
			if got.Sequence != tt.msg.Sequence {
				t.Errorf("Sequence = %d, want %d", got.Sequence, tt.msg.Sequence)
			}
			if !got.Timestamp.Equal(tt.msg.Timestamp) {
				t.Errorf("Timestamp = %v, want %v", got.Timestamp, tt.msg.Timestamp)
			}
			if got.DeviceID != tt.msg.DeviceID {
				t.Errorf("DeviceID = %q, want %q", got.DeviceID, tt.msg.DeviceID)
			}
			if !bytes.Equal(got.Payload, tt.msg.Payload) {
				t.Errorf("Payload = %q, want %q", got.Payload, tt.msg.Payload)
			}
		})
	}
}

func TestEncodeSetIntensityFrame(t *testing.T) {
	payload := []byte(`{"channels":[{"channelId":0,"intensity":75,"rampTime":10}]}`)
	msg := Message{
		Version:   CurrentVersion(),
		Type:      TypeSetIntensity,
		Sequence:  42,
		Timestamp: time.UnixMilli(1765432100000).UTC(),
		DeviceID:  "fixture-7",
		Payload:   payload,
	}

	frame, err := Encode(msg)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}

	wantLen := MinFrameSize + len("fixture-7") + len(payload)
	if len(frame) != wantLen {
		t.Fatalf("frame length = %d, want %d", len(frame), wantLen)
	}

	if frame[0] != 1 || frame[1] != 1 || frame[2] != 0 {
		t.Errorf("version bytes = %v, want [1 1 0]", frame[:3])
	}
	if got := binary.BigEndian.Uint16(frame[4:6]); got != uint16(TypeSetIntensity) {
		t.Errorf("type field = 0x%04X, want 0x%04X", got, uint16(TypeSetIntensity))
	}
	if got := binary.BigEndian.Uint32(frame[6:10]); got != 42 {
		t.Errorf("sequence field = %d, want 42", got)
	}

	idLen := int(binary.BigEndian.Uint16(frame[16:18]))
	if idLen != len("fixture-7") {
		t.Errorf("device ID length = %d, want %d", idLen, len("fixture-7"))
	}

	payloadLenOff := 18 + idLen
	if got := binary.BigEndian.Uint32(frame[payloadLenOff : payloadLenOff+4]); got != uint32(len(payload)) {
		t.Errorf("payload length = %d, want %d", got, len(payload))
	}

	body := frame[:len(frame)-4]
	wantSum := crc32.ChecksumIEEE(body)
	if got := binary.BigEndian.Uint32(frame[len(frame)-4:]); got != wantSum {
		t.Errorf("checksum = 0x%08X, want 0x%08X", got, wantSum)
	}
}

func TestDecodeRejectsCorruption(t *testing.T) {
	msg := NewMessage(TypeSetIntensity, "fixture-7", 42,
		[]byte(`{"channels":[{"channelId":0,"intensity":75,"rampTime":10}]}`))
	frame, err := Encode(msg)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}

	// Flip one bit somewhere in the payload region.
	for _, pos := range []int{0, 5, 20, len(frame) / 2, len(frame) - 5} {
		corrupted := make([]byte, len(frame))
		copy(corrupted, frame)
		corrupted[pos] ^= 0x01

		if _, err := Decode(corrupted); !errors.Is(err, ErrChecksum) {
			t.Errorf("Decode(bit flip at %d) error = %v, want ErrChecksum", pos, err)
		}
	}
}

func TestDecodeShortFrame(t *testing.T) {
	for _, n := range []int{0, 1, 10, MinFrameSize - 1} {
		if _, err := Decode(make([]byte, n)); !errors.Is(err, ErrFrameTooShort) {
			t.Errorf("Decode(%d bytes) error = %v, want ErrFrameTooShort", n, err)
		}
	}
}

func TestDecodeTruncatedLengths(t *testing.T) {
	msg := NewMessage(TypeStatusRequest, "fixture-1", 1, nil)
	frame, err := Encode(msg)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}

	// Overstate the device ID length, then re-sign the frame so the
	// checksum passes and the length check itself is exercised.
	corrupted := make([]byte, len(frame))
	copy(corrupted, frame)
	binary.BigEndian.PutUint16(corrupted[16:18], 5000)
	resign(corrupted)

	if _, err := Decode(corrupted); !errors.Is(err, ErrTruncated) {
		t.Errorf("Decode(bad id length) error = %v, want ErrTruncated", err)
	}

	// Overstate the payload length the same way.
	corrupted = make([]byte, len(frame))
	copy(corrupted, frame)
	payloadLenOff := 18 + len("fixture-1")
	binary.BigEndian.PutUint32(corrupted[payloadLenOff:payloadLenOff+4], 99)
	resign(corrupted)

	if _, err := Decode(corrupted); !errors.Is(err, ErrTruncated) {
		t.Errorf("Decode(bad payload length) error = %v, want ErrTruncated", err)
	}
}

func TestDecodeUnknownTypeBecomesNack(t *testing.T) {
	msg := NewMessage(TypeAck, "fixture-3", 9, nil)
	frame, err := Encode(msg)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}

	binary.BigEndian.PutUint16(frame[4:6], 0x7FFF)
	resign(frame)

	got, err := Decode(frame)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if got.Type != TypeNack {
		t.Errorf("Type = %v, want TypeNack", got.Type)
	}
}

func TestEncodeLimits(t *testing.T) {
	msg := NewMessage(TypeSetIntensity, "fixture-1", 1, make([]byte, MaxPayloadLen+1))
	if _, err := Encode(msg); !errors.Is(err, ErrEncode) {
		t.Errorf("Encode(oversized payload) error = %v, want ErrEncode", err)
	}

	msg = NewMessage(TypeSetIntensity, strings.Repeat("x", MaxDeviceIDLen+1), 1, nil)
	if _, err := Encode(msg); !errors.Is(err, ErrEncode) {
		t.Errorf("Encode(oversized device ID) error = %v, want ErrEncode", err)
	}
}

func TestEncodeDeterministic(t *testing.T) {
	msg := NewMessage(TypeSetSpectrum, "fixture-5", 100, []byte(`{"spectrum":{"red":80}}`))

	a, err := Encode(msg)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	b, err := Encode(msg)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	if !bytes.Equal(a, b) {
		t.Error("Encode() produced different bytes for identical input")
	}
}

func TestSequenceCounter(t *testing.T) {
	c := NewSequenceCounter(0)
	for want := uint32(0); want < 5; want++ {
		if got := c.Next(); got != want {
			t.Fatalf("Next() = %d, want %d", got, want)
		}
	}

	c = NewSequenceCounter(0xFFFFFFFF)
	if got := c.Next(); got != 0xFFFFFFFF {
		t.Errorf("Next() = %d, want max uint32", got)
	}
	if got := c.Next(); got != 0 {
		t.Errorf("Next() after wrap = %d, want 0", got)
	}
}

func TestTimestampPrecision(t *testing.T) {
	// Sub-millisecond precision is dropped on the wire.
	ts := time.Date(2026, 3, 15, 10, 30, 0, 123456789, time.UTC)
	msg := Message{
		Version:   CurrentVersion(),
		Type:      TypeAck,
		Sequence:  1,
		Timestamp: ts,
		DeviceID:  "fixture-1",
	}

	frame, err := Encode(msg)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	got, err := Decode(frame)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}

	want := time.UnixMilli(ts.UnixMilli()).UTC()
	if !got.Timestamp.Equal(want) {
		t.Errorf("Timestamp = %v, want %v", got.Timestamp, want)
	}
}

// resign recomputes a frame's CRC32 trailer after a test mutates its body.
func resign(frame []byte) {
	sum := crc32.ChecksumIEEE(frame[:len(frame)-4])
	binary.BigEndian.PutUint32(frame[len(frame)-4:], sum)
}
