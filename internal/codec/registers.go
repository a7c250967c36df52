package codec

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Format identifies the numeric encoding of a register block.
type Format string

// Supported register formats. Word and byte order are big-endian
// throughout; multi-word values place the most significant word first.
const (
	FormatInt16   Format = "int16"
	FormatUint16  Format = "uint16"
	FormatInt32   Format = "int32"
	FormatUint32  Format = "uint32"
	FormatFloat32 Format = "float32"
	FormatFloat64 Format = "float64"
)

// Register block sizes in 16-bit words.
const (
	wordsSingle = 1
	wordsDouble = 2
	wordsQuad   = 4

	bytesPerWord = 2
)

// WordCount returns the number of 16-bit registers a format occupies.
func WordCount(f Format) (int, error) {
	switch f {
	case FormatInt16, FormatUint16:
		return wordsSingle, nil
	case FormatInt32, FormatUint32, FormatFloat32:
		return wordsDouble, nil
	case FormatFloat64:
		return wordsQuad, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownFormat, f)
	}
}

// Decode converts raw register bytes (big-endian, as returned by a Modbus
// read) into a numeric value. The buffer length must match the format's
// register count exactly.
func Decode(data []byte, f Format) (float64, error) {
	words, err := WordCount(f)
	if err != nil {
		return 0, err
	}
	if len(data) != words*bytesPerWord {
		return 0, fmt.Errorf("%w: format %s needs %d bytes, got %d",
			ErrShortBuffer, f, words*bytesPerWord, len(data))
	}

	switch f {
	case FormatInt16:
		return float64(int16(binary.BigEndian.Uint16(data))), nil
	case FormatUint16:
		return float64(binary.BigEndian.Uint16(data)), nil
	case FormatInt32:
		return float64(int32(binary.BigEndian.Uint32(data))), nil
	case FormatUint32:
		return float64(binary.BigEndian.Uint32(data)), nil
	case FormatFloat32:
		return float64(math.Float32frombits(binary.BigEndian.Uint32(data))), nil
	case FormatFloat64:
		return math.Float64frombits(binary.BigEndian.Uint64(data)), nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownFormat, f)
}

// Encode converts a numeric value into raw register bytes for a Modbus
// write. Integer formats reject values outside their representable range
// rather than silently truncating.
func Encode(value float64, f Format) ([]byte, error) {
	switch f {
	case FormatInt16:
		if value < math.MinInt16 || value > math.MaxInt16 {
			return nil, rangeError(value, f)
		}
		buf := make([]byte, bytesPerWord)
		binary.BigEndian.PutUint16(buf, uint16(int16(value)))
		return buf, nil

	case FormatUint16:
		if value < 0 || value > math.MaxUint16 {
			return nil, rangeError(value, f)
		}
		buf := make([]byte, bytesPerWord)
		binary.BigEndian.PutUint16(buf, uint16(value))
		return buf, nil

	case FormatInt32:
		if value < math.MinInt32 || value > math.MaxInt32 {
			return nil, rangeError(value, f)
		}
		buf := make([]byte, wordsDouble*bytesPerWord)
		binary.BigEndian.PutUint32(buf, uint32(int32(value)))
		return buf, nil

	case FormatUint32:
		if value < 0 || value > math.MaxUint32 {
			return nil, rangeError(value, f)
		}
		buf := make([]byte, wordsDouble*bytesPerWord)
		binary.BigEndian.PutUint32(buf, uint32(value))
		return buf, nil

	case FormatFloat32:
		buf := make([]byte, wordsDouble*bytesPerWord)
		binary.BigEndian.PutUint32(buf, math.Float32bits(float32(value)))
		return buf, nil

	case FormatFloat64:
		buf := make([]byte, wordsQuad*bytesPerWord)
		binary.BigEndian.PutUint64(buf, math.Float64bits(value))
		return buf, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, f)
}

func rangeError(value float64, f Format) error {
	return fmt.Errorf("%w: %v out of range for %s", ErrOutOfRange, value, f)
}

// Scale applies a mapping's scale and offset to a raw decoded value:
//
//	scaled = raw*scale + offset
//
// A zero scale is treated as 1 (identity), matching unset configuration.
func Scale(raw, scale, offset float64) float64 {
	if scale == 0 {
		scale = 1
	}
	return raw*scale + offset
}

// Unscale inverts Scale for writes:
//
//	raw = (value - offset) / scale
//
// A zero scale is treated as 1 (identity).
func Unscale(value, scale, offset float64) float64 {
	if scale == 0 {
		scale = 1
	}
	return (value - offset) / scale
}
