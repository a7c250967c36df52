// Package codec encodes and decodes Modbus register values.
//
// Registers are 16-bit words transmitted big-endian. Multi-word formats
// (int32, uint32, float32, float64) place the most significant word
// first. Scale/offset transforms are applied post-decode on reads and
// inverted pre-encode on writes; coils and discrete inputs bypass this
// package entirely (they are plain booleans).
package codec
