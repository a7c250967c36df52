// Package modbus implements the protocol.Client contract over Modbus
// TCP and Modbus RTU using github.com/goburrow/modbus.
//
// Register reads decode through the codec package (big-endian word
// formats, scale/offset to engineering units); writes reverse the
// scaling before encoding. Modbus exception responses for illegal
// addresses map to protocol.ErrIllegalAddress so callers can tell a
// bad register map from a flaky link.
package modbus
