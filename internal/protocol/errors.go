package protocol

import "errors"

// Shared error classes for protocol clients. Implementations wrap the
// transport's own error inside one of these so callers can classify
// failures with errors.Is() without knowing the protocol:
//
//	if errors.Is(err, protocol.ErrTimeout) {
//	    // mark reading stale, retry next poll
//	}
var (
	// ErrConnection indicates the transport session is down or could
	// not be established.
	ErrConnection = errors.New("protocol: connection error")

	// ErrTimeout indicates the device did not answer within the
	// request timeout.
	ErrTimeout = errors.New("protocol: request timeout")

	// ErrProtocol indicates the device answered with a protocol-level
	// error (Modbus exception, BACnet reject, OPC UA bad status).
	ErrProtocol = errors.New("protocol: device error")

	// ErrIllegalAddress indicates the device rejected the address
	// itself; retrying the same request cannot succeed.
	ErrIllegalAddress = errors.New("protocol: illegal address")

	// ErrConfiguration indicates a point mapping is unusable for this
	// client (wrong protocol section, unwritable point, bad value type).
	ErrConfiguration = errors.New("protocol: configuration error")

	// ErrNotAvailable indicates the protocol backend is not present in
	// this deployment.
	ErrNotAvailable = errors.New("protocol: backend not available")
)
