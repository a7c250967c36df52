// Package bacnet implements the protocol.Client contract for BACnet/IP
// devices behind a pluggable Transport.
//
// The Transport interface covers the four services the gateway needs:
// ReadProperty, WriteProperty with priority-array semantics, COV
// subscriptions, and Who-Is discovery. SimTransport is the in-process
// implementation used by tests and by deployments without a BACnet
// segment; a vendor stack slots in behind the same interface without
// touching collection or safety code.
//
// Writes land in priority slot 8 (manual operator) unless the point
// mapping sets another; Release relinquishes the slot with a null
// write, per the priority-array model.
package bacnet
