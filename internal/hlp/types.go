package hlp

import "fmt"

// Protocol version carried in every frame header.
const (
	VersionMajor = 1
	VersionMinor = 1
	VersionPatch = 0
)

// MessageType is the 16-bit command code in the frame header.
type MessageType uint16

// Message type codes. The numbering groups discovery, control, status,
// and transport-level codes into separate ranges.
const (
	TypeDiscoveryRequest  MessageType = 0x0001
	TypeDiscoveryResponse MessageType = 0x0002
	TypeDeviceInfoRequest MessageType = 0x0003
	TypeDeviceInfoReply   MessageType = 0x0004

	TypeSetIntensity MessageType = 0x0010
	TypeSetSpectrum  MessageType = 0x0011
	TypeSetSchedule  MessageType = 0x0012
	TypeSetGroup     MessageType = 0x0013

	TypeStatusRequest  MessageType = 0x0020
	TypeStatusResponse MessageType = 0x0021

	TypeAck               MessageType = 0x00A0
	TypeNack              MessageType = 0x00A1
	TypeEventNotification MessageType = 0x00B0
)

// knownTypes enumerates every valid message type code.
var knownTypes = map[MessageType]string{
	TypeDiscoveryRequest:  "discovery_request",
	TypeDiscoveryResponse: "discovery_response",
	TypeDeviceInfoRequest: "device_info_request",
	TypeDeviceInfoReply:   "device_info_response",
	TypeSetIntensity:      "set_intensity",
	TypeSetSpectrum:       "set_spectrum",
	TypeSetSchedule:       "set_schedule",
	TypeSetGroup:          "set_group",
	TypeStatusRequest:     "status_request",
	TypeStatusResponse:    "status_response",
	TypeAck:               "ack",
	TypeNack:              "nack",
	TypeEventNotification: "event_notification",
}

// IsKnown reports whether the code is a defined message type.
func (t MessageType) IsKnown() bool {
	_, ok := knownTypes[t]
	return ok
}

// String returns the message type name, or a hex code for unknown types.
func (t MessageType) String() string {
	if name, ok := knownTypes[t]; ok {
		return name
	}
	return fmt.Sprintf("unknown(0x%04X)", uint16(t))
}
