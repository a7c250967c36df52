package bacnet

import (
	"context"
	"time"
)

// ObjectID identifies one BACnet object on a remote device.
type ObjectID struct {
	// Type is the object type name, e.g. "analog-input", "analog-value",
	// "binary-output".
	Type string

	// Instance is the object instance number.
	Instance uint32
}

// DeviceAddress locates a BACnet/IP device.
type DeviceAddress struct {
	// Host and Port of the device's BACnet/IP endpoint. Port defaults
	// to 47808 (0xBAC0).
	Host string
	Port int

	// Instance is the device object instance number.
	Instance uint32
}

// IAm is a device's answer to a Who-Is broadcast. It carries what the
// service actually encodes: device identity and APDU capabilities.
// Descriptive names come from a ReadPropertyMultiple follow-up.
type IAm struct {
	Address      DeviceAddress
	VendorID     uint16
	MaxAPDU      uint16
	Segmentation string
}

// Device-object property identifiers used with ReadPropertyMultiple.
const (
	PropObjectName  = "object-name"
	PropVendorName  = "vendor-name"
	PropModelName   = "model-name"
	PropDescription = "description"
	PropLocation    = "location"
)

// COVNotification is one change-of-value push from a subscribed object.
type COVNotification struct {
	Object    ObjectID
	Value     any
	Timestamp time.Time
}

// Transport abstracts the BACnet/IP wire layer so the client logic,
// collection, and safety paths work identically against a real stack
// or the in-process simulator.
type Transport interface {
	// Open binds the transport's UDP socket.
	Open(ctx context.Context) error

	// Close releases the socket. Safe to call when not open.
	Close()

	// ReadProperty reads an object's present-value.
	ReadProperty(ctx context.Context, addr DeviceAddress, obj ObjectID) (any, error)

	// ReadPropertyMultiple reads several properties of one object in a
	// single request. Properties the object lacks are simply absent
	// from the result, mirroring the per-property errors of the real
	// service.
	ReadPropertyMultiple(ctx context.Context, addr DeviceAddress, obj ObjectID, properties []string) (map[string]any, error)

	// WriteProperty writes an object's present-value at the given
	// priority (1-16). A nil value relinquishes the priority slot.
	WriteProperty(ctx context.Context, addr DeviceAddress, obj ObjectID, value any, priority int) error

	// SubscribeCOV requests change-of-value notifications for an
	// object. Notifications arrive on the returned channel until the
	// lifetime expires or ctx is cancelled.
	SubscribeCOV(ctx context.Context, addr DeviceAddress, obj ObjectID, lifetime time.Duration) (<-chan COVNotification, error)

	// WhoIs broadcasts a Who-Is over the given instance range and
	// collects I-Am answers until the window closes.
	WhoIs(ctx context.Context, lowLimit, highLimit uint32, window time.Duration) ([]IAm, error)
}
