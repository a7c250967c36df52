package discovery

import (
	"time"

	"github.com/google/uuid"

	"github.com/heliolux/helio-core/internal/device"
)

// DiscoveredDevice is one candidate found by a scan. It carries enough
// addressing detail for an operator to commission the device into the
// registry; it is not a registered device yet.
type DiscoveredDevice struct {
	// ID is a fresh identifier for this discovery record.
	ID string `json:"id"`

	// Protocol the device was found speaking.
	Protocol device.Protocol `json:"protocol"`

	// Host and Port for network devices.
	Host string `json:"host,omitempty"`
	Port int    `json:"port,omitempty"`

	// Instance is the BACnet device object instance.
	Instance uint32 `json:"instance,omitempty"`

	// Endpoint is the OPC UA endpoint URL.
	Endpoint string `json:"endpoint,omitempty"`

	// NativeID is the device's own identifier where the protocol
	// exposes one (MQTT topic segment, HLP device ID).
	NativeID string `json:"native_id,omitempty"`

	// DeviceType classifies the device where the scan could (signature
	// match, BACnet object type); UnknownModbusDevice when a Modbus
	// host answered but matched no known signature.
	DeviceType string `json:"device_type,omitempty"`

	// Manufacturer and Model where the scan could identify them.
	Manufacturer string `json:"manufacturer,omitempty"`
	Model        string `json:"model,omitempty"`

	// Status is the reachability state at scan time.
	Status string `json:"status,omitempty"`

	// Tags lists browseable points found during the scan (OPC UA node
	// IDs, observed MQTT topics).
	Tags []string `json:"tags,omitempty"`

	// Metadata carries descriptive properties the protocol exposes
	// (BACnet description/location).
	Metadata map[string]string `json:"metadata,omitempty"`

	// FoundAt is when the scan first saw the device; LastSeen the most
	// recent observation.
	FoundAt  time.Time `json:"found_at"`
	LastSeen time.Time `json:"last_seen"`
}

// Discovery record states and fallback classification.
const (
	StatusOnline = "online"

	UnknownModbusDevice = "Unknown Modbus Device"
)

func newRecord(proto device.Protocol) DiscoveredDevice {
	now := time.Now()
	return DiscoveredDevice{
		ID:       uuid.New().String(),
		Protocol: proto,
		Status:   StatusOnline,
		FoundAt:  now,
		LastSeen: now,
	}
}
