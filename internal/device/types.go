package device

import (
	"fmt"
	"strings"
	"time"

	"github.com/heliolux/helio-core/internal/codec"
)

// Protocol identifies how the gateway talks to a device.
type Protocol string

const (
	ProtocolModbusTCP Protocol = "modbus_tcp"
	ProtocolModbusRTU Protocol = "modbus_rtu"
	ProtocolBACnetIP  Protocol = "bacnet_ip"
	ProtocolMQTT      Protocol = "mqtt"
	ProtocolOPCUA     Protocol = "opc_ua"
	ProtocolHLP       Protocol = "hlp"
)

// validProtocols enumerates every protocol the gateway can speak.
var validProtocols = map[Protocol]bool{
	ProtocolModbusTCP: true,
	ProtocolModbusRTU: true,
	ProtocolBACnetIP:  true,
	ProtocolMQTT:      true,
	ProtocolOPCUA:     true,
	ProtocolHLP:       true,
}

// IsValid reports whether the protocol is one the gateway supports.
func (p Protocol) IsValid() bool {
	return validProtocols[p]
}

// Quality describes how trustworthy a reading is.
type Quality string

const (
	// QualityGood means the value was read from the device without error.
	QualityGood Quality = "good"

	// QualityStale means the last read failed and the value shown is
	// the most recent successful one.
	QualityStale Quality = "stale"

	// QualityBad means no trustworthy value is available.
	QualityBad Quality = "bad"
)

// Connection holds the transport parameters for reaching a device.
// Which fields apply depends on the device's protocol.
type Connection struct {
	// Host and Port for TCP-based protocols (Modbus TCP, BACnet/IP,
	// OPC UA, HLP).
	Host string `yaml:"host,omitempty" json:"host,omitempty"`
	Port int    `yaml:"port,omitempty" json:"port,omitempty"`

	// SerialPort, BaudRate, DataBits, Parity, StopBits for Modbus RTU.
	SerialPort string `yaml:"serial_port,omitempty" json:"serial_port,omitempty"`
	BaudRate   int    `yaml:"baud_rate,omitempty" json:"baud_rate,omitempty"`
	DataBits   int    `yaml:"data_bits,omitempty" json:"data_bits,omitempty"`
	Parity     string `yaml:"parity,omitempty" json:"parity,omitempty"`
	StopBits   int    `yaml:"stop_bits,omitempty" json:"stop_bits,omitempty"`

	// UnitID is the Modbus slave/unit identifier.
	UnitID int `yaml:"unit_id,omitempty" json:"unit_id,omitempty"`

	// Broker is the MQTT broker URL for MQTT-native devices.
	Broker string `yaml:"broker,omitempty" json:"broker,omitempty"`

	// Endpoint is the OPC UA endpoint URL.
	Endpoint string `yaml:"endpoint,omitempty" json:"endpoint,omitempty"`

	// DeviceInstance is the BACnet device object instance number.
	DeviceInstance int `yaml:"device_instance,omitempty" json:"device_instance,omitempty"`

	// TimeoutMs overrides the protocol's default request timeout.
	TimeoutMs int `yaml:"timeout_ms,omitempty" json:"timeout_ms,omitempty"`
}

// Timeout returns the configured request timeout, or zero when the
// protocol default should apply.
func (c Connection) Timeout() time.Duration {
	return time.Duration(c.TimeoutMs) * time.Millisecond
}

// PointMapping binds a named data point to its protocol-level address.
// Exactly one of the protocol-specific sections applies, matching the
// owning device's protocol.
type PointMapping struct {
	// Name is the point's key in collected readings, e.g. "temperature".
	Name string `yaml:"name" json:"name"`

	// Unit is the engineering unit for display, e.g. "celsius".
	Unit string `yaml:"unit,omitempty" json:"unit,omitempty"`

	// Writable marks points that accept commands.
	Writable bool `yaml:"writable,omitempty" json:"writable,omitempty"`

	// Modbus addressing.
	Modbus *ModbusPoint `yaml:"modbus,omitempty" json:"modbus,omitempty"`

	// BACnet addressing.
	BACnet *BACnetPoint `yaml:"bacnet,omitempty" json:"bacnet,omitempty"`

	// MQTT addressing.
	MQTT *MQTTPoint `yaml:"mqtt,omitempty" json:"mqtt,omitempty"`

	// OPCUA addressing.
	OPCUA *OPCUAPoint `yaml:"opcua,omitempty" json:"opcua,omitempty"`
}

// ModbusPoint addresses one value in a device's register map.
type ModbusPoint struct {
	// Register selects the register space: "holding", "input", "coil",
	// or "discrete".
	Register string `yaml:"register" json:"register"`

	// Address is the zero-based register offset.
	Address uint16 `yaml:"address" json:"address"`

	// Format is the register data format; see the codec package.
	Format codec.Format `yaml:"format" json:"format"`

	// Scale and Offset convert raw register values to engineering
	// units: value = raw*Scale + Offset. Zero Scale means 1.
	Scale  float64 `yaml:"scale,omitempty" json:"scale,omitempty"`
	Offset float64 `yaml:"offset,omitempty" json:"offset,omitempty"`
}

// BACnetPoint addresses one BACnet object property.
type BACnetPoint struct {
	// ObjectType such as "analog-input", "analog-value", "binary-output".
	ObjectType string `yaml:"object_type" json:"object_type"`

	// Instance is the object instance number.
	Instance uint32 `yaml:"instance" json:"instance"`

	// Priority for writes to commandable objects (1-16); zero means
	// the gateway's default write priority.
	Priority int `yaml:"priority,omitempty" json:"priority,omitempty"`
}

// MQTTPoint addresses one value carried over MQTT topics. Topics may
// contain a "{deviceId}" placeholder, replaced with the device's ID
// when the inventory is loaded.
type MQTTPoint struct {
	// StateTopic is where the device publishes the value.
	StateTopic string `yaml:"state_topic" json:"state_topic"`

	// CommandTopic is where the gateway publishes commands; empty for
	// read-only points.
	CommandTopic string `yaml:"command_topic,omitempty" json:"command_topic,omitempty"`

	// ValuePath extracts a field from JSON payloads, dot-separated
	// ("StatusSNS.AM2301.Temperature"). Empty means the whole payload
	// is the value.
	ValuePath string `yaml:"value_path,omitempty" json:"value_path,omitempty"`
}

// OPCUAPoint addresses one OPC UA node.
type OPCUAPoint struct {
	// NodeID in the standard string form, e.g. "ns=2;s=Line1.Temperature".
	NodeID string `yaml:"node_id" json:"node_id"`
}

// Config is everything the gateway needs to integrate one device.
type Config struct {
	// ID uniquely identifies the device across the site.
	ID string `yaml:"id" json:"id"`

	// Name is the human-readable label.
	Name string `yaml:"name" json:"name"`

	// Protocol selects the client used to reach the device.
	Protocol Protocol `yaml:"protocol" json:"protocol"`

	// ZoneID places the device in a grow zone for safety limits.
	ZoneID string `yaml:"zone_id,omitempty" json:"zone_id,omitempty"`

	// CircuitID places the device on an electrical circuit for load
	// monitoring.
	CircuitID string `yaml:"circuit_id,omitempty" json:"circuit_id,omitempty"`

	// Connection holds transport parameters.
	Connection Connection `yaml:"connection" json:"connection"`

	// Points maps named data points to protocol addresses.
	Points []PointMapping `yaml:"points" json:"points"`

	// PollIntervalMs overrides the collection default for this device.
	PollIntervalMs int `yaml:"poll_interval_ms,omitempty" json:"poll_interval_ms,omitempty"`

	// Metadata from discovery or commissioning.
	Manufacturer    string `yaml:"manufacturer,omitempty" json:"manufacturer,omitempty"`
	Model           string `yaml:"model,omitempty" json:"model,omitempty"`
	FirmwareVersion string `yaml:"firmware_version,omitempty" json:"firmware_version,omitempty"`
}

// PollInterval returns the device's poll interval override, or zero
// when the collection default applies.
func (c Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMs) * time.Millisecond
}

// Point returns the mapping with the given name.
func (c Config) Point(name string) (PointMapping, bool) {
	for _, p := range c.Points {
		if p.Name == name {
			return p, true
		}
	}
	return PointMapping{}, false
}

// DataPoint is one collected reading from one device point.
type DataPoint struct {
	DeviceID  string    `json:"device_id"`
	Name      string    `json:"name"`
	Value     any       `json:"value"`
	Unit      string    `json:"unit,omitempty"`
	Quality   Quality   `json:"quality"`
	Timestamp time.Time `json:"timestamp"`
}

// Validate checks a device config for load-time errors so a bad
// mapping fails at startup rather than mid-poll.
func (c Config) Validate() error {
	if c.ID == "" {
		return fmt.Errorf("%w: missing id", ErrInvalidConfig)
	}
	if !c.Protocol.IsValid() {
		return fmt.Errorf("%w: device %s: unknown protocol %q", ErrInvalidProtocol, c.ID, c.Protocol)
	}

	if err := c.Connection.validate(c.Protocol); err != nil {
		return fmt.Errorf("device %s: %w", c.ID, err)
	}

	seen := make(map[string]bool, len(c.Points))
	for i, p := range c.Points {
		if p.Name == "" {
			return fmt.Errorf("%w: device %s: points[%d] missing name", ErrInvalidPoint, c.ID, i)
		}
		if seen[p.Name] {
			return fmt.Errorf("%w: device %s: duplicate point %q", ErrInvalidPoint, c.ID, p.Name)
		}
		seen[p.Name] = true
		if err := p.validate(c.Protocol); err != nil {
			return fmt.Errorf("device %s: point %s: %w", c.ID, p.Name, err)
		}
	}
	return nil
}

// ExpandTopics replaces the "{deviceId}" placeholder in MQTT state and
// command topics with the device's ID. Inventories that describe a
// fleet of identical devices can then share one point template.
func (c *Config) ExpandTopics() {
	for _, p := range c.Points {
		if p.MQTT == nil {
			continue
		}
		p.MQTT.StateTopic = strings.ReplaceAll(p.MQTT.StateTopic, "{deviceId}", c.ID)
		p.MQTT.CommandTopic = strings.ReplaceAll(p.MQTT.CommandTopic, "{deviceId}", c.ID)
	}
}

func (c Connection) validate(proto Protocol) error {
	switch proto {
	case ProtocolModbusTCP, ProtocolBACnetIP, ProtocolHLP:
		if c.Host == "" {
			return fmt.Errorf("%w: missing host", ErrInvalidConfig)
		}
	case ProtocolModbusRTU:
		if c.SerialPort == "" {
			return fmt.Errorf("%w: missing serial_port", ErrInvalidConfig)
		}
	case ProtocolOPCUA:
		if c.Endpoint == "" {
			return fmt.Errorf("%w: missing endpoint", ErrInvalidConfig)
		}
	}
	return nil
}

func (p PointMapping) validate(proto Protocol) error {
	switch proto {
	case ProtocolModbusTCP, ProtocolModbusRTU:
		if p.Modbus == nil {
			return fmt.Errorf("%w: missing modbus section", ErrInvalidPoint)
		}
		switch p.Modbus.Register {
		case "holding", "input", "coil", "discrete":
		default:
			return fmt.Errorf("%w: unknown register space %q", ErrInvalidPoint, p.Modbus.Register)
		}
		if p.Modbus.Register == "holding" || p.Modbus.Register == "input" {
			if _, err := codec.WordCount(p.Modbus.Format); err != nil {
				return fmt.Errorf("%w: %w", ErrInvalidPoint, err)
			}
		}
	case ProtocolBACnetIP:
		if p.BACnet == nil {
			return fmt.Errorf("%w: missing bacnet section", ErrInvalidPoint)
		}
		if p.BACnet.ObjectType == "" {
			return fmt.Errorf("%w: missing object_type", ErrInvalidPoint)
		}
		if p.BACnet.Priority < 0 || p.BACnet.Priority > 16 {
			return fmt.Errorf("%w: priority %d out of range", ErrInvalidPoint, p.BACnet.Priority)
		}
	case ProtocolMQTT:
		if p.MQTT == nil {
			return fmt.Errorf("%w: missing mqtt section", ErrInvalidPoint)
		}
		if p.MQTT.StateTopic == "" && p.MQTT.CommandTopic == "" {
			return fmt.Errorf("%w: needs state_topic or command_topic", ErrInvalidPoint)
		}
		if p.Writable && p.MQTT.CommandTopic == "" {
			return fmt.Errorf("%w: writable point needs command_topic", ErrInvalidPoint)
		}
	case ProtocolOPCUA:
		if p.OPCUA == nil {
			return fmt.Errorf("%w: missing opcua section", ErrInvalidPoint)
		}
		if p.OPCUA.NodeID == "" {
			return fmt.Errorf("%w: missing node_id", ErrInvalidPoint)
		}
	}
	return nil
}
