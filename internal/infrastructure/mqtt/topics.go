package mqtt

import "fmt"

// Topic prefixes for the HelioLux MQTT namespace.
//
// Gateway topics use the flat scheme: heliolux/{category}/{device_id}[/{suffix}]
const (
	// TopicPrefix is the base for all HelioLux topics.
	TopicPrefix = "heliolux"

	// TopicPrefixDevice is the base for per-device topics.
	TopicPrefixDevice = "heliolux/device"

	// TopicPrefixSystem is the base for system topics.
	TopicPrefixSystem = "heliolux/system"

	// TopicPrefixSafety is the base for safety event topics.
	TopicPrefixSafety = "heliolux/safety"
)

// Topics provides builders for HelioLux MQTT topics.
// Using these helpers ensures consistent topic naming across the codebase.
//
//	topics := mqtt.Topics{}
//	cmd := topics.DeviceCommand("fixture-7")
//	// Returns: "heliolux/device/fixture-7/command"
type Topics struct{}

// DeviceTelemetry returns the telemetry topic for a device.
//
// Example: heliolux/device/fixture-7/telemetry
func (Topics) DeviceTelemetry(deviceID string) string {
	return fmt.Sprintf("%s/%s/telemetry", TopicPrefixDevice, deviceID)
}

// DeviceStatus returns the status topic for a device.
//
// Example: heliolux/device/fixture-7/status
func (Topics) DeviceStatus(deviceID string) string {
	return fmt.Sprintf("%s/%s/status", TopicPrefixDevice, deviceID)
}

// DeviceCommand returns the command topic for a device.
//
// Example: heliolux/device/fixture-7/command
func (Topics) DeviceCommand(deviceID string) string {
	return fmt.Sprintf("%s/%s/command", TopicPrefixDevice, deviceID)
}

// DeviceAlarms returns the alarm topic for a device.
//
// Example: heliolux/device/fixture-7/alarms
func (Topics) DeviceAlarms(deviceID string) string {
	return fmt.Sprintf("%s/%s/alarms", TopicPrefixDevice, deviceID)
}

// DeviceConfig returns the configuration topic for a device.
//
// Example: heliolux/device/fixture-7/config
func (Topics) DeviceConfig(deviceID string) string {
	return fmt.Sprintf("%s/%s/config", TopicPrefixDevice, deviceID)
}

// SafetyEvent returns the topic for published safety events.
//
// Example: heliolux/safety/event/circuit_overload
func (Topics) SafetyEvent(eventType string) string {
	return fmt.Sprintf("%s/event/%s", TopicPrefixSafety, eventType)
}

// SystemStatus returns the gateway status topic (online/offline, LWT).
//
// Example: heliolux/system/status
func (Topics) SystemStatus() string {
	return fmt.Sprintf("%s/status", TopicPrefixSystem)
}

// AllDeviceTelemetry returns a pattern matching telemetry from every device.
//
// Pattern: heliolux/device/+/telemetry
func (Topics) AllDeviceTelemetry() string {
	return fmt.Sprintf("%s/+/telemetry", TopicPrefixDevice)
}

// AllDeviceStatus returns a pattern matching status from every device.
//
// Pattern: heliolux/device/+/status
func (Topics) AllDeviceStatus() string {
	return fmt.Sprintf("%s/+/status", TopicPrefixDevice)
}

// AllSafetyEvents returns a pattern matching every safety event.
//
// Pattern: heliolux/safety/event/+
func (Topics) AllSafetyEvents() string {
	return fmt.Sprintf("%s/event/+", TopicPrefixSafety)
}

// AllTopics returns a pattern matching all HelioLux topics.
// Use with caution - this receives ALL traffic.
//
// Pattern: heliolux/#
func (Topics) AllTopics() string {
	return "heliolux/#"
}
