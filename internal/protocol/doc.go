// Package protocol defines the contract shared by every device
// protocol client (Modbus, BACnet/IP, MQTT, OPC UA) and the error
// classes collection and safety code use to classify failures.
//
// The Client interface keeps the rest of the gateway protocol-agnostic:
// the collection service polls through it, the safety monitor writes
// setpoint reductions through it, and discovery hands newly found
// devices to a factory that returns one. Push-capable protocols
// additionally implement Subscriber.
package protocol
