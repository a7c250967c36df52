// Package discovery finds integratable devices on the site network.
//
// Four scans run concurrently: a Modbus TCP subnet sweep (bounded by a
// worker pool), a BACnet Who-Is broadcast, a passive MQTT listen on the
// topic families devices announce themselves under (Tasmota, Homie,
// Home Assistant discovery, HelioLux fixtures), and an OPC UA endpoint
// sweep. Results are commissioning candidates, not registered devices;
// an operator reviews them before they enter the registry.
package discovery
