// Package mqttdev implements the protocol.Client contract for
// MQTT-native devices: smart plugs, wireless sensors, and fixtures
// running Tasmota, Homie, or similar firmware.
//
// Unlike the register-oriented protocols, MQTT devices push state on
// their own schedule. The client subscribes each point's state topic
// through the shared broker session, keeps a latest-value store that
// ReadPoint and PollAll serve from, and publishes commands to each
// point's command topic. JSON payloads can be narrowed to one field
// with a dot-separated value path ("StatusSNS.AM2301.Temperature").
package mqttdev
