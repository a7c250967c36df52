// Package mqtt provides MQTT client connectivity for HelioLux Core.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Message publishing with QoS guarantees
//   - Topic subscriptions with wildcard support
//   - Last Will and Testament (LWT) for offline detection
//   - Connection health monitoring
//
// # Architecture
//
// The gateway uses MQTT both as a wire protocol toward MQTT-native field
// devices (Tasmota plugs, Homie sensors, Home Assistant integrations) and
// as an outbound event bus for safety notifications. The device-facing
// client in internal/protocol/mqttdev builds on this package; discovery
// uses it for passive broker scans.
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	// Subscribe to all device telemetry
//	err = client.Subscribe(mqtt.Topics{}.AllDeviceTelemetry(), 1,
//	    func(topic string, payload []byte) error {
//	        log.Printf("Received: %s = %s", topic, payload)
//	        return nil
//	    })
//
//	// Publish a command
//	topic := mqtt.Topics{}.DeviceCommand("fixture-7")
//	client.Publish(topic, []byte(`{"intensity":75}`), 1, false)
package mqtt
