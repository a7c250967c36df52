package discovery

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/heliolux/helio-core/internal/device"
	"github.com/heliolux/helio-core/internal/infrastructure/mqtt"
)

// MQTTListener is the slice of the broker session passive discovery
// needs. *mqtt.Client satisfies it.
type MQTTListener interface {
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
}

// discoveryFilters are the topic families devices announce themselves
// on. Tasmota publishes under tele/<dev>/ and stat/<dev>/, Homie under
// homie/<dev>/, Home Assistant discovery under homeassistant/, and
// HelioLux fixtures under the gateway's own scheme.
var discoveryFilters = []string{
	"tele/+/#",
	"stat/+/#",
	"tasmota/+/#",
	"homie/+/#",
	"homeassistant/+/+/config",
	mqtt.TopicPrefix + "/device/+/#",
}

// scanMQTT listens passively on the announcement topic families for the
// discovery window and records each distinct device identifier seen.
func (s *Scanner) scanMQTT(ctx context.Context) ([]DiscoveredDevice, error) {
	if s.mqttListener == nil {
		return nil, nil
	}

	var (
		mu   sync.Mutex
		seen = make(map[string][]string) // native ID -> observed topics
	)
	handler := func(topic string, payload []byte) error {
		id := deviceIDFromTopic(topic)
		if id == "" {
			return nil
		}
		mu.Lock()
		seen[id] = append(seen[id], topic)
		mu.Unlock()
		return nil
	}

	for _, filter := range discoveryFilters {
		if err := s.mqttListener.Subscribe(filter, 0, handler); err != nil {
			return nil, err
		}
	}
	defer func() {
		for _, filter := range discoveryFilters {
			if err := s.mqttListener.Unsubscribe(filter); err != nil {
				s.logger.Warn("discovery unsubscribe", "filter", filter, "error", err)
			}
		}
	}()

	select {
	case <-time.After(s.window()):
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	mu.Lock()
	defer mu.Unlock()

	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	found := make([]DiscoveredDevice, 0, len(ids))
	for _, id := range ids {
		rec := newRecord(device.ProtocolMQTT)
		rec.NativeID = id
		rec.Tags = dedupe(seen[id])
		found = append(found, rec)

		s.logger.Debug("mqtt device heard", "native_id", id, "topics", len(rec.Tags))
	}
	return found, nil
}

// deviceIDFromTopic extracts the device identifier segment from an
// announcement topic, or "" when the topic isn't one we understand.
func deviceIDFromTopic(topic string) string {
	parts := strings.Split(topic, "/")
	if len(parts) < 2 {
		return ""
	}
	switch parts[0] {
	case "tele", "stat", "cmnd", "tasmota", "homie":
		return parts[1]
	case "homeassistant":
		// homeassistant/<component>/<dev>/config
		if len(parts) >= 4 && parts[len(parts)-1] == "config" {
			return parts[2]
		}
	case mqtt.TopicPrefix:
		// heliolux/device/<dev>/...
		if len(parts) >= 3 && parts[1] == "device" {
			return parts[2]
		}
	}
	return ""
}

func dedupe(in []string) []string {
	seen := make(map[string]bool, len(in))
	var out []string
	for _, s := range in {
		if seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

func (s *Scanner) window() time.Duration {
	if s.cfg.Window > 0 {
		return time.Duration(s.cfg.Window) * time.Second
	}
	return 30 * time.Second
}
