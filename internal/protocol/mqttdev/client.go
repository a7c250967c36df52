package mqttdev

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/heliolux/helio-core/internal/device"
	"github.com/heliolux/helio-core/internal/infrastructure/mqtt"
	"github.com/heliolux/helio-core/internal/protocol"
)

// Broker is the slice of the MQTT infrastructure client this package
// uses. *mqtt.Client satisfies it.
type Broker interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
	IsConnected() bool
}

// Logger defines the logging interface used by the client.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

type latestValue struct {
	value      any
	receivedAt time.Time
}

// Client integrates one MQTT-native device (smart plug, wireless
// sensor, Tasmota/Homie firmware) through the shared broker session.
//
// MQTT devices push state rather than answer polls, so the client
// keeps a latest-value store per point: ReadPoint and PollAll serve
// from it, and Subscribe exposes the live stream.
type Client struct {
	deviceID string
	points   []device.PointMapping
	broker   Broker
	qos      byte
	logger   Logger

	mu        sync.Mutex
	connected bool
	latest    map[string]latestValue
	watchers  []chan protocol.Notification
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the client's logger.
func WithLogger(l Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithQoS sets the QoS for subscriptions and command publishes.
func WithQoS(qos byte) Option {
	return func(c *Client) { c.qos = qos }
}

// NewClient creates an MQTT device client over an established broker
// session.
func NewClient(cfg device.Config, broker Broker, opts ...Option) (*Client, error) {
	if cfg.Protocol != device.ProtocolMQTT {
		return nil, fmt.Errorf("%w: device %s is %s, not mqtt", protocol.ErrConfiguration, cfg.ID, cfg.Protocol)
	}
	if broker == nil {
		return nil, fmt.Errorf("%w: no broker session", protocol.ErrConfiguration)
	}

	c := &Client{
		deviceID: cfg.ID,
		points:   cfg.Points,
		broker:   broker,
		qos:      1,
		logger:   noopLogger{},
		latest:   make(map[string]latestValue),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Connect subscribes to every point's state topic. Idempotent.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.connected {
		return nil
	}
	if !c.broker.IsConnected() {
		return fmt.Errorf("%w: broker session is down", protocol.ErrConnection)
	}

	for _, p := range c.points {
		if p.MQTT == nil || p.MQTT.StateTopic == "" {
			continue
		}
		p := p
		handler := func(topic string, payload []byte) error {
			c.handleState(p, payload)
			return nil
		}
		if err := c.broker.Subscribe(p.MQTT.StateTopic, c.qos, handler); err != nil {
			return fmt.Errorf("%w: device %s: subscribe %s: %w", protocol.ErrConnection, c.deviceID, p.MQTT.StateTopic, err)
		}
	}

	c.connected = true
	c.logger.Info("mqtt device connected", "device_id", c.deviceID, "points", len(c.points))
	return nil
}

// Disconnect unsubscribes from the device's topics and closes watcher
// channels. Never fails.
func (c *Client) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.connected {
		return
	}
	for _, p := range c.points {
		if p.MQTT == nil || p.MQTT.StateTopic == "" {
			continue
		}
		if err := c.broker.Unsubscribe(p.MQTT.StateTopic); err != nil {
			c.logger.Warn("mqtt unsubscribe", "device_id", c.deviceID, "topic", p.MQTT.StateTopic, "error", err)
		}
	}
	for _, ch := range c.watchers {
		close(ch)
	}
	c.watchers = nil
	c.connected = false
	c.logger.Info("mqtt device disconnected", "device_id", c.deviceID)
}

// IsConnected reports whether the device's topics are subscribed and
// the underlying broker session is up.
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected && c.broker.IsConnected()
}

// ReadPoint returns the most recent pushed value for the point.
func (c *Client) ReadPoint(ctx context.Context, mapping device.PointMapping) (any, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.connected {
		return nil, fmt.Errorf("%w: device %s not connected", protocol.ErrConnection, c.deviceID)
	}
	if mapping.MQTT == nil {
		return nil, fmt.Errorf("%w: point %s has no mqtt mapping", protocol.ErrConfiguration, mapping.Name)
	}

	lv, ok := c.latest[mapping.Name]
	if !ok {
		return nil, fmt.Errorf("%w: device %s has not published %s yet", protocol.ErrNotAvailable, c.deviceID, mapping.Name)
	}
	return lv.value, nil
}

// WritePoint publishes a command to the point's command topic.
// Strings and []byte publish as-is; other values JSON-encode.
func (c *Client) WritePoint(ctx context.Context, mapping device.PointMapping, value any) error {
	c.mu.Lock()
	connected := c.connected
	c.mu.Unlock()

	if !connected {
		return fmt.Errorf("%w: device %s not connected", protocol.ErrConnection, c.deviceID)
	}
	if mapping.MQTT == nil {
		return fmt.Errorf("%w: point %s has no mqtt mapping", protocol.ErrConfiguration, mapping.Name)
	}
	if !mapping.Writable || mapping.MQTT.CommandTopic == "" {
		return fmt.Errorf("%w: point %s is not writable", protocol.ErrConfiguration, mapping.Name)
	}

	payload, err := encodeCommand(value)
	if err != nil {
		return fmt.Errorf("%w: point %s: %w", protocol.ErrConfiguration, mapping.Name, err)
	}
	if err := c.broker.Publish(mapping.MQTT.CommandTopic, payload, c.qos, false); err != nil {
		return fmt.Errorf("%w: device %s: %w", protocol.ErrConnection, c.deviceID, err)
	}

	c.logger.Debug("mqtt command",
		"device_id", c.deviceID,
		"point", mapping.Name,
		"topic", mapping.MQTT.CommandTopic)
	return nil
}

// PollAll serves every mapping from the latest-value store.
func (c *Client) PollAll(ctx context.Context, mappings []device.PointMapping) (map[string]any, map[string]error) {
	values := make(map[string]any, len(mappings))
	errs := make(map[string]error)

	for _, mapping := range mappings {
		v, err := c.ReadPoint(ctx, mapping)
		if err != nil {
			errs[mapping.Name] = err
			continue
		}
		values[mapping.Name] = v
	}
	return values, errs
}

// Subscribe exposes the live stream of pushed values. The channel
// closes when ctx is cancelled or the client disconnects.
func (c *Client) Subscribe(ctx context.Context, mappings []device.PointMapping) (<-chan protocol.Notification, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.connected {
		return nil, fmt.Errorf("%w: device %s not connected", protocol.ErrConnection, c.deviceID)
	}

	wanted := make(map[string]bool, len(mappings))
	for _, m := range mappings {
		wanted[m.Name] = true
	}

	ch := make(chan protocol.Notification, 32)
	c.watchers = append(c.watchers, ch)

	out := make(chan protocol.Notification, 32)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case n, ok := <-ch:
				if !ok {
					return
				}
				if !wanted[n.Point] {
					continue
				}
				select {
				case out <- n:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// handleState parses a state publish and updates the latest-value store.
func (c *Client) handleState(mapping device.PointMapping, payload []byte) {
	value, err := parseValue(payload, mapping.MQTT.ValuePath)
	if err != nil {
		c.logger.Warn("mqtt state parse",
			"device_id", c.deviceID,
			"point", mapping.Name,
			"error", err)
		return
	}

	now := time.Now()
	c.mu.Lock()
	c.latest[mapping.Name] = latestValue{value: value, receivedAt: now}
	watchers := make([]chan protocol.Notification, len(c.watchers))
	copy(watchers, c.watchers)
	c.mu.Unlock()

	n := protocol.Notification{Point: mapping.Name, Value: value, Timestamp: now}
	for _, w := range watchers {
		select {
		case w <- n:
		default:
			// Watcher not draining; drop rather than block the broker
			// callback.
		}
	}
}

// parseValue interprets a state payload. With a value path the payload
// must be JSON and the dot-separated path is walked into it; without
// one, JSON scalars and bare numerics parse to their Go types and
// anything else stays a string.
func parseValue(payload []byte, valuePath string) (any, error) {
	if valuePath != "" {
		var doc any
		if err := json.Unmarshal(payload, &doc); err != nil {
			return nil, fmt.Errorf("value path %q needs JSON payload: %w", valuePath, err)
		}
		for _, key := range strings.Split(valuePath, ".") {
			m, ok := doc.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("value path %q: %q is not an object", valuePath, key)
			}
			doc, ok = m[key]
			if !ok {
				return nil, fmt.Errorf("value path %q: missing key %q", valuePath, key)
			}
		}
		return doc, nil
	}

	var scalar any
	if err := json.Unmarshal(payload, &scalar); err == nil {
		switch scalar.(type) {
		case float64, bool, string, nil:
			return scalar, nil
		}
		// Objects and arrays pass through for callers that want the
		// whole document.
		return scalar, nil
	}

	s := strings.TrimSpace(string(payload))
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f, nil
	}
	return s, nil
}

// encodeCommand serializes a command value for publishing.
func encodeCommand(value any) ([]byte, error) {
	switch v := value.(type) {
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		return data, nil
	}
}
