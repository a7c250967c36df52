package modbus

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	mb "github.com/goburrow/modbus"

	"github.com/heliolux/helio-core/internal/codec"
	"github.com/heliolux/helio-core/internal/device"
	"github.com/heliolux/helio-core/internal/protocol"
)

// DefaultTimeout applies when neither the device nor the protocol
// config sets one.
const DefaultTimeout = 2 * time.Second

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

// handler is the subset of goburrow's concrete handlers the client
// needs; both TCPClientHandler and RTUClientHandler satisfy it.
type handler interface {
	mb.ClientHandler
	Connect() error
	Close() error
}

// Client talks Modbus TCP or RTU to one device.
//
// The underlying goburrow client is not safe for concurrent use, and
// Modbus itself is strictly request/response, so every operation holds
// an internal mutex. All public methods are thread-safe.
type Client struct {
	deviceID string
	conn     device.Connection
	timeout  time.Duration
	logger   Logger

	mu        sync.Mutex
	handler   handler
	client    mb.Client
	connected bool
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the client's logger.
func WithLogger(l Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithTimeout overrides the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// NewClient creates a Modbus client for the given device. The device's
// protocol selects TCP or RTU framing.
func NewClient(cfg device.Config, opts ...Option) (*Client, error) {
	switch cfg.Protocol {
	case device.ProtocolModbusTCP, device.ProtocolModbusRTU:
	default:
		return nil, fmt.Errorf("%w: device %s is %s, not modbus", protocol.ErrConfiguration, cfg.ID, cfg.Protocol)
	}

	c := &Client{
		deviceID: cfg.ID,
		conn:     cfg.Connection,
		timeout:  DefaultTimeout,
		logger:   noopLogger{},
	}
	if t := cfg.Connection.Timeout(); t > 0 {
		c.timeout = t
	}
	for _, opt := range opts {
		opt(c)
	}

	if cfg.Protocol == device.ProtocolModbusTCP {
		c.handler = newTCPHandler(cfg.Connection, c.timeout)
	} else {
		c.handler = newRTUHandler(cfg.Connection, c.timeout)
	}
	return c, nil
}

func newTCPHandler(conn device.Connection, timeout time.Duration) *mb.TCPClientHandler {
	port := conn.Port
	if port == 0 {
		port = 502
	}
	h := mb.NewTCPClientHandler(fmt.Sprintf("%s:%d", conn.Host, port))
	h.Timeout = timeout
	h.SlaveId = byte(conn.UnitID)
	return h
}

func newRTUHandler(conn device.Connection, timeout time.Duration) *mb.RTUClientHandler {
	h := mb.NewRTUClientHandler(conn.SerialPort)
	h.Timeout = timeout
	h.SlaveId = byte(conn.UnitID)
	if conn.BaudRate > 0 {
		h.BaudRate = conn.BaudRate
	}
	if conn.DataBits > 0 {
		h.DataBits = conn.DataBits
	}
	if conn.Parity != "" {
		h.Parity = conn.Parity
	}
	if conn.StopBits > 0 {
		h.StopBits = conn.StopBits
	}
	return h
}

// Connect opens the transport. Calling Connect on a connected client is
// a no-op.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.connected {
		return nil
	}

	done := make(chan error, 1)
	go func() { done <- c.handler.Connect() }()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("%w: device %s: %w", protocol.ErrConnection, c.deviceID, err)
		}
	case <-ctx.Done():
		return fmt.Errorf("%w: device %s: %w", protocol.ErrConnection, c.deviceID, ctx.Err())
	}

	c.client = mb.NewClient(c.handler)
	c.connected = true
	c.logger.Info("modbus connected", "device_id", c.deviceID)
	return nil
}

// Disconnect closes the transport. Never fails; a disconnected client
// is a no-op.
func (c *Client) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.connected {
		return
	}
	if err := c.handler.Close(); err != nil {
		c.logger.Warn("modbus close", "device_id", c.deviceID, "error", err)
	}
	c.client = nil
	c.connected = false
	c.logger.Info("modbus disconnected", "device_id", c.deviceID)
}

// IsConnected reports the session state.
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// ReadPoint reads one mapped point and returns its engineering value.
func (c *Client) ReadPoint(ctx context.Context, mapping device.PointMapping) (any, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.readLocked(ctx, mapping)
}

func (c *Client) readLocked(ctx context.Context, mapping device.PointMapping) (any, error) {
	if !c.connected {
		return nil, fmt.Errorf("%w: device %s not connected", protocol.ErrConnection, c.deviceID)
	}
	if mapping.Modbus == nil {
		return nil, fmt.Errorf("%w: point %s has no modbus mapping", protocol.ErrConfiguration, mapping.Name)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", protocol.ErrTimeout, err)
	}

	m := mapping.Modbus
	switch m.Register {
	case "coil":
		data, err := c.client.ReadCoils(m.Address, 1)
		if err != nil {
			return nil, c.classify(err)
		}
		return len(data) > 0 && data[0]&0x01 != 0, nil

	case "discrete":
		data, err := c.client.ReadDiscreteInputs(m.Address, 1)
		if err != nil {
			return nil, c.classify(err)
		}
		return len(data) > 0 && data[0]&0x01 != 0, nil

	case "holding", "input":
		words, err := codec.WordCount(m.Format)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", protocol.ErrConfiguration, err)
		}

		var data []byte
		if m.Register == "holding" {
			data, err = c.client.ReadHoldingRegisters(m.Address, uint16(words))
		} else {
			data, err = c.client.ReadInputRegisters(m.Address, uint16(words))
		}
		if err != nil {
			return nil, c.classify(err)
		}

		raw, err := codec.Decode(data, m.Format)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", protocol.ErrProtocol, err)
		}
		return codec.Scale(raw, m.Scale, m.Offset), nil

	default:
		return nil, fmt.Errorf("%w: unknown register space %q", protocol.ErrConfiguration, m.Register)
	}
}

// WritePoint writes one mapped point. The value is in engineering
// units; reverse scaling is applied before encoding.
func (c *Client) WritePoint(ctx context.Context, mapping device.PointMapping, value any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.connected {
		return fmt.Errorf("%w: device %s not connected", protocol.ErrConnection, c.deviceID)
	}
	if mapping.Modbus == nil {
		return fmt.Errorf("%w: point %s has no modbus mapping", protocol.ErrConfiguration, mapping.Name)
	}
	if !mapping.Writable {
		return fmt.Errorf("%w: point %s is not writable", protocol.ErrConfiguration, mapping.Name)
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", protocol.ErrTimeout, err)
	}

	m := mapping.Modbus
	switch m.Register {
	case "coil":
		on, ok := value.(bool)
		if !ok {
			return fmt.Errorf("%w: coil %s needs bool, got %T", protocol.ErrConfiguration, mapping.Name, value)
		}
		var raw uint16
		if on {
			raw = 0xFF00
		}
		if _, err := c.client.WriteSingleCoil(m.Address, raw); err != nil {
			return c.classify(err)
		}

	case "holding":
		num, err := toFloat(value)
		if err != nil {
			return fmt.Errorf("%w: point %s: %w", protocol.ErrConfiguration, mapping.Name, err)
		}
		data, err := codec.Encode(codec.Unscale(num, m.Scale, m.Offset), m.Format)
		if err != nil {
			return fmt.Errorf("%w: point %s: %w", protocol.ErrConfiguration, mapping.Name, err)
		}
		words, _ := codec.WordCount(m.Format)
		if words == 1 {
			_, err = c.client.WriteSingleRegister(m.Address, uint16(data[0])<<8|uint16(data[1]))
		} else {
			_, err = c.client.WriteMultipleRegisters(m.Address, uint16(words), data)
		}
		if err != nil {
			return c.classify(err)
		}

	default:
		return fmt.Errorf("%w: register space %q is read-only", protocol.ErrConfiguration, m.Register)
	}

	c.logger.Debug("modbus write",
		"device_id", c.deviceID,
		"point", mapping.Name,
		"value", value)
	return nil
}

// PollAll reads every mapping, isolating failures per point.
func (c *Client) PollAll(ctx context.Context, mappings []device.PointMapping) (map[string]any, map[string]error) {
	values := make(map[string]any, len(mappings))
	errs := make(map[string]error)

	c.mu.Lock()
	defer c.mu.Unlock()

	for _, mapping := range mappings {
		if err := ctx.Err(); err != nil {
			errs[mapping.Name] = fmt.Errorf("%w: %w", protocol.ErrTimeout, err)
			continue
		}
		v, err := c.readLocked(ctx, mapping)
		if err != nil {
			errs[mapping.Name] = err
			continue
		}
		values[mapping.Name] = v
	}
	return values, errs
}

// classify wraps a transport error in the shared protocol error class
// callers match on.
func (c *Client) classify(err error) error {
	var mbErr *mb.ModbusError
	if errors.As(err, &mbErr) {
		switch mbErr.ExceptionCode {
		case 0x02, 0x03:
			return fmt.Errorf("%w: device %s: %w", protocol.ErrIllegalAddress, c.deviceID, err)
		default:
			return fmt.Errorf("%w: device %s: %w", protocol.ErrProtocol, c.deviceID, err)
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: device %s: %w", protocol.ErrTimeout, c.deviceID, err)
	}
	return fmt.Errorf("%w: device %s: %w", protocol.ErrConnection, c.deviceID, err)
}

// toFloat widens any numeric command value to float64 for scaling.
func toFloat(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int16:
		return float64(n), nil
	case int32:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case uint16:
		return float64(n), nil
	case uint32:
		return float64(n), nil
	default:
		return 0, fmt.Errorf("needs numeric value, got %T", v)
	}
}
