package bacnet

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/heliolux/helio-core/internal/device"
	"github.com/heliolux/helio-core/internal/protocol"
)

// DefaultPort is the standard BACnet/IP UDP port (0xBAC0).
const DefaultPort = 47808

// DefaultWritePriority is the priority-array slot used for writes when
// a point mapping doesn't set one. Slot 8 is the conventional manual
// operator level, below life-safety slots 1-2.
const DefaultWritePriority = 8

// DefaultCOVLifetime is how long a change-of-value subscription lives
// before the client renews it.
const DefaultCOVLifetime = 5 * time.Minute

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

// Client implements the protocol contract for one BACnet/IP device
// over an injected Transport.
type Client struct {
	deviceID    string
	addr        DeviceAddress
	transport   Transport
	covLifetime time.Duration
	logger      Logger

	mu        sync.Mutex
	connected bool
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the client's logger.
func WithLogger(l Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithCOVLifetime sets the subscription renewal interval.
func WithCOVLifetime(d time.Duration) Option {
	return func(c *Client) { c.covLifetime = d }
}

// NewClient creates a BACnet client for the given device. A nil
// transport yields a client whose operations fail with
// protocol.ErrNotAvailable, for deployments without a BACnet segment.
func NewClient(cfg device.Config, transport Transport, opts ...Option) (*Client, error) {
	if cfg.Protocol != device.ProtocolBACnetIP {
		return nil, fmt.Errorf("%w: device %s is %s, not bacnet_ip", protocol.ErrConfiguration, cfg.ID, cfg.Protocol)
	}

	port := cfg.Connection.Port
	if port == 0 {
		port = DefaultPort
	}

	c := &Client{
		deviceID: cfg.ID,
		addr: DeviceAddress{
			Host:     cfg.Connection.Host,
			Port:     port,
			Instance: uint32(cfg.Connection.DeviceInstance),
		},
		transport:   transport,
		covLifetime: DefaultCOVLifetime,
		logger:      noopLogger{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Connect opens the transport. Idempotent.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.connected {
		return nil
	}
	if c.transport == nil {
		return fmt.Errorf("%w: no bacnet transport configured", protocol.ErrNotAvailable)
	}
	if err := c.transport.Open(ctx); err != nil {
		return fmt.Errorf("%w: device %s: %w", protocol.ErrConnection, c.deviceID, err)
	}
	c.connected = true
	c.logger.Info("bacnet connected", "device_id", c.deviceID, "instance", c.addr.Instance)
	return nil
}

// Disconnect closes the transport. Never fails.
func (c *Client) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.connected {
		return
	}
	c.transport.Close()
	c.connected = false
	c.logger.Info("bacnet disconnected", "device_id", c.deviceID)
}

// IsConnected reports the session state.
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// ReadPoint reads an object's present-value.
func (c *Client) ReadPoint(ctx context.Context, mapping device.PointMapping) (any, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}
	obj, err := objectID(mapping)
	if err != nil {
		return nil, err
	}

	v, err := c.transport.ReadProperty(ctx, c.addr, obj)
	if err != nil {
		return nil, fmt.Errorf("device %s: %w", c.deviceID, err)
	}
	return v, nil
}

// WritePoint writes an object's present-value at the mapping's priority.
func (c *Client) WritePoint(ctx context.Context, mapping device.PointMapping, value any) error {
	if err := c.ready(); err != nil {
		return err
	}
	if !mapping.Writable {
		return fmt.Errorf("%w: point %s is not writable", protocol.ErrConfiguration, mapping.Name)
	}
	obj, err := objectID(mapping)
	if err != nil {
		return err
	}

	priority := mapping.BACnet.Priority
	if priority == 0 {
		priority = DefaultWritePriority
	}
	if err := c.transport.WriteProperty(ctx, c.addr, obj, value, priority); err != nil {
		return fmt.Errorf("device %s: %w", c.deviceID, err)
	}

	c.logger.Debug("bacnet write",
		"device_id", c.deviceID,
		"point", mapping.Name,
		"priority", priority,
		"value", value)
	return nil
}

// Release relinquishes the client's priority slot on a commandable
// object, returning control to lower-priority writers.
func (c *Client) Release(ctx context.Context, mapping device.PointMapping) error {
	if err := c.ready(); err != nil {
		return err
	}
	obj, err := objectID(mapping)
	if err != nil {
		return err
	}

	priority := mapping.BACnet.Priority
	if priority == 0 {
		priority = DefaultWritePriority
	}
	if err := c.transport.WriteProperty(ctx, c.addr, obj, nil, priority); err != nil {
		return fmt.Errorf("device %s: %w", c.deviceID, err)
	}
	return nil
}

// PollAll reads every mapping, isolating failures per point.
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

// Subscribe registers change-of-value subscriptions for the mappings
// and merges their notifications onto one channel. Each subscription is
// requested with the configured covLifetime; notifications flow until
// ctx is cancelled or the transport closes the feed. A failure on any
// mapping tears down the subscriptions already started before returning
// the error.
func (c *Client) Subscribe(ctx context.Context, mappings []device.PointMapping) (<-chan protocol.Notification, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}

	subCtx, cancel := context.WithCancel(ctx)
	out := make(chan protocol.Notification, 32)
	var wg sync.WaitGroup

	for _, mapping := range mappings {
		obj, err := objectID(mapping)
		if err != nil {
			cancel()
			return nil, err
		}

		ch, err := c.transport.SubscribeCOV(subCtx, c.addr, obj, c.covLifetime)
		if err != nil {
			cancel()
			return nil, fmt.Errorf("device %s: point %s: %w", c.deviceID, mapping.Name, err)
		}

		wg.Add(1)
		go func(name string, ch <-chan COVNotification) {
			defer wg.Done()
			for {
				select {
				case <-subCtx.Done():
					return
				case n, ok := <-ch:
					if !ok {
						return
					}
					select {
					case out <- protocol.Notification{Point: name, Value: n.Value, Timestamp: n.Timestamp}:
					case <-subCtx.Done():
						return
					}
				}
			}
		}(mapping.Name, ch)
	}

	go func() {
		wg.Wait()
		cancel()
		close(out)
	}()
	return out, nil
}

func (c *Client) ready() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.transport == nil {
		return fmt.Errorf("%w: no bacnet transport configured", protocol.ErrNotAvailable)
	}
	if !c.connected {
		return fmt.Errorf("%w: device %s not connected", protocol.ErrConnection, c.deviceID)
	}
	return nil
}

func objectID(mapping device.PointMapping) (ObjectID, error) {
	if mapping.BACnet == nil {
		return ObjectID{}, fmt.Errorf("%w: point %s has no bacnet mapping", protocol.ErrConfiguration, mapping.Name)
	}
	return ObjectID{Type: mapping.BACnet.ObjectType, Instance: mapping.BACnet.Instance}, nil
}
