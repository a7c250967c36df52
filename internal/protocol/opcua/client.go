package opcua

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/heliolux/helio-core/internal/device"
	"github.com/heliolux/helio-core/internal/protocol"
)

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

// Subscription defaults. Lifetime and keep-alive counts follow common
// server limits; per-item queues absorb short publish stalls.
const (
	defaultPublishingInterval = time.Second
	subLifetimeCount          = 2400
	subMaxKeepAliveCount      = 10
	monitorQueueSize          = 10
)

// Client implements the protocol contract for one OPC UA server over
// an injected Session.
type Client struct {
	deviceID    string
	endpoint    string
	session     Session
	pubInterval time.Duration
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

// WithPublishingInterval sets the subscription publishing interval.
func WithPublishingInterval(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.pubInterval = d
		}
	}
}

// NewClient creates an OPC UA client for the given device. A nil
// session yields a client whose operations fail with
// protocol.ErrNotAvailable, for deployments without OPC UA equipment.
func NewClient(cfg device.Config, session Session, opts ...Option) (*Client, error) {
	if cfg.Protocol != device.ProtocolOPCUA {
		return nil, fmt.Errorf("%w: device %s is %s, not opc_ua", protocol.ErrConfiguration, cfg.ID, cfg.Protocol)
	}

	c := &Client{
		deviceID:    cfg.ID,
		endpoint:    cfg.Connection.Endpoint,
		session:     session,
		pubInterval: defaultPublishingInterval,
		logger:      noopLogger{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Connect activates the session. Idempotent.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.connected {
		return nil
	}
	if c.session == nil {
		return fmt.Errorf("%w: no opc ua session configured", protocol.ErrNotAvailable)
	}
	if err := c.session.Open(ctx, c.endpoint); err != nil {
		return fmt.Errorf("%w: device %s: %w", protocol.ErrConnection, c.deviceID, err)
	}
	c.connected = true
	c.logger.Info("opcua connected", "device_id", c.deviceID, "endpoint", c.endpoint)
	return nil
}

// Disconnect closes the session. Never fails.
func (c *Client) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.connected {
		return
	}
	c.session.Close()
	c.connected = false
	c.logger.Info("opcua disconnected", "device_id", c.deviceID)
}

// IsConnected reports the session state.
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// ReadPoint reads a node's value attribute.
func (c *Client) ReadPoint(ctx context.Context, mapping device.PointMapping) (any, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}
	if mapping.OPCUA == nil {
		return nil, fmt.Errorf("%w: point %s has no opcua mapping", protocol.ErrConfiguration, mapping.Name)
	}

	v, err := c.session.ReadNode(ctx, mapping.OPCUA.NodeID)
	if err != nil {
		return nil, fmt.Errorf("device %s: %w", c.deviceID, err)
	}
	return v, nil
}

// WritePoint writes a node's value attribute.
func (c *Client) WritePoint(ctx context.Context, mapping device.PointMapping, value any) error {
	if err := c.ready(); err != nil {
		return err
	}
	if mapping.OPCUA == nil {
		return fmt.Errorf("%w: point %s has no opcua mapping", protocol.ErrConfiguration, mapping.Name)
	}
	if !mapping.Writable {
		return fmt.Errorf("%w: point %s is not writable", protocol.ErrConfiguration, mapping.Name)
	}

	if err := c.session.WriteNode(ctx, mapping.OPCUA.NodeID, value); err != nil {
		return fmt.Errorf("device %s: %w", c.deviceID, err)
	}

	c.logger.Debug("opcua write",
		"device_id", c.deviceID,
		"point", mapping.Name,
		"node", mapping.OPCUA.NodeID)
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

// Subscribe creates one server subscription, monitors every mapped
// node, and merges their data changes onto one channel. The channel
// closes when ctx is cancelled. A failure on any mapping tears down the
// items already started before returning the error.
func (c *Client) Subscribe(ctx context.Context, mappings []device.PointMapping) (<-chan protocol.Notification, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}

	subID, err := c.session.CreateSubscription(ctx, SubscriptionParams{
		PublishingInterval: c.pubInterval,
		LifetimeCount:      subLifetimeCount,
		MaxKeepAliveCount:  subMaxKeepAliveCount,
	})
	if err != nil {
		return nil, fmt.Errorf("device %s: creating subscription: %w", c.deviceID, err)
	}

	subCtx, cancel := context.WithCancel(ctx)
	out := make(chan protocol.Notification, 32)
	var wg sync.WaitGroup

	for _, mapping := range mappings {
		if mapping.OPCUA == nil {
			cancel()
			return nil, fmt.Errorf("%w: point %s has no opcua mapping", protocol.ErrConfiguration, mapping.Name)
		}

		ch, err := c.session.MonitorItem(subCtx, subID, mapping.OPCUA.NodeID, MonitorParams{
			SamplingInterval: c.pubInterval,
			QueueSize:        monitorQueueSize,
			DiscardOldest:    true,
		})
		if err != nil {
			cancel()
			return nil, fmt.Errorf("device %s: point %s: %w", c.deviceID, mapping.Name, err)
		}

		wg.Add(1)
		go func(name string, ch <-chan DataChange) {
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

// CallMethod invokes a server method beneath the given object node.
func (c *Client) CallMethod(ctx context.Context, objectID, methodID string, args ...any) ([]any, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}

	results, err := c.session.Call(ctx, objectID, methodID, args)
	if err != nil {
		return nil, fmt.Errorf("device %s: calling %s: %w", c.deviceID, methodID, err)
	}

	c.logger.Debug("opcua method call",
		"device_id", c.deviceID,
		"object", objectID,
		"method", methodID)
	return results, nil
}

func (c *Client) ready() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return fmt.Errorf("%w: no opc ua session configured", protocol.ErrNotAvailable)
	}
	if !c.connected {
		return fmt.Errorf("%w: device %s not connected", protocol.ErrConnection, c.deviceID)
	}
	return nil
}
