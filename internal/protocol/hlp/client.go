package hlp

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/heliolux/helio-core/internal/device"
	"github.com/heliolux/helio-core/internal/hlp"
	"github.com/heliolux/helio-core/internal/protocol"
)

const (
	// DefaultPort is the TCP port HLP fixtures listen on.
	DefaultPort = 5888

	// DefaultTimeout applies when the device config sets none.
	DefaultTimeout = 2 * time.Second
)

// Point names an HLP fixture reports in its status response. Channel
// intensities additionally appear as "intensity_<channel>".
const (
	pointIntensity   = "intensity"
	pointTemperature = "temperature"
	pointPower       = "power"
	pointUptime      = "uptime"
)

// Dialer opens the fixture connection; swapped in tests.
type Dialer func(ctx context.Context, addr string) (net.Conn, error)

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

// Client commands one HLP lighting fixture over TCP.
//
// HLP is strictly request/response on a single stream, so every
// operation holds an internal mutex. All public methods are
// thread-safe.
type Client struct {
	deviceID string
	addr     string
	timeout  time.Duration
	dial     Dialer
	seq      *hlp.SequenceCounter
	logger   Logger

	mu        sync.Mutex
	conn      net.Conn
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

// WithDialer replaces the TCP dialer.
func WithDialer(d Dialer) Option {
	return func(c *Client) { c.dial = d }
}

// NewClient creates an HLP client for the given fixture.
func NewClient(cfg device.Config, opts ...Option) (*Client, error) {
	if cfg.Protocol != device.ProtocolHLP {
		return nil, fmt.Errorf("%w: device %s is %s, not hlp", protocol.ErrConfiguration, cfg.ID, cfg.Protocol)
	}

	port := cfg.Connection.Port
	if port == 0 {
		port = DefaultPort
	}

	c := &Client{
		deviceID: cfg.ID,
		addr:     fmt.Sprintf("%s:%d", cfg.Connection.Host, port),
		timeout:  DefaultTimeout,
		seq:      hlp.NewSequenceCounter(0),
		logger:   noopLogger{},
	}
	if t := cfg.Connection.Timeout(); t > 0 {
		c.timeout = t
	}
	c.dial = func(ctx context.Context, addr string) (net.Conn, error) {
		var d net.Dialer
		return d.DialContext(ctx, "tcp", addr)
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Connect opens the fixture stream. Calling Connect on a connected
// client is a no-op.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.connected {
		return nil
	}

	conn, err := c.dial(ctx, c.addr)
	if err != nil {
		return fmt.Errorf("%w: device %s: %w", protocol.ErrConnection, c.deviceID, err)
	}

	c.conn = conn
	c.connected = true
	c.logger.Info("hlp connected", "device_id", c.deviceID, "addr", c.addr)
	return nil
}

// Disconnect closes the stream. Never fails; a disconnected client is a
// no-op.
func (c *Client) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.connected {
		return
	}
	if err := c.conn.Close(); err != nil {
		c.logger.Warn("hlp close", "device_id", c.deviceID, "error", err)
	}
	c.conn = nil
	c.connected = false
	c.logger.Info("hlp disconnected", "device_id", c.deviceID)
}

// IsConnected reports the session state.
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// ReadPoint reads one status field from the fixture.
func (c *Client) ReadPoint(ctx context.Context, mapping device.PointMapping) (any, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	status, err := c.statusLocked(ctx)
	if err != nil {
		return nil, err
	}
	return extractPoint(status, mapping.Name)
}

// WritePoint sets channel intensities. Only intensity points are
// writable on HLP fixtures; the value applies immediately (no ramp).
func (c *Client) WritePoint(ctx context.Context, mapping device.PointMapping, value any) error {
	if !mapping.Writable {
		return fmt.Errorf("%w: point %s is not writable", protocol.ErrConfiguration, mapping.Name)
	}
	num, err := toFloat(value)
	if err != nil {
		return fmt.Errorf("%w: point %s: %w", protocol.ErrConfiguration, mapping.Name, err)
	}

	if ch, ok := channelFromName(mapping.Name); ok {
		return c.SetChannelIntensity(ctx, ch, num, 0)
	}
	if mapping.Name == pointIntensity {
		return c.SetIntensity(ctx, num, 0)
	}
	return fmt.Errorf("%w: point %s is not an intensity point", protocol.ErrConfiguration, mapping.Name)
}

// PollAll reads the fixture status once and extracts every mapping,
// isolating failures per point.
func (c *Client) PollAll(ctx context.Context, mappings []device.PointMapping) (map[string]any, map[string]error) {
	values := make(map[string]any, len(mappings))
	errs := make(map[string]error)

	c.mu.Lock()
	defer c.mu.Unlock()

	status, err := c.statusLocked(ctx)
	if err != nil {
		for _, mapping := range mappings {
			errs[mapping.Name] = err
		}
		return values, errs
	}

	for _, mapping := range mappings {
		v, err := extractPoint(status, mapping.Name)
		if err != nil {
			errs[mapping.Name] = err
			continue
		}
		values[mapping.Name] = v
	}
	return values, errs
}

// SetIntensity drives every output channel to the given percent level
// over the ramp duration. Used by safety corrective actions.
func (c *Client) SetIntensity(ctx context.Context, intensity float64, ramp time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	status, err := c.statusLocked(ctx)
	if err != nil {
		return err
	}

	channels := make([]hlp.ChannelIntensity, 0, len(status.Intensities))
	for id := range status.Intensities {
		ch, err := strconv.Atoi(id)
		if err != nil {
			continue
		}
		channels = append(channels, hlp.ChannelIntensity{
			ChannelID: ch,
			Intensity: intensity,
			RampTime:  ramp.Seconds(),
		})
	}
	if len(channels) == 0 {
		channels = append(channels, hlp.ChannelIntensity{
			ChannelID: 0,
			Intensity: intensity,
			RampTime:  ramp.Seconds(),
		})
	}
	return c.setChannelsLocked(ctx, channels)
}

// SetChannelIntensity drives one output channel.
func (c *Client) SetChannelIntensity(ctx context.Context, channel int, intensity float64, ramp time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.setChannelsLocked(ctx, []hlp.ChannelIntensity{{
		ChannelID: channel,
		Intensity: intensity,
		RampTime:  ramp.Seconds(),
	}})
}

func (c *Client) setChannelsLocked(ctx context.Context, channels []hlp.ChannelIntensity) error {
	msg, err := hlp.NewSetIntensity(c.deviceID, c.seq.Next(), channels)
	if err != nil {
		return fmt.Errorf("%w: device %s: %w", protocol.ErrConfiguration, c.deviceID, err)
	}
	resp, err := c.requestLocked(ctx, msg)
	if err != nil {
		return err
	}
	if resp.Type == hlp.TypeNack {
		return fmt.Errorf("%w: device %s rejected set_intensity: %s",
			protocol.ErrProtocol, c.deviceID, nackReason(resp))
	}
	c.logger.Debug("hlp intensity set", "device_id", c.deviceID, "channels", len(channels))
	return nil
}

func (c *Client) statusLocked(ctx context.Context) (hlp.StatusPayload, error) {
	resp, err := c.requestLocked(ctx, hlp.NewStatusRequest(c.deviceID, c.seq.Next()))
	if err != nil {
		return hlp.StatusPayload{}, err
	}
	if resp.Type == hlp.TypeNack {
		return hlp.StatusPayload{}, fmt.Errorf("%w: device %s rejected status request: %s",
			protocol.ErrProtocol, c.deviceID, nackReason(resp))
	}
	status, err := hlp.ParseStatus(resp)
	if err != nil {
		return hlp.StatusPayload{}, fmt.Errorf("%w: device %s: %w", protocol.ErrProtocol, c.deviceID, err)
	}
	return status, nil
}

// requestLocked writes one frame and reads the fixture's reply. The
// deadline covers the full exchange.
func (c *Client) requestLocked(ctx context.Context, msg hlp.Message) (hlp.Message, error) {
	if !c.connected {
		return hlp.Message{}, fmt.Errorf("%w: device %s not connected", protocol.ErrConnection, c.deviceID)
	}
	if err := ctx.Err(); err != nil {
		return hlp.Message{}, fmt.Errorf("%w: %w", protocol.ErrTimeout, err)
	}

	frame, err := hlp.Encode(msg)
	if err != nil {
		return hlp.Message{}, fmt.Errorf("%w: device %s: %w", protocol.ErrConfiguration, c.deviceID, err)
	}

	deadline := time.Now().Add(c.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := c.conn.SetDeadline(deadline); err != nil {
		return hlp.Message{}, fmt.Errorf("%w: device %s: %w", protocol.ErrConnection, c.deviceID, err)
	}

	if _, err := c.conn.Write(frame); err != nil {
		return hlp.Message{}, c.classify(err)
	}
	raw, err := readFrame(c.conn)
	if err != nil {
		return hlp.Message{}, c.classify(err)
	}
	resp, err := hlp.Decode(raw)
	if err != nil {
		return hlp.Message{}, fmt.Errorf("%w: device %s: %w", protocol.ErrProtocol, c.deviceID, err)
	}
	return resp, nil
}

// readFrame assembles one HLP frame from the stream: fixed header, then
// the two length-prefixed variable sections, then the checksum.
func readFrame(r io.Reader) ([]byte, error) {
	// Header through the device-ID length prefix.
	head := make([]byte, hlp.HeaderSize+2)
	if _, err := io.ReadFull(r, head); err != nil {
		return nil, err
	}
	idLen := int(binary.BigEndian.Uint16(head[hlp.HeaderSize:]))

	mid := make([]byte, idLen+4)
	if _, err := io.ReadFull(r, mid); err != nil {
		return nil, err
	}
	payloadLen := int(binary.BigEndian.Uint32(mid[idLen:]))
	if payloadLen > hlp.MaxPayloadLen {
		return nil, fmt.Errorf("frame payload of %d bytes exceeds limit", payloadLen)
	}

	tail := make([]byte, payloadLen+4)
	if _, err := io.ReadFull(r, tail); err != nil {
		return nil, err
	}

	frame := make([]byte, 0, len(head)+len(mid)+len(tail))
	frame = append(frame, head...)
	frame = append(frame, mid...)
	frame = append(frame, tail...)
	return frame, nil
}

func (c *Client) classify(err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: device %s: %w", protocol.ErrTimeout, c.deviceID, err)
	}
	return fmt.Errorf("%w: device %s: %w", protocol.ErrConnection, c.deviceID, err)
}

// extractPoint maps a point name onto a status field. Channel points
// use the "intensity_<channel>" convention.
func extractPoint(status hlp.StatusPayload, name string) (any, error) {
	switch name {
	case pointTemperature:
		return status.Temperature, nil
	case pointPower:
		return status.PowerWatts, nil
	case pointUptime:
		return status.Uptime, nil
	case pointIntensity:
		if len(status.Intensities) == 0 {
			return 0.0, nil
		}
		var sum float64
		for _, v := range status.Intensities {
			sum += v
		}
		return sum / float64(len(status.Intensities)), nil
	}
	if ch, ok := channelFromName(name); ok {
		if v, found := status.Intensities[strconv.Itoa(ch)]; found {
			return v, nil
		}
		return nil, fmt.Errorf("%w: fixture has no channel %d", protocol.ErrIllegalAddress, ch)
	}
	return nil, fmt.Errorf("%w: unknown status point %q", protocol.ErrConfiguration, name)
}

func channelFromName(name string) (int, bool) {
	const prefix = pointIntensity + "_"
	if len(name) <= len(prefix) || name[:len(prefix)] != prefix {
		return 0, false
	}
	ch, err := strconv.Atoi(name[len(prefix):])
	if err != nil {
		return 0, false
	}
	return ch, true
}

func nackReason(m hlp.Message) string {
	var body struct {
		Reason string `json:"reason"`
	}
	if err := json.Unmarshal(m.Payload, &body); err != nil || body.Reason == "" {
		return "no reason given"
	}
	return body.Reason
}

func toFloat(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	default:
		return 0, fmt.Errorf("needs numeric value, got %T", v)
	}
}
