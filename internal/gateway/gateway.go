package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/heliolux/helio-core/internal/audit"
	"github.com/heliolux/helio-core/internal/collection"
	"github.com/heliolux/helio-core/internal/device"
	"github.com/heliolux/helio-core/internal/discovery"
	"github.com/heliolux/helio-core/internal/infrastructure/config"
	"github.com/heliolux/helio-core/internal/infrastructure/mqtt"
	"github.com/heliolux/helio-core/internal/protocol/bacnet"
	"github.com/heliolux/helio-core/internal/protocol/opcua"
	"github.com/heliolux/helio-core/internal/safety"
)

// Broker is the slice of the MQTT infrastructure client the gateway
// uses. *mqtt.Client satisfies it.
type Broker interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
	IsConnected() bool
}

// Alerter records operational faults that are not safety events, such
// as a device failing to start collection. *audit.Repository satisfies
// it.
type Alerter interface {
	RecordAlert(ctx context.Context, alert *audit.SystemAlert) error
}

// Logger defines the logging interface used by the gateway.
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

// noopSink discards readings when no time-series backend is configured.
type noopSink struct{}

func (noopSink) WriteDataPoint(string, time.Time, string, map[string]any) {}
func (noopSink) WriteCollectorStat(string, int64, int64, float64)         {}
func (noopSink) Flush()                                                   {}

// Gateway is the composition root for the integration runtime: device
// registry, data collection, safety monitoring, and discovery behind
// one explicitly constructed object.
type Gateway struct {
	cfg      *config.Config
	registry *device.Registry
	broker   Broker
	bacnetTx bacnet.Transport
	opcuaSes opcua.Session
	alerter  Alerter
	logger   Logger

	collection *collection.Service
	monitor    *safety.Monitor
	scanner    *discovery.Scanner
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithLogger sets the gateway's logger.
func WithLogger(l Logger) Option {
	return func(g *Gateway) { g.logger = l }
}

// WithBroker supplies the shared MQTT session used by MQTT devices,
// passive discovery, and safety event publishing.
func WithBroker(b Broker) Option {
	return func(g *Gateway) { g.broker = b }
}

// WithAlerter supplies a sink for operational fault alerts.
func WithAlerter(a Alerter) Option {
	return func(g *Gateway) { g.alerter = a }
}

// WithBACnetTransport supplies the BACnet/IP transport.
func WithBACnetTransport(tx bacnet.Transport) Option {
	return func(g *Gateway) { g.bacnetTx = tx }
}

// WithOPCUASession supplies the OPC UA session backend.
func WithOPCUASession(s opcua.Session) Option {
	return func(g *Gateway) { g.opcuaSes = s }
}

// New assembles a gateway from explicit dependencies. sink and recorder
// may be nil when no time-series or audit backend is configured; the
// gateway then runs with in-memory state only.
func New(cfg *config.Config, registry *device.Registry, sink collection.Sink, recorder safety.Recorder, loads safety.LoadSink, opts ...Option) (*Gateway, error) {
	if cfg == nil {
		return nil, fmt.Errorf("gateway: config is required")
	}
	if registry == nil {
		return nil, fmt.Errorf("gateway: device registry is required")
	}

	g := &Gateway{
		cfg:      cfg,
		registry: registry,
		logger:   noopLogger{},
	}
	for _, opt := range opts {
		opt(g)
	}

	if sink == nil {
		sink = noopSink{}
	}
	g.collection = collection.NewService(g.buildClient, sink, cfg.DefaultPollInterval(),
		collection.WithLogger(g.logger))

	monitorOpts := []safety.Option{
		safety.WithLogger(g.logger),
		safety.WithInventory(registry),
	}
	if recorder != nil {
		monitorOpts = append(monitorOpts, safety.WithRecorder(recorder))
	}
	if loads != nil {
		monitorOpts = append(monitorOpts, safety.WithLoadSink(loads))
	}
	if g.broker != nil {
		monitorOpts = append(monitorOpts, safety.WithPublisher(g))
	}
	monitor, err := safety.NewMonitor(cfg.Safety, g.collection.Cache(), g, monitorOpts...)
	if err != nil {
		return nil, fmt.Errorf("gateway: %w", err)
	}
	g.monitor = monitor

	scanOpts := []discovery.Option{discovery.WithLogger(g.logger)}
	if g.broker != nil {
		scanOpts = append(scanOpts, discovery.WithMQTTListener(g.broker))
	}
	if g.bacnetTx != nil {
		scanOpts = append(scanOpts, discovery.WithBACnetTransport(g.bacnetTx))
	}
	g.scanner = discovery.NewScanner(cfg.Discovery, cfg.Collection.WorkerPoolSize, scanOpts...)

	return g, nil
}

// Run starts the safety monitor and collection for every registered
// device, then blocks until ctx is cancelled and everything is torn
// down. A device that fails to start logs, raises a system alert, and
// is skipped; it can be retried later through StartCollection.
func (g *Gateway) Run(ctx context.Context) error {
	for _, cfg := range g.registry.List() {
		if err := g.collection.Start(ctx, cfg); err != nil {
			g.logger.Error("collection start failed",
				"device_id", cfg.ID, "error", err)
			g.alert(ctx, "warning",
				fmt.Sprintf("collection start failed for device %s", cfg.ID),
				map[string]any{"device_id": cfg.ID, "error": err.Error()})
		}
	}

	g.monitor.Run(ctx)

	g.collection.StopAll()
	return nil
}

// StartCollection begins collecting from a registered device.
func (g *Gateway) StartCollection(ctx context.Context, deviceID string) error {
	cfg, err := g.registry.Get(deviceID)
	if err != nil {
		return err
	}
	return g.collection.Start(ctx, cfg)
}

// StopCollection halts a device's collector.
func (g *Gateway) StopCollection(deviceID string) error {
	return g.collection.Stop(deviceID)
}

// GetStats returns one collector's counters.
func (g *Gateway) GetStats(deviceID string) (collection.Stats, error) {
	return g.collection.Stats(deviceID)
}

// AllStats returns every running collector's counters.
func (g *Gateway) AllStats() []collection.Stats {
	return g.collection.AllStats()
}

// ActiveCollectors lists the device IDs currently being collected.
func (g *Gateway) ActiveCollectors() []string {
	return g.collection.Active()
}

// Discover runs one discovery pass across every configured protocol.
func (g *Gateway) Discover(ctx context.Context) []discovery.DiscoveredDevice {
	return g.scanner.Scan(ctx)
}

// EmergencyShutdown forces every known device to zero intensity.
func (g *Gateway) EmergencyShutdown(ctx context.Context, reason string) error {
	return g.monitor.EmergencyShutdown(ctx, reason)
}

// CircuitStatus reports per-circuit load and breaker state.
func (g *Gateway) CircuitStatus() []safety.CircuitBreaker {
	return g.monitor.CircuitStatus()
}

// Sweep runs one safety pass outside the monitor's cadence, for
// commissioning checks.
func (g *Gateway) Sweep(ctx context.Context) []safety.Event {
	return g.monitor.Sweep(ctx)
}

// alert records an operational fault when an alert sink is configured.
// Failures to record are logged and otherwise swallowed: the alert
// trail must never take the runtime down with it.
func (g *Gateway) alert(ctx context.Context, severity, message string, details map[string]any) {
	if g.alerter == nil {
		return
	}
	a := &audit.SystemAlert{
		Source:   "gateway",
		Severity: severity,
		Message:  message,
		Details:  details,
	}
	if err := g.alerter.RecordAlert(ctx, a); err != nil {
		g.logger.Warn("recording system alert failed", "error", err)
	}
}

// PublishSafetyEvent broadcasts a safety event on the safety topic.
// Satisfies safety.Publisher.
func (g *Gateway) PublishSafetyEvent(e safety.Event) error {
	if g.broker == nil {
		return nil
	}
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("gateway: marshalling safety event: %w", err)
	}
	topic := mqtt.TopicPrefixSafety + "/" + e.EventType
	return g.broker.Publish(topic, payload, 1, false)
}
