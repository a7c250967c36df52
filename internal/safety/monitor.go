package safety

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/heliolux/helio-core/internal/device"
	"github.com/heliolux/helio-core/internal/infrastructure/config"
)

// Corrective action parameters.
const (
	// reduceTempFactor cuts a hot device to this fraction of its current
	// intensity.
	reduceTempFactor = 0.75

	// reduceCircuitFactor cuts an overloaded circuit's zones to this
	// fraction of their current intensity.
	reduceCircuitFactor = 0.90

	// reduceRamp is the fade time for reductions; slow enough not to
	// shock the crop.
	reduceRamp = 10 * time.Second

	// shutdownRamp is the fade time for shutdowns. Safety beats
	// gentleness here.
	shutdownRamp = time.Second

	defaultWriteTimeout = 5 * time.Second
)

// Cache is the read side of the monitor: the latest-value store fed by
// the collectors. The monitor never performs device I/O to observe
// state.
type Cache interface {
	Device(deviceID string) map[string]device.DataPoint
}

// Controller issues corrective intensity writes. Implementations route
// through the same protocol client the device's collector holds, so
// safety writes and polls serialize on one session.
type Controller interface {
	SetIntensity(ctx context.Context, deviceID string, intensity float64, ramp time.Duration) error
}

// Recorder persists safety events to the audit trail.
type Recorder interface {
	RecordSafetyEvent(ctx context.Context, e Event) error
}

// Publisher broadcasts safety events, typically over MQTT.
type Publisher interface {
	PublishSafetyEvent(e Event) error
}

// LoadSink receives per-circuit load samples each sweep.
type LoadSink interface {
	WriteCircuitLoad(circuitID string, loadWatts, maxWatts float64, status string)
}

// Inventory enumerates every known device. EmergencyShutdown must reach
// all of them, including devices not assigned to any safety zone.
// *device.Registry satisfies this.
type Inventory interface {
	List() []device.Config
}

// Logger defines the logging interface used by the monitor.
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

// Monitor runs the fixed-cadence safety sweep: device temperatures,
// circuit loads, then configured zone limits, in that order. Each
// violation produces one Event per sweep and, depending on severity, a
// corrective write. A non-zero repeat interval debounces re-emission of
// the same violation.
type Monitor struct {
	cfg        config.SafetyConfig
	cache      Cache
	controller Controller
	recorder   Recorder
	publisher  Publisher
	loads      LoadSink
	inventory  Inventory
	logger     Logger

	sweepEvery   time.Duration
	repeatEvery  time.Duration
	writeTimeout time.Duration
	now          func() time.Time

	// zoneOf maps device to owning zone; zoneDevices is the reverse.
	zoneOf      map[string]string
	zoneDevices map[string][]string

	mu       sync.Mutex
	lastEmit map[string]time.Time
	breakers []CircuitBreaker
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithLogger sets the monitor's logger.
func WithLogger(l Logger) Option {
	return func(m *Monitor) { m.logger = l }
}

// WithRecorder sets the audit recorder for safety events.
func WithRecorder(r Recorder) Option {
	return func(m *Monitor) { m.recorder = r }
}

// WithPublisher sets the event publisher.
func WithPublisher(p Publisher) Option {
	return func(m *Monitor) { m.publisher = p }
}

// WithLoadSink sets the circuit-load sample sink.
func WithLoadSink(s LoadSink) Option {
	return func(m *Monitor) { m.loads = s }
}

// WithInventory sets the device inventory consulted by
// EmergencyShutdown. Without it, only zone-assigned devices are known.
func WithInventory(inv Inventory) Option {
	return func(m *Monitor) { m.inventory = inv }
}

// WithWriteTimeout bounds each corrective write.
func WithWriteTimeout(d time.Duration) Option {
	return func(m *Monitor) { m.writeTimeout = d }
}

// NewMonitor creates a safety monitor over the given cache and
// controller.
func NewMonitor(cfg config.SafetyConfig, cache Cache, controller Controller, opts ...Option) (*Monitor, error) {
	if cache == nil {
		return nil, ErrMissingCache
	}
	if controller == nil {
		return nil, ErrMissingController
	}

	m := &Monitor{
		cfg:          cfg,
		cache:        cache,
		controller:   controller,
		logger:       noopLogger{},
		sweepEvery:   time.Duration(cfg.SweepInterval) * time.Second,
		repeatEvery:  time.Duration(cfg.RepeatInterval) * time.Second,
		writeTimeout: defaultWriteTimeout,
		now:          time.Now,
		zoneOf:       make(map[string]string),
		zoneDevices:  make(map[string][]string),
		lastEmit:     make(map[string]time.Time),
	}
	for _, z := range cfg.Zones {
		for _, id := range z.Devices {
			m.zoneOf[id] = z.ID
			m.zoneDevices[z.ID] = append(m.zoneDevices[z.ID], id)
		}
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Run sweeps once immediately, then on every tick until ctx is
// cancelled. A sweep that overruns the interval simply drops ticks; two
// sweeps never overlap.
func (m *Monitor) Run(ctx context.Context) {
	m.logger.Info("safety monitor started",
		"sweep_interval", m.sweepEvery.String(),
		"circuits", len(m.cfg.Circuits),
		"zones", len(m.cfg.Zones))

	m.Sweep(ctx)

	ticker := time.NewTicker(m.sweepEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("safety monitor stopped")
			return
		case <-ticker.C:
			m.Sweep(ctx)
		}
	}
}

// CircuitStatus returns every circuit's load and breaker status as of
// the last sweep. Before the first sweep, circuits report zero load.
func (m *Monitor) CircuitStatus() []CircuitBreaker {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.breakers == nil {
		out := make([]CircuitBreaker, 0, len(m.cfg.Circuits))
		for _, cb := range m.cfg.Circuits {
			out = append(out, CircuitBreaker{
				ID:       cb.ID,
				MaxWatts: circuitMaxWatts(cb),
				Zones:    append([]string(nil), cb.Zones...),
				Status:   CircuitNormal,
			})
		}
		return out
	}
	out := make([]CircuitBreaker, len(m.breakers))
	copy(out, m.breakers)
	return out
}

// EmergencyShutdown drives every known device to zero intensity with a
// short ramp. One failing device never stops the rest; failures are
// aggregated into the returned error. The shutdown is always recorded,
// bypassing the debounce.
func (m *Monitor) EmergencyShutdown(ctx context.Context, reason string) error {
	// Union of the zone map and the full inventory: a device that was
	// never assigned a safety zone still gets shut down.
	set := make(map[string]bool, len(m.zoneOf))
	for id := range m.zoneOf {
		set[id] = true
	}
	if m.inventory != nil {
		for _, d := range m.inventory.List() {
			set[d.ID] = true
		}
	}
	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var failed int
	var firstErr error
	for _, id := range ids {
		if err := m.setIntensity(ctx, id, 0, shutdownRamp); err != nil {
			failed++
			if firstErr == nil {
				firstErr = err
			}
			m.logger.Error("emergency shutdown write failed",
				"device_id", id, "error", err)
		}
	}

	ev := newEvent(EventEmergencyShutdown, SeverityEmergency, ActionShutdown)
	ev.Message = fmt.Sprintf("emergency shutdown (%s): %d of %d devices stopped",
		reason, len(ids)-failed, len(ids))
	m.record(ctx, ev)

	m.logger.Error("emergency shutdown executed",
		"reason", reason, "devices", len(ids), "failures", failed)

	if failed > 0 {
		return fmt.Errorf("emergency shutdown: %d of %d devices failed: %w",
			failed, len(ids), firstErr)
	}
	return nil
}

func (m *Monitor) setIntensity(ctx context.Context, deviceID string, intensity float64, ramp time.Duration) error {
	wctx, cancel := context.WithTimeout(ctx, m.writeTimeout)
	defer cancel()
	return m.controller.SetIntensity(wctx, deviceID, intensity, ramp)
}

// emit applies the debounce and, when the event passes, logs, records,
// and publishes it. Returns false when the same violation fired within
// the repeat interval, in which case the caller skips the corrective
// action too.
func (m *Monitor) emit(ctx context.Context, key string, ev Event) bool {
	now := m.now()

	m.mu.Lock()
	if m.repeatEvery > 0 {
		if last, ok := m.lastEmit[key]; ok && now.Sub(last) < m.repeatEvery {
			m.mu.Unlock()
			return false
		}
	}
	m.lastEmit[key] = now
	m.mu.Unlock()

	fields := []any{
		"event_type", ev.EventType,
		"severity", string(ev.Severity),
		"action", string(ev.Action),
		"value", ev.Value,
		"limit", ev.Limit,
	}
	if ev.DeviceID != "" {
		fields = append(fields, "device_id", ev.DeviceID)
	}
	if ev.ZoneID != "" {
		fields = append(fields, "zone_id", ev.ZoneID)
	}
	if ev.CircuitID != "" {
		fields = append(fields, "circuit_id", ev.CircuitID)
	}
	if ev.Severity == SeverityWarning {
		m.logger.Warn(ev.Message, fields...)
	} else {
		m.logger.Error(ev.Message, fields...)
	}

	m.record(ctx, ev)
	return true
}

// clearDebounce forgets a violation once its condition clears, so a new
// occurrence emits immediately regardless of the repeat interval.
func (m *Monitor) clearDebounce(key string) {
	m.mu.Lock()
	delete(m.lastEmit, key)
	m.mu.Unlock()
}

func (m *Monitor) record(ctx context.Context, ev Event) {
	if m.recorder != nil {
		if err := m.recorder.RecordSafetyEvent(ctx, ev); err != nil {
			m.logger.Error("failed to record safety event",
				"event_type", ev.EventType, "error", err)
		}
	}
	if m.publisher != nil {
		if err := m.publisher.PublishSafetyEvent(ev); err != nil {
			m.logger.Error("failed to publish safety event",
				"event_type", ev.EventType, "error", err)
		}
	}
}

func circuitMaxWatts(cb config.CircuitConfig) float64 {
	if cb.MaxWatts > 0 {
		return cb.MaxWatts
	}
	return cb.MaxAmps * cb.Voltage
}
