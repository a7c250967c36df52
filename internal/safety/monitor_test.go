package safety

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/heliolux/helio-core/internal/device"
	"github.com/heliolux/helio-core/internal/infrastructure/config"
)

type fakeCache struct {
	points map[string]map[string]device.DataPoint
}

func newFakeCache() *fakeCache {
	return &fakeCache{points: make(map[string]map[string]device.DataPoint)}
}

func (f *fakeCache) set(deviceID, name string, value any, quality device.Quality) {
	m, ok := f.points[deviceID]
	if !ok {
		m = make(map[string]device.DataPoint)
		f.points[deviceID] = m
	}
	m[name] = device.DataPoint{
		DeviceID:  deviceID,
		Name:      name,
		Value:     value,
		Quality:   quality,
		Timestamp: time.Now(),
	}
}

func (f *fakeCache) Device(deviceID string) map[string]device.DataPoint {
	return f.points[deviceID]
}

type intensityWrite struct {
	deviceID  string
	intensity float64
	ramp      time.Duration
}

type fakeController struct {
	mu     sync.Mutex
	writes []intensityWrite
	errFor map[string]error
}

func (f *fakeController) SetIntensity(_ context.Context, deviceID string, intensity float64, ramp time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.errFor[deviceID]; err != nil {
		return err
	}
	f.writes = append(f.writes, intensityWrite{deviceID, intensity, ramp})
	return nil
}

func (f *fakeController) all() []intensityWrite {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]intensityWrite(nil), f.writes...)
}

type fakeRecorder struct {
	mu     sync.Mutex
	events []Event
}

func (f *fakeRecorder) RecordSafetyEvent(_ context.Context, e Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, e)
	return nil
}

func testSafetyConfig() config.SafetyConfig {
	return config.SafetyConfig{
		SweepInterval:  5,
		RepeatInterval: 0,
		Temperature:    config.TemperatureThresholds{Warning: 35, Critical: 40, Emergency: 45},
		Circuit:        config.CircuitThresholds{WarningPct: 0.80, CriticalPct: 0.90, EmergencyPct: 0.95},
		Circuits: []config.CircuitConfig{
			{ID: "circuit-a", MaxWatts: 7200, Zones: []string{"veg-1", "veg-2"}},
		},
		Zones: []config.ZoneConfig{
			{ID: "veg-1", Name: "Veg Room 1", Devices: []string{"light-1"}},
			{ID: "veg-2", Name: "Veg Room 2", Devices: []string{"light-2"}},
		},
	}
}

func TestNewMonitorValidation(t *testing.T) {
	cfg := testSafetyConfig()

	if _, err := NewMonitor(cfg, nil, &fakeController{}); !errors.Is(err, ErrMissingCache) {
		t.Errorf("NewMonitor(nil cache) error = %v, want ErrMissingCache", err)
	}
	if _, err := NewMonitor(cfg, newFakeCache(), nil); !errors.Is(err, ErrMissingController) {
		t.Errorf("NewMonitor(nil controller) error = %v, want ErrMissingController", err)
	}
}

func TestCircuitOverloadCriticalReduces(t *testing.T) {
	cache := newFakeCache()
	cache.set("light-1", "power", 3200.0, device.QualityGood)
	cache.set("light-1", "intensity", 80.0, device.QualityGood)
	cache.set("light-2", "power", 3500.0, device.QualityGood)
	cache.set("light-2", "intensity", 100.0, device.QualityGood)

	ctrl := &fakeController{}
	m, err := NewMonitor(testSafetyConfig(), cache, ctrl)
	if err != nil {
		t.Fatalf("NewMonitor() error = %v", err)
	}

	events := m.Sweep(context.Background())
	if len(events) != 1 {
		t.Fatalf("Sweep() emitted %d events, want 1: %+v", len(events), events)
	}
	ev := events[0]
	if ev.EventType != EventCircuitOverload {
		t.Errorf("event type = %q, want %q", ev.EventType, EventCircuitOverload)
	}
	if ev.Severity != SeverityCritical {
		t.Errorf("severity = %q, want critical", ev.Severity)
	}
	if ev.Action != ActionReduce {
		t.Errorf("action = %q, want reduce", ev.Action)
	}
	if ev.Value != 6700 || ev.Limit != 7200 {
		t.Errorf("value/limit = %.0f/%.0f, want 6700/7200", ev.Value, ev.Limit)
	}

	writes := ctrl.all()
	if len(writes) != 2 {
		t.Fatalf("controller got %d writes, want 2: %+v", len(writes), writes)
	}
	want := map[string]float64{"light-1": 72, "light-2": 90}
	for _, w := range writes {
		if w.intensity != want[w.deviceID] {
			t.Errorf("device %s reduced to %.1f, want %.1f", w.deviceID, w.intensity, want[w.deviceID])
		}
		if w.ramp != 10*time.Second {
			t.Errorf("device %s ramp = %v, want 10s", w.deviceID, w.ramp)
		}
	}
}

func TestCircuitAtExactEmergencyPctShutsDown(t *testing.T) {
	cache := newFakeCache()
	// 3420 + 3420 = 6840W, exactly 95% of 7200W.
	cache.set("light-1", "power", 3420.0, device.QualityGood)
	cache.set("light-2", "power", 3420.0, device.QualityGood)

	ctrl := &fakeController{}
	m, err := NewMonitor(testSafetyConfig(), cache, ctrl)
	if err != nil {
		t.Fatalf("NewMonitor() error = %v", err)
	}

	events := m.Sweep(context.Background())
	if len(events) != 1 {
		t.Fatalf("Sweep() emitted %d events, want 1", len(events))
	}
	if events[0].Severity != SeverityEmergency || events[0].Action != ActionShutdown {
		t.Errorf("got %s/%s, want emergency/shutdown", events[0].Severity, events[0].Action)
	}

	writes := ctrl.all()
	if len(writes) != 2 {
		t.Fatalf("controller got %d writes, want 2", len(writes))
	}
	for _, w := range writes {
		if w.intensity != 0 {
			t.Errorf("device %s set to %.1f, want 0", w.deviceID, w.intensity)
		}
		if w.ramp > time.Second {
			t.Errorf("device %s ramp = %v, want <= 1s", w.deviceID, w.ramp)
		}
	}
}

func TestCircuitBelowCriticalAlertsOnly(t *testing.T) {
	cache := newFakeCache()
	// 6400W is 88.9%: past warning, under critical.
	cache.set("light-1", "power", 3200.0, device.QualityGood)
	cache.set("light-2", "power", 3200.0, device.QualityGood)

	ctrl := &fakeController{}
	m, err := NewMonitor(testSafetyConfig(), cache, ctrl)
	if err != nil {
		t.Fatalf("NewMonitor() error = %v", err)
	}

	events := m.Sweep(context.Background())
	if len(events) != 1 {
		t.Fatalf("Sweep() emitted %d events, want 1", len(events))
	}
	if events[0].Severity != SeverityWarning || events[0].Action != ActionAlert {
		t.Errorf("got %s/%s, want warning/alert", events[0].Severity, events[0].Action)
	}
	if got := ctrl.all(); len(got) != 0 {
		t.Errorf("alert produced %d device writes, want none: %+v", len(got), got)
	}
}

func TestTemperatureTiers(t *testing.T) {
	tests := []struct {
		name       string
		temp       float64
		wantEvents int
		severity   Severity
		action     Action
		writes     int
		intensity  float64
	}{
		{name: "below warning", temp: 34.9, wantEvents: 0},
		{name: "warning alerts", temp: 35, wantEvents: 1, severity: SeverityWarning, action: ActionAlert},
		{name: "critical reduces", temp: 40, wantEvents: 1, severity: SeverityCritical, action: ActionReduce, writes: 1, intensity: 60},
		{name: "emergency shuts down", temp: 46, wantEvents: 1, severity: SeverityEmergency, action: ActionShutdown, writes: 1, intensity: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cache := newFakeCache()
			cache.set("light-1", "temperature", tt.temp, device.QualityGood)
			cache.set("light-1", "intensity", 80.0, device.QualityGood)

			ctrl := &fakeController{}
			m, err := NewMonitor(testSafetyConfig(), cache, ctrl)
			if err != nil {
				t.Fatalf("NewMonitor() error = %v", err)
			}

			events := m.Sweep(context.Background())
			if len(events) != tt.wantEvents {
				t.Fatalf("Sweep() emitted %d events, want %d: %+v", len(events), tt.wantEvents, events)
			}
			if tt.wantEvents > 0 {
				ev := events[0]
				if ev.EventType != EventHighTemperature {
					t.Errorf("event type = %q, want %q", ev.EventType, EventHighTemperature)
				}
				if ev.Severity != tt.severity || ev.Action != tt.action {
					t.Errorf("got %s/%s, want %s/%s", ev.Severity, ev.Action, tt.severity, tt.action)
				}
			}

			writes := ctrl.all()
			if len(writes) != tt.writes {
				t.Fatalf("controller got %d writes, want %d", len(writes), tt.writes)
			}
			if tt.writes > 0 && writes[0].intensity != tt.intensity {
				t.Errorf("intensity = %.1f, want %.1f", writes[0].intensity, tt.intensity)
			}
		})
	}
}

func TestRepeatIntervalDebounces(t *testing.T) {
	cfg := testSafetyConfig()
	cfg.RepeatInterval = 60

	cache := newFakeCache()
	cache.set("light-1", "temperature", 41.0, device.QualityGood)
	cache.set("light-1", "intensity", 80.0, device.QualityGood)

	ctrl := &fakeController{}
	rec := &fakeRecorder{}
	m, err := NewMonitor(cfg, cache, ctrl, WithRecorder(rec))
	if err != nil {
		t.Fatalf("NewMonitor() error = %v", err)
	}

	first := m.Sweep(context.Background())
	second := m.Sweep(context.Background())
	if len(first) != 1 {
		t.Fatalf("first sweep emitted %d events, want 1", len(first))
	}
	if len(second) != 0 {
		t.Errorf("second sweep emitted %d events, want 0 within repeat interval", len(second))
	}
	if got := ctrl.all(); len(got) != 1 {
		t.Errorf("debounced sweep repeated the corrective write: %d writes, want 1", len(got))
	}
	if len(rec.events) != 1 {
		t.Errorf("recorded %d events, want 1", len(rec.events))
	}
}

func TestZeroRepeatIntervalReemitsEverySweep(t *testing.T) {
	cache := newFakeCache()
	cache.set("light-1", "temperature", 41.0, device.QualityGood)
	cache.set("light-1", "intensity", 80.0, device.QualityGood)

	ctrl := &fakeController{}
	m, err := NewMonitor(testSafetyConfig(), cache, ctrl)
	if err != nil {
		t.Fatalf("NewMonitor() error = %v", err)
	}

	if got := len(m.Sweep(context.Background())); got != 1 {
		t.Fatalf("first sweep emitted %d events, want 1", got)
	}
	if got := len(m.Sweep(context.Background())); got != 1 {
		t.Errorf("second sweep emitted %d events, want 1 with no debounce", got)
	}

	// Reductions compound: 80 -> 60, then the next sweep still sees the
	// cached 80 until a collector refreshes it, so the write repeats.
	writes := ctrl.all()
	if len(writes) != 2 {
		t.Fatalf("got %d writes, want 2", len(writes))
	}
}

func TestDebounceClearsWhenConditionClears(t *testing.T) {
	cfg := testSafetyConfig()
	cfg.RepeatInterval = 3600

	cache := newFakeCache()
	cache.set("light-1", "temperature", 41.0, device.QualityGood)
	cache.set("light-1", "intensity", 80.0, device.QualityGood)

	m, err := NewMonitor(cfg, cache, &fakeController{})
	if err != nil {
		t.Fatalf("NewMonitor() error = %v", err)
	}

	if got := len(m.Sweep(context.Background())); got != 1 {
		t.Fatalf("first sweep emitted %d events, want 1", got)
	}

	// Condition clears, then recurs: re-emission must not wait out the
	// repeat interval.
	cache.set("light-1", "temperature", 30.0, device.QualityGood)
	if got := len(m.Sweep(context.Background())); got != 0 {
		t.Fatalf("cleared sweep emitted %d events, want 0", got)
	}
	cache.set("light-1", "temperature", 41.0, device.QualityGood)
	if got := len(m.Sweep(context.Background())); got != 1 {
		t.Errorf("recurrence emitted %d events, want 1", got)
	}
}

func TestZoneLimitUsesConfiguredAction(t *testing.T) {
	cfg := testSafetyConfig()
	cfg.Circuits = nil
	cfg.Limits = []config.SafetyLimitConfig{
		{ZoneID: "veg-1", LimitType: "power", MaxValue: 3000, Unit: "W", Action: "reduce", Priority: 2},
	}

	cache := newFakeCache()
	cache.set("light-1", "power", 3200.0, device.QualityGood)
	cache.set("light-1", "intensity", 100.0, device.QualityGood)

	ctrl := &fakeController{}
	m, err := NewMonitor(cfg, cache, ctrl)
	if err != nil {
		t.Fatalf("NewMonitor() error = %v", err)
	}

	events := m.Sweep(context.Background())
	if len(events) != 1 {
		t.Fatalf("Sweep() emitted %d events, want 1: %+v", len(events), events)
	}
	ev := events[0]
	if ev.EventType != EventPowerExceeded {
		t.Errorf("event type = %q, want %q", ev.EventType, EventPowerExceeded)
	}
	if ev.Severity != SeverityCritical {
		t.Errorf("severity = %q, want critical for priority 2", ev.Severity)
	}
	if ev.Action != ActionReduce {
		t.Errorf("action = %q, want reduce", ev.Action)
	}

	writes := ctrl.all()
	if len(writes) != 1 || writes[0].intensity != 90 {
		t.Errorf("writes = %+v, want one reduction to 90", writes)
	}
}

func TestDeviceFailureAlert(t *testing.T) {
	cache := newFakeCache()
	cache.set("light-1", "temperature", 25.0, device.QualityStale)
	cache.set("light-1", "power", 600.0, device.QualityStale)

	ctrl := &fakeController{}
	cfg := testSafetyConfig()
	cfg.Circuits = nil
	m, err := NewMonitor(cfg, cache, ctrl)
	if err != nil {
		t.Fatalf("NewMonitor() error = %v", err)
	}

	events := m.Sweep(context.Background())
	if len(events) != 1 {
		t.Fatalf("Sweep() emitted %d events, want 1: %+v", len(events), events)
	}
	if events[0].EventType != EventDeviceFailure {
		t.Errorf("event type = %q, want %q", events[0].EventType, EventDeviceFailure)
	}
	if events[0].Action != ActionAlert {
		t.Errorf("action = %q, want alert", events[0].Action)
	}
	if got := ctrl.all(); len(got) != 0 {
		t.Errorf("failure alert produced device writes: %+v", got)
	}
}

func TestEmergencyShutdownIsolatesFailures(t *testing.T) {
	ctrl := &fakeController{errFor: map[string]error{"light-1": errors.New("serial port gone")}}
	rec := &fakeRecorder{}
	m, err := NewMonitor(testSafetyConfig(), newFakeCache(), ctrl, WithRecorder(rec))
	if err != nil {
		t.Fatalf("NewMonitor() error = %v", err)
	}

	err = m.EmergencyShutdown(context.Background(), "operator request")
	if err == nil {
		t.Fatal("EmergencyShutdown() error = nil, want aggregate failure")
	}
	if !strings.Contains(err.Error(), "1 of 2") {
		t.Errorf("error = %v, want mention of 1 of 2 devices", err)
	}

	writes := ctrl.all()
	if len(writes) != 1 || writes[0].deviceID != "light-2" || writes[0].intensity != 0 {
		t.Errorf("writes = %+v, want light-2 driven to 0", writes)
	}

	if len(rec.events) != 1 || rec.events[0].EventType != EventEmergencyShutdown {
		t.Fatalf("recorded events = %+v, want one emergency_shutdown", rec.events)
	}
	if !strings.Contains(rec.events[0].Message, "operator request") {
		t.Errorf("event message %q missing reason", rec.events[0].Message)
	}
}

type fakeInventory struct {
	devices []device.Config
}

func (f *fakeInventory) List() []device.Config {
	return append([]device.Config(nil), f.devices...)
}

func TestEmergencyShutdownCoversUnzonedDevices(t *testing.T) {
	// light-3 is registered but assigned to no safety zone; the shutdown
	// must still reach it.
	inv := &fakeInventory{devices: []device.Config{
		{ID: "light-1", ZoneID: "veg-1"},
		{ID: "light-2", ZoneID: "veg-2"},
		{ID: "light-3"},
	}}

	ctrl := &fakeController{}
	m, err := NewMonitor(testSafetyConfig(), newFakeCache(), ctrl, WithInventory(inv))
	if err != nil {
		t.Fatalf("NewMonitor() error = %v", err)
	}

	if err := m.EmergencyShutdown(context.Background(), "operator request"); err != nil {
		t.Fatalf("EmergencyShutdown() error = %v", err)
	}

	writes := ctrl.all()
	got := make(map[string]bool, len(writes))
	for _, w := range writes {
		if w.intensity != 0 {
			t.Errorf("device %s written intensity %v, want 0", w.deviceID, w.intensity)
		}
		got[w.deviceID] = true
	}
	for _, id := range []string{"light-1", "light-2", "light-3"} {
		if !got[id] {
			t.Errorf("device %s never shut down; writes = %+v", id, writes)
		}
	}
	if len(writes) != 3 {
		t.Errorf("got %d writes, want 3", len(writes))
	}
}

func TestCircuitStatus(t *testing.T) {
	cache := newFakeCache()
	cache.set("light-1", "power", 3200.0, device.QualityGood)
	cache.set("light-2", "power", 3500.0, device.QualityGood)

	m, err := NewMonitor(testSafetyConfig(), cache, &fakeController{})
	if err != nil {
		t.Fatalf("NewMonitor() error = %v", err)
	}

	before := m.CircuitStatus()
	if len(before) != 1 || before[0].Status != CircuitNormal || before[0].CurrentLoad != 0 {
		t.Fatalf("CircuitStatus() before sweep = %+v, want normal with zero load", before)
	}

	m.Sweep(context.Background())

	after := m.CircuitStatus()
	if len(after) != 1 {
		t.Fatalf("CircuitStatus() returned %d circuits, want 1", len(after))
	}
	cb := after[0]
	if cb.ID != "circuit-a" || cb.CurrentLoad != 6700 || cb.MaxWatts != 7200 {
		t.Errorf("breaker = %+v, want circuit-a at 6700/7200", cb)
	}
	if cb.Status != CircuitWarning {
		t.Errorf("status = %q, want warning at 93%% load", cb.Status)
	}
}

func TestCircuitMaxWattsDerivedFromAmps(t *testing.T) {
	cfg := testSafetyConfig()
	cfg.Circuits = []config.CircuitConfig{
		{ID: "circuit-b", MaxAmps: 30, Voltage: 240, Zones: []string{"veg-1"}},
	}

	m, err := NewMonitor(cfg, newFakeCache(), &fakeController{})
	if err != nil {
		t.Fatalf("NewMonitor() error = %v", err)
	}

	status := m.CircuitStatus()
	if len(status) != 1 || status[0].MaxWatts != 7200 {
		t.Errorf("CircuitStatus() = %+v, want derived max 7200W", status)
	}
}
