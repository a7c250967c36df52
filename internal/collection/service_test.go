package collection

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/heliolux/helio-core/internal/device"
	"github.com/heliolux/helio-core/internal/protocol"
)

// fakeClient is a poll-only protocol client with scriptable readings.
type fakeClient struct {
	mu        sync.Mutex
	connected bool
	values    map[string]any
	errs      map[string]error
	pollCount int
	pollDelay time.Duration
}

func (f *fakeClient) Connect(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = true
	return nil
}

func (f *fakeClient) Disconnect() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = false
}

func (f *fakeClient) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeClient) ReadPoint(ctx context.Context, m device.PointMapping) (any, error) {
	values, errs := f.PollAll(ctx, []device.PointMapping{m})
	if err, ok := errs[m.Name]; ok {
		return nil, err
	}
	return values[m.Name], nil
}

func (f *fakeClient) WritePoint(ctx context.Context, m device.PointMapping, value any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.values[m.Name] = value
	return nil
}

func (f *fakeClient) PollAll(ctx context.Context, mappings []device.PointMapping) (map[string]any, map[string]error) {
	f.mu.Lock()
	f.pollCount++
	delay := f.pollDelay
	values := make(map[string]any)
	errs := make(map[string]error)
	for _, m := range mappings {
		if err, ok := f.errs[m.Name]; ok {
			errs[m.Name] = err
			continue
		}
		if v, ok := f.values[m.Name]; ok {
			values[m.Name] = v
		}
	}
	f.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}
	return values, errs
}

func (f *fakeClient) polls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pollCount
}

// fakeSink records written rows.
type fakeSink struct {
	mu      sync.Mutex
	rows    []map[string]any
	flushed int
}

func (f *fakeSink) WriteDataPoint(deviceID string, ts time.Time, quality string, values map[string]any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	row := map[string]any{"device_id": deviceID, "quality": quality}
	for k, v := range values {
		row[k] = v
	}
	f.rows = append(f.rows, row)
}

func (f *fakeSink) WriteCollectorStat(string, int64, int64, float64) {}

func (f *fakeSink) Flush() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.flushed++
}

func (f *fakeSink) rowCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.rows)
}

func sensorConfig(id string) device.Config {
	return device.Config{
		ID:       id,
		Protocol: device.ProtocolModbusTCP,
		Connection: device.Connection{
			Host: "192.168.10.40", UnitID: 1,
		},
		Points: []device.PointMapping{
			{Name: "temperature", Unit: "celsius"},
			{Name: "humidity", Unit: "percent"},
		},
		PollIntervalMs: 20,
	}
}

func newService(client protocol.Client, sink Sink) *Service {
	factory := func(cfg device.Config) (protocol.Client, error) { return client, nil }
	return NewService(factory, sink, 20*time.Millisecond)
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met within timeout")
}

func TestStartCollectsAndCaches(t *testing.T) {
	client := &fakeClient{values: map[string]any{"temperature": 23.5, "humidity": 61.0}}
	sink := &fakeSink{}
	svc := newService(client, sink)

	if err := svc.Start(context.Background(), sensorConfig("sensor-1")); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer svc.StopAll()

	waitFor(t, time.Second, func() bool { return client.polls() >= 2 })

	dp, ok := svc.Cache().Get("sensor-1", "temperature")
	if !ok {
		t.Fatal("temperature not cached")
	}
	if dp.Value != 23.5 || dp.Quality != device.QualityGood || dp.Unit != "celsius" {
		t.Errorf("cached point = %+v", dp)
	}

	if sink.rowCount() == 0 {
		t.Error("no rows reached the sink")
	}

	stats, err := svc.Stats("sensor-1")
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	if stats.PointsCollected < 2 || stats.Status != StatusRunning {
		t.Errorf("stats = %+v", stats)
	}
}

func TestFailedPointGoesStale(t *testing.T) {
	client := &fakeClient{values: map[string]any{"temperature": 23.5, "humidity": 61.0}}
	sink := &fakeSink{}
	svc := newService(client, sink)

	if err := svc.Start(context.Background(), sensorConfig("sensor-1")); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer svc.StopAll()

	waitFor(t, time.Second, func() bool { return client.polls() >= 1 })

	// Humidity starts failing; temperature keeps reading.
	client.mu.Lock()
	client.errs = map[string]error{"humidity": protocol.ErrTimeout}
	client.mu.Unlock()

	waitFor(t, time.Second, func() bool {
		dp, ok := svc.Cache().Get("sensor-1", "humidity")
		return ok && dp.Quality == device.QualityStale
	})

	dp, _ := svc.Cache().Get("sensor-1", "humidity")
	if dp.Value != 61.0 {
		t.Errorf("stale point lost its last value: %+v", dp)
	}
	temp, _ := svc.Cache().Get("sensor-1", "temperature")
	if temp.Quality != device.QualityGood {
		t.Errorf("temperature quality = %s, want good", temp.Quality)
	}

	waitFor(t, time.Second, func() bool {
		stats, err := svc.Stats("sensor-1")
		return err == nil && stats.Status == StatusError && stats.FailureCount > 0
	})
}

func TestStartTwiceFails(t *testing.T) {
	client := &fakeClient{values: map[string]any{"temperature": 1.0}}
	svc := newService(client, &fakeSink{})

	cfg := sensorConfig("sensor-1")
	if err := svc.Start(context.Background(), cfg); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer svc.StopAll()

	if err := svc.Start(context.Background(), cfg); !errors.Is(err, ErrAlreadyCollecting) {
		t.Errorf("Start(again) error = %v, want ErrAlreadyCollecting", err)
	}
}

func TestStopDropsCacheAndDisconnects(t *testing.T) {
	client := &fakeClient{values: map[string]any{"temperature": 1.0}}
	svc := newService(client, &fakeSink{})

	if err := svc.Start(context.Background(), sensorConfig("sensor-1")); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	waitFor(t, time.Second, func() bool { return client.polls() >= 1 })

	if err := svc.Stop("sensor-1"); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if client.IsConnected() {
		t.Error("client still connected after Stop")
	}
	if _, ok := svc.Cache().Get("sensor-1", "temperature"); ok {
		t.Error("cache retained readings after Stop")
	}
	if err := svc.Stop("sensor-1"); !errors.Is(err, ErrNotCollecting) {
		t.Errorf("Stop(again) error = %v, want ErrNotCollecting", err)
	}
}

func TestOverrunSkipsTicks(t *testing.T) {
	// Each poll takes 3 intervals; ticks during a cycle are skipped,
	// not queued.
	client := &fakeClient{
		values:    map[string]any{"temperature": 1.0},
		pollDelay: 60 * time.Millisecond,
	}
	svc := newService(client, &fakeSink{})

	if err := svc.Start(context.Background(), sensorConfig("sensor-1")); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	time.Sleep(200 * time.Millisecond)
	svc.StopAll()

	// 200ms / 60ms per cycle allows at most ~4 cycles; unskipped
	// ticking at 20ms would attempt 10.
	if polls := client.polls(); polls > 5 {
		t.Errorf("polls = %d, expected overlapping ticks to be skipped", polls)
	}
}

func TestStopAllFlushesSink(t *testing.T) {
	sink := &fakeSink{}
	var clients []*fakeClient
	factory := func(cfg device.Config) (protocol.Client, error) {
		c := &fakeClient{values: map[string]any{"temperature": 1.0}}
		clients = append(clients, c)
		return c, nil
	}
	svc := NewService(factory, sink, 20*time.Millisecond)

	for i := 0; i < 3; i++ {
		if err := svc.Start(context.Background(), sensorConfig(fmt.Sprintf("sensor-%d", i))); err != nil {
			t.Fatalf("Start() error = %v", err)
		}
	}
	if got := svc.Active(); len(got) != 3 {
		t.Fatalf("Active() = %v, want 3 devices", got)
	}

	svc.StopAll()

	if sink.flushed != 1 {
		t.Errorf("flushed = %d, want 1", sink.flushed)
	}
	for i, c := range clients {
		if c.IsConnected() {
			t.Errorf("client %d still connected", i)
		}
	}
	if got := svc.Active(); len(got) != 0 {
		t.Errorf("Active() after StopAll = %v", got)
	}
}

func TestAllStatsSorted(t *testing.T) {
	factory := func(cfg device.Config) (protocol.Client, error) {
		return &fakeClient{values: map[string]any{"temperature": 1.0}}, nil
	}
	svc := NewService(factory, &fakeSink{}, 20*time.Millisecond)

	for _, id := range []string{"zebra", "alpha", "mid"} {
		if err := svc.Start(context.Background(), sensorConfig(id)); err != nil {
			t.Fatalf("Start(%s) error = %v", id, err)
		}
	}
	defer svc.StopAll()

	stats := svc.AllStats()
	if len(stats) != 3 {
		t.Fatalf("AllStats() = %d entries, want 3", len(stats))
	}
	if stats[0].DeviceID != "alpha" || stats[2].DeviceID != "zebra" {
		t.Errorf("order = %s, %s, %s", stats[0].DeviceID, stats[1].DeviceID, stats[2].DeviceID)
	}
}
