package bacnet

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/heliolux/helio-core/internal/device"
	"github.com/heliolux/helio-core/internal/protocol"
)

func simWithAHU(t *testing.T) (*SimTransport, device.Config) {
	t.Helper()
	sim := NewSimTransport()
	sim.AddDevice(DeviceAddress{Host: "192.168.10.60", Port: DefaultPort, Instance: 1201}, "HelioLux", "AHU-1000")
	sim.AddObject(1201, ObjectID{Type: "analog-input", Instance: 1}, 21.5)
	sim.AddObject(1201, ObjectID{Type: "analog-output", Instance: 2}, 0.0)

	cfg := device.Config{
		ID:       "ahu-1",
		Protocol: device.ProtocolBACnetIP,
		Connection: device.Connection{
			Host:           "192.168.10.60",
			DeviceInstance: 1201,
		},
		Points: []device.PointMapping{
			{
				Name:   "supply_temp",
				BACnet: &device.BACnetPoint{ObjectType: "analog-input", Instance: 1},
			},
			{
				Name:     "damper",
				Writable: true,
				BACnet:   &device.BACnetPoint{ObjectType: "analog-output", Instance: 2},
			},
		},
	}
	return sim, cfg
}

func TestClientReadWrite(t *testing.T) {
	sim, cfg := simWithAHU(t)
	c, err := NewClient(cfg, sim)
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	ctx := context.Background()

	if err := c.Connect(ctx); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	// Idempotent.
	if err := c.Connect(ctx); err != nil {
		t.Fatalf("Connect() second call error = %v", err)
	}

	temp, _ := cfg.Point("supply_temp")
	got, err := c.ReadPoint(ctx, temp)
	if err != nil {
		t.Fatalf("ReadPoint() error = %v", err)
	}
	if got != 21.5 {
		t.Errorf("ReadPoint() = %v, want 21.5", got)
	}

	damper, _ := cfg.Point("damper")
	if err := c.WritePoint(ctx, damper, 65.0); err != nil {
		t.Fatalf("WritePoint() error = %v", err)
	}
	got, err = c.ReadPoint(ctx, damper)
	if err != nil {
		t.Fatalf("ReadPoint() error = %v", err)
	}
	if got != 65.0 {
		t.Errorf("ReadPoint(after write) = %v, want 65.0", got)
	}
}

func TestWriteRespectsPriorityArray(t *testing.T) {
	sim, cfg := simWithAHU(t)
	c, _ := NewClient(cfg, sim)
	ctx := context.Background()
	if err := c.Connect(ctx); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	damper, _ := cfg.Point("damper")

	// Default operator write at slot 8.
	if err := c.WritePoint(ctx, damper, 65.0); err != nil {
		t.Fatalf("WritePoint() error = %v", err)
	}

	// Life-safety write at slot 1 overrides it.
	safety := damper
	safety.BACnet = &device.BACnetPoint{ObjectType: "analog-output", Instance: 2, Priority: 1}
	if err := c.WritePoint(ctx, safety, 0.0); err != nil {
		t.Fatalf("WritePoint(priority 1) error = %v", err)
	}
	if got, _ := c.ReadPoint(ctx, damper); got != 0.0 {
		t.Errorf("ReadPoint() = %v, want 0.0 while slot 1 is held", got)
	}

	// Releasing slot 1 exposes the slot 8 value again.
	if err := c.Release(ctx, safety); err != nil {
		t.Fatalf("Release() error = %v", err)
	}
	if got, _ := c.ReadPoint(ctx, damper); got != 65.0 {
		t.Errorf("ReadPoint() = %v, want 65.0 after release", got)
	}

	// Releasing slot 8 falls back to the relinquish-default.
	if err := c.Release(ctx, damper); err != nil {
		t.Fatalf("Release() error = %v", err)
	}
	if got, _ := c.ReadPoint(ctx, damper); got != 0.0 {
		t.Errorf("ReadPoint() = %v, want relinquish-default 0.0", got)
	}
}

func TestSubscribeDeliversChanges(t *testing.T) {
	sim, cfg := simWithAHU(t)
	c, _ := NewClient(cfg, sim)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := c.Connect(ctx); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	temp, _ := cfg.Point("supply_temp")
	ch, err := c.Subscribe(ctx, []device.PointMapping{temp})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	sim.SetValue(1201, ObjectID{Type: "analog-input", Instance: 1}, 24.0)

	select {
	case n := <-ch:
		if n.Point != "supply_temp" {
			t.Errorf("Point = %q, want supply_temp", n.Point)
		}
		if n.Value != 24.0 {
			t.Errorf("Value = %v, want 24.0", n.Value)
		}
	case <-time.After(time.Second):
		t.Fatal("no notification within 1s")
	}
}

func TestSubscribeFailureStopsStartedSubscriptions(t *testing.T) {
	sim, cfg := simWithAHU(t)
	c, _ := NewClient(cfg, sim)
	ctx := context.Background()
	if err := c.Connect(ctx); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	temp, _ := cfg.Point("supply_temp")
	bogus := device.PointMapping{
		Name:   "bogus",
		BACnet: &device.BACnetPoint{ObjectType: "analog-input", Instance: 99},
	}

	ch, err := c.Subscribe(ctx, []device.PointMapping{temp, bogus})
	if !errors.Is(err, protocol.ErrIllegalAddress) {
		t.Fatalf("Subscribe() error = %v, want ErrIllegalAddress", err)
	}
	if ch != nil {
		t.Error("Subscribe() returned a channel alongside the error")
	}

	// The subscription that did start must be cancelled, not left
	// running until the caller's context ends.
	deadline := time.After(time.Second)
	for {
		sim.subMu.Lock()
		var cancelled bool
		if len(sim.subs) == 1 {
			select {
			case <-sim.subs[0].done:
				cancelled = true
			default:
			}
		}
		sim.subMu.Unlock()
		if cancelled {
			return
		}
		select {
		case <-deadline:
			t.Fatal("started subscription not cancelled within 1s")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestClientErrors(t *testing.T) {
	sim, cfg := simWithAHU(t)
	ctx := context.Background()

	// Nil transport: everything reports not available.
	c, _ := NewClient(cfg, nil)
	if err := c.Connect(ctx); !errors.Is(err, protocol.ErrNotAvailable) {
		t.Errorf("Connect(nil transport) error = %v, want ErrNotAvailable", err)
	}

	// Not connected: fail fast.
	c, _ = NewClient(cfg, sim)
	temp, _ := cfg.Point("supply_temp")
	if _, err := c.ReadPoint(ctx, temp); !errors.Is(err, protocol.ErrConnection) {
		t.Errorf("ReadPoint(disconnected) error = %v, want ErrConnection", err)
	}

	if err := c.Connect(ctx); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	// Unknown object instance.
	bogus := device.PointMapping{
		Name:   "bogus",
		BACnet: &device.BACnetPoint{ObjectType: "analog-input", Instance: 99},
	}
	if _, err := c.ReadPoint(ctx, bogus); !errors.Is(err, protocol.ErrIllegalAddress) {
		t.Errorf("ReadPoint(unknown object) error = %v, want ErrIllegalAddress", err)
	}

	// Read-only point rejects writes before touching the wire.
	if err := c.WritePoint(ctx, temp, 1.0); !errors.Is(err, protocol.ErrConfiguration) {
		t.Errorf("WritePoint(read-only) error = %v, want ErrConfiguration", err)
	}
}

func TestPollAllIsolatesFailures(t *testing.T) {
	sim, cfg := simWithAHU(t)
	c, _ := NewClient(cfg, sim)
	ctx := context.Background()
	if err := c.Connect(ctx); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	mappings := append([]device.PointMapping{}, cfg.Points...)
	mappings = append(mappings, device.PointMapping{
		Name:   "bogus",
		BACnet: &device.BACnetPoint{ObjectType: "analog-input", Instance: 99},
	})

	values, errs := c.PollAll(ctx, mappings)
	if len(values) != 2 {
		t.Errorf("values = %v, want 2 entries", values)
	}
	if len(errs) != 1 || !errors.Is(errs["bogus"], protocol.ErrIllegalAddress) {
		t.Errorf("errs = %v, want bogus: ErrIllegalAddress", errs)
	}
}

func TestWhoIsRange(t *testing.T) {
	sim := NewSimTransport()
	sim.AddDevice(DeviceAddress{Host: "192.168.10.60", Instance: 1201}, "HelioLux", "AHU-1000")
	sim.AddDevice(DeviceAddress{Host: "192.168.10.61", Instance: 2500}, "Acme", "VAV-20")
	if err := sim.Open(context.Background()); err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	got, err := sim.WhoIs(context.Background(), 0, 2000, time.Second)
	if err != nil {
		t.Fatalf("WhoIs() error = %v", err)
	}
	if len(got) != 1 || got[0].Address.Instance != 1201 {
		t.Errorf("WhoIs(0-2000) = %v, want only instance 1201", got)
	}

	got, err = sim.WhoIs(context.Background(), 0, 4194303, time.Second)
	if err != nil {
		t.Fatalf("WhoIs() error = %v", err)
	}
	if len(got) != 2 {
		t.Errorf("WhoIs(full range) = %d devices, want 2", len(got))
	}
}

func TestReadPropertyMultiple(t *testing.T) {
	sim, _ := simWithAHU(t)
	sim.SetDeviceProperty(1201, PropDescription, "air handler, roof east")
	if err := sim.Open(context.Background()); err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	addr := DeviceAddress{Host: "192.168.10.60", Port: DefaultPort, Instance: 1201}
	props, err := sim.ReadPropertyMultiple(context.Background(), addr,
		ObjectID{Type: "device", Instance: 1201},
		[]string{PropVendorName, PropModelName, PropDescription, PropLocation})
	if err != nil {
		t.Fatalf("ReadPropertyMultiple() error = %v", err)
	}

	if props[PropVendorName] != "HelioLux" || props[PropModelName] != "AHU-1000" {
		t.Errorf("device props = %+v", props)
	}
	if props[PropDescription] != "air handler, roof east" {
		t.Errorf("description = %v", props[PropDescription])
	}
	// location was never set and must be absent, not empty.
	if _, ok := props[PropLocation]; ok {
		t.Error("unset location property returned")
	}

	// Non-device objects serve present-value.
	vals, err := sim.ReadPropertyMultiple(context.Background(), addr,
		ObjectID{Type: "analog-input", Instance: 1}, []string{"present-value"})
	if err != nil {
		t.Fatalf("ReadPropertyMultiple(object) error = %v", err)
	}
	if vals["present-value"] != 21.5 {
		t.Errorf("present-value = %v, want 21.5", vals["present-value"])
	}
}
