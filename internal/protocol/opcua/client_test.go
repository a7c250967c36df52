package opcua

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/heliolux/helio-core/internal/device"
	"github.com/heliolux/helio-core/internal/protocol"
)

func plcConfig() device.Config {
	return device.Config{
		ID:       "plc-1",
		Protocol: device.ProtocolOPCUA,
		Connection: device.Connection{
			Endpoint: "opc.tcp://192.168.10.80:4840",
		},
		Points: []device.PointMapping{
			{
				Name:  "line_temp",
				OPCUA: &device.OPCUAPoint{NodeID: "ns=2;s=Line1.Temperature"},
			},
			{
				Name:     "setpoint",
				Writable: true,
				OPCUA:    &device.OPCUAPoint{NodeID: "ns=2;s=Line1.Setpoint"},
			},
		},
	}
}

func simPLC() *SimSession {
	sim := NewSimSession("HelioLux PLC", "urn:heliolux:plc")
	sim.AddNode("ns=2;s=Line1.Temperature", 22.8)
	sim.AddNode("ns=2;s=Line1.Setpoint", 21.0)
	return sim
}

func TestClientReadWrite(t *testing.T) {
	cfg := plcConfig()
	c, err := NewClient(cfg, simPLC())
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	ctx := context.Background()

	if err := c.Connect(ctx); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if err := c.Connect(ctx); err != nil {
		t.Fatalf("Connect() second call error = %v", err)
	}

	temp, _ := cfg.Point("line_temp")
	got, err := c.ReadPoint(ctx, temp)
	if err != nil {
		t.Fatalf("ReadPoint() error = %v", err)
	}
	if got != 22.8 {
		t.Errorf("ReadPoint() = %v, want 22.8", got)
	}

	setpoint, _ := cfg.Point("setpoint")
	if err := c.WritePoint(ctx, setpoint, 23.5); err != nil {
		t.Fatalf("WritePoint() error = %v", err)
	}
	got, err = c.ReadPoint(ctx, setpoint)
	if err != nil {
		t.Fatalf("ReadPoint() error = %v", err)
	}
	if got != 23.5 {
		t.Errorf("ReadPoint(after write) = %v, want 23.5", got)
	}
}

func TestNilSessionNotAvailable(t *testing.T) {
	cfg := plcConfig()
	c, err := NewClient(cfg, nil)
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}

	if err := c.Connect(context.Background()); !errors.Is(err, protocol.ErrNotAvailable) {
		t.Errorf("Connect() error = %v, want ErrNotAvailable", err)
	}
	temp, _ := cfg.Point("line_temp")
	if _, err := c.ReadPoint(context.Background(), temp); !errors.Is(err, protocol.ErrNotAvailable) {
		t.Errorf("ReadPoint() error = %v, want ErrNotAvailable", err)
	}
}

func TestClientErrors(t *testing.T) {
	cfg := plcConfig()
	c, _ := NewClient(cfg, simPLC())
	ctx := context.Background()

	temp, _ := cfg.Point("line_temp")
	if _, err := c.ReadPoint(ctx, temp); !errors.Is(err, protocol.ErrConnection) {
		t.Errorf("ReadPoint(disconnected) error = %v, want ErrConnection", err)
	}

	if err := c.Connect(ctx); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	bogus := device.PointMapping{
		Name:  "bogus",
		OPCUA: &device.OPCUAPoint{NodeID: "ns=2;s=Missing"},
	}
	if _, err := c.ReadPoint(ctx, bogus); !errors.Is(err, protocol.ErrIllegalAddress) {
		t.Errorf("ReadPoint(unknown node) error = %v, want ErrIllegalAddress", err)
	}

	if err := c.WritePoint(ctx, temp, 1.0); !errors.Is(err, protocol.ErrConfiguration) {
		t.Errorf("WritePoint(read-only) error = %v, want ErrConfiguration", err)
	}
}

func TestPollAllIsolatesFailures(t *testing.T) {
	cfg := plcConfig()
	c, _ := NewClient(cfg, simPLC())
	ctx := context.Background()
	if err := c.Connect(ctx); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	mappings := append([]device.PointMapping{}, cfg.Points...)
	mappings = append(mappings, device.PointMapping{
		Name:  "bogus",
		OPCUA: &device.OPCUAPoint{NodeID: "ns=2;s=Missing"},
	})

	values, errs := c.PollAll(ctx, mappings)
	if len(values) != 2 {
		t.Errorf("values = %v, want 2 entries", values)
	}
	if !errors.Is(errs["bogus"], protocol.ErrIllegalAddress) {
		t.Errorf("errs[bogus] = %v, want ErrIllegalAddress", errs["bogus"])
	}
}

func TestSimBrowse(t *testing.T) {
	sim := simPLC()
	if err := sim.Open(context.Background(), "opc.tcp://x:4840"); err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	tags, err := sim.BrowseTags(context.Background())
	if err != nil {
		t.Fatalf("BrowseTags() error = %v", err)
	}
	if len(tags) != 2 || tags[0] != "ns=2;s=Line1.Setpoint" {
		t.Errorf("BrowseTags() = %v", tags)
	}

	name, uri, err := sim.ServerInfo(context.Background())
	if err != nil {
		t.Fatalf("ServerInfo() error = %v", err)
	}
	if name != "HelioLux PLC" || uri != "urn:heliolux:plc" {
		t.Errorf("ServerInfo() = %q, %q", name, uri)
	}
}

func TestSubscribeDeliversChanges(t *testing.T) {
	sim := simPLC()
	c, _ := NewClient(plcConfig(), sim)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := c.Connect(ctx); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	var _ protocol.Subscriber = c

	cfg := plcConfig()
	temp, _ := cfg.Point("line_temp")
	ch, err := c.Subscribe(ctx, []device.PointMapping{temp})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	sim.SetValue("ns=2;s=Line1.Temperature", 24.5)

	select {
	case n := <-ch:
		if n.Point != "line_temp" {
			t.Errorf("Point = %q, want line_temp", n.Point)
		}
		if n.Value != 24.5 {
			t.Errorf("Value = %v, want 24.5", n.Value)
		}
	case <-time.After(time.Second):
		t.Fatal("no notification within 1s")
	}

	cancel()
	for range ch {
	}
}

func TestSubscribeFailureStopsStartedItems(t *testing.T) {
	sim := simPLC()
	c, _ := NewClient(plcConfig(), sim)
	ctx := context.Background()
	if err := c.Connect(ctx); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	cfg := plcConfig()
	temp, _ := cfg.Point("line_temp")
	bogus := device.PointMapping{
		Name:  "flow",
		OPCUA: &device.OPCUAPoint{NodeID: "ns=2;s=Line1.Missing"},
	}

	ch, err := c.Subscribe(ctx, []device.PointMapping{temp, bogus})
	if !errors.Is(err, protocol.ErrIllegalAddress) {
		t.Fatalf("Subscribe() error = %v, want ErrIllegalAddress", err)
	}
	if ch != nil {
		t.Error("Subscribe() returned a channel alongside an error")
	}

	// The item started before the failure must be torn down, not left
	// watching: a later change finds no watcher.
	deadline := time.After(time.Second)
	for {
		sim.mu.Lock()
		n := len(sim.watchers["ns=2;s=Line1.Temperature"])
		sim.mu.Unlock()
		if n == 0 {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("watcher still registered after failed Subscribe")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestCallMethod(t *testing.T) {
	sim := simPLC()
	sim.AddMethod("ns=2;s=Line1", "ns=2;s=Line1.Recalibrate", func(args []any) ([]any, error) {
		if len(args) != 1 || args[0] != 5.0 {
			return nil, errors.New("bad args")
		}
		return []any{"ok"}, nil
	})

	c, _ := NewClient(plcConfig(), sim)
	ctx := context.Background()
	if err := c.Connect(ctx); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	results, err := c.CallMethod(ctx, "ns=2;s=Line1", "ns=2;s=Line1.Recalibrate", 5.0)
	if err != nil {
		t.Fatalf("CallMethod() error = %v", err)
	}
	if len(results) != 1 || results[0] != "ok" {
		t.Errorf("CallMethod() results = %v, want [ok]", results)
	}

	if _, err := c.CallMethod(ctx, "ns=2;s=Line1", "ns=2;s=Line1.Nope"); !errors.Is(err, protocol.ErrIllegalAddress) {
		t.Errorf("CallMethod(unknown) error = %v, want ErrIllegalAddress", err)
	}
}
