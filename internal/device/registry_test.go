package device

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/heliolux/helio-core/internal/codec"
)

func testConfig(id string, proto Protocol) Config {
	cfg := Config{
		ID:       id,
		Name:     id,
		Protocol: proto,
	}
	switch proto {
	case ProtocolModbusTCP:
		cfg.Connection = Connection{Host: "192.168.10.40", Port: 502, UnitID: 1}
		cfg.Points = []PointMapping{
			{
				Name:   "power",
				Modbus: &ModbusPoint{Register: "holding", Address: 100, Format: codec.FormatUint16},
			},
		}
	case ProtocolMQTT:
		cfg.Points = []PointMapping{
			{Name: "state", MQTT: &MQTTPoint{StateTopic: "stat/" + id + "/POWER"}},
		}
	}
	return cfg
}

func TestRegistryRegisterGet(t *testing.T) {
	r := NewRegistry()

	cfg := testConfig("dev-1", ProtocolModbusTCP)
	if err := r.Register(cfg); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	got, err := r.Get("dev-1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.ID != "dev-1" || got.Protocol != ProtocolModbusTCP {
		t.Errorf("Get() = %+v", got)
	}

	if err := r.Register(cfg); !errors.Is(err, ErrExists) {
		t.Errorf("Register(duplicate) error = %v, want ErrExists", err)
	}

	if _, err := r.Get("dev-2"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get(missing) error = %v, want ErrNotFound", err)
	}
}

func TestRegistryRejectsInvalid(t *testing.T) {
	r := NewRegistry()

	cfg := testConfig("dev-1", ProtocolModbusTCP)
	cfg.Protocol = "profibus"
	if err := r.Register(cfg); !errors.Is(err, ErrInvalidProtocol) {
		t.Errorf("Register(invalid) error = %v, want ErrInvalidProtocol", err)
	}
	if r.Count() != 0 {
		t.Errorf("Count() = %d after rejected register, want 0", r.Count())
	}
}

func TestRegistryUpdateRemove(t *testing.T) {
	r := NewRegistry()

	cfg := testConfig("dev-1", ProtocolModbusTCP)
	if err := r.Update(cfg); !errors.Is(err, ErrNotFound) {
		t.Errorf("Update(missing) error = %v, want ErrNotFound", err)
	}

	if err := r.Register(cfg); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	cfg.Name = "renamed"
	if err := r.Update(cfg); err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	got, _ := r.Get("dev-1")
	if got.Name != "renamed" {
		t.Errorf("Name = %q, want %q", got.Name, "renamed")
	}

	if err := r.Remove("dev-1"); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if err := r.Remove("dev-1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Remove(missing) error = %v, want ErrNotFound", err)
	}
}

func TestRegistryListFilters(t *testing.T) {
	r := NewRegistry()

	a := testConfig("light-b", ProtocolMQTT)
	a.ZoneID = "veg-1"
	a.CircuitID = "c1"
	b := testConfig("light-a", ProtocolMQTT)
	b.ZoneID = "veg-1"
	c := testConfig("meter-1", ProtocolModbusTCP)
	c.CircuitID = "c1"

	for _, cfg := range []Config{a, b, c} {
		if err := r.Register(cfg); err != nil {
			t.Fatalf("Register(%s) error = %v", cfg.ID, err)
		}
	}

	all := r.List()
	if len(all) != 3 {
		t.Fatalf("List() = %d devices, want 3", len(all))
	}
	if all[0].ID != "light-a" || all[1].ID != "light-b" || all[2].ID != "meter-1" {
		t.Errorf("List() not sorted by ID: %v", []string{all[0].ID, all[1].ID, all[2].ID})
	}

	if got := r.ListByProtocol(ProtocolMQTT); len(got) != 2 {
		t.Errorf("ListByProtocol(mqtt) = %d, want 2", len(got))
	}
	if got := r.ListByZone("veg-1"); len(got) != 2 {
		t.Errorf("ListByZone(veg-1) = %d, want 2", len(got))
	}
	if got := r.ListByCircuit("c1"); len(got) != 2 {
		t.Errorf("ListByCircuit(c1) = %d, want 2", len(got))
	}
	if got := r.ListByZone("flower-9"); len(got) != 0 {
		t.Errorf("ListByZone(flower-9) = %d, want 0", len(got))
	}
}

func TestRegistryConcurrentAccess(t *testing.T) {
	r := NewRegistry()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			cfg := testConfig(fmt.Sprintf("dev-%d", n), ProtocolMQTT)
			if err := r.Register(cfg); err != nil {
				t.Errorf("Register() error = %v", err)
			}
			r.List()
			r.Count()
		}(i)
	}
	wg.Wait()

	if r.Count() != 20 {
		t.Errorf("Count() = %d, want 20", r.Count())
	}
}
