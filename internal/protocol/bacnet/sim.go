package bacnet

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/heliolux/helio-core/internal/protocol"
)

// SimTransport is an in-process BACnet backend for deployments without
// a BACnet segment and for tests. It models a set of devices, their
// objects' present-values, and the 16-slot priority array semantics of
// commandable objects.
type SimTransport struct {
	mu      sync.Mutex
	open    bool
	devices map[uint32]*simDevice

	subMu sync.Mutex
	subs  []simSubscription
}

type simDevice struct {
	addr     DeviceAddress
	vendorID uint16
	props    map[string]any
	objects  map[ObjectID]*simObject
}

type simObject struct {
	// relinquishDefault is the value when no priority slot is set.
	relinquishDefault any

	// priorities holds the written priority array, keyed 1-16.
	priorities map[int]any
}

type simSubscription struct {
	addr DeviceAddress
	obj  ObjectID
	ch   chan COVNotification
	done <-chan struct{}
}

// NewSimTransport creates an empty simulator.
func NewSimTransport() *SimTransport {
	return &SimTransport{devices: make(map[uint32]*simDevice)}
}

// AddDevice registers a simulated device. Vendor and model become the
// device object's vendor-name and model-name properties; the I-Am
// vendor id is assigned in registration order.
func (s *SimTransport) AddDevice(addr DeviceAddress, vendor, model string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.devices[addr.Instance] = &simDevice{
		addr:     addr,
		vendorID: uint16(len(s.devices) + 1),
		props: map[string]any{
			PropObjectName: fmt.Sprintf("device-%d", addr.Instance),
			PropVendorName: vendor,
			PropModelName:  model,
		},
		objects: make(map[ObjectID]*simObject),
	}
}

// SetDeviceProperty sets a device-object property (description,
// location) returned by ReadPropertyMultiple.
func (s *SimTransport) SetDeviceProperty(deviceInstance uint32, property string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d, ok := s.devices[deviceInstance]; ok {
		d.props[property] = value
	}
}

// AddObject registers an object on a simulated device with its
// relinquish-default value.
func (s *SimTransport) AddObject(deviceInstance uint32, obj ObjectID, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.devices[deviceInstance]
	if !ok {
		return
	}
	d.objects[obj] = &simObject{
		relinquishDefault: value,
		priorities:        make(map[int]any),
	}
}

// SetValue changes an object's relinquish-default and notifies COV
// subscribers, simulating a sensor reading change.
func (s *SimTransport) SetValue(deviceInstance uint32, obj ObjectID, value any) {
	s.mu.Lock()
	d, ok := s.devices[deviceInstance]
	if !ok {
		s.mu.Unlock()
		return
	}
	o, ok := d.objects[obj]
	if !ok {
		s.mu.Unlock()
		return
	}
	o.relinquishDefault = value
	effective := o.effectiveValue()
	addr := d.addr
	s.mu.Unlock()

	s.notify(addr, obj, effective)
}

// Open binds the simulator. It never fails but mirrors the contract.
func (s *SimTransport) Open(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.open = true
	return nil
}

// Close releases the simulator and terminates subscriptions.
func (s *SimTransport) Close() {
	s.mu.Lock()
	s.open = false
	s.mu.Unlock()

	s.subMu.Lock()
	defer s.subMu.Unlock()
	for _, sub := range s.subs {
		close(sub.ch)
	}
	s.subs = nil
}

// ReadProperty returns an object's effective present-value: the
// highest-priority written slot, or the relinquish-default.
func (s *SimTransport) ReadProperty(ctx context.Context, addr DeviceAddress, obj ObjectID) (any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.open {
		return nil, fmt.Errorf("%w: transport not open", protocol.ErrConnection)
	}
	o, err := s.object(addr, obj)
	if err != nil {
		return nil, err
	}
	return o.effectiveValue(), nil
}

// ReadPropertyMultiple serves device-object descriptive properties and
// object present-values. Unknown properties are omitted from the
// result.
func (s *SimTransport) ReadPropertyMultiple(ctx context.Context, addr DeviceAddress, obj ObjectID, properties []string) (map[string]any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.open {
		return nil, fmt.Errorf("%w: transport not open", protocol.ErrConnection)
	}
	d, ok := s.devices[addr.Instance]
	if !ok {
		return nil, fmt.Errorf("%w: no device instance %d", protocol.ErrProtocol, addr.Instance)
	}

	out := make(map[string]any, len(properties))
	if obj.Type == "device" && obj.Instance == addr.Instance {
		for _, p := range properties {
			if v, ok := d.props[p]; ok {
				out[p] = v
			}
		}
		return out, nil
	}

	o, err := s.object(addr, obj)
	if err != nil {
		return nil, err
	}
	for _, p := range properties {
		if p == "present-value" {
			out[p] = o.effectiveValue()
		}
	}
	return out, nil
}

// WriteProperty sets or relinquishes a priority slot.
func (s *SimTransport) WriteProperty(ctx context.Context, addr DeviceAddress, obj ObjectID, value any, priority int) error {
	if priority < 1 || priority > 16 {
		return fmt.Errorf("%w: priority %d out of range", protocol.ErrConfiguration, priority)
	}

	s.mu.Lock()
	if !s.open {
		s.mu.Unlock()
		return fmt.Errorf("%w: transport not open", protocol.ErrConnection)
	}
	o, err := s.object(addr, obj)
	if err != nil {
		s.mu.Unlock()
		return err
	}

	if value == nil {
		delete(o.priorities, priority)
	} else {
		o.priorities[priority] = value
	}
	effective := o.effectiveValue()
	s.mu.Unlock()

	s.notify(addr, obj, effective)
	return nil
}

// SubscribeCOV delivers value changes for one object. The simulator
// honours ctx cancellation and ignores the requested lifetime.
func (s *SimTransport) SubscribeCOV(ctx context.Context, addr DeviceAddress, obj ObjectID, lifetime time.Duration) (<-chan COVNotification, error) {
	s.mu.Lock()
	if !s.open {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: transport not open", protocol.ErrConnection)
	}
	if _, err := s.object(addr, obj); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	s.mu.Unlock()

	ch := make(chan COVNotification, 16)
	s.subMu.Lock()
	s.subs = append(s.subs, simSubscription{addr: addr, obj: obj, ch: ch, done: ctx.Done()})
	s.subMu.Unlock()

	return ch, nil
}

// WhoIs answers with every simulated device in the instance range.
func (s *SimTransport) WhoIs(ctx context.Context, lowLimit, highLimit uint32, window time.Duration) ([]IAm, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.open {
		return nil, fmt.Errorf("%w: transport not open", protocol.ErrConnection)
	}

	var out []IAm
	for inst, d := range s.devices {
		if inst < lowLimit || inst > highLimit {
			continue
		}
		out = append(out, IAm{
			Address:      d.addr,
			VendorID:     d.vendorID,
			MaxAPDU:      1476,
			Segmentation: "segmented-both",
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Address.Instance < out[j].Address.Instance })
	return out, nil
}

func (s *SimTransport) object(addr DeviceAddress, obj ObjectID) (*simObject, error) {
	d, ok := s.devices[addr.Instance]
	if !ok {
		return nil, fmt.Errorf("%w: no device instance %d", protocol.ErrProtocol, addr.Instance)
	}
	o, ok := d.objects[obj]
	if !ok {
		return nil, fmt.Errorf("%w: device %d has no %s:%d", protocol.ErrIllegalAddress, addr.Instance, obj.Type, obj.Instance)
	}
	return o, nil
}

func (s *SimTransport) notify(addr DeviceAddress, obj ObjectID, value any) {
	now := time.Now()

	s.subMu.Lock()
	defer s.subMu.Unlock()

	kept := s.subs[:0]
	for _, sub := range s.subs {
		select {
		case <-sub.done:
			close(sub.ch)
			continue
		default:
		}
		if sub.addr.Instance == addr.Instance && sub.obj == obj {
			select {
			case sub.ch <- COVNotification{Object: obj, Value: value, Timestamp: now}:
			default:
				// Subscriber not draining; drop rather than block the
				// writer.
			}
		}
		kept = append(kept, sub)
	}
	s.subs = kept
}

// effectiveValue resolves the priority array: lowest slot number wins,
// falling back to the relinquish-default.
func (o *simObject) effectiveValue() any {
	for p := 1; p <= 16; p++ {
		if v, ok := o.priorities[p]; ok {
			return v
		}
	}
	return o.relinquishDefault
}
