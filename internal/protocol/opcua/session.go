package opcua

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/heliolux/helio-core/internal/protocol"
)

// SubscriptionParams carries the publishing-side settings passed to
// CreateSubscription.
type SubscriptionParams struct {
	PublishingInterval time.Duration
	LifetimeCount      uint32
	MaxKeepAliveCount  uint32
}

// MonitorParams carries per-item sampling settings.
type MonitorParams struct {
	SamplingInterval time.Duration
	QueueSize        uint32
	DiscardOldest    bool
}

// DataChange is one monitored-item notification.
type DataChange struct {
	NodeID    string
	Value     any
	Timestamp time.Time
}

// Session abstracts an OPC UA client session so gateway logic works
// identically against a real SDK or the in-process simulator.
type Session interface {
	// Open activates the session against the endpoint.
	Open(ctx context.Context, endpoint string) error

	// Close terminates the session. Safe to call when not open.
	Close()

	// ReadNode reads a node's value attribute.
	ReadNode(ctx context.Context, nodeID string) (any, error)

	// WriteNode writes a node's value attribute.
	WriteNode(ctx context.Context, nodeID string, value any) error

	// BrowseTags lists the readable variable nodes under the server's
	// objects folder, for discovery.
	BrowseTags(ctx context.Context) ([]string, error)

	// ServerInfo returns the server's application name and product URI.
	ServerInfo(ctx context.Context) (name, productURI string, err error)

	// CreateSubscription opens a server subscription and returns its id.
	CreateSubscription(ctx context.Context, params SubscriptionParams) (uint32, error)

	// MonitorItem adds a monitored item to a subscription. Data changes
	// arrive on the returned channel until ctx is cancelled; the
	// session closes the channel then.
	MonitorItem(ctx context.Context, subID uint32, nodeID string, params MonitorParams) (<-chan DataChange, error)

	// Call invokes a server method on the given object.
	Call(ctx context.Context, objectID, methodID string, args []any) ([]any, error)
}

// MethodFunc is a simulated server method handler.
type MethodFunc func(args []any) ([]any, error)

// SimSession is an in-process OPC UA server model for tests and for
// deployments without an OPC UA SDK wired in.
type SimSession struct {
	name       string
	productURI string

	mu       sync.Mutex
	open     bool
	nodes    map[string]any
	nextSub  uint32
	subs     map[uint32]bool
	watchers map[string][]chan DataChange
	methods  map[string]MethodFunc
}

// NewSimSession creates a simulator presenting the given server identity.
func NewSimSession(name, productURI string) *SimSession {
	return &SimSession{
		name:       name,
		productURI: productURI,
		nodes:      make(map[string]any),
		subs:       make(map[uint32]bool),
		watchers:   make(map[string][]chan DataChange),
		methods:    make(map[string]MethodFunc),
	}
}

// AddNode registers a variable node with an initial value.
func (s *SimSession) AddNode(nodeID string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nodes[nodeID] = value
}

// Open activates the simulated session.
func (s *SimSession) Open(ctx context.Context, endpoint string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.open = true
	return nil
}

// Close terminates the simulated session.
func (s *SimSession) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.open = false
}

// ReadNode returns a node's value.
func (s *SimSession) ReadNode(ctx context.Context, nodeID string) (any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.open {
		return nil, fmt.Errorf("%w: session not open", protocol.ErrConnection)
	}
	v, ok := s.nodes[nodeID]
	if !ok {
		return nil, fmt.Errorf("%w: no node %s", protocol.ErrIllegalAddress, nodeID)
	}
	return v, nil
}

// WriteNode stores a node's value.
func (s *SimSession) WriteNode(ctx context.Context, nodeID string, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.open {
		return fmt.Errorf("%w: session not open", protocol.ErrConnection)
	}
	if _, ok := s.nodes[nodeID]; !ok {
		return fmt.Errorf("%w: no node %s", protocol.ErrIllegalAddress, nodeID)
	}
	s.nodes[nodeID] = value
	return nil
}

// BrowseTags lists the simulated node IDs sorted lexically.
func (s *SimSession) BrowseTags(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.open {
		return nil, fmt.Errorf("%w: session not open", protocol.ErrConnection)
	}
	out := make([]string, 0, len(s.nodes))
	for id := range s.nodes {
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}

// ServerInfo returns the simulated server identity.
func (s *SimSession) ServerInfo(ctx context.Context) (string, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.open {
		return "", "", fmt.Errorf("%w: session not open", protocol.ErrConnection)
	}
	return s.name, s.productURI, nil
}

// CreateSubscription opens a simulated subscription.
func (s *SimSession) CreateSubscription(ctx context.Context, params SubscriptionParams) (uint32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.open {
		return 0, fmt.Errorf("%w: session not open", protocol.ErrConnection)
	}
	s.nextSub++
	s.subs[s.nextSub] = true
	return s.nextSub, nil
}

// MonitorItem registers a watcher on a node. SetValue pushes changes to
// it; the channel closes when ctx is cancelled.
func (s *SimSession) MonitorItem(ctx context.Context, subID uint32, nodeID string, params MonitorParams) (<-chan DataChange, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.open {
		return nil, fmt.Errorf("%w: session not open", protocol.ErrConnection)
	}
	if !s.subs[subID] {
		return nil, fmt.Errorf("%w: no subscription %d", protocol.ErrConfiguration, subID)
	}
	if _, ok := s.nodes[nodeID]; !ok {
		return nil, fmt.Errorf("%w: no node %s", protocol.ErrIllegalAddress, nodeID)
	}

	size := int(params.QueueSize)
	if size < 1 {
		size = 1
	}
	ch := make(chan DataChange, size)
	s.watchers[nodeID] = append(s.watchers[nodeID], ch)

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		ws := s.watchers[nodeID]
		for i, w := range ws {
			if w == ch {
				s.watchers[nodeID] = append(ws[:i], ws[i+1:]...)
				break
			}
		}
		s.mu.Unlock()
		close(ch)
	}()
	return ch, nil
}

// SetValue updates a node and notifies its monitored items. A watcher
// whose queue is full drops the change, mirroring a saturated server
// queue.
func (s *SimSession) SetValue(nodeID string, value any) {
	s.mu.Lock()
	s.nodes[nodeID] = value
	chans := append([]chan DataChange(nil), s.watchers[nodeID]...)
	s.mu.Unlock()

	n := DataChange{NodeID: nodeID, Value: value, Timestamp: time.Now()}
	for _, ch := range chans {
		select {
		case ch <- n:
		default:
		}
	}
}

// AddMethod registers a callable method on an object.
func (s *SimSession) AddMethod(objectID, methodID string, fn MethodFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.methods[objectID+"\x00"+methodID] = fn
}

// Call invokes a registered method.
func (s *SimSession) Call(ctx context.Context, objectID, methodID string, args []any) ([]any, error) {
	s.mu.Lock()
	if !s.open {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: session not open", protocol.ErrConnection)
	}
	fn, ok := s.methods[objectID+"\x00"+methodID]
	s.mu.Unlock()

	if !ok {
		return nil, fmt.Errorf("%w: no method %s on %s", protocol.ErrIllegalAddress, methodID, objectID)
	}
	return fn(args)
}
