package collection

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/heliolux/helio-core/internal/device"
	"github.com/heliolux/helio-core/internal/protocol"
)

// Sink receives collected readings and collector statistics.
// *influxdb.Client satisfies it; writes are asynchronous and batched
// inside the sink.
type Sink interface {
	WriteDataPoint(deviceID string, ts time.Time, quality string, values map[string]any)
	WriteCollectorStat(deviceID string, pointsCollected, failureCount int64, avgCollectionMs float64)
	Flush()
}

// ClientFactory builds a protocol client for a device. The gateway
// wires one that dispatches on the device's protocol.
type ClientFactory func(cfg device.Config) (protocol.Client, error)

// Logger defines the logging interface used by the service.
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

// Service manages one collector per device.
//
// Collectors run independently: one slow or failing device never blocks
// another's loop. All public methods are thread-safe.
type Service struct {
	factory         ClientFactory
	sink            Sink
	cache           *LatestCache
	defaultInterval time.Duration
	logger          Logger

	mu         sync.Mutex
	collectors map[string]*collector
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the service's logger.
func WithLogger(l Logger) Option {
	return func(s *Service) { s.logger = l }
}

// NewService creates a collection service. defaultInterval applies to
// devices without a poll interval override.
func NewService(factory ClientFactory, sink Sink, defaultInterval time.Duration, opts ...Option) *Service {
	s := &Service{
		factory:         factory,
		sink:            sink,
		cache:           NewLatestCache(),
		defaultInterval: defaultInterval,
		logger:          noopLogger{},
		collectors:      make(map[string]*collector),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Cache exposes the latest-value store shared by all collectors.
func (s *Service) Cache() *LatestCache {
	return s.cache
}

// Start connects a client for the device and launches its collection
// loop.
func (s *Service) Start(ctx context.Context, cfg device.Config) error {
	s.mu.Lock()
	if _, ok := s.collectors[cfg.ID]; ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrAlreadyCollecting, cfg.ID)
	}
	s.mu.Unlock()

	client, err := s.factory(cfg)
	if err != nil {
		return fmt.Errorf("%w: device %s: %w", ErrNoClient, cfg.ID, err)
	}
	if err := client.Connect(ctx); err != nil {
		return fmt.Errorf("device %s: %w", cfg.ID, err)
	}

	interval := cfg.PollInterval()
	if interval <= 0 {
		interval = s.defaultInterval
	}

	runCtx, cancel := context.WithCancel(context.Background())
	col := &collector{
		cfg:      cfg,
		client:   client,
		interval: interval,
		cache:    s.cache,
		sink:     s.sink,
		stats:    newStatsTracker(cfg.ID),
		logger:   s.logger,
		cancel:   cancel,
		done:     make(chan struct{}),
	}

	s.mu.Lock()
	if _, ok := s.collectors[cfg.ID]; ok {
		s.mu.Unlock()
		cancel()
		client.Disconnect()
		return fmt.Errorf("%w: %s", ErrAlreadyCollecting, cfg.ID)
	}
	s.collectors[cfg.ID] = col
	s.mu.Unlock()

	go col.run(runCtx)

	s.logger.Info("collection started",
		"device_id", cfg.ID,
		"protocol", string(cfg.Protocol),
		"interval", interval.String())
	return nil
}

// Stop halts a device's collector, disconnects its client, and drops
// its cached readings.
func (s *Service) Stop(deviceID string) error {
	s.mu.Lock()
	col, ok := s.collectors[deviceID]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotCollecting, deviceID)
	}
	delete(s.collectors, deviceID)
	s.mu.Unlock()

	col.cancel()
	<-col.done
	col.client.Disconnect()
	col.stats.markStopped()
	s.cache.Drop(deviceID)

	s.logger.Info("collection stopped", "device_id", deviceID)
	return nil
}

// StopAll halts every collector and flushes the sink so buffered
// readings survive shutdown.
func (s *Service) StopAll() {
	s.mu.Lock()
	cols := make([]*collector, 0, len(s.collectors))
	for _, col := range s.collectors {
		cols = append(cols, col)
	}
	s.collectors = make(map[string]*collector)
	s.mu.Unlock()

	for _, col := range cols {
		col.cancel()
	}
	for _, col := range cols {
		<-col.done
		col.client.Disconnect()
		col.stats.markStopped()
	}
	s.sink.Flush()

	s.logger.Info("all collection stopped", "collectors", len(cols))
}

// Stats returns a device collector's counters.
func (s *Service) Stats(deviceID string) (Stats, error) {
	s.mu.Lock()
	col, ok := s.collectors[deviceID]
	s.mu.Unlock()

	if !ok {
		return Stats{}, fmt.Errorf("%w: %s", ErrNotCollecting, deviceID)
	}
	return col.stats.Snapshot(), nil
}

// AllStats returns every running collector's counters, sorted by
// device ID.
func (s *Service) AllStats() []Stats {
	s.mu.Lock()
	out := make([]Stats, 0, len(s.collectors))
	for _, col := range s.collectors {
		out = append(out, col.stats.Snapshot())
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].DeviceID < out[j].DeviceID })
	return out
}

// Active lists the device IDs with running collectors, sorted.
func (s *Service) Active() []string {
	s.mu.Lock()
	out := make([]string, 0, len(s.collectors))
	for id := range s.collectors {
		out = append(out, id)
	}
	s.mu.Unlock()

	sort.Strings(out)
	return out
}

// Client returns the running protocol client for a device, for
// command paths (safety actions) that reuse the collector's session.
func (s *Service) Client(deviceID string) (protocol.Client, error) {
	s.mu.Lock()
	col, ok := s.collectors[deviceID]
	s.mu.Unlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotCollecting, deviceID)
	}
	return col.client, nil
}
