package discovery

import (
	"context"
	"sort"
	"sync"

	"github.com/heliolux/helio-core/internal/infrastructure/config"
	"github.com/heliolux/helio-core/internal/protocol/bacnet"
)

// Logger defines the logging interface used by the scanner.
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

// Scanner runs device discovery across every configured protocol.
//
// Scans are active only where the protocol supports it (Modbus port
// probes, BACnet Who-Is, OPC UA endpoint attempts); MQTT discovery is
// purely passive, listening for devices announcing themselves. A
// Scanner is safe for one Scan at a time.
type Scanner struct {
	cfg      config.DiscoveryConfig
	poolSize int
	logger   Logger

	modbusProbe  ModbusProbe
	modbusIdent  ModbusRegisterReader
	bacnetTx     bacnet.Transport
	mqttListener MQTTListener
	opcuaDialer  OPCUADialer
}

// Option configures a Scanner.
type Option func(*Scanner)

// WithLogger sets the scanner's logger.
func WithLogger(l Logger) Option {
	return func(s *Scanner) { s.logger = l }
}

// WithModbusProbe substitutes the host probe.
func WithModbusProbe(p ModbusProbe) Option {
	return func(s *Scanner) { s.modbusProbe = p }
}

// WithModbusIdentifier substitutes the register reader used for
// signature classification.
func WithModbusIdentifier(r ModbusRegisterReader) Option {
	return func(s *Scanner) { s.modbusIdent = r }
}

// WithBACnetTransport supplies the transport used for Who-Is scans.
func WithBACnetTransport(tx bacnet.Transport) Option {
	return func(s *Scanner) { s.bacnetTx = tx }
}

// WithMQTTListener supplies the broker session used for passive MQTT
// discovery.
func WithMQTTListener(l MQTTListener) Option {
	return func(s *Scanner) { s.mqttListener = l }
}

// WithOPCUADialer substitutes the OPC UA endpoint dialer.
func WithOPCUADialer(d OPCUADialer) Option {
	return func(s *Scanner) { s.opcuaDialer = d }
}

// NewScanner creates a scanner. poolSize bounds the concurrent probes
// of the Modbus subnet sweep.
func NewScanner(cfg config.DiscoveryConfig, poolSize int, opts ...Option) *Scanner {
	if poolSize <= 0 {
		poolSize = 32
	}
	s := &Scanner{
		cfg:         cfg,
		poolSize:    poolSize,
		logger:      noopLogger{},
		modbusProbe: dialProbe,
		modbusIdent: readHoldingRegister,
		opcuaDialer: defaultOPCUADialer,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Scan runs every enabled protocol scan concurrently and merges the
// results, sorted by protocol then address. A failing protocol scan
// logs and contributes nothing rather than voiding the others.
func (s *Scanner) Scan(ctx context.Context) []DiscoveredDevice {
	type result struct {
		devices []DiscoveredDevice
		err     error
		name    string
	}

	scans := []struct {
		name string
		run  func(context.Context) ([]DiscoveredDevice, error)
	}{
		{"modbus", func(ctx context.Context) ([]DiscoveredDevice, error) {
			return s.scanModbus(ctx, s.cfg.Modbus)
		}},
		{"bacnet", s.scanBACnet},
		{"mqtt", s.scanMQTT},
		{"opcua", s.scanOPCUA},
	}

	results := make(chan result, len(scans))
	var wg sync.WaitGroup
	for _, sc := range scans {
		sc := sc
		wg.Add(1)
		go func() {
			defer wg.Done()
			devices, err := sc.run(ctx)
			results <- result{devices: devices, err: err, name: sc.name}
		}()
	}
	wg.Wait()
	close(results)

	var found []DiscoveredDevice
	for r := range results {
		if r.err != nil {
			s.logger.Warn("discovery scan failed", "scan", r.name, "error", r.err)
			continue
		}
		found = append(found, r.devices...)
	}

	sort.Slice(found, func(i, j int) bool {
		if found[i].Protocol != found[j].Protocol {
			return found[i].Protocol < found[j].Protocol
		}
		if found[i].Host != found[j].Host {
			return found[i].Host < found[j].Host
		}
		return found[i].NativeID < found[j].NativeID
	})

	s.logger.Info("discovery scan complete", "devices", len(found))
	return found
}
