package device

import (
	"fmt"
	"sort"
	"sync"
)

// Logger defines the logging interface used by the Registry.
// This allows different logging implementations to be used.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Registry holds the set of devices the gateway integrates.
//
// Devices enter the registry from configuration at startup and from
// discovery at runtime. All public methods are thread-safe.
type Registry struct {
	mu      sync.RWMutex
	devices map[string]Config
	logger  Logger
}

// NewRegistry creates an empty device registry.
func NewRegistry() *Registry {
	return &Registry{
		devices: make(map[string]Config),
		logger:  noopLogger{},
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// Register adds a device after validating its configuration.
// Returns ErrExists when the ID is already registered.
func (r *Registry) Register(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.devices[cfg.ID]; ok {
		return fmt.Errorf("%w: %s", ErrExists, cfg.ID)
	}
	r.devices[cfg.ID] = cfg

	r.logger.Info("device registered",
		"device_id", cfg.ID,
		"protocol", string(cfg.Protocol),
		"points", len(cfg.Points))
	return nil
}

// Update replaces an existing device's configuration.
func (r *Registry) Update(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.devices[cfg.ID]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, cfg.ID)
	}
	r.devices[cfg.ID] = cfg

	r.logger.Info("device updated", "device_id", cfg.ID)
	return nil
}

// Remove deletes a device from the registry.
func (r *Registry) Remove(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.devices[id]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	delete(r.devices, id)

	r.logger.Info("device removed", "device_id", id)
	return nil
}

// Get returns a device's configuration by ID.
func (r *Registry) Get(id string) (Config, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cfg, ok := r.devices[id]
	if !ok {
		return Config{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return cfg, nil
}

// List returns every registered device sorted by ID.
func (r *Registry) List() []Config {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Config, 0, len(r.devices))
	for _, cfg := range r.devices {
		out = append(out, cfg)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ListByProtocol returns devices using the given protocol, sorted by ID.
func (r *Registry) ListByProtocol(proto Protocol) []Config {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Config
	for _, cfg := range r.devices {
		if cfg.Protocol == proto {
			out = append(out, cfg)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ListByZone returns devices assigned to a grow zone, sorted by ID.
func (r *Registry) ListByZone(zoneID string) []Config {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Config
	for _, cfg := range r.devices {
		if cfg.ZoneID == zoneID {
			out = append(out, cfg)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ListByCircuit returns devices on an electrical circuit, sorted by ID.
func (r *Registry) ListByCircuit(circuitID string) []Config {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Config
	for _, cfg := range r.devices {
		if cfg.CircuitID == circuitID {
			out = append(out, cfg)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Count returns the number of registered devices.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.devices)
}
