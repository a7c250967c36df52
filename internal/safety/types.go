package safety

import (
	"time"

	"github.com/google/uuid"
)

// Severity ranks a violation.
type Severity string

const (
	SeverityWarning   Severity = "warning"
	SeverityCritical  Severity = "critical"
	SeverityEmergency Severity = "emergency"
)

// Action is the corrective response dispatched for a violation.
type Action string

const (
	// ActionAlert logs and notifies only; no device write.
	ActionAlert Action = "alert"

	// ActionReduce cuts intensity by a fixed fraction of current.
	ActionReduce Action = "reduce"

	// ActionShutdown drives intensity to zero immediately.
	ActionShutdown Action = "shutdown"
)

// Event type names recorded in the audit trail.
const (
	EventHighTemperature   = "high_temperature"
	EventDeviceFailure     = "device_failure"
	EventCircuitOverload   = "circuit_overload"
	EventPowerExceeded     = "power_exceeded"
	EventEmergencyShutdown = "emergency_shutdown"
)

// Event is one safety violation observed by a sweep.
type Event struct {
	ID         string    `json:"id"`
	OccurredAt time.Time `json:"occurred_at"`

	// EventType names the violation class.
	EventType string `json:"event_type"`

	Severity Severity `json:"severity"`

	// Scope: ZoneID for zone/circuit violations, DeviceID for device
	// ones. Circuit events carry the circuit in ZoneID-adjacent field.
	ZoneID    string `json:"zone_id,omitempty"`
	DeviceID  string `json:"device_id,omitempty"`
	CircuitID string `json:"circuit_id,omitempty"`

	// Value is the observed reading, Limit the threshold it crossed.
	Value float64 `json:"value"`
	Limit float64 `json:"limit"`
	Unit  string  `json:"unit,omitempty"`

	Action  Action `json:"action"`
	Message string `json:"message"`
}

func newEvent(eventType string, severity Severity, action Action) Event {
	return Event{
		ID:         uuid.New().String(),
		OccurredAt: time.Now(),
		EventType:  eventType,
		Severity:   severity,
		Action:     action,
	}
}

// CircuitStatus values.
const (
	CircuitNormal  = "normal"
	CircuitWarning = "warning"
	CircuitTripped = "tripped"
)

// CircuitBreaker is the software model of one physical circuit: its
// configured capacity plus the load and status recomputed each sweep.
type CircuitBreaker struct {
	ID       string   `json:"id"`
	MaxWatts float64  `json:"max_watts"`
	Zones    []string `json:"zones"`

	// CurrentLoad and Status are derived every sweep, never persisted.
	CurrentLoad float64 `json:"current_load"`
	Status      string  `json:"status"`
}
