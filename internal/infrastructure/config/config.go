package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for HelioLux Core.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Site       SiteConfig       `yaml:"site"`
	Database   DatabaseConfig   `yaml:"database"`
	MQTT       MQTTConfig       `yaml:"mqtt"`
	InfluxDB   InfluxDBConfig   `yaml:"influxdb"`
	Logging    LoggingConfig    `yaml:"logging"`
	Devices    DevicesConfig    `yaml:"devices"`
	Collection CollectionConfig `yaml:"collection"`
	Discovery  DiscoveryConfig  `yaml:"discovery"`
	Safety     SafetyConfig     `yaml:"safety"`
	Protocols  ProtocolsConfig  `yaml:"protocols"`
}

// SiteConfig contains site-specific information.
type SiteConfig struct {
	ID       string `yaml:"id"`
	Name     string `yaml:"name"`
	Timezone string `yaml:"timezone"`
}

// DatabaseConfig contains SQLite database settings. The database holds
// the audit trail (safety events and system alerts).
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker       MQTTBrokerConfig    `yaml:"broker"`
	Auth         MQTTAuthConfig      `yaml:"auth"`
	QoS          int                 `yaml:"qos"`
	CleanSession bool                `yaml:"clean_session"`
	Reconnect    MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings (seconds).
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// InfluxDBConfig contains InfluxDB connection settings for the
// time-series sink that receives every collected data point.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// DevicesConfig points at the device inventory.
type DevicesConfig struct {
	// File is a YAML file listing device configs, loaded into the
	// registry at startup. Empty means start with no devices (they can
	// still arrive via discovery).
	File string `yaml:"file"`
}

// CollectionConfig contains data-collection service settings.
type CollectionConfig struct {
	// DefaultPollInterval is used for devices that don't specify their own (ms).
	DefaultPollInterval int `yaml:"default_poll_interval"`

	// BackstopPollInterval is the slow fallback poll for subscription-driven
	// devices, in case notifications are missed (ms).
	BackstopPollInterval int `yaml:"backstop_poll_interval"`

	// WorkerPoolSize bounds the goroutine pool shared by collectors and
	// discovery sweeps.
	WorkerPoolSize int `yaml:"worker_pool_size"`
}

// DiscoveryConfig contains device discovery settings.
type DiscoveryConfig struct {
	// Window is how long passive scans (BACnet I-Am, MQTT) listen, in seconds.
	Window int `yaml:"window"`

	Modbus ModbusDiscoveryConfig `yaml:"modbus"`
	OPCUA  OPCUADiscoveryConfig  `yaml:"opcua"`
	MQTT   MQTTDiscoveryConfig   `yaml:"mqtt"`
}

// ModbusDiscoveryConfig controls the Modbus TCP subnet sweep.
type ModbusDiscoveryConfig struct {
	// Subnet in CIDR notation. Empty means the local interface's /24.
	Subnet string `yaml:"subnet"`

	// Ports to probe on each candidate host.
	Ports []int `yaml:"ports"`

	// ConnectTimeout per candidate, in milliseconds.
	ConnectTimeout int `yaml:"connect_timeout"`
}

// OPCUADiscoveryConfig controls the OPC UA endpoint sweep.
type OPCUADiscoveryConfig struct {
	Hosts          []string `yaml:"hosts"`
	Ports          []int    `yaml:"ports"`
	ConnectTimeout int      `yaml:"connect_timeout"`
}

// MQTTDiscoveryConfig controls passive MQTT device discovery.
type MQTTDiscoveryConfig struct {
	// Brokers is the list of well-known local broker addresses to try.
	Brokers []string `yaml:"brokers"`
}

// SafetyConfig contains safety monitor settings and the electrical model.
type SafetyConfig struct {
	// SweepInterval between safety sweeps, in seconds.
	SweepInterval int `yaml:"sweep_interval"`

	// RepeatInterval debounces re-emission of a sustained violation, in
	// seconds. Zero re-emits on every sweep (continuous enforcement).
	RepeatInterval int `yaml:"repeat_interval"`

	Temperature TemperatureThresholds `yaml:"temperature"`
	Circuit     CircuitThresholds     `yaml:"circuit"`

	Circuits []CircuitConfig     `yaml:"circuits"`
	Zones    []ZoneConfig        `yaml:"zones"`
	Limits   []SafetyLimitConfig `yaml:"limits"`
}

// TemperatureThresholds are the ascending per-device temperature limits (°C).
type TemperatureThresholds struct {
	Warning   float64 `yaml:"warning"`
	Critical  float64 `yaml:"critical"`
	Emergency float64 `yaml:"emergency"`
}

// CircuitThresholds are the circuit-load fractions of max wattage that
// trigger each severity.
type CircuitThresholds struct {
	WarningPct   float64 `yaml:"warning_pct"`
	CriticalPct  float64 `yaml:"critical_pct"`
	EmergencyPct float64 `yaml:"emergency_pct"`
}

// CircuitConfig describes one physical circuit breaker.
// MaxWatts may be left zero, in which case it is derived as amps × volts.
type CircuitConfig struct {
	ID       string   `yaml:"id"`
	MaxAmps  float64  `yaml:"max_amps"`
	Voltage  float64  `yaml:"voltage"`
	MaxWatts float64  `yaml:"max_watts"`
	Zones    []string `yaml:"zones"`
}

// ZoneConfig maps a zone to its member devices.
type ZoneConfig struct {
	ID      string   `yaml:"id"`
	Name    string   `yaml:"name"`
	Devices []string `yaml:"devices"`
}

// SafetyLimitConfig is an externally configured limit checked each sweep.
type SafetyLimitConfig struct {
	ZoneID    string  `yaml:"zone_id"`
	DeviceID  string  `yaml:"device_id"`
	LimitType string  `yaml:"limit_type"`
	MaxValue  float64 `yaml:"max_value"`
	Unit      string  `yaml:"unit"`
	Action    string  `yaml:"action"`
	Priority  int     `yaml:"priority"`
}

// ProtocolsConfig contains per-protocol defaults.
type ProtocolsConfig struct {
	Modbus ModbusProtocolConfig `yaml:"modbus"`
	BACnet BACnetProtocolConfig `yaml:"bacnet"`
	OPCUA  OPCUAProtocolConfig  `yaml:"opcua"`
}

// ModbusProtocolConfig contains Modbus client defaults.
type ModbusProtocolConfig struct {
	// RequestTimeout per Modbus request, in milliseconds.
	RequestTimeout int `yaml:"request_timeout"`
}

// BACnetProtocolConfig contains BACnet client defaults.
type BACnetProtocolConfig struct {
	// Port is the BACnet/IP UDP port (default 47808).
	Port int `yaml:"port"`

	// COVLifetime is the COV subscription lifetime, in seconds.
	COVLifetime int `yaml:"cov_lifetime"`
}

// OPCUAProtocolConfig contains OPC UA client defaults.
type OPCUAProtocolConfig struct {
	// PublishingInterval for subscriptions, in milliseconds.
	PublishingInterval int `yaml:"publishing_interval"`

	// SessionTimeout in seconds.
	SessionTimeout int `yaml:"session_timeout"`
}

// Load reads configuration from the specified YAML file.
//
// Loading order:
//  1. Start with built-in defaults
//  2. Overlay values from the YAML file
//  3. Apply environment variable overrides (HELIOLUX_*)
//  4. Validate the result
//
// Returns:
//   - *Config: Validated configuration
//   - error: If the file is unreadable, malformed, or invalid
func Load(path string) (*Config, error) {
	// Start with defaults
	cfg := defaultConfig()

	// Read and parse YAML file
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Apply environment variable overrides
	applyEnvOverrides(cfg)

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Default returns the built-in defaults, for callers that run without a
// config file.
func Default() *Config {
	return defaultConfig()
}

// defaultConfig returns the built-in defaults applied before the YAML
// file is read. Values mirror the reference deployment.
func defaultConfig() *Config {
	return &Config{
		Site: SiteConfig{
			ID:       "site-local",
			Name:     "Local Site",
			Timezone: "UTC",
		},
		Database: DatabaseConfig{
			Path:        "data/heliocore.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "heliocore",
			},
			QoS:          1,
			CleanSession: true,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		InfluxDB: InfluxDBConfig{
			Enabled:       false,
			URL:           "http://localhost:8086",
			Bucket:        "telemetry",
			BatchSize:     100,
			FlushInterval: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Devices: DevicesConfig{
			File: "configs/devices.yaml",
		},
		Collection: CollectionConfig{
			DefaultPollInterval:  5000,
			BackstopPollInterval: 60000,
			WorkerPoolSize:       32,
		},
		Discovery: DiscoveryConfig{
			Window: 5,
			Modbus: ModbusDiscoveryConfig{
				Ports:          []int{502, 503},
				ConnectTimeout: 500,
			},
			OPCUA: OPCUADiscoveryConfig{
				Ports:          []int{4840, 4841, 4855},
				ConnectTimeout: 1000,
			},
			MQTT: MQTTDiscoveryConfig{
				Brokers: []string{"tcp://localhost:1883"},
			},
		},
		Safety: SafetyConfig{
			SweepInterval:  5,
			RepeatInterval: 0,
			Temperature: TemperatureThresholds{
				Warning:   35,
				Critical:  40,
				Emergency: 45,
			},
			Circuit: CircuitThresholds{
				WarningPct:   0.80,
				CriticalPct:  0.90,
				EmergencyPct: 0.95,
			},
		},
		Protocols: ProtocolsConfig{
			Modbus: ModbusProtocolConfig{
				RequestTimeout: 2000,
			},
			BACnet: BACnetProtocolConfig{
				Port:        47808,
				COVLifetime: 300,
			},
			OPCUA: OPCUAProtocolConfig{
				PublishingInterval: 1000,
				SessionTimeout:     60,
			},
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the config.
// Only secrets and deployment-specific endpoints are overridable.
func applyEnvOverrides(cfg *Config) {
	// Database
	if v := os.Getenv("HELIOLUX_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// MQTT
	if v := os.Getenv("HELIOLUX_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("HELIOLUX_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("HELIOLUX_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// Devices
	if v := os.Getenv("HELIOLUX_DEVICES_FILE"); v != "" {
		cfg.Devices.File = v
	}

	// InfluxDB
	if v := os.Getenv("HELIOLUX_INFLUXDB_URL"); v != "" {
		cfg.InfluxDB.URL = v
	}
	if v := os.Getenv("HELIOLUX_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}
}

// Validate checks the configuration for errors.
// All problems are collected and reported together.
func (c *Config) Validate() error {
	var errs []string

	// Site validation
	if c.Site.ID == "" {
		errs = append(errs, "site.id is required")
	}

	// Database validation
	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	// MQTT validation
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.MQTT.Broker.Port < 1 || c.MQTT.Broker.Port > 65535 {
		errs = append(errs, "mqtt.broker.port must be between 1 and 65535")
	}

	// Collection validation
	if c.Collection.DefaultPollInterval <= 0 {
		errs = append(errs, "collection.default_poll_interval must be positive")
	}
	if c.Collection.WorkerPoolSize <= 0 {
		errs = append(errs, "collection.worker_pool_size must be positive")
	}

	// Safety validation
	if c.Safety.SweepInterval <= 0 {
		errs = append(errs, "safety.sweep_interval must be positive")
	}
	t := c.Safety.Temperature
	if t.Warning >= t.Critical || t.Critical >= t.Emergency {
		errs = append(errs, "safety.temperature thresholds must be strictly ascending")
	}
	p := c.Safety.Circuit
	if p.WarningPct >= p.CriticalPct || p.CriticalPct >= p.EmergencyPct {
		errs = append(errs, "safety.circuit percentages must be strictly ascending")
	}
	if p.EmergencyPct > 1.0 {
		errs = append(errs, "safety.circuit percentages are fractions of max wattage (0..1)")
	}
	for i, cb := range c.Safety.Circuits {
		if cb.ID == "" {
			errs = append(errs, fmt.Sprintf("safety.circuits[%d].id is required", i))
		}
		if cb.MaxWatts <= 0 && (cb.MaxAmps <= 0 || cb.Voltage <= 0) {
			errs = append(errs, fmt.Sprintf("safety.circuits[%d] needs max_watts or max_amps+voltage", i))
		}
	}
	for i, lim := range c.Safety.Limits {
		if lim.ZoneID == "" && lim.DeviceID == "" {
			errs = append(errs, fmt.Sprintf("safety.limits[%d] needs zone_id or device_id", i))
		}
		switch lim.Action {
		case "alert", "reduce", "shutdown":
		default:
			errs = append(errs, fmt.Sprintf("safety.limits[%d].action must be alert, reduce, or shutdown", i))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// SweepInterval returns the safety sweep cadence as a Duration.
func (c *Config) SweepInterval() time.Duration {
	return time.Duration(c.Safety.SweepInterval) * time.Second
}

// RepeatInterval returns the safety debounce interval as a Duration.
// Zero means re-emit on every sweep.
func (c *Config) RepeatInterval() time.Duration {
	return time.Duration(c.Safety.RepeatInterval) * time.Second
}

// DefaultPollInterval returns the default collector poll interval.
func (c *Config) DefaultPollInterval() time.Duration {
	return time.Duration(c.Collection.DefaultPollInterval) * time.Millisecond
}

// BackstopPollInterval returns the backstop poll interval for
// subscription-driven collectors.
func (c *Config) BackstopPollInterval() time.Duration {
	return time.Duration(c.Collection.BackstopPollInterval) * time.Millisecond
}

// ModbusRequestTimeout returns the per-request Modbus timeout.
func (c *Config) ModbusRequestTimeout() time.Duration {
	return time.Duration(c.Protocols.Modbus.RequestTimeout) * time.Millisecond
}

// DiscoveryWindow returns the passive discovery listen window.
func (c *Config) DiscoveryWindow() time.Duration {
	return time.Duration(c.Discovery.Window) * time.Second
}
