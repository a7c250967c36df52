// HelioLux Core - Horticultural Device Gateway
//
// This is the main entry point for the HelioLux Core application.
// HelioLux Core is an industrial device integration gateway designed for:
//   - Uniform access to Modbus, BACnet/IP, MQTT, OPC UA, and HLP fixtures
//   - Continuous telemetry collection into a latest-value cache
//   - A safety monitor with graduated alert/reduce/shutdown responses
//
// For architecture details, see: docs/architecture/system-overview.md
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/heliolux/helio-core/migrations"

	"github.com/heliolux/helio-core/internal/audit"
	"github.com/heliolux/helio-core/internal/collection"
	"github.com/heliolux/helio-core/internal/device"
	"github.com/heliolux/helio-core/internal/gateway"
	"github.com/heliolux/helio-core/internal/infrastructure/config"
	"github.com/heliolux/helio-core/internal/infrastructure/database"
	"github.com/heliolux/helio-core/internal/infrastructure/influxdb"
	"github.com/heliolux/helio-core/internal/infrastructure/logging"
	"github.com/heliolux/helio-core/internal/infrastructure/mqtt"
	"github.com/heliolux/helio-core/internal/safety"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	// Create a context that cancels on interrupt signals (Ctrl+C, SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
// Returning an error allows main to handle exit codes consistently.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting HelioLux Core",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	// Load configuration
	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Open database
	db, err := database.Open(database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	log.Info("database connected", "path", cfg.Database.Path)

	// Run migrations
	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	// Audit trail lives in SQLite alongside the schema migrations
	auditRepo := audit.NewRepository(db.DB)

	// Load the device inventory into the registry
	registry := device.NewRegistry()
	registry.SetLogger(log)
	if cfg.Devices.File != "" {
		devices, loadErr := device.LoadFile(cfg.Devices.File)
		if loadErr != nil {
			return fmt.Errorf("loading device inventory: %w", loadErr)
		}
		for _, dev := range devices {
			if regErr := registry.Register(dev); regErr != nil {
				return fmt.Errorf("registering device %q: %w", dev.ID, regErr)
			}
		}
	}
	log.Info("device registry initialised", "devices", registry.Count())

	// Connect to MQTT broker
	mqttClient, err := mqtt.Connect(cfg.MQTT)
	if err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
	defer func() {
		log.Info("disconnecting from MQTT")
		if closeErr := mqttClient.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}()
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)

	mqttClient.SetLogger(log)
	mqttClient.SetOnConnect(func() {
		log.Info("MQTT reconnected")
	})
	mqttClient.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})

	// Connect to InfluxDB (optional)
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)

		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
	} else {
		log.Info("InfluxDB disabled")
	}

	// A nil *influxdb.Client must not become a non-nil interface
	var sink collection.Sink
	var loads safety.LoadSink
	if influxClient != nil {
		sink = influxClient
		loads = influxClient
	}

	// Assemble the gateway: protocol clients, collection, discovery,
	// and the safety monitor. BACnet and OPC UA backends are injected
	// by deployments that carry them; devices on those protocols fail
	// fast with "not available" until a transport is wired.
	gw, err := gateway.New(cfg, registry, sink, auditRepo, loads,
		gateway.WithLogger(log),
		gateway.WithBroker(mqttClient),
		gateway.WithAlerter(auditRepo),
	)
	if err != nil {
		return fmt.Errorf("assembling gateway: %w", err)
	}

	// Verify all connections are healthy
	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, starting gateway")

	// Blocks until ctx is cancelled; collection and the safety monitor
	// are torn down before it returns.
	if err := gw.Run(ctx); err != nil {
		return fmt.Errorf("running gateway: %w", err)
	}

	log.Info("shutdown signal received, cleaning up")

	// Deferred Close() calls will run in reverse order:
	// 1. InfluxDB (if enabled)
	// 2. MQTT
	// 3. Database

	log.Info("HelioLux Core stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses HELIOLUX_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("HELIOLUX_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck verifies all infrastructure connections are healthy.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - db: Database connection to check
//   - mqttClient: MQTT client to check
//   - influxClient: InfluxDB client to check (may be nil if disabled)
//
// Returns:
//   - error: First health check failure, or nil if all healthy
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	if err := mqttClient.HealthCheck(ctx); err != nil {
		return fmt.Errorf("mqtt: %w", err)
	}

	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}

	return nil
}
