// Package database provides SQLite database connectivity for HelioLux Core.
//
// The database holds the audit trail: safety events emitted by the
// monitor and generic system alerts. Device and zone configuration live
// in YAML (see internal/infrastructure/config); time-series data goes to
// InfluxDB. SQLite is only the durable, append-mostly event store.
//
// This package manages:
//   - Database connection with WAL mode for concurrent access
//   - Schema migrations (embedded, additive-only)
//   - Connection pooling and lifecycle management
//
// Usage:
//
//	db, err := database.Open(cfg.Database)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
// Migrations are additive-only: new columns must be NULLABLE or carry a
// DEFAULT, and every migration ships both .up.sql and .down.sql.
package database
