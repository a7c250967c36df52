// Package influxdb implements the time-series sink for collected data.
//
// Every DataPoint emitted by the collection service is written here as a
// "device_readings" measurement tagged by device and quality. Writes are
// non-blocking and batched by the underlying InfluxDB v2 client; async
// failures surface through the SetOnError callback and are logged, never
// retried synchronously (the sink is a best-effort collaborator).
//
// The safety monitor additionally records derived circuit load so that
// operators can chart electrical headroom over time.
package influxdb
