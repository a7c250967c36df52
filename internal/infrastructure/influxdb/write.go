package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WriteDataPoint writes one collected device measurement to InfluxDB.
//
// This is the primary sink method for the data-collection pipeline: every
// successful poll pass or subscription notification produces one call.
// The write is non-blocking; points are batched and sent asynchronously.
//
// Values are mapped to InfluxDB fields. Numeric types are widened to
// float64, booleans and strings pass through, anything else is dropped.
//
// Parameters:
//   - deviceID: Device the measurement came from
//   - ts: Measurement timestamp (collector read time or source timestamp)
//   - quality: Data quality tag (good, bad, uncertain)
//   - values: Point name → value map from the poll pass
func (c *Client) WriteDataPoint(deviceID string, ts time.Time, quality string, values map[string]any) {
	if !c.IsConnected() || len(values) == 0 {
		return
	}

	fields := make(map[string]interface{}, len(values))
	for name, v := range values {
		switch val := v.(type) {
		case float64:
			fields[name] = val
		case float32:
			fields[name] = float64(val)
		case int:
			fields[name] = float64(val)
		case int16:
			fields[name] = float64(val)
		case int32:
			fields[name] = float64(val)
		case int64:
			fields[name] = float64(val)
		case uint16:
			fields[name] = float64(val)
		case uint32:
			fields[name] = float64(val)
		case bool:
			fields[name] = val
		case string:
			fields[name] = val
		}
	}
	if len(fields) == 0 {
		return
	}

	point := write.NewPoint(
		"device_readings",
		map[string]string{
			"device_id": deviceID,
			"quality":   quality,
		},
		fields,
		ts,
	)

	c.writeAPI.WritePoint(point)
}

// WriteCircuitLoad records the derived load of one circuit breaker.
//
// The safety monitor recomputes circuit load every sweep; recording it
// gives operators a load history even though the gateway itself treats
// it as transient derived state.
func (c *Client) WriteCircuitLoad(circuitID string, loadWatts, maxWatts float64, status string) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"circuit_load",
		map[string]string{
			"circuit_id": circuitID,
			"status":     status,
		},
		map[string]interface{}{
			"load_watts": loadWatts,
			"max_watts":  maxWatts,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteCollectorStat records per-collector health counters.
//
// Parameters:
//   - deviceID: Collector's device
//   - pointsCollected: Total points collected so far
//   - failureCount: Total failed reads so far
//   - avgCollectionMs: Rolling average time per poll pass, in milliseconds
func (c *Client) WriteCollectorStat(deviceID string, pointsCollected, failureCount int64, avgCollectionMs float64) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"collector_stats",
		map[string]string{
			"device_id": deviceID,
		},
		map[string]interface{}{
			"points_collected":    pointsCollected,
			"failure_count":       failureCount,
			"avg_collection_time": avgCollectionMs,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}
