// Package influxdb provides InfluxDB connectivity for Greenhouse Core.
//
// It wraps the official influxdb-client-go v2 library with Greenhouse
// Core-specific patterns for connection management, telemetry writing, and
// health monitoring.
//
// # Purpose
//
// This package mirrors accepted sensor readings into a time-series bucket
// for dashboards and long-range analysis. The SQLite history store remains
// the system of record; the mirror is optional and the service runs fine
// without it.
//
// # Usage
//
//	cfg := config.InfluxDBConfig{
//	    Enabled: true,
//	    URL:     "http://localhost:8086",
//	    Token:   "your-token",
//	    Org:     "greenhouse",
//	    Bucket:  "telemetry",
//	}
//
//	client, err := influxdb.Connect(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	client.WriteReading("mod-abc", "temperature", 21.5, time.Now())
//
// # Thread Safety
//
// All methods are safe for concurrent use from multiple goroutines.
// The underlying write API uses non-blocking batched writes.
//
// # Error Handling
//
// Write operations are non-blocking and batch errors are logged via a callback.
// Connection and health check errors are returned directly.
//
// # Performance
//
// Writes are batched according to config.yaml settings (batch_size, flush_interval).
// This reduces network overhead for high-frequency telemetry data.
package influxdb
