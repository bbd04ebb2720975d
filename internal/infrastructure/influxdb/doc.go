// Package influxdb mirrors vending-machine telemetry and events into
// InfluxDB v2 for dashboards.
//
// Points go through the batching write API of influxdb-client-go v2.
// The admin API reports HealthCheck under /api/v1/health.
//
// # Measurements
//
//   - vm_telemetry: power, uptime, door, ambient, vibration, link and
//     position fields, tagged device_no
//   - vm_freezer: one temperature per freezer zone, tagged device_no, zone
//   - vm_events: count=1 per event, tagged device_no, event_type, priority
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.WriteTelemetry(sample)
//
// # Error Handling
//
// Writes never block or fail inline. Batch errors go to the SetOnError
// callback; Connect and HealthCheck return theirs.
package influxdb
