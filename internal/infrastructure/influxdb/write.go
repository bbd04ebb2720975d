package influxdb

import (
	"strconv"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names.
const (
	measurementTelemetry = "vm_telemetry"
	measurementFreezer   = "vm_freezer"
	measurementEvents    = "vm_events"
)

// TelemetrySample is one telemetry report flattened for storage.
type TelemetrySample struct {
	DeviceNo string
	Time     time.Time

	Voltage       float64
	Current       float64
	UptimeSeconds int64
	DoorClosed    bool

	FreezerTemps []float64
	AmbientTemp  float64
	VibrationG   float64

	RSSI int
	CSQ  int

	Lat float64
	Lng float64
}

// TelemetryPoints converts a sample into points: one vm_telemetry point
// plus one vm_freezer point per zone, all tagged with device_no.
func TelemetryPoints(s TelemetrySample) []*write.Point {
	points := make([]*write.Point, 0, 1+len(s.FreezerTemps))

	points = append(points, write.NewPoint(
		measurementTelemetry,
		map[string]string{
			"device_no": s.DeviceNo,
		},
		map[string]interface{}{
			"voltage":        s.Voltage,
			"current":        s.Current,
			"uptime_seconds": s.UptimeSeconds,
			"door_closed":    s.DoorClosed,
			"ambient_temp":   s.AmbientTemp,
			"vibration_g":    s.VibrationG,
			"rssi":           s.RSSI,
			"csq":            s.CSQ,
			"lat":            s.Lat,
			"lng":            s.Lng,
		},
		s.Time,
	))

	for zone, temp := range s.FreezerTemps {
		points = append(points, write.NewPoint(
			measurementFreezer,
			map[string]string{
				"device_no": s.DeviceNo,
				"zone":      strconv.Itoa(zone),
			},
			map[string]interface{}{
				"temperature": temp,
			},
			s.Time,
		))
	}

	return points
}

// EventPoint converts a device event into a vm_events point.
// Tags: device_no, event_type, priority. Field: count=1.
func EventPoint(deviceNo, eventType, priority string, ts time.Time) *write.Point {
	return write.NewPoint(
		measurementEvents,
		map[string]string{
			"device_no":  deviceNo,
			"event_type": eventType,
			"priority":   priority,
		},
		map[string]interface{}{
			"count": 1,
		},
		ts,
	)
}

// WriteTelemetry queues the points for one telemetry sample.
func (c *Client) WriteTelemetry(s TelemetrySample) {
	for _, p := range TelemetryPoints(s) {
		c.enqueue(p)
	}
}

// WriteEvent queues one event point.
func (c *Client) WriteEvent(deviceNo, eventType, priority string, ts time.Time) {
	c.enqueue(EventPoint(deviceNo, eventType, priority, ts))
}
