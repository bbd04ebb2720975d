package simulator

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/nerrad567/vmsim/internal/infrastructure/influxdb"
	"github.com/nerrad567/vmsim/internal/vending"
)

// PointWriter is the subset of influxdb.Client the sink uses.
type PointWriter interface {
	WriteTelemetry(s influxdb.TelemetrySample)
	WriteEvent(deviceNo, eventType, priority string, ts time.Time)
}

// InfluxSink mirrors telemetry (as a vending.TelemetryRecorder) and
// events (as a vending.Tap) into InfluxDB. Writes are queued by the
// client and never block the device.
type InfluxSink struct {
	writer PointWriter
	now    func() time.Time
}

// NewInfluxSink wraps w.
func NewInfluxSink(w PointWriter) *InfluxSink {
	return &InfluxSink{writer: w, now: time.Now}
}

// RecordTelemetry implements vending.TelemetryRecorder.
func (s *InfluxSink) RecordTelemetry(t vending.Telemetry) {
	ts, err := time.Parse(time.RFC3339Nano, t.TS)
	if err != nil {
		ts = s.now()
	}
	s.writer.WriteTelemetry(influxdb.TelemetrySample{
		DeviceNo:      t.DeviceNo,
		Time:          ts,
		Voltage:       t.System.Voltage,
		Current:       t.System.Current,
		UptimeSeconds: t.System.Uptime,
		DoorClosed:    t.System.DoorClosed,
		FreezerTemps:  t.Environment.FreezerTemps,
		AmbientTemp:   t.Environment.AmbientTemp,
		VibrationG:    t.Environment.VibrationG,
		RSSI:          t.Connectivity.RSSI,
		CSQ:           t.Connectivity.CSQ,
		Lat:           t.Location.Lat,
		Lng:           t.Location.Lng,
	})
}

// Observe implements vending.Tap. Only messages on an events topic are
// recorded; everything else is ignored.
func (s *InfluxSink) Observe(msg vending.Outbound) {
	if !strings.HasSuffix(msg.Topic, "/events") {
		return
	}
	var ev vending.Event
	if err := json.Unmarshal(msg.Payload, &ev); err != nil || ev.EventType == "" {
		return
	}
	ts := time.Unix(ev.TS, 0)
	if ev.TS == 0 {
		ts = s.now()
	}
	s.writer.WriteEvent(msg.DeviceNo, ev.EventType, string(ev.Priority), ts)
}
