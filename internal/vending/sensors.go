package vending

import (
	"math"
	"time"
)

// Sensor bounds.
const (
	rssiMin     = -110
	rssiMax     = -40
	defaultRSSI = -65

	overheatTemperature = -8.0
	overheatThreshold   = -10.0
)

// SensorSource produces cosmetic sensor values. It has no effect on
// command handling.
type SensorSource struct {
	rand Rand
}

// NewSensorSource returns a source drawing from r.
func NewSensorSource(r Rand) *SensorSource {
	return &SensorSource{rand: r}
}

// Advance moves the readings forward by one telemetry interval.
func (s *SensorSource) Advance(st *DeviceState, interval time.Duration) {
	st.Sensors.UptimeSeconds += int64(interval / time.Second)

	// Random walk in [-2, 2].
	st.Info.RSSI = clampInt(st.Info.RSSI+s.rand.Intn(5)-2, rssiMin, rssiMax)

	for i, t := range st.Sensors.FreezerTemps {
		st.Sensors.FreezerTemps[i] = round(t+(s.rand.Float64()-0.5)*0.2, 2)
	}
	st.Sensors.AmbientTemp = round(25+s.rand.Float64()*2, 1)
	st.Sensors.VibrationG = round(s.rand.Float64()*0.05, 3)
}

// Telemetry builds the telemetry payload from the current readings.
func (s *SensorSource) Telemetry(st *DeviceState, now time.Time) Telemetry {
	return Telemetry{
		DeviceNo: st.Info.DeviceNo,
		TS:       now.UTC().Format(time.RFC3339Nano),
		Priority: PriorityLow,
		System: TelemetrySystem{
			Voltage:    round(st.Sensors.Voltage+(s.rand.Float64()-0.5), 1),
			Current:    round(st.Sensors.Current+(s.rand.Float64()-0.5)*0.2, 2),
			Uptime:     st.Sensors.UptimeSeconds,
			DoorClosed: st.Sensors.DoorClosed,
		},
		Environment: TelemetryEnvironment{
			FreezerTemps: append([]float64(nil), st.Sensors.FreezerTemps...),
			AmbientTemp:  st.Sensors.AmbientTemp,
			VibrationG:   st.Sensors.VibrationG,
		},
		Connectivity: TelemetryLink{
			RSSI: st.Info.RSSI,
			Type: "4G",
			CSQ:  CSQ(st.Info.RSSI),
		},
		Location: Location{
			Lat: round(st.Info.Location.Lat+(s.rand.Float64()-0.5)*0.0001, 6),
			Lng: round(st.Info.Location.Lng+(s.rand.Float64()-0.5)*0.0001, 6),
		},
	}
}

// CSQ converts RSSI in dBm to the 3GPP signal quality index.
func CSQ(rssi int) int {
	return int(math.Floor(float64(rssi+113) / 2))
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
