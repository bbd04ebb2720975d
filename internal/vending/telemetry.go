package vending

import "time"

// telemetryTick advances sensors, rolls the telemetry-time faults and
// publishes one report.
func (d *Device) telemetryTick() {
	now := d.now()
	d.sensors.Advance(d.state, d.interval)

	if d.faults.Roll(FaultOverTemperature) && len(d.state.Sensors.FreezerTemps) > 0 {
		zone := d.rand.Intn(len(d.state.Sensors.FreezerTemps))
		d.state.Sensors.FreezerTemps[zone] = overheatTemperature
		_ = d.publisher.Event(EventTempOverheat, map[string]any{
			"zone_index":  zone,
			"temperature": overheatTemperature,
			"threshold":   overheatThreshold,
		})
	}

	if d.faults.Roll(FaultVandalism) {
		_ = d.publisher.Event(EventVandalismAlert, map[string]any{
			"g_force":   round(d.rand.Float64()*2.5+2.5, 2),
			"image_url": d.media.Image("alert"),
			"video_url": d.media.Video("alert"),
		})
	}

	if d.faults.Roll(FaultDoorOpen) {
		d.state.Sensors.DoorClosed = false
		_ = d.publisher.Event(EventDoorOpened, map[string]any{
			"door_id":   "MAIN",
			"timestamp": now.Unix(),
		})
	} else {
		d.state.Sensors.DoorClosed = true
	}

	if err := d.publisher.Telemetry(d.sensors.Telemetry(d.state, now)); err != nil {
		d.logger.Debug("telemetry not sent", "error", err)
	}
}

// telemetryTicker pauses and resumes the periodic report.
type telemetryTicker struct {
	interval time.Duration
	ticker   *time.Ticker
}

// C returns the tick channel, or nil while paused.
func (t *telemetryTicker) C() <-chan time.Time {
	if t.ticker == nil {
		return nil
	}
	return t.ticker.C
}

func (t *telemetryTicker) start() {
	if t.ticker == nil {
		t.ticker = time.NewTicker(t.interval)
	}
}

func (t *telemetryTicker) stop() {
	if t.ticker != nil {
		t.ticker.Stop()
		t.ticker = nil
	}
}
