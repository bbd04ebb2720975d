package vending

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/nerrad567/vmsim/internal/infrastructure/config"
)

func newTestDevice(faults config.FaultsConfig, interval time.Duration, r Rand) (*Device, *recordingTransport) {
	transport := &recordingTransport{}
	d := NewDevice(DeviceConfig{
		Info: DeviceInfo{
			DeviceNo: testDevice,
			Firmware: "5.0.1",
			Hardware: "v3.2",
			RSSI:     -65,
			Location: Location{Lat: 39.9042, Lng: 116.4074},
		},
		Faults:            faults,
		TelemetryInterval: interval,
		MediaBaseURL:      "https://oss.example.com",
		Rand:              r,
		Transport:         transport,
		Now:               fixedNow,
	})
	return d, transport
}

// startDevice runs d until the test ends.
func startDevice(t *testing.T, d *Device) context.CancelFunc {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- d.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		if err := <-errCh; err != nil {
			t.Errorf("Run() error = %v", err)
		}
	})
	return cancel
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestDevice_LinkUpPublishesOnlineAndTelemetry(t *testing.T) {
	d, transport := newTestDevice(noFaults(), 10*time.Millisecond, NewRand(7))
	startDevice(t, d)

	if err := d.SetLinkUp(context.Background(), true); err != nil {
		t.Fatalf("SetLinkUp() error = %v", err)
	}

	waitFor(t, "telemetry", func() bool { return len(transport.onTopic("telemetry")) > 0 })

	status := transport.onTopic("status")
	if len(status) == 0 {
		t.Fatal("no status published on link up")
	}
	if s := decodeStatus(t, status[0].Payload); s.Status != StatusOnline {
		t.Errorf("status = %q, want online", s.Status)
	}
}

func TestDevice_CommandsAckedInOrder(t *testing.T) {
	d, transport := newTestDevice(noFaults(), time.Hour, NewRand(7))
	startDevice(t, d)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		raw := fmt.Sprintf(`{"cmd_id":"c%d","action":"DISPENSE","params":{"meal_cid":"M-01"}}`, i)
		if err := d.Enqueue(ctx, []byte(raw)); err != nil {
			t.Fatalf("Enqueue() error = %v", err)
		}
	}

	waitFor(t, "three acks", func() bool { return len(transport.onTopic("commands/ack")) == 3 })

	for i, a := range transport.acks(t) {
		if want := fmt.Sprintf("c%d", i+1); a.CmdID != want {
			t.Errorf("ack[%d].CmdID = %q, want %q", i, a.CmdID, want)
		}
	}

	snap, err := d.Snapshot(ctx)
	if err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}
	if snap.MealChannels[0].ID != "M-01" || snap.MealChannels[0].Stock != 1 {
		t.Errorf("M-01 = %+v, want stock 1", snap.MealChannels[0])
	}
	if len(snap.MealChannels) != 48 || len(snap.SauceChannels) != 5 {
		t.Errorf("channels = %d meal / %d sauce, want 48/5", len(snap.MealChannels), len(snap.SauceChannels))
	}
	if snap.DeviceNo != testDevice {
		t.Errorf("DeviceNo = %q", snap.DeviceNo)
	}
}

func TestDevice_LinkDownPausesTelemetry(t *testing.T) {
	d, transport := newTestDevice(noFaults(), 5*time.Millisecond, NewRand(7))
	startDevice(t, d)
	ctx := context.Background()

	if err := d.SetLinkUp(ctx, true); err != nil {
		t.Fatalf("SetLinkUp(true) error = %v", err)
	}
	waitFor(t, "telemetry", func() bool { return len(transport.onTopic("telemetry")) > 0 })

	if err := d.SetLinkUp(ctx, false); err != nil {
		t.Fatalf("SetLinkUp(false) error = %v", err)
	}
	snap, err := d.Snapshot(ctx)
	if err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}
	if snap.Online {
		t.Fatal("Snapshot().Online = true after link down")
	}

	before := len(transport.onTopic("telemetry"))
	time.Sleep(30 * time.Millisecond)
	if after := len(transport.onTopic("telemetry")); after != before {
		t.Errorf("telemetry continued while offline: %d -> %d", before, after)
	}
}

func TestDevice_StoppedRejectsWork(t *testing.T) {
	d, _ := newTestDevice(noFaults(), time.Hour, NewRand(7))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = d.Run(ctx)
		close(done)
	}()
	cancel()
	<-done

	if err := d.Enqueue(context.Background(), []byte(`{}`)); !errors.Is(err, ErrDeviceStopped) {
		t.Errorf("Enqueue() error = %v, want ErrDeviceStopped", err)
	}
	if err := d.SetLinkUp(context.Background(), true); !errors.Is(err, ErrDeviceStopped) {
		t.Errorf("SetLinkUp() error = %v, want ErrDeviceStopped", err)
	}
	if _, err := d.Snapshot(context.Background()); !errors.Is(err, ErrDeviceStopped) {
		t.Errorf("Snapshot() error = %v, want ErrDeviceStopped", err)
	}
}

func TestDevice_TelemetryFaults(t *testing.T) {
	r := &scriptedRand{ints: []int{2, 3}, fallback: 0.5}
	d, transport := newTestDevice(config.FaultsConfig{OverTemperature: 1, Vandalism: 1, DoorOpen: 1}, 10*time.Second, r)

	d.telemetryTick()

	events := transport.events(t)
	if len(events) != 3 {
		t.Fatalf("events = %d, want 3", len(events))
	}
	if events[0].EventType != EventTempOverheat || events[0].Data["zone_index"] != float64(3) ||
		events[0].Data["temperature"] != -8.0 || events[0].Data["threshold"] != -10.0 {
		t.Errorf("overheat event = %+v", events[0])
	}
	if events[1].EventType != EventVandalismAlert || events[1].Data["g_force"] != 3.75 {
		t.Errorf("vandalism event = %+v", events[1])
	}
	if events[2].EventType != EventDoorOpened || events[2].Data["door_id"] != "MAIN" {
		t.Errorf("door event = %+v", events[2])
	}

	if d.state.Sensors.FreezerTemps[3] != -8.0 {
		t.Errorf("zone 3 = %v, want -8.0", d.state.Sensors.FreezerTemps[3])
	}
	if d.state.Sensors.DoorClosed {
		t.Error("door_closed = true after door fault")
	}

	tel := transport.onTopic("telemetry")
	if len(tel) != 1 {
		t.Fatalf("telemetry messages = %d, want 1", len(tel))
	}
}

func TestDevice_TelemetryWithoutFaults(t *testing.T) {
	d, transport := newTestDevice(noFaults(), 10*time.Second, &scriptedRand{fallback: 0.5})
	d.state.Sensors.DoorClosed = false

	d.telemetryTick()

	if n := len(transport.events(t)); n != 0 {
		t.Errorf("events = %d, want 0", n)
	}
	if !d.state.Sensors.DoorClosed {
		t.Error("door not closed again on quiet tick")
	}
	if d.state.Sensors.UptimeSeconds != 10 {
		t.Errorf("uptime = %d, want 10", d.state.Sensors.UptimeSeconds)
	}
}
