package vending

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/nerrad567/vmsim/internal/infrastructure/config"
)

// =============================================================================
// Dispense
// =============================================================================

func TestDispense_DrainsChannel(t *testing.T) {
	f := newDispatcherFixture(noFaults(), DefaultInventory)

	for i := 1; i <= 3; i++ {
		f.send(t, fmt.Sprintf(`{"cmd_id":"c%d","action":"DISPENSE","params":{"meal_cid":"M-01"}}`, i))
	}
	if got := f.state.MealStock("M-01"); got != 1 {
		t.Fatalf("M-01 stock after 3 dispenses = %d, want 1", got)
	}

	f.send(t, `{"cmd_id":"c4","action":"DISPENSE","params":{"meal_cid":"M-01"}}`)
	f.send(t, `{"cmd_id":"c5","action":"DISPENSE","params":{"meal_cid":"M-01"}}`)

	acks := f.transport.acks(t)
	if len(acks) != 5 {
		t.Fatalf("acks = %d, want 5", len(acks))
	}
	for i, a := range acks[:4] {
		if a.Status != AckSuccess {
			t.Errorf("ack[%d].Status = %q, want success", i, a.Status)
		}
	}
	last := acks[4]
	if last.Status != AckFailed || last.Error == nil || last.Error.Code != CodeChannelEmpty {
		t.Errorf("ack after empty = %+v, want failed E101", last)
	}
	if last.Result != nil {
		t.Errorf("failed ack Result = %v, want nil", last.Result)
	}
	if got := f.state.MealStock("M-01"); got != 0 {
		t.Errorf("M-01 stock = %d, want 0", got)
	}

	events := f.transport.events(t)
	if n := len(events); n != 5 {
		t.Fatalf("events = %d, want 5", n)
	}
	failedEv := events[4]
	if failedEv.EventType != EventDispenseFailed || failedEv.Data["error_code"] != CodeChannelEmpty {
		t.Errorf("last event = %+v, want DISPENSE_FAILED E101", failedEv)
	}
	if failedEv.Priority != PriorityHigh {
		t.Errorf("DISPENSE_FAILED priority = %q, want high", failedEv.Priority)
	}
}

func TestDispense_SuccessPayload(t *testing.T) {
	f := newDispatcherFixture(noFaults(), DefaultInventory)

	f.send(t, `{"cmd_id":"ok","action":"DISPENSE","params":{"order_id":"ORD_1","meal_cid":"M-02","sauce_cid":"S-03","heat_seconds":60}}`)

	acks := f.transport.acks(t)
	result, ok := acks[0].Result.(map[string]any)
	if !ok {
		t.Fatalf("Result = %T, want object", acks[0].Result)
	}
	if result["executed_at"] != float64(testNow.Unix()) {
		t.Errorf("executed_at = %v, want %d", result["executed_at"], testNow.Unix())
	}
	if result["duration_ms"] != float64(60000) {
		t.Errorf("duration_ms = %v, want 60000", result["duration_ms"])
	}
	if acks[0].Error != nil {
		t.Errorf("success ack Error = %+v, want nil", acks[0].Error)
	}

	ev := f.transport.events(t)[0]
	if ev.EventType != EventDispenseSuccess || ev.Priority != PriorityNormal {
		t.Errorf("event = %+v, want DISPENSE_SUCCESS normal", ev)
	}
	if ev.Data["order_id"] != "ORD_1" || ev.Data["oven_id"] != "OVEN_A" {
		t.Errorf("event data = %v", ev.Data)
	}
	url, _ := ev.Data["image_url"].(string)
	if !strings.HasPrefix(url, "https://oss.example.com/VM-BJ-001/dispense_") || !strings.HasSuffix(url, ".jpg") {
		t.Errorf("image_url = %q", url)
	}

	if f.state.MealStock("M-02") != 3 || f.state.SauceStock("S-03") != 9 {
		t.Errorf("stock M-02 = %d S-03 = %d, want 3 and 9", f.state.MealStock("M-02"), f.state.SauceStock("S-03"))
	}

	snap := f.state.Snapshot()
	if snap.Ovens[0].Status != OvenIdle || snap.Ovens[0].Cycles != 1 {
		t.Errorf("OVEN_A = %+v, want idle with 1 cycle", snap.Ovens[0])
	}
}

func TestDispense_Defaults(t *testing.T) {
	f := newDispatcherFixture(noFaults(), DefaultInventory)

	f.send(t, `{"cmd_id":"d","action":"DISPENSE"}`)

	ev := f.transport.events(t)[0]
	want := map[string]any{
		"order_id":      "ORD_UNKNOWN",
		"meal_cid":      "M-01",
		"sauce_cid":     "S-01",
		"oven_id":       "OVEN_A",
		"heat_duration": float64(90),
	}
	for k, v := range want {
		if ev.Data[k] != v {
			t.Errorf("event %s = %v, want %v", k, ev.Data[k], v)
		}
	}
}

func TestDispense_Duplicate(t *testing.T) {
	f := newDispatcherFixture(noFaults(), DefaultInventory)

	f.send(t, `{"cmd_id":"X","action":"DISPENSE","params":{"meal_cid":"M-01"}}`)
	f.send(t, `{"cmd_id":"X","action":"DISPENSE","params":{"meal_cid":"M-01"}}`)

	acks := f.transport.acks(t)
	if len(acks) != 2 {
		t.Fatalf("acks = %d, want 2", len(acks))
	}
	if acks[0].Status != acks[1].Status || acks[1].Status != AckSuccess {
		t.Errorf("statuses = %q, %q, want success twice", acks[0].Status, acks[1].Status)
	}
	note, _ := acks[1].Result.(map[string]any)
	if note["note"] != "duplicate, already executed" {
		t.Errorf("duplicate result = %v", acks[1].Result)
	}
	if got := f.state.MealStock("M-01"); got != 3 {
		t.Errorf("M-01 stock = %d, want 3 (executed once)", got)
	}
	if n := len(f.transport.events(t)); n != 1 {
		t.Errorf("events = %d, want 1", n)
	}
}

func TestDuplicateReplaysFirstOutcome(t *testing.T) {
	empty := DefaultInventory
	empty.MealStock = 0

	tests := []struct {
		name       string
		inv        Inventory
		payload    string
		wantStatus AckStatus
		wantCode   string
	}{
		{"failed dispense", empty, `{"cmd_id":"X","action":"DISPENSE"}`, AckFailed, CodeChannelEmpty},
		{"unknown action", DefaultInventory, `{"cmd_id":"F","action":"FLY"}`, AckRejected, CodeUnknownAction},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newDispatcherFixture(noFaults(), tt.inv)

			f.send(t, tt.payload)
			f.send(t, tt.payload)

			acks := f.transport.acks(t)
			if len(acks) != 2 {
				t.Fatalf("acks = %d, want 2", len(acks))
			}
			for i, ack := range acks {
				if ack.Status != tt.wantStatus || ack.Error == nil || ack.Error.Code != tt.wantCode {
					t.Errorf("ack[%d] = %+v, want %s %s", i, ack, tt.wantStatus, tt.wantCode)
				}
			}
			if acks[0].Error != nil && acks[1].Error != nil && acks[0].Error.Message != acks[1].Error.Message {
				t.Errorf("messages = %q, %q, want identical", acks[0].Error.Message, acks[1].Error.Message)
			}
			note, _ := acks[1].Result.(map[string]any)
			if note["note"] != "duplicate, already executed" {
				t.Errorf("duplicate result = %v", acks[1].Result)
			}
		})
	}
}

func TestDispense_LockedTakesPrecedence(t *testing.T) {
	f := newDispatcherFixture(config.FaultsConfig{ChannelJam: 1, HeatingFailure: 1}, DefaultInventory)
	f.state.Lock("M-05")

	f.send(t, `{"cmd_id":"l","action":"DISPENSE","params":{"meal_cid":"M-05"}}`)

	ack := f.transport.acks(t)[0]
	if ack.Status != AckFailed || ack.Error.Code != CodeMotorOverload {
		t.Fatalf("ack = %+v, want failed E103", ack)
	}
	if ack.Error.Message != "Channel M-05 is locked" {
		t.Errorf("message = %q", ack.Error.Message)
	}
	if n := len(f.transport.events(t)); n != 0 {
		t.Errorf("events = %d, want 0", n)
	}
	if f.state.MealStock("M-05") != 4 {
		t.Errorf("stock changed on locked channel")
	}
	if f.rand.floatCalls != 0 {
		t.Errorf("fault rolls = %d, want 0 for locked channel", f.rand.floatCalls)
	}
}

func TestDispense_EmptyBeforeFaultRolls(t *testing.T) {
	inv := DefaultInventory
	inv.MealStock = 0
	f := newDispatcherFixture(config.FaultsConfig{ChannelJam: 1}, inv)

	f.send(t, `{"cmd_id":"e","action":"DISPENSE"}`)

	ack := f.transport.acks(t)[0]
	if ack.Error == nil || ack.Error.Code != CodeChannelEmpty {
		t.Fatalf("ack = %+v, want E101", ack)
	}
	if f.rand.floatCalls != 0 {
		t.Errorf("fault rolls = %d, want 0 for empty channel", f.rand.floatCalls)
	}
}

func TestDispense_Jam(t *testing.T) {
	f := newDispatcherFixture(config.FaultsConfig{ChannelJam: 1}, DefaultInventory)

	f.send(t, `{"cmd_id":"j1","action":"DISPENSE","params":{"meal_cid":"M-07"}}`)

	ack := f.transport.acks(t)[0]
	if ack.Status != AckFailed || ack.Error.Code != CodeMotorOverload || ack.Error.Message != "Channel M-07 jammed" {
		t.Fatalf("ack = %+v, want jammed E103", ack)
	}
	if !f.state.IsLocked("M-07") {
		t.Error("jammed channel not locked")
	}
	if f.state.MealStock("M-07") != 4 {
		t.Error("jam changed stock")
	}

	ev := f.transport.events(t)[0]
	if ev.EventType != EventChannelJam || ev.Priority != PriorityHigh {
		t.Errorf("event = %+v, want CHANNEL_JAM high", ev)
	}
	if ev.Data["motor_current"] != 4.5 {
		t.Errorf("motor_current = %v, want 4.5", ev.Data["motor_current"])
	}

	// A locked channel fails before any further roll.
	f.send(t, `{"cmd_id":"j2","action":"DISPENSE","params":{"meal_cid":"M-07"}}`)
	if msg := f.transport.acks(t)[1].Error.Message; msg != "Channel M-07 is locked" {
		t.Errorf("second dispense message = %q, want locked", msg)
	}
}

func TestDispense_HeatingFailure(t *testing.T) {
	f := newDispatcherFixture(config.FaultsConfig{HeatingFailure: 1}, DefaultInventory)
	f.rand.ints = []int{20}

	f.send(t, `{"cmd_id":"h","action":"DISPENSE","params":{"oven_id":"OVEN_B"}}`)

	ack := f.transport.acks(t)[0]
	if ack.Status != AckFailed || ack.Error.Code != CodeOvenPower {
		t.Fatalf("ack = %+v, want E201", ack)
	}
	if ack.Error.Message != "Oven OVEN_B heating failure" {
		t.Errorf("message = %q", ack.Error.Message)
	}

	ev := f.transport.events(t)[0]
	if ev.EventType != EventHeatingFailure || ev.Priority != PriorityHigh {
		t.Errorf("event = %+v, want HEATING_FAILURE high", ev)
	}
	if ev.Data["actual_power"] != float64(30) || ev.Data["expected_power"] != float64(1100) {
		t.Errorf("event data = %v", ev.Data)
	}
	if f.state.MealStock("M-01") != 4 {
		t.Error("heating failure changed stock")
	}

	snap := f.state.Snapshot()
	if oven := snap.Ovens[1]; oven.Status != OvenIdle || oven.Cycles != 0 {
		t.Errorf("OVEN_B = %+v, want idle with 0 cycles", oven)
	}
}

func TestDispense_SauceFloorsAtZero(t *testing.T) {
	inv := DefaultInventory
	inv.SauceStock = 0
	f := newDispatcherFixture(noFaults(), inv)

	f.send(t, `{"cmd_id":"s","action":"DISPENSE"}`)

	if f.transport.acks(t)[0].Status != AckSuccess {
		t.Fatal("dispense without sauce failed")
	}
	if got := f.state.SauceStock("S-01"); got != 0 {
		t.Errorf("S-01 stock = %d, want 0", got)
	}
}

func TestDispense_InvalidParams(t *testing.T) {
	tests := []struct {
		name   string
		params string
	}{
		{"meal_cid not string", `{"meal_cid":5}`},
		{"heat_seconds not integer", `{"heat_seconds":"long"}`},
		{"heat_seconds fractional", `{"heat_seconds":1.5}`},
		{"heat_seconds negative", `{"heat_seconds":-1}`},
		{"heat_seconds above limit", `{"heat_seconds":3601}`},
		{"heat_seconds overflows", `{"heat_seconds":1e16}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newDispatcherFixture(noFaults(), DefaultInventory)
			f.send(t, `{"cmd_id":"p","action":"DISPENSE","params":`+tt.params+`}`)

			ack := f.transport.acks(t)[0]
			if ack.Status != AckFailed || ack.Error.Code != CodeInvalidParams {
				t.Errorf("ack = %+v, want failed E002", ack)
			}
			if f.state.MealStock("M-01") != 4 {
				t.Error("invalid dispense changed stock")
			}
		})
	}
}

// =============================================================================
// Other actions
// =============================================================================

func TestLockAndUnlock(t *testing.T) {
	f := newDispatcherFixture(noFaults(), DefaultInventory)

	f.send(t, `{"cmd_id":"a","action":"LOCK_CHANNEL","params":{"channel_id":"M-10"}}`)
	if !f.state.IsLocked("M-10") {
		t.Fatal("LOCK_CHANNEL did not lock")
	}
	f.send(t, `{"cmd_id":"b","action":"LOCK_CHANNEL","params":{"channel_id":"M-10"}}`)
	f.send(t, `{"cmd_id":"c","action":"UNLOCK_CHANNEL","params":{"channel_id":"M-10"}}`)
	if f.state.IsLocked("M-10") {
		t.Fatal("UNLOCK_CHANNEL did not unlock")
	}

	acks := f.transport.acks(t)
	wantLocked := []bool{true, true, false}
	for i, a := range acks {
		res, _ := a.Result.(map[string]any)
		if a.Status != AckSuccess || res["channel_id"] != "M-10" || res["locked"] != wantLocked[i] {
			t.Errorf("ack[%d] = %+v", i, a)
		}
	}
}

func TestLock_MissingChannel(t *testing.T) {
	f := newDispatcherFixture(noFaults(), DefaultInventory)

	f.send(t, `{"cmd_id":"a","action":"LOCK_CHANNEL"}`)

	ack := f.transport.acks(t)[0]
	if ack.Status != AckFailed || ack.Error.Code != CodeInvalidParams {
		t.Errorf("ack = %+v, want failed E002", ack)
	}
}

func TestSimpleActions(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		key     string
		want    any
	}{
		{"start video", `{"cmd_id":"1","action":"START_VIDEO","params":{"camera_id":"CAM_1"}}`, "streaming", true},
		{"stop video default camera", `{"cmd_id":"2","action":"STOP_VIDEO"}`, "camera_id", "CAM_TOP"},
		{"reboot", `{"cmd_id":"3","action":"REBOOT","params":{"delay":30}}`, "scheduled_at", float64(testNow.Unix() + 30)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newDispatcherFixture(noFaults(), DefaultInventory)
			f.send(t, tt.payload)

			ack := f.transport.acks(t)[0]
			res, _ := ack.Result.(map[string]any)
			if ack.Status != AckSuccess || res[tt.key] != tt.want {
				t.Errorf("ack = %+v, want %s = %v", ack, tt.key, tt.want)
			}
		})
	}
}

func TestSetConfig(t *testing.T) {
	f := newDispatcherFixture(noFaults(), DefaultInventory)

	f.send(t, `{"cmd_id":"cfg","action":"SET_CONFIG","params":{"volume":3,"brightness":80}}`)

	res, _ := f.transport.acks(t)[0].Result.(map[string]any)
	updated, _ := res["updated"].([]any)
	if len(updated) != 2 || updated[0] != "brightness" || updated[1] != "volume" {
		t.Errorf("updated = %v, want [brightness volume]", res["updated"])
	}
	if f.state.Snapshot().Settings["volume"] != float64(3) {
		t.Error("setting not stored")
	}
}

func TestUnknownAction(t *testing.T) {
	f := newDispatcherFixture(noFaults(), DefaultInventory)

	f.send(t, `{"cmd_id":"u","action":"FLY"}`)

	acks := f.transport.acks(t)
	if len(acks) != 1 {
		t.Fatalf("acks = %d, want 1", len(acks))
	}
	if acks[0].Status != AckRejected || acks[0].Error.Code != CodeUnknownAction {
		t.Errorf("ack = %+v, want rejected E000", acks[0])
	}
	if acks[0].Error.Message != "Unknown action: FLY" {
		t.Errorf("message = %q", acks[0].Error.Message)
	}
}

func TestMalformedCommandsProduceNothing(t *testing.T) {
	payloads := []string{
		`not json`,
		`{}`,
		`{"cmd_id":"only-id"}`,
		`{"action":"DISPENSE"}`,
		`[1,2,3]`,
	}

	for _, p := range payloads {
		t.Run(p, func(t *testing.T) {
			f := newDispatcherFixture(noFaults(), DefaultInventory)
			err := f.dispatcher.Handle([]byte(p))
			if !errors.Is(err, ErrMalformedCommand) {
				t.Errorf("Handle() error = %v, want ErrMalformedCommand", err)
			}
			if n := f.transport.count(); n != 0 {
				t.Errorf("published %d messages, want 0", n)
			}
		})
	}
}

func TestHandlerPanicBecomesFailedAck(t *testing.T) {
	f := newDispatcherFixture(noFaults(), DefaultInventory)
	f.dispatcher.handlers["BOOM"] = func(Command) outcome {
		panic("motor controller exploded")
	}

	f.send(t, `{"cmd_id":"p","action":"BOOM"}`)

	acks := f.transport.acks(t)
	if len(acks) != 1 || acks[0].Status != AckFailed || acks[0].Error.Code != CodeInternalFailure {
		t.Errorf("acks = %+v, want one failed E999", acks)
	}
}

func TestAckPublishFailureReturned(t *testing.T) {
	f := newDispatcherFixture(noFaults(), DefaultInventory)
	f.transport.err = errBrokerDown

	err := f.dispatcher.Handle([]byte(`{"cmd_id":"x","action":"REBOOT"}`))
	if !errors.Is(err, errBrokerDown) {
		t.Errorf("Handle() error = %v, want %v", err, errBrokerDown)
	}
}

func TestEventPriority(t *testing.T) {
	tests := map[string]Priority{
		EventDispenseFailed:  PriorityHigh,
		EventChannelJam:      PriorityHigh,
		EventHeatingFailure:  PriorityHigh,
		EventDispenseSuccess: PriorityNormal,
		EventTempOverheat:    PriorityNormal,
		EventDoorOpened:      PriorityNormal,
	}
	for ev, want := range tests {
		if got := EventPriority(ev); got != want {
			t.Errorf("EventPriority(%s) = %q, want %q", ev, got, want)
		}
	}
}
