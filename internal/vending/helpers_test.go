package vending

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/vmsim/internal/infrastructure/config"
)

const testDevice = "VM-BJ-001"

var testNow = time.Unix(1700000000, 0)

func fixedNow() time.Time { return testNow }

// published is one message captured by recordingTransport.
type published struct {
	Topic    string
	Payload  []byte
	QoS      byte
	Retained bool
}

// recordingTransport records every publish. Set err to make publishes fail.
type recordingTransport struct {
	mu   sync.Mutex
	msgs []published
	err  error
}

func (r *recordingTransport) Publish(topic string, payload []byte, qos byte, retained bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.msgs = append(r.msgs, published{Topic: topic, Payload: payload, QoS: qos, Retained: retained})
	return nil
}

func (r *recordingTransport) onTopic(suffix string) []published {
	r.mu.Lock()
	defer r.mu.Unlock()
	topic := "v1/vm/" + testDevice + "/" + suffix
	var out []published
	for _, m := range r.msgs {
		if m.Topic == topic {
			out = append(out, m)
		}
	}
	return out
}

func (r *recordingTransport) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.msgs)
}

func (r *recordingTransport) acks(t *testing.T) []Ack {
	t.Helper()
	var acks []Ack
	for _, m := range r.onTopic("commands/ack") {
		var a Ack
		if err := json.Unmarshal(m.Payload, &a); err != nil {
			t.Fatalf("ack payload %s: %v", m.Payload, err)
		}
		acks = append(acks, a)
	}
	return acks
}

func (r *recordingTransport) events(t *testing.T) []Event {
	t.Helper()
	var events []Event
	for _, m := range r.onTopic("events") {
		var e Event
		if err := json.Unmarshal(m.Payload, &e); err != nil {
			t.Fatalf("event payload %s: %v", m.Payload, err)
		}
		events = append(events, e)
	}
	return events
}

// scriptedRand returns queued values, then fallback values. It counts draws.
type scriptedRand struct {
	floats     []float64
	ints       []int
	fallback   float64
	floatCalls int
	intCalls   int
}

func (r *scriptedRand) Float64() float64 {
	r.floatCalls++
	if len(r.floats) > 0 {
		v := r.floats[0]
		r.floats = r.floats[1:]
		return v
	}
	return r.fallback
}

func (r *scriptedRand) Intn(n int) int {
	r.intCalls++
	if len(r.ints) > 0 {
		v := r.ints[0]
		r.ints = r.ints[1:]
		return v % n
	}
	return 0
}

type dispatcherFixture struct {
	dispatcher *Dispatcher
	state      *DeviceState
	transport  *recordingTransport
	rand       *scriptedRand
}

func newDispatcherFixture(faults config.FaultsConfig, inv Inventory) *dispatcherFixture {
	info := DeviceInfo{DeviceNo: testDevice, Firmware: "5.0.1", Hardware: "v3.2", RSSI: -65}
	state := NewDeviceState(info, inv)
	transport := &recordingTransport{}
	rnd := &scriptedRand{fallback: 0.5}
	pub := NewPublisher(PublisherConfig{Info: info, Transport: transport, Now: fixedNow})

	d := NewDispatcher(DispatcherConfig{
		State:     state,
		Faults:    NewFaultInjector(faults, rnd),
		Publisher: pub,
		Media:     NewMediaRefs("https://oss.example.com", testDevice, fixedNow),
		Rand:      rnd,
		Now:       fixedNow,
	})
	return &dispatcherFixture{dispatcher: d, state: state, transport: transport, rand: rnd}
}

func (f *dispatcherFixture) send(t *testing.T, payload string) {
	t.Helper()
	if err := f.dispatcher.Handle([]byte(payload)); err != nil {
		t.Fatalf("Handle(%s) error = %v", payload, err)
	}
}

func noFaults() config.FaultsConfig { return config.FaultsConfig{} }

var errBrokerDown = errors.New("broker down")
