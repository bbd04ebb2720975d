package vending

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nerrad567/vmsim/internal/infrastructure/mqtt"
)

// Transport is the interface for publishing messages.
// This is implemented by mqtt.ConnectionManager.
type Transport interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// Outbound describes one message handed to the transport.
type Outbound struct {
	DeviceNo string          `json:"device_no"`
	Topic    string          `json:"topic"`
	QoS      byte            `json:"qos"`
	Retained bool            `json:"retained"`
	Payload  json.RawMessage `json:"payload"`
}

// Tap observes every message the publisher sends successfully.
type Tap interface {
	Observe(msg Outbound)
}

// TapFunc adapts a function to the Tap interface.
type TapFunc func(msg Outbound)

// Observe calls f(msg).
func (f TapFunc) Observe(msg Outbound) { f(msg) }

// TelemetryRecorder mirrors telemetry to a time-series store.
// Implementations must not block.
type TelemetryRecorder interface {
	RecordTelemetry(t Telemetry)
}

// Publisher serialises acks, events, status and telemetry for one device
// and sends them on that device's topics.
type Publisher struct {
	info      DeviceInfo
	transport Transport
	topics    mqtt.Topics
	taps      []Tap
	recorder  TelemetryRecorder
	logger    Logger
	now       func() time.Time
}

// PublisherConfig holds the collaborators of a Publisher.
type PublisherConfig struct {
	Info      DeviceInfo
	Transport Transport

	// Taps and Recorder are optional.
	Taps     []Tap
	Recorder TelemetryRecorder

	Logger Logger
	Now    func() time.Time
}

// NewPublisher creates a Publisher.
func NewPublisher(cfg PublisherConfig) *Publisher {
	p := &Publisher{
		info:      cfg.Info,
		transport: cfg.Transport,
		taps:      cfg.Taps,
		recorder:  cfg.Recorder,
		logger:    cfg.Logger,
		now:       cfg.Now,
	}
	if p.logger == nil {
		p.logger = noopLogger{}
	}
	if p.now == nil {
		p.now = time.Now
	}
	return p
}

// Ack publishes a command acknowledgement.
// Topic: {base}/commands/ack, QoS 1.
func (p *Publisher) Ack(ack Ack) error {
	return p.publish(p.topics.CommandAck(p.info.DeviceNo), ack, mqtt.QoSAtLeastOnce, false)
}

// Event publishes a state-change event stamped with the current time.
// Topic: {base}/events, QoS 1.
func (p *Publisher) Event(eventType string, data map[string]any) error {
	ev := Event{
		EventType: eventType,
		Data:      data,
		TS:        p.now().Unix(),
		Priority:  EventPriority(eventType),
	}
	return p.publish(p.topics.Events(p.info.DeviceNo), ev, mqtt.QoSAtLeastOnce, false)
}

// Online publishes the retained online status.
// Topic: {base}/status, QoS 1, retained.
func (p *Publisher) Online() error {
	return p.publish(p.topics.Status(p.info.DeviceNo), p.status(StatusOnline, ""), mqtt.QoSAtLeastOnce, true)
}

// Telemetry publishes a telemetry report and mirrors it to the recorder.
// Topic: {base}/telemetry, QoS 0.
func (p *Publisher) Telemetry(t Telemetry) error {
	if err := p.publish(p.topics.Telemetry(p.info.DeviceNo), t, mqtt.QoSAtMostOnce, false); err != nil {
		return err
	}
	if p.recorder != nil {
		p.recorder.RecordTelemetry(t)
	}
	return nil
}

// WillMessage returns the last will registered with the broker.
// The broker publishes it if the session ends uncleanly.
func (p *Publisher) WillMessage() mqtt.Message {
	return p.statusMessage(StatusOffline, ReasonUnexpected)
}

// OfflineMessage returns the status published on graceful shutdown.
func (p *Publisher) OfflineMessage() mqtt.Message {
	return p.statusMessage(StatusOffline, ReasonShutdown)
}

func (p *Publisher) statusMessage(status, reason string) mqtt.Message {
	payload, err := json.Marshal(p.status(status, reason))
	if err != nil {
		// StatusMessage has only string and integer fields.
		panic(fmt.Sprintf("vending: encoding status: %v", err))
	}
	return mqtt.Message{
		Topic:    p.topics.Status(p.info.DeviceNo),
		Payload:  payload,
		QoS:      mqtt.QoSAtLeastOnce,
		Retained: true,
	}
}

func (p *Publisher) status(status, reason string) StatusMessage {
	msg := StatusMessage{
		Status:   status,
		DeviceNo: p.info.DeviceNo,
		Reason:   reason,
		TS:       p.now().Unix(),
	}
	if status == StatusOnline {
		msg.Firmware = p.info.Firmware
		msg.Hardware = p.info.Hardware
	}
	return msg
}

func (p *Publisher) publish(topic string, v any, qos byte, retained bool) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", topic, err)
	}

	if err := p.transport.Publish(topic, payload, qos, retained); err != nil {
		p.logger.Warn("publish failed",
			"topic", topic,
			"error", err,
		)
		return err
	}

	if len(p.taps) > 0 {
		msg := Outbound{
			DeviceNo: p.info.DeviceNo,
			Topic:    topic,
			QoS:      qos,
			Retained: retained,
			Payload:  payload,
		}
		for _, tap := range p.taps {
			tap.Observe(msg)
		}
	}
	return nil
}
