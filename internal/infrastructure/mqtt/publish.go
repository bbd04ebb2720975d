package mqtt

import (
	"fmt"
)

// Maximum payload size for MQTT messages (1MB).
// This prevents resource exhaustion and aligns with typical broker limits.
const maxPayloadSize = 1 << 20 // 1MB

// Publish sends a message on the current session.
//
// QoS Levels:
//   - 0: At most once (telemetry)
//   - 1: At least once (acks, events, status)
//   - 2: Exactly once
//
// Retained is used only for the device status topic, so new subscribers
// immediately see whether a machine is online.
//
// Publish fails fast with ErrNotConnected while no session exists; it
// never queues.
//
// Example:
//
//	topic := mqtt.Topics{}.CommandAck("VM-BJ-001")
//	err := manager.Publish(topic, payload, mqtt.QoSAtLeastOnce, false)
func (m *ConnectionManager) Publish(topic string, payload []byte, qos byte, retained bool) error {
	if err := validatePublish(topic, payload, qos); err != nil {
		return err
	}

	sess, err := m.currentSession()
	if err != nil {
		return err
	}

	return sess.Publish(topic, qos, retained, payload)
}

func validatePublish(topic string, payload []byte, qos byte) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if qos > maxQoS {
		return ErrInvalidQoS
	}
	if len(payload) > maxPayloadSize {
		return fmt.Errorf("%w: payload size %d exceeds maximum %d bytes", ErrPublishFailed, len(payload), maxPayloadSize)
	}
	return nil
}
