package mqtt

import (
	"fmt"
)

// Subscribe registers a handler for messages on the specified topic.
//
// Subscriptions are tracked and re-established on every new session,
// so a device can subscribe before the first Connect. When a session is
// live the broker subscription is made immediately; if that fails the
// subscription is dropped from tracking and the error returned.
//
// Example:
//
//	err := manager.Subscribe(mqtt.Topics{}.Commands("VM-BJ-001"), mqtt.QoSExactlyOnce,
//	    func(topic string, payload []byte) error {
//	        return device.Enqueue(payload)
//	    })
func (m *ConnectionManager) Subscribe(topic string, qos byte, handler MessageHandler) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if qos > maxQoS {
		return ErrInvalidQoS
	}
	if handler == nil {
		return fmt.Errorf("%w: handler cannot be nil", ErrSubscribeFailed)
	}

	m.subMu.Lock()
	defer m.subMu.Unlock()

	m.subscriptions[topic] = subscription{
		topic:   topic,
		qos:     qos,
		handler: handler,
	}

	sess, err := m.currentSession()
	if err != nil {
		// Restored on the next connect.
		return nil
	}

	if err := sess.Subscribe(topic, qos, m.wrapHandler(handler)); err != nil {
		delete(m.subscriptions, topic)
		return err
	}
	return nil
}

// SubscriptionCount returns the number of tracked subscriptions.
func (m *ConnectionManager) SubscriptionCount() int {
	m.subMu.Lock()
	defer m.subMu.Unlock()
	return len(m.subscriptions)
}

// HasSubscription checks if a subscription exists for the given topic.
//
// Note: This checks only the exact topic string, not pattern matching.
func (m *ConnectionManager) HasSubscription(topic string) bool {
	m.subMu.Lock()
	defer m.subMu.Unlock()
	_, exists := m.subscriptions[topic]
	return exists
}
