package mqtt

import "fmt"

// TopicPrefix is the root of every vending-machine topic.
const TopicPrefix = "v1/vm"

// Topics provides builders for per-device MQTT topics.
// Using these helpers ensures consistent topic naming across the codebase.
//
//	topics := mqtt.Topics{}
//	statusTopic := topics.Status("VM-BJ-001")
//	// Returns: "v1/vm/VM-BJ-001/status"
type Topics struct{}

// Base returns the per-device topic root.
//
// Example: v1/vm/VM-BJ-001
func (Topics) Base(deviceNo string) string {
	return fmt.Sprintf("%s/%s", TopicPrefix, deviceNo)
}

// Status returns the retained online/offline status topic.
//
// Example: v1/vm/VM-BJ-001/status
func (t Topics) Status(deviceNo string) string {
	return t.Base(deviceNo) + "/status"
}

// Commands returns the inbound command topic.
//
// Example: v1/vm/VM-BJ-001/commands
func (t Topics) Commands(deviceNo string) string {
	return t.Base(deviceNo) + "/commands"
}

// CommandAck returns the command acknowledgement topic.
//
// Example: v1/vm/VM-BJ-001/commands/ack
func (t Topics) CommandAck(deviceNo string) string {
	return t.Base(deviceNo) + "/commands/ack"
}

// Events returns the state-change event topic.
//
// Example: v1/vm/VM-BJ-001/events
func (t Topics) Events(deviceNo string) string {
	return t.Base(deviceNo) + "/events"
}

// Telemetry returns the periodic telemetry topic.
//
// Example: v1/vm/VM-BJ-001/telemetry
func (t Topics) Telemetry(deviceNo string) string {
	return t.Base(deviceNo) + "/telemetry"
}

// AllStatus returns a pattern matching every device status topic.
//
// Pattern: v1/vm/+/status
func (Topics) AllStatus() string {
	return TopicPrefix + "/+/status"
}

// AllAcks returns a pattern matching every device acknowledgement topic.
//
// Pattern: v1/vm/+/commands/ack
func (Topics) AllAcks() string {
	return TopicPrefix + "/+/commands/ack"
}
