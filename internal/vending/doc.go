// Package vending simulates the behaviour of a frozen-meal vending machine.
//
// A Device is an actor: one goroutine owns a DeviceState and processes,
// in order, inbound commands, telemetry ticks, link up/down notices and
// snapshot requests. Commands go through the Dispatcher, which
// deduplicates on cmd_id with an IdempotencyCache, runs one handler and
// publishes exactly one ack. Handlers consult the FaultInjector for
// jams and heating failures; telemetry ticks consult it for
// over-temperature, vandalism and door events.
//
// All outbound messages go through a Publisher onto the device's topics:
//
//	v1/vm/{device_no}/status        retained online/offline, QoS 1
//	v1/vm/{device_no}/commands      inbound, QoS 2
//	v1/vm/{device_no}/commands/ack  QoS 1
//	v1/vm/{device_no}/events        QoS 1, carries a priority field
//	v1/vm/{device_no}/telemetry     QoS 0, priority low
//
// Nothing is persisted; inventory and the command cache reset on start.
package vending
