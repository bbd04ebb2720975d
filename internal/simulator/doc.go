// Package simulator runs a fleet of simulated vending machines.
//
// Each machine is a vending.Device actor paired with its own
// mqtt.ConnectionManager. The fleet wires the two together:
//   - commands arriving on {base}/commands (QoS 2) go to the device inbox
//   - connected / disconnected signals resume or pause telemetry
//   - a bounded reconnect budget running out stops the whole fleet
//
// On shutdown every connected machine publishes a retained offline
// status with reason "shutdown" before its session closes.
package simulator
