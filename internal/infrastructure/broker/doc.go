// Package broker runs an in-process MQTT broker for local development
// and integration tests.
//
// It wraps mochi-mqtt with a single TCP listener, an allow-all auth hook
// and an inline client, so test code can publish commands and observe
// device traffic without a separate Mosquitto instance.
//
// Never enable the embedded broker in production: it accepts any client.
package broker
