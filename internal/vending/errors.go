package vending

import "errors"

// Domain errors for the vending package.
var (
	// ErrMalformedCommand is returned when a command payload is not valid
	// JSON or lacks cmd_id or action. Such payloads produce no ack.
	ErrMalformedCommand = errors.New("vending: malformed command")

	// ErrDeviceStopped is returned when a device's actor is no longer running.
	ErrDeviceStopped = errors.New("vending: device stopped")

	// ErrInvalidParams is returned when a command parameter has the wrong type
	// or a required parameter is missing.
	ErrInvalidParams = errors.New("vending: invalid parameters")
)
