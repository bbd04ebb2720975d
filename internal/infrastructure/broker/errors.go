package broker

import "errors"

// Domain errors for the broker package.
var (
	// ErrStartFailed is returned when the broker cannot be configured or started.
	ErrStartFailed = errors.New("broker: start failed")

	// ErrInvalidAddress is returned when the listen address is empty.
	ErrInvalidAddress = errors.New("broker: listen address cannot be empty")
)
