package simulator

import "errors"

// Sentinel errors for fleet operations.
var (
	ErrNoDevices       = errors.New("simulator: no devices configured")
	ErrDuplicateDevice = errors.New("simulator: duplicate device number")
	ErrConnectionLost  = errors.New("simulator: connection abandoned")
)
