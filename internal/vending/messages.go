package vending

import (
	"encoding/json"
	"fmt"
	"strings"
)

// MQTT message types exchanged between a vending machine and its
// back office on the v1/vm/{device_no}/... topics.

// Action is a command verb.
type Action string

// Supported actions.
const (
	ActionDispense      Action = "DISPENSE"
	ActionStartVideo    Action = "START_VIDEO"
	ActionStopVideo     Action = "STOP_VIDEO"
	ActionReboot        Action = "REBOOT"
	ActionLockChannel   Action = "LOCK_CHANNEL"
	ActionUnlockChannel Action = "UNLOCK_CHANNEL"
	ActionSetConfig     Action = "SET_CONFIG"
)

// Command is received on {base}/commands.
// QoS: 2
type Command struct {
	// CmdID is the idempotency key. The broker may deliver it more than once.
	CmdID string `json:"cmd_id"`

	// Action selects the handler.
	Action Action `json:"action"`

	// Params are action-specific. Missing keys take documented defaults.
	Params map[string]any `json:"params,omitempty"`
}

// DecodeCommand parses a command payload.
// Returns ErrMalformedCommand for invalid JSON or a missing cmd_id or action.
func DecodeCommand(raw []byte) (Command, error) {
	var cmd Command
	if err := json.Unmarshal(raw, &cmd); err != nil {
		return Command{}, fmt.Errorf("%w: %w", ErrMalformedCommand, err)
	}
	if cmd.CmdID == "" {
		return Command{}, fmt.Errorf("%w: missing cmd_id", ErrMalformedCommand)
	}
	if cmd.Action == "" {
		return Command{}, fmt.Errorf("%w: missing action", ErrMalformedCommand)
	}
	if cmd.Params == nil {
		cmd.Params = map[string]any{}
	}
	return cmd, nil
}

// AckStatus represents the outcome of a command.
type AckStatus string

const (
	// AckSuccess indicates the command executed.
	AckSuccess AckStatus = "success"

	// AckFailed indicates a domain failure: empty channel, jam, lock, heating.
	AckFailed AckStatus = "failed"

	// AckRejected indicates the action is not understood.
	AckRejected AckStatus = "rejected"
)

// Ack is published on {base}/commands/ack.
// QoS: 1
type Ack struct {
	CmdID  string    `json:"cmd_id"`
	Status AckStatus `json:"status"`

	// Result is null on failure, except for a duplicate's note.
	Result any `json:"result"`

	// Error is null on success.
	Error *AckError `json:"error"`
}

// AckError carries a stable error code and a human-readable message.
type AckError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error codes. The table is part of the wire contract.
const (
	CodeUnknownAction    = "E000"
	CodeInvalidParams    = "E002"
	CodeChannelEmpty     = "E101"
	CodeSensorNotTripped = "E102"
	CodeMotorOverload    = "E103"
	CodeOvenPower        = "E201"
	CodeOvenTimeout      = "E202"
	CodeFreezerOverTemp  = "E301"
	CodeGPSLost          = "E401"
	CodeCameraOffline    = "E501"
	CodeInternalFailure  = "E999"
)

// CodeDescriptions maps each error code to its meaning.
var CodeDescriptions = map[string]string{
	CodeUnknownAction:    "Unknown action",
	CodeInvalidParams:    "Invalid parameters",
	CodeChannelEmpty:     "Channel empty",
	CodeSensorNotTripped: "Infrared sensor not triggered",
	CodeMotorOverload:    "Motor current overload",
	CodeOvenPower:        "Oven power abnormal",
	CodeOvenTimeout:      "Oven timeout",
	CodeFreezerOverTemp:  "Freezer zone over temperature",
	CodeGPSLost:          "GPS signal lost",
	CodeCameraOffline:    "Camera offline",
	CodeInternalFailure:  "Internal handler error",
}

// Event types published on {base}/events.
const (
	EventDispenseSuccess = "DISPENSE_SUCCESS"
	EventDispenseFailed  = "DISPENSE_FAILED"
	EventChannelJam      = "CHANNEL_JAM"
	EventHeatingFailure  = "HEATING_FAILURE"
	EventTempOverheat    = "TEMP_OVERHEAT"
	EventVandalismAlert  = "VANDALISM_ALERT"
	EventDoorOpened      = "DOOR_OPENED"
)

// Priority is the delivery hint attached to events and telemetry.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityNormal Priority = "normal"
	PriorityLow    Priority = "low"
)

// EventPriority returns high for failure and jam events, normal otherwise.
func EventPriority(eventType string) Priority {
	if strings.Contains(eventType, "FAIL") || strings.Contains(eventType, "JAM") {
		return PriorityHigh
	}
	return PriorityNormal
}

// Event is published on {base}/events.
// QoS: 1
type Event struct {
	EventType string         `json:"event_type"`
	Data      map[string]any `json:"data"`

	// TS is Unix seconds.
	TS int64 `json:"ts"`

	Priority Priority `json:"priority"`
}

// StatusMessage is published on {base}/status.
// QoS: 1, Retained: Yes
type StatusMessage struct {
	Status   string `json:"status"`
	DeviceNo string `json:"device_no"`
	Firmware string `json:"firmware,omitempty"`
	Hardware string `json:"hardware,omitempty"`

	// Reason is set on offline messages: "unexpected" for the last will,
	// "shutdown" for a graceful disconnect.
	Reason string `json:"reason,omitempty"`

	TS int64 `json:"ts"`
}

// Status values.
const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)

// Offline reasons.
const (
	ReasonUnexpected = "unexpected"
	ReasonShutdown   = "shutdown"
)

// Telemetry is published on {base}/telemetry.
// QoS: 0
type Telemetry struct {
	DeviceNo     string               `json:"device_no"`
	TS           string               `json:"ts"`
	Priority     Priority             `json:"priority"`
	System       TelemetrySystem      `json:"system"`
	Environment  TelemetryEnvironment `json:"environment"`
	Connectivity TelemetryLink        `json:"connectivity"`
	Location     Location             `json:"location"`
}

// TelemetrySystem is the power and uptime block.
type TelemetrySystem struct {
	Voltage    float64 `json:"voltage"`
	Current    float64 `json:"current"`
	Uptime     int64   `json:"uptime"`
	DoorClosed bool    `json:"door_closed"`
}

// TelemetryEnvironment is the temperature and vibration block.
type TelemetryEnvironment struct {
	FreezerTemps []float64 `json:"freezer_temps"`
	AmbientTemp  float64   `json:"ambient_temp"`
	VibrationG   float64   `json:"vibration_g"`
}

// TelemetryLink is the cellular link block.
type TelemetryLink struct {
	RSSI int    `json:"rssi"`
	Type string `json:"type"`
	CSQ  int    `json:"csq"`
}

// Location is a WGS84 position.
type Location struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}
