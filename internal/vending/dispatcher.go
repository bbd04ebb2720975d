package vending

import (
	"fmt"
	"strings"
	"time"
)

// DISPENSE parameter defaults.
const (
	defaultOrderID     = "ORD_UNKNOWN"
	defaultMealChannel = "M-01"
	defaultSauceChan   = "S-01"
	defaultOvenID      = "OVEN_A"
	defaultHeatSeconds = 90
	defaultCameraID    = "CAM_TOP"

	// maxHeatSeconds is the longest oven run a DISPENSE may request.
	maxHeatSeconds = 3600
)

// duplicateNote is the result body of an ack for a repeated cmd_id.
const duplicateNote = "duplicate, already executed"

// outcome is the result of one handler, turned into exactly one ack.
type outcome struct {
	status AckStatus
	result any
	err    *AckError
}

func succeeded(result any) outcome {
	return outcome{status: AckSuccess, result: result}
}

func failed(code, format string, args ...any) outcome {
	return outcome{status: AckFailed, err: &AckError{Code: code, Message: fmt.Sprintf(format, args...)}}
}

func rejected(code, format string, args ...any) outcome {
	return outcome{status: AckRejected, err: &AckError{Code: code, Message: fmt.Sprintf(format, args...)}}
}

type handlerFunc func(cmd Command) outcome

// Dispatcher decodes, deduplicates and routes commands for one device.
//
// Every well-formed command produces exactly one ack, including
// duplicates, unknown actions and handler panics. Malformed payloads
// produce nothing.
//
// Not safe for concurrent use; it runs on the device actor.
type Dispatcher struct {
	state  *DeviceState
	faults *FaultInjector
	pub    *Publisher
	cache  *IdempotencyCache
	media  MediaRefs
	rand   Rand
	logger Logger
	now    func() time.Time

	handlers map[Action]handlerFunc
}

// DispatcherConfig holds the collaborators of a Dispatcher.
type DispatcherConfig struct {
	State     *DeviceState
	Faults    *FaultInjector
	Publisher *Publisher

	// Cache defaults to a fresh cache of DefaultCacheCapacity.
	Cache *IdempotencyCache

	Media  MediaRefs
	Rand   Rand
	Logger Logger
	Now    func() time.Time
}

// NewDispatcher creates a Dispatcher with the standard action table.
func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	d := &Dispatcher{
		state:  cfg.State,
		faults: cfg.Faults,
		pub:    cfg.Publisher,
		cache:  cfg.Cache,
		media:  cfg.Media,
		rand:   cfg.Rand,
		logger: cfg.Logger,
		now:    cfg.Now,
	}
	if d.cache == nil {
		d.cache = NewIdempotencyCache(DefaultCacheCapacity)
	}
	if d.logger == nil {
		d.logger = noopLogger{}
	}
	if d.now == nil {
		d.now = time.Now
	}

	d.handlers = map[Action]handlerFunc{
		ActionDispense:      d.handleDispense,
		ActionStartVideo:    d.handleStartVideo,
		ActionStopVideo:     d.handleStopVideo,
		ActionReboot:        d.handleReboot,
		ActionLockChannel:   d.handleLockChannel,
		ActionUnlockChannel: d.handleUnlockChannel,
		ActionSetConfig:     d.handleSetConfig,
	}
	return d
}

// Handle processes one raw command payload.
//
// It returns ErrMalformedCommand (after logging) for payloads that
// cannot be decoded, and otherwise the error from publishing the ack.
func (d *Dispatcher) Handle(raw []byte) error {
	cmd, err := DecodeCommand(raw)
	if err != nil {
		d.logger.Warn("dropping malformed command",
			"error", err,
			"bytes", len(raw),
		)
		return err
	}

	if first, ok := d.cache.Lookup(cmd.CmdID); ok {
		d.logger.Info("duplicate command acknowledged without execution",
			"cmd_id", cmd.CmdID,
			"action", string(cmd.Action),
			"status", string(first.Status),
		)
		// Replays the first outcome so both deliveries ack identically.
		return d.pub.Ack(Ack{
			CmdID:  cmd.CmdID,
			Status: first.Status,
			Result: map[string]any{"note": duplicateNote},
			Error:  first.Error,
		})
	}
	d.cache.Add(cmd.CmdID)

	out := d.execute(cmd)
	d.cache.Complete(cmd.CmdID, out.status, out.err)

	d.logger.Info("command handled",
		"cmd_id", cmd.CmdID,
		"action", string(cmd.Action),
		"status", string(out.status),
	)
	return d.pub.Ack(Ack{
		CmdID:  cmd.CmdID,
		Status: out.status,
		Result: out.result,
		Error:  out.err,
	})
}

// execute runs the handler for cmd, converting a panic into a failed outcome.
func (d *Dispatcher) execute(cmd Command) (out outcome) {
	handler, ok := d.handlers[cmd.Action]
	if !ok {
		return rejected(CodeUnknownAction, "Unknown action: %s", cmd.Action)
	}

	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("command handler panic recovered",
				"cmd_id", cmd.CmdID,
				"action", string(cmd.Action),
				"panic", r,
			)
			out = failed(CodeInternalFailure, "internal error: %v", r)
		}
	}()

	return handler(cmd)
}

func invalidParams(err error) outcome {
	return failed(CodeInvalidParams, "%s", strings.TrimPrefix(err.Error(), "vending: "))
}

// =============================================================================
// Handlers
// =============================================================================

// handleDispense checks lock, then stock, then rolls for a jam and a
// heating failure, and only then takes stock.
func (d *Dispatcher) handleDispense(cmd Command) outcome {
	start := d.now()

	p := paramReader{params: cmd.Params}
	orderID := p.str("order_id", defaultOrderID)
	mealCID := p.str("meal_cid", defaultMealChannel)
	sauceCID := p.str("sauce_cid", defaultSauceChan)
	ovenID := p.str("oven_id", defaultOvenID)
	heatSeconds := p.int("heat_seconds", defaultHeatSeconds)
	if p.err == nil && (heatSeconds < 0 || heatSeconds > maxHeatSeconds) {
		p.err = fmt.Errorf("%w: heat_seconds must be between 0 and %d", ErrInvalidParams, maxHeatSeconds)
	}
	if p.err != nil {
		return invalidParams(p.err)
	}

	if d.state.IsLocked(mealCID) {
		return failed(CodeMotorOverload, "Channel %s is locked", mealCID)
	}

	if d.state.MealStock(mealCID) <= 0 {
		d.emit(EventDispenseFailed, map[string]any{
			"order_id":   orderID,
			"meal_cid":   mealCID,
			"error_code": CodeChannelEmpty,
		})
		return failed(CodeChannelEmpty, "Channel empty")
	}

	if d.faults.Roll(FaultChannelJam) {
		d.emit(EventChannelJam, map[string]any{
			"channel_id":    mealCID,
			"motor_current": round(4+d.rand.Float64(), 2),
			"error_code":    CodeMotorOverload,
			"image_url":     d.media.Image("jam"),
		})
		d.state.Lock(mealCID)
		return failed(CodeMotorOverload, "Channel %s jammed", mealCID)
	}

	d.state.StartHeating(ovenID)
	if d.faults.Roll(FaultHeatingFailure) {
		d.state.StopHeating(ovenID, false)
		d.emit(EventHeatingFailure, map[string]any{
			"oven_id":        ovenID,
			"expected_power": ratedOvenPower,
			"actual_power":   d.rand.Intn(50) + 10,
			"exhaust_temp":   round(22+d.rand.Float64()*3, 1),
		})
		return failed(CodeOvenPower, "Oven %s heating failure", ovenID)
	}
	d.state.StopHeating(ovenID, true)

	d.state.TakeMeal(mealCID)
	d.state.TakeSauce(sauceCID)

	d.emit(EventDispenseSuccess, map[string]any{
		"order_id":      orderID,
		"meal_cid":      mealCID,
		"sauce_cid":     sauceCID,
		"oven_id":       ovenID,
		"heat_duration": heatSeconds,
		"image_url":     d.media.Image("dispense"),
	})

	now := d.now()
	return succeeded(map[string]any{
		"executed_at": now.Unix(),
		"duration_ms": now.Sub(start).Milliseconds() + int64(heatSeconds)*1000,
	})
}

func (d *Dispatcher) handleStartVideo(cmd Command) outcome {
	p := paramReader{params: cmd.Params}
	cameraID := p.str("camera_id", defaultCameraID)
	streamURL := p.str("stream_url", "")
	duration := p.int("duration", 120)
	if p.err != nil {
		return invalidParams(p.err)
	}

	d.state.SetStreaming(cameraID, true)
	d.logger.Info("video stream started",
		"camera_id", cameraID,
		"stream_url", streamURL,
		"duration_s", duration,
	)
	return succeeded(map[string]any{"camera_id": cameraID, "streaming": true})
}

func (d *Dispatcher) handleStopVideo(cmd Command) outcome {
	p := paramReader{params: cmd.Params}
	cameraID := p.str("camera_id", defaultCameraID)
	if p.err != nil {
		return invalidParams(p.err)
	}

	d.state.SetStreaming(cameraID, false)
	return succeeded(map[string]any{"camera_id": cameraID, "streaming": false})
}

func (d *Dispatcher) handleReboot(cmd Command) outcome {
	p := paramReader{params: cmd.Params}
	delay := p.int("delay", 0)
	reason := p.str("reason", "remote_command")
	if p.err != nil {
		return invalidParams(p.err)
	}

	d.logger.Info("reboot scheduled",
		"delay_s", delay,
		"reason", reason,
	)
	return succeeded(map[string]any{"scheduled_at": d.now().Unix() + int64(delay)})
}

func (d *Dispatcher) handleLockChannel(cmd Command) outcome {
	p := paramReader{params: cmd.Params}
	channelID := p.requiredStr("channel_id")
	if p.err != nil {
		return invalidParams(p.err)
	}

	d.state.Lock(channelID)
	return succeeded(map[string]any{"channel_id": channelID, "locked": true})
}

func (d *Dispatcher) handleUnlockChannel(cmd Command) outcome {
	p := paramReader{params: cmd.Params}
	channelID := p.requiredStr("channel_id")
	if p.err != nil {
		return invalidParams(p.err)
	}

	d.state.Unlock(channelID)
	return succeeded(map[string]any{"channel_id": channelID, "locked": false})
}

func (d *Dispatcher) handleSetConfig(cmd Command) outcome {
	updated := d.state.ApplySettings(cmd.Params)
	return succeeded(map[string]any{"updated": updated})
}

// emit publishes an event. Failures are logged by the publisher and do
// not change the command outcome.
func (d *Dispatcher) emit(eventType string, data map[string]any) {
	_ = d.pub.Event(eventType, data)
}
