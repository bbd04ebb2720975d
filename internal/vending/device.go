package vending

import (
	"context"
	"time"

	"github.com/nerrad567/vmsim/internal/infrastructure/config"
)

// Defaults for device construction.
const (
	defaultInboxSize         = 64
	defaultTelemetryInterval = 10 * time.Second
)

// DeviceConfig holds everything needed to build one simulated machine.
type DeviceConfig struct {
	Info      DeviceInfo
	Inventory Inventory
	Faults    config.FaultsConfig

	// TelemetryInterval defaults to 10 seconds.
	TelemetryInterval time.Duration

	MediaBaseURL string

	// Rand defaults to a time-seeded source.
	Rand Rand

	Transport Transport
	Taps      []Tap
	Recorder  TelemetryRecorder
	Logger    Logger

	// Now defaults to time.Now.
	Now func() time.Time

	// InboxSize bounds queued commands. Defaults to 64.
	InboxSize int
}

// Device is the actor for one vending machine. A single goroutine (Run)
// owns its state and serialises commands, telemetry ticks, link changes
// and snapshot requests. Acks are published from that goroutine, so
// they are never reordered relative to their commands.
type Device struct {
	state      *DeviceState
	dispatcher *Dispatcher
	publisher  *Publisher
	sensors    *SensorSource
	faults     *FaultInjector
	media      MediaRefs
	rand       Rand
	interval   time.Duration
	logger     Logger
	now        func() time.Time

	inbox     chan []byte
	link      chan bool
	snapshots chan chan Snapshot
	done      chan struct{}
}

// NewDevice wires a device from cfg. Call Run to start it.
func NewDevice(cfg DeviceConfig) *Device {
	if cfg.Rand == nil {
		cfg.Rand = NewRand(0)
	}
	if cfg.Logger == nil {
		cfg.Logger = noopLogger{}
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.TelemetryInterval <= 0 {
		cfg.TelemetryInterval = defaultTelemetryInterval
	}
	if cfg.InboxSize <= 0 {
		cfg.InboxSize = defaultInboxSize
	}
	if cfg.Inventory == (Inventory{}) {
		cfg.Inventory = DefaultInventory
	}

	state := NewDeviceState(cfg.Info, cfg.Inventory)
	faults := NewFaultInjector(cfg.Faults, cfg.Rand)
	media := NewMediaRefs(cfg.MediaBaseURL, cfg.Info.DeviceNo, cfg.Now)
	pub := NewPublisher(PublisherConfig{
		Info:      cfg.Info,
		Transport: cfg.Transport,
		Taps:      cfg.Taps,
		Recorder:  cfg.Recorder,
		Logger:    cfg.Logger,
		Now:       cfg.Now,
	})

	return &Device{
		state: state,
		dispatcher: NewDispatcher(DispatcherConfig{
			State:     state,
			Faults:    faults,
			Publisher: pub,
			Media:     media,
			Rand:      cfg.Rand,
			Logger:    cfg.Logger,
			Now:       cfg.Now,
		}),
		publisher: pub,
		sensors:   NewSensorSource(cfg.Rand),
		faults:    faults,
		media:     media,
		rand:      cfg.Rand,
		interval:  cfg.TelemetryInterval,
		logger:    cfg.Logger,
		now:       cfg.Now,
		inbox:     make(chan []byte, cfg.InboxSize),
		link:      make(chan bool, 1),
		snapshots: make(chan chan Snapshot),
		done:      make(chan struct{}),
	}
}

// DeviceNo returns the machine identifier.
func (d *Device) DeviceNo() string {
	return d.state.Info.DeviceNo
}

// Publisher returns the device's publisher, used to build the last will
// and graceful offline status for its connection.
func (d *Device) Publisher() *Publisher {
	return d.publisher
}

// Enqueue queues a raw command payload for the actor. It blocks while the
// inbox is full.
func (d *Device) Enqueue(ctx context.Context, raw []byte) error {
	if d.stopped() {
		return ErrDeviceStopped
	}
	select {
	case d.inbox <- raw:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-d.done:
		return ErrDeviceStopped
	}
}

// SetLinkUp tells the actor the broker session came up (true) or went
// away (false). On link up the actor publishes the online status and
// starts telemetry; on link down telemetry pauses.
func (d *Device) SetLinkUp(ctx context.Context, up bool) error {
	if d.stopped() {
		return ErrDeviceStopped
	}
	select {
	case d.link <- up:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-d.done:
		return ErrDeviceStopped
	}
}

// Snapshot asks the actor for a copy of the device state.
func (d *Device) Snapshot(ctx context.Context) (Snapshot, error) {
	if d.stopped() {
		return Snapshot{}, ErrDeviceStopped
	}
	reply := make(chan Snapshot, 1)
	select {
	case d.snapshots <- reply:
	case <-ctx.Done():
		return Snapshot{}, ctx.Err()
	case <-d.done:
		return Snapshot{}, ErrDeviceStopped
	}

	select {
	case snap := <-reply:
		return snap, nil
	case <-ctx.Done():
		return Snapshot{}, ctx.Err()
	}
}

func (d *Device) stopped() bool {
	select {
	case <-d.done:
		return true
	default:
		return false
	}
}

// Run is the actor loop. It returns nil when ctx is cancelled.
func (d *Device) Run(ctx context.Context) error {
	defer close(d.done)

	ticker := &telemetryTicker{interval: d.interval}
	defer ticker.stop()

	online := false
	d.logger.Info("device started",
		"telemetry_interval", d.interval,
	)

	for {
		select {
		case <-ctx.Done():
			d.logger.Info("device stopped")
			return nil

		case raw := <-d.inbox:
			if err := d.dispatcher.Handle(raw); err != nil {
				d.logger.Debug("command processing ended with error", "error", err)
			}

		case up := <-d.link:
			// The retained status may have been replaced by the last will,
			// so every link-up republishes online.
			online = up
			if up {
				if err := d.publisher.Online(); err != nil {
					d.logger.Warn("online status not published", "error", err)
				}
				ticker.start()
			} else {
				ticker.stop()
			}

		case <-ticker.C():
			d.telemetryTick()

		case reply := <-d.snapshots:
			snap := d.state.Snapshot()
			snap.Online = online
			reply <- snap
		}
	}
}
