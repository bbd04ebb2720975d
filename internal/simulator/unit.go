package simulator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/vmsim/internal/infrastructure/config"
	"github.com/nerrad567/vmsim/internal/infrastructure/logging"
	"github.com/nerrad567/vmsim/internal/infrastructure/mqtt"
	"github.com/nerrad567/vmsim/internal/vending"
)

type unitConfig struct {
	deviceNo string
	clientID string
	cfg      *config.Config
	rand     vending.Rand
	taps     []vending.Tap
	recorder vending.TelemetryRecorder
	dialer   mqtt.Dialer
	logger   *logging.Logger
	now      func() time.Time
}

// unit is one machine: its actor and its broker connection.
type unit struct {
	deviceNo string
	device   *vending.Device
	conn     *mqtt.ConnectionManager
	topics   mqtt.Topics
	logger   *logging.Logger
}

func newUnit(cfg unitConfig) *unit {
	u := &unit{deviceNo: cfg.deviceNo, logger: cfg.logger}

	// The will and offline builders read the device's publisher, which
	// only exists once the device is built on top of the manager.
	u.conn = mqtt.NewConnectionManager(mqtt.ManagerOptions{
		ClientID: cfg.clientID,
		Config:   cfg.cfg.MQTT,
		Will:     func() mqtt.Message { return u.device.Publisher().WillMessage() },
		Offline:  func() mqtt.Message { return u.device.Publisher().OfflineMessage() },
		Dialer:   cfg.dialer,
		Logger:   cfg.logger,
	})

	sim := cfg.cfg.Simulator
	u.device = vending.NewDevice(vending.DeviceConfig{
		Info: vending.DeviceInfo{
			DeviceNo: cfg.deviceNo,
			Firmware: sim.Firmware,
			Hardware: sim.Hardware,
			Location: vending.Location{
				Lat: sim.Location.Latitude,
				Lng: sim.Location.Longitude,
			},
		},
		Inventory: vending.Inventory{
			MealChannels:  sim.MealChannels,
			MealStock:     sim.MealStock,
			SauceChannels: sim.SauceChannels,
			SauceStock:    sim.SauceStock,
		},
		Faults:            cfg.cfg.Faults,
		TelemetryInterval: cfg.cfg.TelemetryInterval(),
		MediaBaseURL:      sim.MediaBaseURL,
		Rand:              cfg.rand,
		Transport:         u.conn,
		Taps:              cfg.taps,
		Recorder:          cfg.recorder,
		Logger:            cfg.logger,
		Now:               cfg.now,
	})

	return u
}

// run connects the unit and relays lifecycle signals to the device until
// ctx ends or the connection is abandoned.
func (u *unit) run(ctx context.Context) error {
	commands := u.topics.Commands(u.deviceNo)
	if err := u.conn.Subscribe(commands, mqtt.QoSExactlyOnce, func(_ string, payload []byte) error {
		return u.device.Enqueue(ctx, payload)
	}); err != nil {
		return fmt.Errorf("%s: subscribing %s: %w", u.deviceNo, commands, err)
	}

	fatal := make(chan error, 1)
	forwarded := make(chan struct{})
	go func() {
		defer close(forwarded)
		u.forwardSignals(ctx, fatal)
	}()
	defer func() {
		u.conn.Disconnect()
		<-forwarded
	}()

	u.logger.Info("connecting",
		"client_id", u.conn.ClientID(),
	)
	if err := u.conn.Connect(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("%s: initial connect: %w", u.deviceNo, err)
	}

	select {
	case <-ctx.Done():
		return nil
	case err := <-fatal:
		return err
	}
}

// forwardSignals drains the manager's signals until the channel closes.
func (u *unit) forwardSignals(ctx context.Context, fatal chan<- error) {
	for sig := range u.conn.Signals() {
		switch sig.Kind {
		case mqtt.SignalConnected:
			u.setLink(ctx, true)

		case mqtt.SignalDisconnected:
			u.logger.Warn("connection lost", "error", sig.Err)
			u.setLink(ctx, false)

		case mqtt.SignalOffline:
			u.logger.Info("reconnecting", "delay", sig.Delay)

		case mqtt.SignalError:
			u.logger.Debug("connect attempt failed", "error", sig.Err, "retry_in", sig.Delay)

		case mqtt.SignalMaxRetriesReached:
			// Also emitted by a failed initial Connect, whose error is
			// returned from run directly.
			select {
			case fatal <- fmt.Errorf("%s: %w: %w", u.deviceNo, ErrConnectionLost, sig.Err):
			default:
			}

		case mqtt.SignalClosed:
			u.logger.Debug("connection closed")
		}
	}
}

func (u *unit) setLink(ctx context.Context, up bool) {
	if err := u.device.SetLinkUp(ctx, up); err != nil && !errors.Is(err, vending.ErrDeviceStopped) && ctx.Err() == nil {
		u.logger.Warn("link state not delivered", "up", up, "error", err)
	}
}
