package simulator

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/vmsim/internal/infrastructure/config"
	"github.com/nerrad567/vmsim/internal/infrastructure/logging"
	"github.com/nerrad567/vmsim/internal/infrastructure/mqtt"
	"github.com/nerrad567/vmsim/internal/vending"
)

// clientSuffixLen is the number of random hex characters in a client id.
const clientSuffixLen = 4

// Options configure a Fleet.
type Options struct {
	Config *config.Config
	Logger *logging.Logger

	// Taps observe every message any device publishes. Optional.
	Taps []vending.Tap

	// Recorder mirrors telemetry. Optional.
	Recorder vending.TelemetryRecorder

	// Dialer defaults to mqtt.PahoDialer.
	Dialer mqtt.Dialer

	// Now defaults to time.Now.
	Now func() time.Time
}

// Fleet owns every simulated machine.
type Fleet struct {
	logger *logging.Logger
	units  []*unit
	byNo   map[string]*unit
}

// New builds one device and connection manager per configured device
// number. Nothing connects until Run.
func New(opts Options) (*Fleet, error) {
	if opts.Config == nil {
		return nil, fmt.Errorf("config is required")
	}
	if opts.Logger == nil {
		opts.Logger = logging.Default()
	}

	sim := opts.Config.Simulator
	if len(sim.Devices) == 0 {
		return nil, ErrNoDevices
	}

	f := &Fleet{
		logger: opts.Logger,
		units:  make([]*unit, 0, len(sim.Devices)),
		byNo:   make(map[string]*unit, len(sim.Devices)),
	}

	for i, deviceNo := range sim.Devices {
		if _, dup := f.byNo[deviceNo]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateDevice, deviceNo)
		}

		// Distinct but reproducible streams per device when seeded
		seed := sim.Seed
		if seed != 0 {
			seed += int64(i)
		}

		u := newUnit(unitConfig{
			deviceNo: deviceNo,
			clientID: ClientID(opts.Config.MQTT.Broker.ClientIDPrefix, deviceNo),
			cfg:      opts.Config,
			rand:     vending.NewRand(seed),
			taps:     opts.Taps,
			recorder: opts.Recorder,
			dialer:   opts.Dialer,
			logger:   opts.Logger.With("device_no", deviceNo),
			now:      opts.Now,
		})
		f.units = append(f.units, u)
		f.byNo[deviceNo] = u
	}

	return f, nil
}

// ClientID builds "{prefix}_{deviceNo}_{4 hex}". The suffix keeps two
// simulator instances for the same device from kicking each other off.
func ClientID(prefix, deviceNo string) string {
	suffix := uuid.NewString()[:clientSuffixLen]
	if prefix == "" {
		return deviceNo + "_" + suffix
	}
	return prefix + "_" + deviceNo + "_" + suffix
}

// Run starts every device and connects it. It blocks until ctx is
// cancelled (returning nil) or one device fails fatally, in which case
// the rest of the fleet is shut down and that error is returned.
func (f *Fleet) Run(ctx context.Context) error {
	f.logger.Info("fleet starting", "devices", len(f.units))

	g, gctx := errgroup.WithContext(ctx)
	for _, u := range f.units {
		u := u // per-iteration copy (go directive < 1.22)
		g.Go(func() error {
			return u.device.Run(gctx)
		})
		g.Go(func() error {
			return u.run(gctx)
		})
	}

	err := g.Wait()
	if err != nil {
		f.logger.Error("fleet stopped", "error", err)
		return err
	}
	f.logger.Info("fleet stopped")
	return nil
}

// Devices returns the devices in configuration order.
func (f *Fleet) Devices() []*vending.Device {
	out := make([]*vending.Device, len(f.units))
	for i, u := range f.units {
		out[i] = u.device
	}
	return out
}

// Device looks up a device by number.
func (f *Fleet) Device(deviceNo string) (*vending.Device, bool) {
	u, ok := f.byNo[deviceNo]
	if !ok {
		return nil, false
	}
	return u.device, true
}

// ConnectedCount returns how many devices currently hold a broker session.
func (f *Fleet) ConnectedCount() int {
	n := 0
	for _, u := range f.units {
		if u.conn.IsConnected() {
			n++
		}
	}
	return n
}

// ClientIDs maps device numbers to MQTT client ids.
func (f *Fleet) ClientIDs() map[string]string {
	out := make(map[string]string, len(f.units))
	for _, u := range f.units {
		out[u.deviceNo] = u.conn.ClientID()
	}
	return out
}
