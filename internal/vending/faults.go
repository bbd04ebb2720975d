package vending

import (
	"math/rand"
	"time"

	"github.com/nerrad567/vmsim/internal/infrastructure/config"
)

// Rand is the randomness source used for fault rolls and sensor noise.
// *rand.Rand satisfies it.
type Rand interface {
	Float64() float64
	Intn(n int) int
}

// NewRand returns a seeded source. A zero seed uses the current time.
func NewRand(seed int64) Rand {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return rand.New(rand.NewSource(seed)) //nolint:gosec // simulation noise, not security
}

// FaultCategory names an injectable failure.
type FaultCategory string

// Fault categories. Jam and heating are rolled per dispense; the rest
// per telemetry tick.
const (
	FaultChannelJam      FaultCategory = "channel_jam"
	FaultHeatingFailure  FaultCategory = "heating_failure"
	FaultOverTemperature FaultCategory = "over_temperature"
	FaultVandalism       FaultCategory = "vandalism"
	FaultDoorOpen        FaultCategory = "door_open"
)

// FaultInjector decides, per category, whether a failure occurs.
type FaultInjector struct {
	rand  Rand
	probs map[FaultCategory]float64
}

// NewFaultInjector builds an injector from configured probabilities.
// Values outside [0,1] are clamped.
func NewFaultInjector(cfg config.FaultsConfig, r Rand) *FaultInjector {
	return &FaultInjector{
		rand: r,
		probs: map[FaultCategory]float64{
			FaultChannelJam:      clamp01(cfg.ChannelJam),
			FaultHeatingFailure:  clamp01(cfg.HeatingFailure),
			FaultOverTemperature: clamp01(cfg.OverTemperature),
			FaultVandalism:       clamp01(cfg.Vandalism),
			FaultDoorOpen:        clamp01(cfg.DoorOpen),
		},
	}
}

// Roll draws once and reports whether the fault fires.
// Probability 1 always fires and 0 never does.
func (f *FaultInjector) Roll(c FaultCategory) bool {
	return f.rand.Float64() < f.probs[c]
}

// Probability returns the configured probability for c.
func (f *FaultInjector) Probability(c FaultCategory) float64 {
	return f.probs[c]
}

func clamp01(p float64) float64 {
	switch {
	case p < 0:
		return 0
	case p > 1:
		return 1
	default:
		return p
	}
}
