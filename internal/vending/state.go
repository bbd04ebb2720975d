package vending

import (
	"fmt"
	"sort"
)

// DeviceInfo identifies a machine and its slow-moving link state.
type DeviceInfo struct {
	DeviceNo string   `json:"device_no"`
	Firmware string   `json:"firmware"`
	Hardware string   `json:"hardware"`
	Location Location `json:"location"`
	RSSI     int      `json:"rssi"`
}

// Channel is one dispensing slot. Stock never goes negative.
type Channel struct {
	ID     string `json:"id"`
	Stock  int    `json:"stock"`
	Locked bool   `json:"locked"`
}

// OvenStatus is the heating state of an oven.
type OvenStatus string

const (
	OvenIdle    OvenStatus = "idle"
	OvenHeating OvenStatus = "heating"
)

// Oven is a microwave unit.
type Oven struct {
	ID     string     `json:"id"`
	Status OvenStatus `json:"status"`
	Power  int        `json:"power"`

	// Cycles counts completed heating runs.
	Cycles int `json:"cycles"`
}

// Sensors holds the cosmetic readings reported in telemetry.
type Sensors struct {
	FreezerTemps  []float64 `json:"freezer_temps"`
	AmbientTemp   float64   `json:"ambient_temp"`
	VibrationG    float64   `json:"vibration_g"`
	Voltage       float64   `json:"voltage"`
	Current       float64   `json:"current"`
	UptimeSeconds int64     `json:"uptime_seconds"`
	DoorClosed    bool      `json:"door_closed"`
}

// Inventory sizes a fresh machine.
type Inventory struct {
	MealChannels  int
	MealStock     int
	SauceChannels int
	SauceStock    int
}

// DefaultInventory matches a standard 48-slot machine with five sauce pumps.
var DefaultInventory = Inventory{
	MealChannels:  48,
	MealStock:     4,
	SauceChannels: 5,
	SauceStock:    10,
}

// Default oven identifiers.
var defaultOvens = []string{"OVEN_A", "OVEN_B"}

// ratedOvenPower is the nominal oven draw in watts.
const ratedOvenPower = 1100

// DeviceState is the in-memory state of one machine: inventory, locks,
// ovens, cameras, runtime settings and sensor readings.
//
// Not safe for concurrent use; it is owned by the device actor.
type DeviceState struct {
	Info    DeviceInfo
	Sensors Sensors

	meal       map[string]int
	mealOrder  []string
	sauce      map[string]int
	sauceOrder []string
	locked     map[string]bool
	ovens      map[string]*Oven
	cameras    map[string]bool
	settings   map[string]any
}

// NewDeviceState builds a fully stocked machine.
// Meal channels are named M-01.., sauce channels S-01...
// An RSSI outside the modem's range starts at -65 dBm.
func NewDeviceState(info DeviceInfo, inv Inventory) *DeviceState {
	if info.RSSI < rssiMin || info.RSSI > rssiMax {
		info.RSSI = defaultRSSI
	}
	s := &DeviceState{
		Info:     info,
		meal:     make(map[string]int, inv.MealChannels),
		sauce:    make(map[string]int, inv.SauceChannels),
		locked:   make(map[string]bool),
		ovens:    make(map[string]*Oven, len(defaultOvens)),
		cameras:  make(map[string]bool),
		settings: make(map[string]any),
		Sensors: Sensors{
			FreezerTemps: []float64{-18.5, -19.0, -18.2, -18.8},
			AmbientTemp:  25.0,
			VibrationG:   0.02,
			Voltage:      220.5,
			Current:      1.2,
			DoorClosed:   true,
		},
	}
	for i := 1; i <= inv.MealChannels; i++ {
		id := fmt.Sprintf("M-%02d", i)
		s.meal[id] = inv.MealStock
		s.mealOrder = append(s.mealOrder, id)
	}
	for i := 1; i <= inv.SauceChannels; i++ {
		id := fmt.Sprintf("S-%02d", i)
		s.sauce[id] = inv.SauceStock
		s.sauceOrder = append(s.sauceOrder, id)
	}
	for _, id := range defaultOvens {
		s.ovens[id] = &Oven{ID: id, Status: OvenIdle}
	}
	return s
}

// MealStock returns the stock of a meal channel. Unknown channels have 0.
func (s *DeviceState) MealStock(id string) int {
	return s.meal[id]
}

// SauceStock returns the stock of a sauce channel. Unknown channels have 0.
func (s *DeviceState) SauceStock(id string) int {
	return s.sauce[id]
}

// IsLocked reports whether channel id is locked.
func (s *DeviceState) IsLocked(id string) bool {
	return s.locked[id]
}

// Lock marks channel id locked. Any id is accepted.
func (s *DeviceState) Lock(id string) {
	s.locked[id] = true
}

// Unlock clears the lock on channel id.
func (s *DeviceState) Unlock(id string) {
	delete(s.locked, id)
}

// TakeMeal removes one item from a meal channel.
// It reports false, leaving stock untouched, when the channel is empty.
func (s *DeviceState) TakeMeal(id string) bool {
	if s.meal[id] <= 0 {
		return false
	}
	s.meal[id]--
	return true
}

// TakeSauce removes one portion from a sauce channel, floored at 0.
func (s *DeviceState) TakeSauce(id string) {
	if s.sauce[id] > 0 {
		s.sauce[id]--
	}
}

// StartHeating marks an oven as drawing rated power. Unknown ovens are ignored.
func (s *DeviceState) StartHeating(id string) {
	if o, ok := s.ovens[id]; ok {
		o.Status = OvenHeating
		o.Power = ratedOvenPower
	}
}

// StopHeating returns an oven to idle. Completed runs increment Cycles.
func (s *DeviceState) StopHeating(id string, completed bool) {
	if o, ok := s.ovens[id]; ok {
		o.Status = OvenIdle
		o.Power = 0
		if completed {
			o.Cycles++
		}
	}
}

// SetStreaming records whether a camera is streaming.
func (s *DeviceState) SetStreaming(cameraID string, on bool) {
	if on {
		s.cameras[cameraID] = true
		return
	}
	delete(s.cameras, cameraID)
}

// ApplySettings stores runtime settings and returns the updated keys, sorted.
func (s *DeviceState) ApplySettings(params map[string]any) []string {
	keys := make([]string, 0, len(params))
	for k, v := range params {
		s.settings[k] = v
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Snapshot is a read-only copy of a device's state.
type Snapshot struct {
	DeviceInfo

	Online         bool           `json:"online"`
	MealChannels   []Channel      `json:"meal_channels"`
	SauceChannels  []Channel      `json:"sauce_channels"`
	LockedChannels []string       `json:"locked_channels"`
	Ovens          []Oven         `json:"ovens"`
	Streaming      []string       `json:"streaming_cameras"`
	Settings       map[string]any `json:"settings"`
	Sensors        Sensors        `json:"sensors"`
}

// Snapshot copies the current state.
func (s *DeviceState) Snapshot() Snapshot {
	snap := Snapshot{
		DeviceInfo:     s.Info,
		MealChannels:   make([]Channel, 0, len(s.mealOrder)),
		SauceChannels:  make([]Channel, 0, len(s.sauceOrder)),
		LockedChannels: make([]string, 0, len(s.locked)),
		Ovens:          make([]Oven, 0, len(s.ovens)),
		Streaming:      make([]string, 0, len(s.cameras)),
		Settings:       make(map[string]any, len(s.settings)),
		Sensors:        s.Sensors,
	}
	snap.Sensors.FreezerTemps = append([]float64(nil), s.Sensors.FreezerTemps...)

	for _, id := range s.mealOrder {
		snap.MealChannels = append(snap.MealChannels, Channel{ID: id, Stock: s.meal[id], Locked: s.locked[id]})
	}
	for _, id := range s.sauceOrder {
		snap.SauceChannels = append(snap.SauceChannels, Channel{ID: id, Stock: s.sauce[id], Locked: s.locked[id]})
	}
	for id := range s.locked {
		snap.LockedChannels = append(snap.LockedChannels, id)
	}
	sort.Strings(snap.LockedChannels)
	for _, id := range defaultOvens {
		if o, ok := s.ovens[id]; ok {
			snap.Ovens = append(snap.Ovens, *o)
		}
	}
	for id := range s.cameras {
		snap.Streaming = append(snap.Streaming, id)
	}
	sort.Strings(snap.Streaming)
	for k, v := range s.settings {
		snap.Settings[k] = v
	}
	return snap
}
