package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Reconnect policies applied after an established connection is lost.
const (
	// AfterLossUnbounded retries forever at the initial delay (original behaviour).
	AfterLossUnbounded = "unbounded"

	// AfterLossBounded re-uses the initial-connect attempt budget and backoff.
	AfterLossBounded = "bounded"
)

// Config is the root configuration structure for the simulator.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Simulator      SimulatorConfig      `yaml:"simulator"`
	Faults         FaultsConfig         `yaml:"faults"`
	MQTT           MQTTConfig           `yaml:"mqtt"`
	EmbeddedBroker EmbeddedBrokerConfig `yaml:"embedded_broker"`
	InfluxDB       InfluxDBConfig       `yaml:"influxdb"`
	API            APIConfig            `yaml:"api"`
	WebSocket      WebSocketConfig      `yaml:"websocket"`
	Logging        LoggingConfig        `yaml:"logging"`
}

// SimulatorConfig describes the simulated fleet.
type SimulatorConfig struct {
	// Devices lists the device numbers to simulate, one actor each.
	Devices []string `yaml:"devices"`

	Firmware string `yaml:"firmware"`
	Hardware string `yaml:"hardware"`

	// TelemetryIntervalMS is the telemetry publish period in milliseconds.
	TelemetryIntervalMS int `yaml:"telemetry_interval_ms"`

	MealChannels  int `yaml:"meal_channels"`
	MealStock     int `yaml:"meal_stock"`
	SauceChannels int `yaml:"sauce_channels"`
	SauceStock    int `yaml:"sauce_stock"`

	Location LocationConfig `yaml:"location"`

	// MediaBaseURL prefixes synthetic image/video references in events.
	MediaBaseURL string `yaml:"media_base_url"`

	// Seed fixes the random source. Zero means time-based.
	Seed int64 `yaml:"seed"`
}

// LocationConfig contains the simulated GPS position.
type LocationConfig struct {
	Latitude  float64 `yaml:"latitude"`
	Longitude float64 `yaml:"longitude"`
}

// FaultsConfig holds fault probabilities in the range [0,1].
type FaultsConfig struct {
	ChannelJam      float64 `yaml:"channel_jam"`
	HeatingFailure  float64 `yaml:"heating_failure"`
	OverTemperature float64 `yaml:"over_temperature"`
	Vandalism       float64 `yaml:"vandalism"`
	DoorOpen        float64 `yaml:"door_open"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker           MQTTBrokerConfig    `yaml:"broker"`
	Auth             MQTTAuthConfig      `yaml:"auth"`
	Reconnect        MQTTReconnectConfig `yaml:"reconnect"`
	ConnectTimeoutMS int                 `yaml:"connect_timeout_ms"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	TLS  bool   `yaml:"tls"`

	// ClientIDPrefix is combined with the device number and a random suffix.
	ClientIDPrefix string `yaml:"client_id_prefix"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelayMS int    `yaml:"initial_delay_ms"`
	MaxDelayMS     int    `yaml:"max_delay_ms"`
	MaxAttempts    int    `yaml:"max_attempts"`
	AfterLoss      string `yaml:"after_loss"`
}

// EmbeddedBrokerConfig runs an in-process broker for local development.
type EmbeddedBrokerConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// APIConfig contains admin HTTP server settings.
type APIConfig struct {
	Enabled bool   `yaml:"enabled"`
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`

	// JWTSecret enables bearer-token auth on protected routes when set.
	JWTSecret string `yaml:"jwt_secret"`
}

// WebSocketConfig contains WebSocket feed settings.
type WebSocketConfig struct {
	MaxMessageSize int `yaml:"max_message_size"`
	PingInterval   int `yaml:"ping_interval"`
	PongTimeout    int `yaml:"pong_timeout"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults), skipped if the file does not exist
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: VMSIM_SECTION_KEY
// For example: VMSIM_MQTT_HOST, VMSIM_MAX_RETRIES
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If the file cannot be parsed, an override is malformed, or validation fails
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	case errors.Is(err, os.ErrNotExist):
		// Environment-only configuration.
	default:
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, fmt.Errorf("applying environment overrides: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Default returns the default configuration. It is valid as-is.
func Default() *Config {
	return defaultConfig()
}

// defaultConfig returns a Config with the original simulator defaults.
func defaultConfig() *Config {
	return &Config{
		Simulator: SimulatorConfig{
			Devices:             []string{"VM-BJ-001"},
			Firmware:            "5.0.1",
			Hardware:            "v3.2",
			TelemetryIntervalMS: 10000,
			MealChannels:        48,
			MealStock:           4,
			SauceChannels:       5,
			SauceStock:          10,
			Location: LocationConfig{
				Latitude:  39.9042,
				Longitude: 116.4074,
			},
			MediaBaseURL: "https://oss.example.com",
		},
		Faults: FaultsConfig{
			ChannelJam:     0.03,
			HeatingFailure: 0.02,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:           "localhost",
				Port:           1883,
				ClientIDPrefix: "VM",
			},
			Reconnect: MQTTReconnectConfig{
				InitialDelayMS: 1000,
				MaxDelayMS:     30000,
				MaxAttempts:    5,
				AfterLoss:      AfterLossUnbounded,
			},
			ConnectTimeoutMS: 10000,
		},
		EmbeddedBroker: EmbeddedBrokerConfig{
			Address: "127.0.0.1:1883",
		},
		InfluxDB: InfluxDBConfig{
			BatchSize:     100,
			FlushInterval: 10,
		},
		API: APIConfig{
			Host: "127.0.0.1",
			Port: 8090,
		},
		WebSocket: WebSocketConfig{
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: VMSIM_SECTION_KEY
func applyEnvOverrides(cfg *Config) error {
	// MQTT
	if v := os.Getenv("VMSIM_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if err := envInt("VMSIM_MQTT_PORT", &cfg.MQTT.Broker.Port); err != nil {
		return err
	}
	if v := os.Getenv("VMSIM_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("VMSIM_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// Reconnect
	if err := envInt("VMSIM_MAX_RETRIES", &cfg.MQTT.Reconnect.MaxAttempts); err != nil {
		return err
	}
	if err := envInt("VMSIM_INITIAL_DELAY_MS", &cfg.MQTT.Reconnect.InitialDelayMS); err != nil {
		return err
	}
	if err := envInt("VMSIM_MAX_DELAY_MS", &cfg.MQTT.Reconnect.MaxDelayMS); err != nil {
		return err
	}

	// Simulator
	if v := os.Getenv("VMSIM_DEVICES"); v != "" {
		var devices []string
		for _, d := range strings.Split(v, ",") {
			if d = strings.TrimSpace(d); d != "" {
				devices = append(devices, d)
			}
		}
		cfg.Simulator.Devices = devices
	}
	if err := envInt("VMSIM_TELEMETRY_INTERVAL_MS", &cfg.Simulator.TelemetryIntervalMS); err != nil {
		return err
	}

	// InfluxDB
	if v := os.Getenv("VMSIM_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// API
	if v := os.Getenv("VMSIM_JWT_SECRET"); v != "" {
		cfg.API.JWTSecret = v
	}

	return nil
}

// envInt parses an integer environment variable into dst when it is set.
func envInt(name string, dst *int) error {
	v := os.Getenv(name)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return fmt.Errorf("%s must be a number: %q", name, v)
	}
	*dst = n
	return nil
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	// Simulator validation
	if len(c.Simulator.Devices) == 0 {
		errs = append(errs, "simulator.devices must list at least one device")
	}
	seen := make(map[string]bool, len(c.Simulator.Devices))
	for _, d := range c.Simulator.Devices {
		if d == "" || strings.ContainsAny(d, "/+#") {
			errs = append(errs, fmt.Sprintf("simulator.devices: invalid device number %q", d))
			continue
		}
		if seen[d] {
			errs = append(errs, fmt.Sprintf("simulator.devices: duplicate device number %q", d))
		}
		seen[d] = true
	}
	if c.Simulator.TelemetryIntervalMS < 1000 {
		errs = append(errs, "simulator.telemetry_interval_ms must be >= 1000")
	}
	if c.Simulator.MealChannels < 1 || c.Simulator.SauceChannels < 1 {
		errs = append(errs, "simulator meal_channels and sauce_channels must be >= 1")
	}
	if c.Simulator.MealStock < 0 || c.Simulator.SauceStock < 0 {
		errs = append(errs, "simulator meal_stock and sauce_stock must be >= 0")
	}

	// Fault validation
	for name, p := range map[string]float64{
		"faults.channel_jam":      c.Faults.ChannelJam,
		"faults.heating_failure":  c.Faults.HeatingFailure,
		"faults.over_temperature": c.Faults.OverTemperature,
		"faults.vandalism":        c.Faults.Vandalism,
		"faults.door_open":        c.Faults.DoorOpen,
	} {
		if p < 0 || p > 1 {
			errs = append(errs, name+" must be between 0 and 1")
		}
	}

	// MQTT validation
	if c.MQTT.Broker.Port < 1 || c.MQTT.Broker.Port > 65535 {
		errs = append(errs, "mqtt.broker.port must be between 1 and 65535")
	}
	r := c.MQTT.Reconnect
	if r.MaxAttempts < 1 || r.MaxAttempts > 10 {
		errs = append(errs, "mqtt.reconnect.max_attempts must be between 1 and 10")
	}
	if r.InitialDelayMS < 100 {
		errs = append(errs, "mqtt.reconnect.initial_delay_ms must be >= 100")
	}
	if r.MaxDelayMS < 1000 {
		errs = append(errs, "mqtt.reconnect.max_delay_ms must be >= 1000")
	} else if r.MaxDelayMS < r.InitialDelayMS {
		errs = append(errs, "mqtt.reconnect.max_delay_ms must be >= initial_delay_ms")
	}
	if r.AfterLoss != AfterLossUnbounded && r.AfterLoss != AfterLossBounded {
		errs = append(errs, `mqtt.reconnect.after_loss must be "unbounded" or "bounded"`)
	}

	// API validation
	if c.API.Enabled && (c.API.Port < 1 || c.API.Port > 65535) {
		errs = append(errs, "api.port must be between 1 and 65535")
	}
	const minJWTSecretLength = 32
	if c.API.JWTSecret != "" && len(c.API.JWTSecret) < minJWTSecretLength {
		errs = append(errs, "api.jwt_secret must be at least 32 characters")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// TelemetryInterval returns the telemetry period as a Duration.
func (c *Config) TelemetryInterval() time.Duration {
	return time.Duration(c.Simulator.TelemetryIntervalMS) * time.Millisecond
}

// InitialDelay returns the first reconnect delay as a Duration.
func (r MQTTReconnectConfig) InitialDelay() time.Duration {
	return time.Duration(r.InitialDelayMS) * time.Millisecond
}

// MaxDelay returns the reconnect delay cap as a Duration.
func (r MQTTReconnectConfig) MaxDelay() time.Duration {
	return time.Duration(r.MaxDelayMS) * time.Millisecond
}

// ConnectTimeout returns the per-attempt connect timeout as a Duration.
func (m MQTTConfig) ConnectTimeout() time.Duration {
	if m.ConnectTimeoutMS <= 0 {
		return 10 * time.Second
	}
	return time.Duration(m.ConnectTimeoutMS) * time.Millisecond
}
