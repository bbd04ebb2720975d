// vmsim - Vending Machine Fleet Simulator
//
// This is the main entry point for the vmsim application. It simulates a
// fleet of IoT vending machines that talk to a back office over MQTT:
//   - Retained online/offline status with a last-will
//   - Command handling with exactly-once acks (DISPENSE, LOCK_CHANNEL, ...)
//   - Periodic telemetry and probabilistic fault events
//
// Optional extras: an embedded broker for local runs, an InfluxDB
// telemetry mirror, and an admin HTTP API with a live message feed.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/nerrad567/vmsim/internal/api"
	"github.com/nerrad567/vmsim/internal/auth"
	"github.com/nerrad567/vmsim/internal/infrastructure/broker"
	"github.com/nerrad567/vmsim/internal/infrastructure/config"
	"github.com/nerrad567/vmsim/internal/infrastructure/influxdb"
	"github.com/nerrad567/vmsim/internal/infrastructure/logging"
	"github.com/nerrad567/vmsim/internal/simulator"
	"github.com/nerrad567/vmsim/internal/vending"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

// options are the command-line flags.
type options struct {
	configPath string
	token      string
	role       string
	tokenTTL   time.Duration
}

func main() {
	// Create a context that cancels on interrupt signals (Ctrl+C, SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	opts, err := parseFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}

	if err := run(ctx, opts, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// parseFlags reads command-line flags.
func parseFlags(args []string) (options, error) {
	fs := flag.NewFlagSet("vmsim", flag.ContinueOnError)
	opts := options{}
	fs.StringVar(&opts.configPath, "config", getConfigPath(), "path to the YAML configuration file")
	fs.StringVar(&opts.token, "token", "", "print an admin API token for this subject and exit")
	fs.StringVar(&opts.role, "role", string(auth.RoleOperator), "role for -token (viewer or operator)")
	fs.DurationVar(&opts.tokenTTL, "token-ttl", auth.DefaultTokenTTL, "lifetime for -token")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}
	return opts, nil
}

// run is the actual application logic, separated from main for testability.
// Returning an error allows main to handle exit codes consistently.
func run(ctx context.Context, opts options, stdout io.Writer) error {
	// Use default logger until config is loaded
	log := logging.Default()

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	if opts.token != "" {
		return printToken(stdout, cfg, opts)
	}

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	log.Info("starting vmsim",
		"version", version,
		"commit", commit,
		"build_date", date,
		"config", opts.configPath,
		"devices", len(cfg.Simulator.Devices),
	)

	// Start embedded broker (optional) and point the fleet at it
	if cfg.EmbeddedBroker.Enabled {
		b, err := broker.Start(cfg.EmbeddedBroker, log.Logger)
		if err != nil {
			return fmt.Errorf("starting embedded broker: %w", err)
		}
		defer func() {
			log.Info("stopping embedded broker")
			if closeErr := b.Close(); closeErr != nil {
				log.Error("error stopping embedded broker", "error", closeErr)
			}
		}()
		if err := useBroker(cfg, b.Addr()); err != nil {
			return err
		}
		log.Info("embedded broker started", "address", b.Addr())
	}

	var (
		taps     []vending.Tap
		recorder vending.TelemetryRecorder
		checks   = map[string]api.HealthChecker{}
	)

	// Connect to InfluxDB (optional)
	if cfg.InfluxDB.Enabled {
		influxClient, err := influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("flushing and closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)

		checks["influxdb"] = influxClient

		sink := simulator.NewInfluxSink(influxClient)
		taps = append(taps, sink)
		recorder = sink
	} else {
		log.Info("InfluxDB disabled")
	}

	// The hub must exist before the fleet so devices can tap into it
	var hub *api.Hub
	if cfg.API.Enabled {
		hub = api.NewHub(cfg.WebSocket, log)
		taps = append(taps, hub)
	}

	fleet, err := simulator.New(simulator.Options{
		Config:   cfg,
		Logger:   log,
		Taps:     taps,
		Recorder: recorder,
	})
	if err != nil {
		return fmt.Errorf("building fleet: %w", err)
	}

	// Start admin API (optional)
	if cfg.API.Enabled {
		srv, err := api.New(api.Deps{
			Config:  cfg.API,
			WS:      cfg.WebSocket,
			Logger:  log,
			Fleet:   fleet,
			Hub:     hub,
			Version: version,
			Checks:  checks,
		})
		if err != nil {
			return fmt.Errorf("creating API server: %w", err)
		}
		if err := srv.Start(ctx); err != nil {
			return fmt.Errorf("starting API server: %w", err)
		}
		defer func() {
			if closeErr := srv.Close(); closeErr != nil {
				log.Error("error closing API server", "error", closeErr)
			}
		}()
	} else {
		log.Info("admin API disabled")
	}

	// Blocks until shutdown signal or a fatal connection error.
	// Deferred Close() calls then run in reverse order:
	// 1. API server (if enabled)
	// 2. InfluxDB (if enabled)
	// 3. Embedded broker (if enabled)
	if err := fleet.Run(ctx); err != nil {
		return fmt.Errorf("running fleet: %w", err)
	}

	log.Info("vmsim stopped")
	return nil
}

// printToken writes a signed admin API token for opts.token.
func printToken(w io.Writer, cfg *config.Config, opts options) error {
	token, err := auth.GenerateToken(opts.token, auth.Role(opts.role), cfg.API.JWTSecret, opts.tokenTTL)
	if err != nil {
		return fmt.Errorf("generating token: %w", err)
	}
	_, err = fmt.Fprintln(w, token)
	return err
}

// useBroker rewrites the MQTT broker address to addr ("host:port").
func useBroker(cfg *config.Config, addr string) error {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("parsing broker address %q: %w", addr, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return fmt.Errorf("parsing broker port %q: %w", portStr, err)
	}
	cfg.MQTT.Broker.Host = host
	cfg.MQTT.Broker.Port = port
	cfg.MQTT.Broker.TLS = false
	return nil
}

// getConfigPath returns the configuration file path.
// Uses VMSIM_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("VMSIM_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}
