package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nerrad567/vmsim/internal/auth"
	"github.com/nerrad567/vmsim/internal/infrastructure/config"
)

const testSecret = "test-secret-for-development-only-0123"

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test-config.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return path
}

// TestRun_InvalidConfig verifies run fails with a malformed config file.
func TestRun_InvalidConfig(t *testing.T) {
	path := writeConfig(t, "simulator: [not, a, map")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := run(ctx, options{configPath: path}, &bytes.Buffer{}); err == nil {
		t.Fatal("run() should fail with invalid config")
	}
}

// TestRun_ValidationFailure verifies run reports validation errors.
func TestRun_ValidationFailure(t *testing.T) {
	path := writeConfig(t, `
simulator:
  telemetry_interval_ms: 10
`)

	err := run(context.Background(), options{configPath: path}, &bytes.Buffer{})
	if err == nil || !strings.Contains(err.Error(), "telemetry_interval_ms") {
		t.Fatalf("run() error = %v, want telemetry_interval_ms validation error", err)
	}
}

// TestRun_Token verifies -token prints a verifiable token and exits.
func TestRun_Token(t *testing.T) {
	path := writeConfig(t, `
api:
  jwt_secret: "`+testSecret+`"
`)

	var out bytes.Buffer
	opts := options{configPath: path, token: "alice", role: string(auth.RoleViewer), tokenTTL: time.Hour}
	if err := run(context.Background(), opts, &out); err != nil {
		t.Fatalf("run() error = %v", err)
	}

	claims, err := auth.ParseToken(strings.TrimSpace(out.String()), testSecret)
	if err != nil {
		t.Fatalf("ParseToken() error = %v", err)
	}
	if claims.Subject != "alice" || claims.Role != auth.RoleViewer {
		t.Errorf("claims = %s/%s, want alice/viewer", claims.Subject, claims.Role)
	}
}

// TestRun_TokenWithoutSecret verifies -token fails when no secret is configured.
func TestRun_TokenWithoutSecret(t *testing.T) {
	t.Setenv("VMSIM_JWT_SECRET", "")
	path := writeConfig(t, "logging:\n  level: error\n")

	opts := options{configPath: path, token: "alice", role: string(auth.RoleOperator)}
	if err := run(context.Background(), opts, &bytes.Buffer{}); err == nil {
		t.Fatal("run() should fail without api.jwt_secret")
	}
}

// TestRun_EmbeddedBroker runs the whole simulator against its own broker
// until the context expires.
func TestRun_EmbeddedBroker(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping full startup test in short mode")
	}

	path := writeConfig(t, `
simulator:
  devices: ["VM-MAIN-1", "VM-MAIN-2"]
embedded_broker:
  enabled: true
  address: "127.0.0.1:0"
logging:
  level: error
  format: text
`)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := run(ctx, options{configPath: path}, &bytes.Buffer{}); err != nil {
		t.Fatalf("run() error = %v, want clean shutdown", err)
	}
}

// TestParseFlags verifies flag defaults and overrides.
func TestParseFlags(t *testing.T) {
	t.Setenv("VMSIM_CONFIG", "")

	opts, err := parseFlags(nil)
	if err != nil {
		t.Fatalf("parseFlags() error = %v", err)
	}
	if opts.configPath != defaultConfigPath || opts.role != string(auth.RoleOperator) || opts.token != "" {
		t.Errorf("defaults = %+v", opts)
	}

	opts, err = parseFlags([]string{"-config", "/tmp/x.yaml", "-token", "bob", "-role", "viewer", "-token-ttl", "2h"})
	if err != nil {
		t.Fatalf("parseFlags() error = %v", err)
	}
	if opts.configPath != "/tmp/x.yaml" || opts.token != "bob" || opts.role != "viewer" || opts.tokenTTL != 2*time.Hour {
		t.Errorf("parsed = %+v", opts)
	}

	if _, err := parseFlags([]string{"-nope"}); err == nil {
		t.Error("parseFlags() should reject unknown flags")
	}
}

// TestGetConfigPath_EnvOverride verifies environment variable override.
func TestGetConfigPath_EnvOverride(t *testing.T) {
	expected := "/custom/path/config.yaml"
	t.Setenv("VMSIM_CONFIG", expected)

	if path := getConfigPath(); path != expected {
		t.Errorf("getConfigPath() = %q, want %q", path, expected)
	}
}

// TestUseBroker verifies broker address rewriting.
func TestUseBroker(t *testing.T) {
	cfg := config.Default()
	cfg.MQTT.Broker.TLS = true

	if err := useBroker(cfg, "127.0.0.1:41883"); err != nil {
		t.Fatalf("useBroker() error = %v", err)
	}
	if cfg.MQTT.Broker.Host != "127.0.0.1" || cfg.MQTT.Broker.Port != 41883 || cfg.MQTT.Broker.TLS {
		t.Errorf("broker = %+v", cfg.MQTT.Broker)
	}

	if err := useBroker(cfg, "no-port"); err == nil {
		t.Error("useBroker() should fail without a port")
	}
}
