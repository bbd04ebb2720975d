// Package config handles loading and validating simulator configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with environment variables
//   - Validation of ranges (ports, retry budget, delays, probabilities)
//   - Default value handling
//
// A missing config file is not an error: the simulator can be driven from
// defaults and VMSIM_* environment variables alone.
//
// Security Considerations:
//   - Broker passwords and the admin JWT secret should be set via environment variables
//   - The config file should have restricted permissions (0600)
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Simulator.Devices)
package config
