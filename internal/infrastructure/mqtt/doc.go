// Package mqtt manages the broker session of one simulated vending machine.
//
// This package provides:
//   - ConnectionManager: connect/reconnect lifecycle with exponential backoff
//   - Last will registration on every dial (retained offline status)
//   - Publish and Subscribe with QoS validation and subscription restore
//   - Typed lifecycle Signals (connected, disconnected, offline, error,
//     maxRetriesReached, closed)
//   - Topics builders for the v1/vm/{device_no}/... contract
//
// # Reconnect policy
//
// The first Connect makes up to max_attempts attempts, waiting
// Backoff.Delay(n) after failure n, and fails with ErrMaxRetriesReached
// when the budget is spent. Once a session has been established, a
// transport loss restarts the count at 1 and the first retry waits the
// initial delay. With after_loss "unbounded" the manager keeps retrying
// (delays still capped at max_delay_ms); with "bounded" it applies the
// same budget as the first Connect and signals maxRetriesReached.
//
// Paho's own auto-reconnect is disabled. Every attempt dials a fresh
// clean session through a Dialer, which tests replace with a fake.
//
// # Usage
//
//	mgr := mqtt.NewConnectionManager(mqtt.ManagerOptions{
//	    ClientID: "VM_VM-BJ-001_3fa2",
//	    Config:   cfg.MQTT,
//	    Will:     device.OfflineWill,
//	    Offline:  device.OfflineStatus,
//	    Logger:   log,
//	})
//	if err := mgr.Connect(ctx); err != nil {
//	    return err // ErrMaxRetriesReached is fatal
//	}
//	defer mgr.Disconnect()
//
//	for sig := range mgr.Signals() {
//	    // react to connected / disconnected / closed
//	}
package mqtt
