// Package api implements the simulator's admin HTTP API and live
// message feed.
//
// This package provides:
//   - Device snapshot endpoints backed by the device actors
//   - Command injection into a device inbox, bypassing the broker
//   - A WebSocket hub relaying every outgoing device message
//   - Optional HS256 bearer-token auth (api.jwt_secret)
//   - Middleware stack (request ID, logging, recovery, body limit)
//
// # Security
//
// With no jwt_secret configured every route is open, which suits a local
// test bench. With a secret, all routes except /health require a token;
// the WebSocket endpoint also accepts it as ?token= because browsers
// cannot set headers on upgrade requests.
package api
