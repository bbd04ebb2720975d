// Package auth issues and verifies bearer tokens for the simulator's
// admin API.
//
// Tokens are HS256 JWTs carrying a subject (the operator name) and a
// role. Two roles exist:
//   - viewer: read device snapshots and the live message feed
//   - operator: everything a viewer can do plus injecting commands
//
// Role permissions are a static compile-time mapping; there is no user
// store. Operators mint tokens out of band with `vmsim -token <name>`.
package auth
