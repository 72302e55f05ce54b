// Package internal contains helpers that are private to goMFA, mainly secure
// random identifiers and numeric codes.
//
// # Sub-packages
//
//   - audit: async event dispatch (Dispatcher + Sink implementations)
//   - config: process configuration loading (env, .env)
//   - flows: pure-function orchestrators for code issuance and verification
//   - httpapi: chi router and JSON handlers for the login and MFA routes
//   - limiters: Redis-backed login throttle and verification lockout
//   - logging: zap logger construction and the zap audit sink
//   - secret: at-rest sealing of TOTP secrets
//   - stores: Redis-backed challenge and pending-enrollment records
//
// # What this package must NOT do
//
//   - Export types that appear in the public goMFA API.
//   - Be imported by any package outside the goMFA module.
package internal
