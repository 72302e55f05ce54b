// Package session persists authenticated sessions in Redis behind an opaque
// cookie value.
//
// A Session records who is logged in, whether the second factor was
// verified, whether the account is still limited to enrollment endpoints and
// an optional impersonation binding. Sessions are stored in a compact
// versioned binary layout and indexed per account so every session of an
// account can be revoked at once.
//
// The package makes no authorization decisions; it stores and returns what
// the engine decided.
package session
