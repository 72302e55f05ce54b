// Package stores provides Redis-backed, short-lived records for the MFA
// login flow: the per-login challenge and the pending TOTP enrollment secret.
//
// # Design
//
// Each store persists a versioned, binary-encoded record in Redis with a TTL.
// Mutations (Update, RecordFailure) use WATCH/MULTI optimistic transactions
// with bounded retry on contention. A challenge is single-use: Delete reports
// whether this caller removed it, so a second completion is detectable.
//
// # Architecture boundaries
//
// This package owns persistence and concurrency control for transient
// records. It does NOT mint tokens, verify codes or enforce lockouts.
//
// # What this package must NOT do
//
//   - Import goMFA or any sibling internal package.
//   - Store plaintext secrets (enrollment secrets arrive sealed).
package stores
