// Package store defines the durable records behind the MFA engine and the
// repository interfaces that persist them.
//
// Implementations live in sub-packages: store/memory for tests and local
// development, store/postgres for production.
//
// # Consumption guarantees
//
// Email codes and backup codes are single-use. Implementations must flip the
// consumed/used flag with a conditional write so that two concurrent
// consumers of the same row observe exactly one success.
//
// # What this package must NOT do
//
//   - Hold plaintext codes or raw TOTP secrets.
//   - Import the root goMFA package.
package store
