// Package goMFA is the second-factor layer of a password login: credential
// checks, TOTP, email one-time codes and backup codes, forced enrollment for
// accounts that must have a second factor, and the session boundary that
// follows, including admin impersonation.
//
// Engine methods are safe to call from multiple goroutines after
// initialization through [Builder.Build].
//
// # Flow
//
// [Engine.Authenticate] returns one of three outcomes. An enrolled account
// receives a [Challenge] whose token is redeemed with [Engine.Verify]. An
// account that must enroll receives a setup-only session usable only with
// [Engine.SetupTOTP], [Engine.ConfirmTOTP] and [Engine.SetupEmail]. Any other
// account is signed in directly.
//
// # Architecture boundaries
//
// goMFA is the public surface. Persistence of accounts and codes sits
// behind the interfaces in package store; challenges, pending enrollments,
// sessions and limiters live in Redis. Flow orchestration, secret sealing,
// rate limiting and audit dispatch live under internal/ and are never
// exported.
//
// # What this package must NOT do
//
//   - Return or log a plaintext email code or backup code after issuing it.
//   - Reveal through errors or timing whether an email address exists.
//   - Store a TOTP secret unsealed.
package goMFA
