// Package limiters provides the domain-specific throttles of the MFA engine,
// built on the internal/rate fixed-window counter.
//
// # Limiters
//
//   - [LoginLimiter]: per-email + per-IP throttle in front of password checks.
//   - [VerificationLimiter]: per-user failure counter for second-factor codes
//     (TOTP, email OTP, backup code, enrollment confirmation). Reaching the
//     threshold locks the user out; each consecutive lockout doubles in length
//     up to a cap.
//
// All limiters are nil-safe: calling any method on a nil receiver returns nil.
//
// # What this package must NOT do
//
//   - Import goMFA or any sibling internal package except internal/rate.
//   - Make policy decisions beyond counting; the engine decides consequences.
package limiters
