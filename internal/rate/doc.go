// Package rate provides the Redis fixed-window counter that the domain
// limiters in internal/limiters are built on.
//
// # Window semantics
//
// INCR + EXPIRE on the first hit of a window. A key past its TTL starts a new
// window. Counters never go negative and missing keys read as zero.
//
// # What this package must NOT do
//
//   - Implement domain-specific policies (those live in internal/limiters).
//   - Be imported outside the goMFA module.
package rate
