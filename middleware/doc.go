// Package middleware adapts goMFA sessions to net/http.
//
// # Guards
//
//   - [RequireSession] resolves the session cookie through Engine.ResolveSession
//     and injects the session into the request context.
//   - [RequireVerified] admits only sessions that completed the second factor.
//   - [RequireSetupPending] admits only setup-only sessions.
//   - [RequireAdmin] admits verified sessions whose real actor is an admin.
//
// The last three read the session placed by RequireSession and must be
// mounted after it.
//
// # What this package must NOT do
//
//   - Read Redis or the account store directly (the Engine does).
//   - Decide enrollment state itself; ResolveSession re-derives it.
package middleware
