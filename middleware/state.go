package middleware

import (
	"net/http"

	goMFA "github.com/MrEthical07/goMFA"
)

// RequireVerified admits sessions that completed the second factor or
// belong to an account without one. Setup-only sessions get 403.
func RequireVerified(next http.Handler) http.Handler {
	return requireSession(next, func(sess *goMFA.Session) bool {
		return sess.MFAVerified && !sess.SetupPending
	}, "mfa setup required")
}

// RequireSetupPending admits only setup-only sessions of the account itself.
func RequireSetupPending(next http.Handler) http.Handler {
	return requireSession(next, func(sess *goMFA.Session) bool {
		return sess.SetupPending && !sess.Impersonating()
	}, "forbidden")
}

// RequireAdmin checks the actor's own role, so an admin keeps admin routes
// while impersonating a merchant.
func RequireAdmin(next http.Handler) http.Handler {
	return requireSession(next, func(sess *goMFA.Session) bool {
		return sess.MFAVerified && !sess.SetupPending && sess.Role == string(goMFA.RoleAdmin)
	}, "forbidden")
}

func requireSession(next http.Handler, allow func(*goMFA.Session) bool, msg string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, ok := SessionFromContext(r.Context())
		if !ok {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		if !allow(sess) {
			http.Error(w, msg, http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}
