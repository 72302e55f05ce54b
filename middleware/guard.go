package middleware

import (
	"context"
	"errors"
	"net/http"

	goMFA "github.com/MrEthical07/goMFA"
)

type sessionContextKey struct{}

// SessionFromContext returns the session injected by RequireSession.
func SessionFromContext(ctx context.Context) (*goMFA.Session, bool) {
	sess, ok := ctx.Value(sessionContextKey{}).(*goMFA.Session)
	return sess, ok && sess != nil
}

// WithSession stores sess in ctx. Handlers normally get it from
// RequireSession.
func WithSession(ctx context.Context, sess *goMFA.Session) context.Context {
	return context.WithValue(ctx, sessionContextKey{}, sess)
}

// RequireSession resolves the session cookie and rejects the request with
// 401 when it is missing, expired or unknown.
func RequireSession(engine *goMFA.Engine) func(http.Handler) http.Handler {
	cookieName := ""
	if engine != nil {
		cookieName = engine.Config().Session.CookieName
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			cookie, err := r.Cookie(cookieName)
			if err != nil || cookie.Value == "" {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			sess, err := engine.ResolveSession(r.Context(), cookie.Value)
			if err != nil {
				if errors.Is(err, goMFA.ErrBackendUnavailable) {
					http.Error(w, "service unavailable", http.StatusServiceUnavailable)
					return
				}
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), sess)))
		})
	}
}
