// Package httpapi exposes the goMFA engine over JSON HTTP with chi.
package httpapi

import (
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	goMFA "github.com/MrEthical07/goMFA"
	"github.com/MrEthical07/goMFA/middleware"
)

// Options tunes the router. Zero values get sensible defaults.
type Options struct {
	AllowedOrigins []string
	RequestTimeout time.Duration
	// Metrics is mounted at GET /metrics when set.
	Metrics http.Handler
}

type handler struct {
	engine *goMFA.Engine
	logger *zap.Logger
	cookie goMFA.SessionConfig
}

// NewRouter wires every route onto a chi router.
func NewRouter(engine *goMFA.Engine, logger *zap.Logger, opts Options) chi.Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 30 * time.Second
	}

	h := &handler{
		engine: engine,
		logger: logger,
		cookie: engine.Config().Session,
	}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(requestLogger(logger))
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(opts.RequestTimeout))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   opts.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-Id"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(clientContext)

	r.Get("/health", h.health)
	if opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", opts.Metrics)
	}

	r.Route("/login", func(r chi.Router) {
		r.Post("/", h.login)
		r.Post("/mfa", h.loginMFA)
		r.Post("/method", h.loginMethod)
		r.Post("/status", h.loginStatus)
		r.Post("/cancel", h.loginCancel)
	})
	r.Post("/logout", h.logout)

	r.Route("/mfa", func(r chi.Router) {
		r.Post("/email/send-login-otp", h.sendLoginOTP)
		r.Post("/email/verify-login-otp", h.verifyLoginOTP)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireSession(engine))
			r.With(middleware.RequireSetupPending).Post("/setup/totp", h.setupTOTP)
			r.With(middleware.RequireSetupPending).Post("/setup/totp/confirm", h.confirmTOTP)
			r.With(middleware.RequireSetupPending).Post("/setup/email", h.setupEmail)
			r.With(middleware.RequireVerified).Post("/backup-codes/regenerate", h.regenerateBackupCodes)
		})
	})

	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireSession(engine))
		r.Get("/me", h.me)
	})

	r.Route("/admin", func(r chi.Router) {
		r.Use(middleware.RequireSession(engine))
		r.Use(middleware.RequireAdmin)
		r.Post("/impersonate", h.impersonate)
		r.Post("/stop-impersonate", h.stopImpersonate)
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "endpoint not found"})
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, errorBody{Error: "method not allowed"})
	})

	return r
}

// clientContext hands the caller's IP and user agent to the engine for
// login throttling and audit.
func clientContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		host, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			host = r.RemoteAddr
		}
		ctx := goMFA.WithClientIP(r.Context(), host)
		ctx = goMFA.WithUserAgent(ctx, r.UserAgent())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			defer func() {
				logger.Info("http request",
					zap.String("request_id", chimw.GetReqID(r.Context())),
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.String("remote_addr", r.RemoteAddr),
					zap.Int("status", ww.Status()),
					zap.Duration("duration", time.Since(start)),
					zap.String("user_agent", r.UserAgent()),
				)
			}()
			next.ServeHTTP(ww, r)
		})
	}
}
