package limiters

import (
	"context"
	"strings"
	"time"

	"github.com/MrEthical07/goMFA/internal/rate"
	"github.com/redis/go-redis/v9"
)

const (
	defaultLoginMaxAttempts = 10
	defaultLoginWindow      = 15 * time.Minute
)

var ErrLoginRateLimited = rate.ErrRateLimited

type LoginLimiterConfig struct {
	MaxAttempts      int
	Window           time.Duration
	EnableIPThrottle bool
}

// LoginLimiter throttles failed password attempts per email and per IP.
type LoginLimiter struct {
	byEmail *rate.Counter
	byIP    *rate.Counter
	max     int
}

func NewLoginLimiter(redisClient redis.UniversalClient, cfg LoginLimiterConfig) *LoginLimiter {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultLoginMaxAttempts
	}
	if cfg.Window <= 0 {
		cfg.Window = defaultLoginWindow
	}
	l := &LoginLimiter{
		byEmail: rate.NewCounter(redisClient, "mll", cfg.Window),
		max:     cfg.MaxAttempts,
	}
	if cfg.EnableIPThrottle {
		l.byIP = rate.NewCounter(redisClient, "mli", cfg.Window)
	}
	return l
}

func (l *LoginLimiter) Check(ctx context.Context, email, ip string) error {
	if l == nil {
		return nil
	}
	if err := l.byEmail.Exceeded(ctx, loginKey(email), l.max); err != nil {
		return err
	}
	if l.byIP != nil && ip != "" {
		return l.byIP.Exceeded(ctx, ip, l.max)
	}
	return nil
}

func (l *LoginLimiter) RecordFailure(ctx context.Context, email, ip string) error {
	if l == nil {
		return nil
	}
	if _, err := l.byEmail.Hit(ctx, loginKey(email)); err != nil {
		return err
	}
	if l.byIP != nil && ip != "" {
		if _, err := l.byIP.Hit(ctx, ip); err != nil {
			return err
		}
	}
	return nil
}

// Reset clears the per-email counter. The per-IP window is left to expire so
// one good login cannot launder failures for other accounts from that IP.
func (l *LoginLimiter) Reset(ctx context.Context, email string) error {
	if l == nil {
		return nil
	}
	return l.byEmail.Reset(ctx, loginKey(email))
}

func loginKey(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
