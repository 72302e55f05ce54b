package limiters

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/goMFA/internal/rate"
	"github.com/redis/go-redis/v9"
)

const (
	defaultVerifyMaxAttempts = 5
	defaultVerifyWindow      = 15 * time.Minute
	defaultBaseLockout       = time.Minute
	defaultMaxLockout        = time.Hour
	strikeMemory             = 24 * time.Hour
)

var ErrVerificationLocked = errors.New("verification locked")

type VerificationLimiterConfig struct {
	MaxAttempts int
	Window      time.Duration
	BaseLockout time.Duration
	MaxLockout  time.Duration
}

// VerificationLimiter counts failed second-factor attempts per user across
// challenges. Hitting MaxAttempts inside Window installs a lockout of
// BaseLockout * 2^(strikes-1), capped at MaxLockout.
type VerificationLimiter struct {
	redis    redis.UniversalClient
	failures *rate.Counter
	strikes  *rate.Counter
	cfg      VerificationLimiterConfig
}

func NewVerificationLimiter(redisClient redis.UniversalClient, cfg VerificationLimiterConfig) *VerificationLimiter {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultVerifyMaxAttempts
	}
	if cfg.Window <= 0 {
		cfg.Window = defaultVerifyWindow
	}
	if cfg.BaseLockout <= 0 {
		cfg.BaseLockout = defaultBaseLockout
	}
	if cfg.MaxLockout < cfg.BaseLockout {
		cfg.MaxLockout = defaultMaxLockout
		if cfg.MaxLockout < cfg.BaseLockout {
			cfg.MaxLockout = cfg.BaseLockout
		}
	}
	return &VerificationLimiter{
		redis:    redisClient,
		failures: rate.NewCounter(redisClient, "mvf", cfg.Window),
		strikes:  rate.NewCounter(redisClient, "mvs", strikeMemory),
		cfg:      cfg,
	}
}

func (l *VerificationLimiter) lockKey(userID string) string {
	return "mvl:" + userID
}

// Check returns ErrVerificationLocked and the remaining lockout while the user
// is locked out.
func (l *VerificationLimiter) Check(ctx context.Context, userID string) (time.Duration, error) {
	if l == nil {
		return 0, nil
	}
	ttl, err := l.redis.PTTL(ctx, l.lockKey(userID)).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", rate.ErrRedisUnavailable, err)
	}
	// -2: no key, -1: no expiry (never written that way, treat as unlocked)
	if ttl <= 0 {
		return 0, nil
	}
	return ttl, ErrVerificationLocked
}

// RecordFailure counts one failure. When the threshold is reached it installs
// the lockout and returns ErrVerificationLocked with its duration.
func (l *VerificationLimiter) RecordFailure(ctx context.Context, userID string) (time.Duration, error) {
	if l == nil {
		return 0, nil
	}
	n, err := l.failures.Hit(ctx, userID)
	if err != nil {
		return 0, err
	}
	if n < int64(l.cfg.MaxAttempts) {
		return 0, nil
	}

	strikes, err := l.strikes.Hit(ctx, userID)
	if err != nil {
		return 0, err
	}
	lockout := l.lockoutFor(strikes)

	if err := l.redis.Set(ctx, l.lockKey(userID), "1", lockout).Err(); err != nil {
		return 0, fmt.Errorf("%w: %v", rate.ErrRedisUnavailable, err)
	}
	if err := l.failures.Reset(ctx, userID); err != nil {
		return 0, err
	}
	return lockout, ErrVerificationLocked
}

// Reset clears failures and strikes after a successful verification. An
// active lockout is left in place.
func (l *VerificationLimiter) Reset(ctx context.Context, userID string) error {
	if l == nil {
		return nil
	}
	if err := l.failures.Reset(ctx, userID); err != nil {
		return err
	}
	return l.strikes.Reset(ctx, userID)
}

func (l *VerificationLimiter) lockoutFor(strikes int64) time.Duration {
	d := l.cfg.BaseLockout
	for i := int64(1); i < strikes; i++ {
		d *= 2
		if d >= l.cfg.MaxLockout {
			return l.cfg.MaxLockout
		}
	}
	if d > l.cfg.MaxLockout {
		return l.cfg.MaxLockout
	}
	return d
}
