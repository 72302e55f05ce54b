package goMFA

import (
	"errors"
	"time"

	internalaudit "github.com/MrEthical07/goMFA/internal/audit"
	"github.com/MrEthical07/goMFA/internal/limiters"
	"github.com/MrEthical07/goMFA/internal/secret"
	"github.com/MrEthical07/goMFA/internal/stores"
	"github.com/MrEthical07/goMFA/jwt"
	"github.com/MrEthical07/goMFA/password"
	"github.com/MrEthical07/goMFA/session"
	"github.com/MrEthical07/goMFA/store"
	"github.com/redis/go-redis/v9"
)

// Store is satisfied by a backend that persists all three record kinds,
// such as store/postgres.Store and store/memory.Store.
type Store interface {
	store.Accounts
	store.EmailOTPs
	store.BackupCodes
}

// Builder assembles an Engine. A Builder is single use.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	accounts    store.Accounts
	emailOTPs   store.EmailOTPs
	backupCodes store.BackupCodes
	mailer      Mailer
	auditSink   AuditSink
	now         func() time.Time

	built bool
}

// New returns a Builder seeded with DefaultConfig.
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis sets the client backing challenges, pending enrollments,
// sessions and limiters.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithStore sets one backend for accounts, email codes and backup codes.
func (b *Builder) WithStore(s Store) *Builder {
	b.accounts = s
	b.emailOTPs = s
	b.backupCodes = s
	return b
}

func (b *Builder) WithAccounts(s store.Accounts) *Builder {
	b.accounts = s
	return b
}

func (b *Builder) WithEmailOTPs(s store.EmailOTPs) *Builder {
	b.emailOTPs = s
	return b
}

func (b *Builder) WithBackupCodes(s store.BackupCodes) *Builder {
	b.backupCodes = s
	return b
}

func (b *Builder) WithMailer(m Mailer) *Builder {
	b.mailer = m
	return b
}

func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithClock replaces time.Now for expiry decisions. Intended for tests.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and wires every component.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)

	if b.redis == nil {
		return nil, errors.New("redis client required")
	}
	if b.accounts == nil || b.emailOTPs == nil || b.backupCodes == nil {
		return nil, errors.New("account, email code and backup code stores required")
	}
	if b.mailer == nil {
		return nil, errors.New("mailer required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	now := b.now
	if now == nil {
		now = time.Now
	}

	if len(cfg.EmailOTP.Pepper) == 0 {
		pepper, err := secret.DeriveKey(cfg.Secrets.MasterKey, "gomfa/email-otp-pepper", 32)
		if err != nil {
			return nil, err
		}
		cfg.EmailOTP.Pepper = pepper
	}

	engine := &Engine{
		config:      cfg,
		accounts:    b.accounts,
		emailOTPs:   b.emailOTPs,
		backupCodes: b.backupCodes,
		mailer:      b.mailer,
		now:         now,
	}

	// -------- REDIS STORES --------
	engine.sessions = session.NewStore(
		b.redis,
		cfg.Session.RedisPrefix,
		cfg.Session.IdleTTL,
		cfg.Session.SlidingExpiration,
		cfg.Session.JitterRange,
	)
	engine.challenges = stores.NewChallengeStore(b.redis, cfg.Challenge.RedisPrefix, now)
	engine.enrollments = stores.NewEnrollmentStore(b.redis, cfg.TOTP.SetupRedisPrefix)

	// -------- LIMITERS --------
	engine.loginLimiter = limiters.NewLoginLimiter(b.redis, limiters.LoginLimiterConfig{
		MaxAttempts:      cfg.Login.MaxAttempts,
		Window:           cfg.Login.Window,
		EnableIPThrottle: cfg.Login.EnableIPThrottle,
	})
	engine.verifyLimiter = limiters.NewVerificationLimiter(b.redis, limiters.VerificationLimiterConfig{
		MaxAttempts: cfg.Verification.MaxFailures,
		Window:      cfg.Verification.Window,
		BaseLockout: cfg.Verification.BaseLockout,
		MaxLockout:  cfg.Verification.MaxLockout,
	})

	// -------- SECRETS --------
	totpBox, err := secret.NewBox(cfg.Secrets.MasterKey, "gomfa/totp")
	if err != nil {
		return nil, err
	}
	pendingBox, err := secret.NewBox(cfg.Secrets.MasterKey, "gomfa/totp-pending")
	if err != nil {
		return nil, err
	}
	engine.totpBox = totpBox
	engine.pendingBox = pendingBox

	ph, err := password.NewHasher(password.Config{
		Memory:      cfg.Password.Memory,
		Time:        cfg.Password.Time,
		Parallelism: cfg.Password.Parallelism,
		SaltLength:  cfg.Password.SaltLength,
		KeyLength:   cfg.Password.KeyLength,
	})
	if err != nil {
		return nil, err
	}
	engine.hasher = ph

	jm, err := jwt.NewManager(jwt.Config{
		SigningMethod: jwt.SigningMethod(cfg.ChallengeToken.SigningMethod),
		PrivateKey:    cloneBytes(cfg.ChallengeToken.PrivateKey),
		PublicKey:     cloneBytes(cfg.ChallengeToken.PublicKey),
		Issuer:        cfg.ChallengeToken.Issuer,
		Audience:      cfg.ChallengeToken.Audience,
		KeyID:         cfg.ChallengeToken.KeyID,
		Leeway:        cfg.ChallengeToken.Leeway,
		Now:           now,
	})
	if err != nil {
		return nil, err
	}
	engine.tokens = jm

	tv, err := newTOTPValidator(cfg.TOTP)
	if err != nil {
		return nil, err
	}
	engine.totp = tv
	engine.metrics = NewMetrics(cfg.Metrics)
	engine.audit = internalaudit.NewDispatcher(internalaudit.Config{
		Enabled:    cfg.Audit.Enabled,
		BufferSize: cfg.Audit.BufferSize,
		DropIfFull: cfg.Audit.DropIfFull,
	}, b.auditSink)

	b.built = true

	return engine, nil
}
