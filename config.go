package goMFA

import (
	"errors"
	"math"
	"net/http"
	"strings"
	"time"
)

// Config holds every tunable of the Engine. Obtain a populated value with
// DefaultConfig and override what you need before passing it to
// Builder.WithConfig.
type Config struct {
	ChallengeToken ChallengeTokenConfig
	Challenge      ChallengeConfig
	TOTP           TOTPConfig
	EmailOTP       EmailOTPConfig
	BackupCodes    BackupCodeConfig
	Secrets        SecretsConfig
	Session        SessionConfig
	Password       PasswordConfig
	Login          LoginConfig
	Verification   VerificationConfig
	Audit          AuditConfig
	Metrics        MetricsConfig
	ProductionMode bool
}

/*
====================================
CHALLENGE TOKEN CONFIG
====================================
*/

// ChallengeTokenConfig controls signing of the challenge token handed to the
// client between the password step and the second factor.
type ChallengeTokenConfig struct {
	SigningMethod string // "ed25519" (default), "hs256" optional
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Audience      string
	KeyID         string
	Leeway        time.Duration
}

/*
====================================
CHALLENGE CONFIG
====================================
*/

type ChallengeConfig struct {
	TTL         time.Duration
	MaxAttempts int
	RedisPrefix string
}

/*
====================================
TOTP CONFIG
====================================
*/

type TOTPConfig struct {
	Issuer                  string
	Period                  int
	Digits                  int
	Algorithm               string
	Skew                    int
	EnforceReplayProtection bool
	// SetupTTL bounds how long a generated but unconfirmed secret is kept.
	SetupTTL         time.Duration
	SetupRedisPrefix string
}

/*
====================================
EMAIL OTP CONFIG
====================================
*/

type EmailOTPConfig struct {
	Digits int
	TTL    time.Duration
	// Pepper keys the HMAC over stored codes. Required in production.
	Pepper []byte
}

/*
====================================
BACKUP CODE CONFIG
====================================
*/

type BackupCodeConfig struct {
	Count int
}

/*
====================================
SECRETS CONFIG
====================================
*/

// SecretsConfig carries the master key that seals TOTP secrets at rest and
// while enrollment is pending.
type SecretsConfig struct {
	MasterKey []byte
}

/*
====================================
SESSION CONFIG
====================================
*/

type SessionConfig struct {
	RedisPrefix       string
	IdleTTL           time.Duration
	AbsoluteLifetime  time.Duration
	SetupLifetime     time.Duration
	SlidingExpiration bool
	JitterRange       time.Duration

	CookieName   string
	CookieDomain string
	CookiePath   string
	SecureCookie bool
	SameSite     http.SameSite
}

/*
====================================
PASSWORD CONFIG
====================================
*/

type PasswordConfig struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

/*
====================================
LOGIN CONFIG
====================================
*/

type LoginConfig struct {
	MaxAttempts      int
	Window           time.Duration
	EnableIPThrottle bool
}

/*
====================================
VERIFICATION LIMITER CONFIG
====================================
*/

// VerificationConfig governs the per-user limiter shared by every challenge
// and by enrollment confirmation. Reaching MaxFailures inside Window locks
// verification for BaseLockout, doubling on each repeat up to MaxLockout.
type VerificationConfig struct {
	MaxFailures int
	Window      time.Duration
	BaseLockout time.Duration
	MaxLockout  time.Duration
}

/*
====================================
AUDIT CONFIG
====================================
*/

type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

/*
====================================
METRICS CONFIG
====================================
*/

type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns the baseline configuration. Keys, the pepper and the
// master key are left empty and must be supplied.
func DefaultConfig() Config {
	return Config{
		ChallengeToken: ChallengeTokenConfig{
			SigningMethod: "ed25519",
			Issuer:        "gomfa",
			Leeway:        5 * time.Second,
		},
		Challenge: ChallengeConfig{
			TTL:         10 * time.Minute,
			MaxAttempts: 5,
			RedisPrefix: "mch",
		},
		TOTP: TOTPConfig{
			Issuer:                  "goMFA",
			Period:                  30,
			Digits:                  6,
			Algorithm:               "SHA1",
			Skew:                    1,
			EnforceReplayProtection: true,
			SetupTTL:                15 * time.Minute,
			SetupRedisPrefix:        "mte",
		},
		EmailOTP: EmailOTPConfig{
			Digits: 6,
			TTL:    5 * time.Minute,
		},
		BackupCodes: BackupCodeConfig{
			Count: 10,
		},
		Session: SessionConfig{
			RedisPrefix:       "mss",
			IdleTTL:           2 * time.Hour,
			AbsoluteLifetime:  24 * time.Hour,
			SetupLifetime:     30 * time.Minute,
			SlidingExpiration: true,
			JitterRange:       30 * time.Second,
			CookieName:        "gomfa_session",
			CookiePath:        "/",
			SecureCookie:      true,
			SameSite:          http.SameSiteLaxMode,
		},
		Password: PasswordConfig{
			Memory:      64 * 1024,
			Time:        3,
			Parallelism: 2,
			SaltLength:  16,
			KeyLength:   32,
		},
		Login: LoginConfig{
			MaxAttempts:      10,
			Window:           15 * time.Minute,
			EnableIPThrottle: true,
		},
		Verification: VerificationConfig{
			MaxFailures: 5,
			Window:      15 * time.Minute,
			BaseLockout: time.Minute,
			MaxLockout:  time.Hour,
		},
		Audit: AuditConfig{
			Enabled:    true,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.ChallengeToken.PrivateKey = cloneBytes(cfg.ChallengeToken.PrivateKey)
	out.ChallengeToken.PublicKey = cloneBytes(cfg.ChallengeToken.PublicKey)
	out.EmailOTP.Pepper = cloneBytes(cfg.EmailOTP.Pepper)
	out.Secrets.MasterKey = cloneBytes(cfg.Secrets.MasterKey)
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate rejects configurations the Engine cannot run safely with.
func (c *Config) Validate() error {
	// Challenge token
	switch c.ChallengeToken.SigningMethod {
	case "ed25519":
		if len(c.ChallengeToken.PrivateKey) == 0 || len(c.ChallengeToken.PublicKey) == 0 {
			return errors.New("ChallengeToken ed25519 requires PrivateKey and PublicKey")
		}
	case "hs256":
		if len(c.ChallengeToken.PrivateKey) < 32 {
			return errors.New("ChallengeToken hs256 requires a PrivateKey of at least 32 bytes")
		}
	default:
		return errors.New("unsupported ChallengeToken signing method")
	}
	if c.ChallengeToken.Leeway < 0 || c.ChallengeToken.Leeway > 2*time.Minute {
		return errors.New("ChallengeToken Leeway must be between 0 and 2m")
	}

	// Challenge
	if c.Challenge.TTL <= 0 || c.Challenge.TTL > time.Hour {
		return errors.New("Challenge TTL must be > 0 and <= 1h")
	}
	if c.Challenge.MaxAttempts <= 0 || c.Challenge.MaxAttempts > math.MaxUint16 {
		return errors.New("Challenge MaxAttempts must be > 0")
	}

	// TOTP
	if strings.TrimSpace(c.TOTP.Issuer) == "" {
		return errors.New("TOTP Issuer must be set")
	}
	if c.TOTP.Period <= 0 {
		return errors.New("TOTP Period must be > 0")
	}
	if c.TOTP.Digits != 6 && c.TOTP.Digits != 8 {
		return errors.New("TOTP Digits must be 6 or 8")
	}
	switch strings.ToUpper(c.TOTP.Algorithm) {
	case "SHA1", "SHA256", "SHA512":
	default:
		return errors.New("TOTP Algorithm must be SHA1, SHA256 or SHA512")
	}
	if c.TOTP.Skew < 0 || c.TOTP.Skew > 2 {
		return errors.New("TOTP Skew must be between 0 and 2")
	}
	if c.TOTP.SetupTTL <= 0 {
		return errors.New("TOTP SetupTTL must be > 0")
	}

	// Email OTP
	if c.EmailOTP.Digits < 6 || c.EmailOTP.Digits > 10 {
		return errors.New("EmailOTP Digits must be between 6 and 10")
	}
	if c.EmailOTP.TTL <= 0 || c.EmailOTP.TTL > 15*time.Minute {
		return errors.New("EmailOTP TTL must be > 0 and <= 15m")
	}

	// Backup codes
	if c.BackupCodes.Count <= 0 || c.BackupCodes.Count > 50 {
		return errors.New("BackupCodes Count must be between 1 and 50")
	}

	// Secrets
	if len(c.Secrets.MasterKey) < 32 {
		return errors.New("Secrets MasterKey must be at least 32 bytes")
	}

	// Session
	if c.Session.AbsoluteLifetime <= 0 {
		return errors.New("Session AbsoluteLifetime must be > 0")
	}
	if c.Session.SetupLifetime <= 0 || c.Session.SetupLifetime > c.Session.AbsoluteLifetime {
		return errors.New("Session SetupLifetime must be > 0 and <= AbsoluteLifetime")
	}
	if c.Session.IdleTTL < 0 {
		return errors.New("Session IdleTTL must be >= 0")
	}
	if c.Session.JitterRange < 0 || c.Session.JitterRange > time.Duration((math.MaxInt64-1)/2) {
		return errors.New("Session JitterRange is out of range")
	}
	if strings.TrimSpace(c.Session.CookieName) == "" {
		return errors.New("Session CookieName must be set")
	}

	// Password
	if c.Password.Memory < 8*1024 {
		return errors.New("Password Memory must be >= 8192 KB")
	}
	if c.Password.Time < 1 {
		return errors.New("Password Time must be >= 1")
	}
	if c.Password.Parallelism < 1 {
		return errors.New("Password Parallelism must be >= 1")
	}
	if c.Password.SaltLength < 16 {
		return errors.New("Password SaltLength must be >= 16")
	}
	if c.Password.KeyLength < 16 {
		return errors.New("Password KeyLength must be >= 16")
	}

	// Limiters
	if c.Login.MaxAttempts <= 0 || c.Login.Window <= 0 {
		return errors.New("Login MaxAttempts and Window must be > 0")
	}
	if c.Verification.MaxFailures <= 0 || c.Verification.Window <= 0 {
		return errors.New("Verification MaxFailures and Window must be > 0")
	}
	if c.Verification.BaseLockout <= 0 || c.Verification.MaxLockout < c.Verification.BaseLockout {
		return errors.New("Verification lockout must satisfy 0 < BaseLockout <= MaxLockout")
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when enabled")
	}

	if c.ProductionMode {
		if len(c.EmailOTP.Pepper) < 32 {
			return errors.New("EmailOTP Pepper must be at least 32 bytes in production")
		}
		if !c.Session.SecureCookie {
			return errors.New("Session SecureCookie must be true in production")
		}
		if !c.TOTP.EnforceReplayProtection {
			return errors.New("TOTP EnforceReplayProtection must be true in production")
		}
		if !c.Login.EnableIPThrottle {
			return errors.New("Login EnableIPThrottle must be true in production")
		}
	}

	return nil
}
