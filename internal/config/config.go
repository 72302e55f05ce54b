// Package config loads process configuration for the goMFA server from the
// environment and an optional .env file.
package config

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	goMFA "github.com/MrEthical07/goMFA"
)

// Config is the server process configuration. Engine tunables not listed
// here keep their goMFA.DefaultConfig values.
type Config struct {
	Env       string `mapstructure:"APP_ENV"`
	HTTPAddr  string `mapstructure:"HTTP_ADDR"`
	LogLevel  string `mapstructure:"LOG_LEVEL"`
	LogFormat string `mapstructure:"LOG_FORMAT"`
	// DevMode runs Redis in-process and keeps accounts in memory.
	DevMode bool `mapstructure:"DEV_MODE"`

	RedisAddr     string `mapstructure:"REDIS_ADDR"`
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`
	RedisDB       int    `mapstructure:"REDIS_DB"`

	DatabaseURL    string `mapstructure:"DATABASE_URL"`
	MigrateOnStart bool   `mapstructure:"MIGRATE_ON_START"`

	// KafkaBrokers is comma separated. Empty selects the log mailer.
	KafkaBrokers    string `mapstructure:"KAFKA_BROKERS"`
	KafkaEmailTopic string `mapstructure:"KAFKA_EMAIL_TOPIC"`

	CORSAllowedOrigins string `mapstructure:"CORS_ALLOWED_ORIGINS"`

	// Key material is base64 (standard encoding).
	ChallengeSigningMethod string `mapstructure:"CHALLENGE_SIGNING_METHOD"`
	ChallengeSigningKey    string `mapstructure:"CHALLENGE_SIGNING_KEY"`
	MasterKey              string `mapstructure:"MFA_MASTER_KEY"`
	EmailOTPPepper         string `mapstructure:"EMAIL_OTP_PEPPER"`

	TOTPIssuer        string        `mapstructure:"TOTP_ISSUER"`
	ChallengeTTL      time.Duration `mapstructure:"CHALLENGE_TTL"`
	VerifyMaxFailures int           `mapstructure:"VERIFY_MAX_FAILURES"`
	LoginMaxAttempts  int           `mapstructure:"LOGIN_MAX_ATTEMPTS"`
	CookieSecure      bool          `mapstructure:"COOKIE_SECURE"`
	AuditLog          bool          `mapstructure:"AUDIT_LOG"`
	ShutdownTimeout   time.Duration `mapstructure:"SHUTDOWN_TIMEOUT"`
	RequestTimeout    time.Duration `mapstructure:"REQUEST_TIMEOUT"`
}

// Load reads envFile (when non-empty and present) into the process
// environment, then builds Config from the environment via Viper. Variables
// already set in the environment win over the file.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("config: read %s: %w", envFile, err)
		}
	}

	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("APP_ENV", "development")
	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "")
	v.SetDefault("DEV_MODE", false)
	v.SetDefault("REDIS_ADDR", "localhost:6379")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("MIGRATE_ON_START", false)
	v.SetDefault("KAFKA_BROKERS", "")
	v.SetDefault("KAFKA_EMAIL_TOPIC", "mfa-email")
	v.SetDefault("CORS_ALLOWED_ORIGINS", "http://localhost:3000")
	v.SetDefault("CHALLENGE_SIGNING_METHOD", "ed25519")
	v.SetDefault("CHALLENGE_SIGNING_KEY", "")
	v.SetDefault("MFA_MASTER_KEY", "")
	v.SetDefault("EMAIL_OTP_PEPPER", "")
	v.SetDefault("TOTP_ISSUER", "goMFA")
	v.SetDefault("CHALLENGE_TTL", "10m")
	v.SetDefault("VERIFY_MAX_FAILURES", 5)
	v.SetDefault("LOGIN_MAX_ATTEMPTS", 10)
	v.SetDefault("COOKIE_SECURE", true)
	v.SetDefault("AUDIT_LOG", true)
	v.SetDefault("SHUTDOWN_TIMEOUT", "15s")
	v.SetDefault("REQUEST_TIMEOUT", "30s")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.HTTPAddr == "" {
		return errors.New("config: HTTP_ADDR must be set")
	}
	if c.Production() && c.DevMode {
		return errors.New("config: DEV_MODE must not be true when APP_ENV=production")
	}
	if !c.DevMode {
		if c.DatabaseURL == "" {
			return errors.New("config: DATABASE_URL must be set unless DEV_MODE is true")
		}
		if c.ChallengeSigningKey == "" || c.MasterKey == "" {
			return errors.New("config: CHALLENGE_SIGNING_KEY and MFA_MASTER_KEY must be set unless DEV_MODE is true")
		}
	}
	if c.ChallengeTTL <= 0 {
		return errors.New("config: CHALLENGE_TTL must be positive")
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = 15 * time.Second
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 30 * time.Second
	}
	return nil
}

// Production reports whether APP_ENV selects production.
func (c *Config) Production() bool {
	return strings.EqualFold(c.Env, "production")
}

// KafkaBrokerList splits KafkaBrokers, dropping blanks.
func (c *Config) KafkaBrokerList() []string {
	return splitList(c.KafkaBrokers)
}

// AllowedOrigins splits CORSAllowedOrigins, dropping blanks.
func (c *Config) AllowedOrigins() []string {
	return splitList(c.CORSAllowedOrigins)
}

// EngineConfig maps the process settings onto goMFA.DefaultConfig. In dev
// mode missing keys are generated and live only as long as the process.
func (c *Config) EngineConfig() (goMFA.Config, error) {
	cfg := goMFA.DefaultConfig()
	cfg.ProductionMode = c.Production()
	cfg.ChallengeToken.SigningMethod = strings.ToLower(c.ChallengeSigningMethod)
	cfg.TOTP.Issuer = c.TOTPIssuer
	cfg.Challenge.TTL = c.ChallengeTTL
	if c.VerifyMaxFailures > 0 {
		cfg.Verification.MaxFailures = c.VerifyMaxFailures
	}
	if c.LoginMaxAttempts > 0 {
		cfg.Login.MaxAttempts = c.LoginMaxAttempts
	}
	cfg.Session.SecureCookie = c.CookieSecure
	cfg.Audit.Enabled = c.AuditLog

	signing, err := c.keyOrDev("CHALLENGE_SIGNING_KEY", c.ChallengeSigningKey, 32)
	if err != nil {
		return goMFA.Config{}, err
	}
	switch cfg.ChallengeToken.SigningMethod {
	case "ed25519":
		priv, err := ed25519Key(signing)
		if err != nil {
			return goMFA.Config{}, err
		}
		cfg.ChallengeToken.PrivateKey = priv
		cfg.ChallengeToken.PublicKey = priv.Public().(ed25519.PublicKey)
	case "hs256":
		cfg.ChallengeToken.PrivateKey = signing
	default:
		return goMFA.Config{}, fmt.Errorf("config: unsupported CHALLENGE_SIGNING_METHOD %q", c.ChallengeSigningMethod)
	}

	if cfg.Secrets.MasterKey, err = c.keyOrDev("MFA_MASTER_KEY", c.MasterKey, 32); err != nil {
		return goMFA.Config{}, err
	}
	if c.EmailOTPPepper != "" || c.DevMode {
		if cfg.EmailOTP.Pepper, err = c.keyOrDev("EMAIL_OTP_PEPPER", c.EmailOTPPepper, 32); err != nil {
			return goMFA.Config{}, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return goMFA.Config{}, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

func (c *Config) keyOrDev(name, encoded string, size int) ([]byte, error) {
	if encoded == "" {
		if !c.DevMode {
			return nil, fmt.Errorf("config: %s must be set", name)
		}
		key := make([]byte, size)
		if _, err := rand.Read(key); err != nil {
			return nil, fmt.Errorf("config: generate %s: %w", name, err)
		}
		return key, nil
	}
	key, err := base64.StdEncoding.DecodeString(strings.TrimSpace(encoded))
	if err != nil {
		return nil, fmt.Errorf("config: %s is not base64: %w", name, err)
	}
	return key, nil
}

// ed25519Key accepts a 32-byte seed or a 64-byte private key.
func ed25519Key(raw []byte) (ed25519.PrivateKey, error) {
	switch len(raw) {
	case ed25519.SeedSize:
		return ed25519.NewKeyFromSeed(raw), nil
	case ed25519.PrivateKeySize:
		return ed25519.PrivateKey(raw), nil
	default:
		return nil, errors.New("config: ed25519 CHALLENGE_SIGNING_KEY must be a 32-byte seed or 64-byte key")
	}
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
