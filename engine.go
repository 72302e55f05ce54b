package goMFA

import (
	"context"
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
)

// Engine runs the login, challenge, enrollment and session operations. It is
// safe for concurrent use. Build one with New and Builder.Build.
type Engine struct {
	config Config

	accounts    store.Accounts
	emailOTPs   store.EmailOTPs
	backupCodes store.BackupCodes
	mailer      Mailer

	sessions    *session.Store
	challenges  *stores.ChallengeStore
	enrollments *stores.EnrollmentStore

	loginLimiter  *limiters.LoginLimiter
	verifyLimiter *limiters.VerificationLimiter

	totpBox    *secret.Box
	pendingBox *secret.Box
	hasher     *password.Hasher
	tokens     *jwt.Manager
	totp       *totpValidator

	audit   *internalaudit.Dispatcher
	metrics *Metrics
	now     func() time.Time
}

// Close drains pending audit events.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped reports events discarded because the audit buffer was full.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return emptySnapshot()
	}
	return e.metrics.Snapshot()
}

// Config returns a copy of the effective configuration with key material
// removed.
func (e *Engine) Config() Config {
	out := cloneConfig(e.config)
	out.ChallengeToken.PrivateKey = nil
	out.EmailOTP.Pepper = nil
	out.Secrets.MasterKey = nil
	return out
}

// HealthStatus is returned by Health.
type HealthStatus struct {
	RedisAvailable bool
	RedisLatency   time.Duration
}

// Health pings Redis through the session store.
func (e *Engine) Health(ctx context.Context) HealthStatus {
	if e == nil || e.sessions == nil {
		return HealthStatus{}
	}
	latency, err := e.sessions.Ping(ctx)
	return HealthStatus{RedisAvailable: err == nil, RedisLatency: latency}
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) metricObserve(id MetricID, start time.Time) {
	if e == nil || !e.metrics.LatencyEnabled() {
		return
	}
	e.metrics.Observe(id, time.Since(start))
}

func (e *Engine) ready() error {
	if e == nil || e.accounts == nil || e.sessions == nil || e.challenges == nil || e.tokens == nil {
		return ErrEngineNotReady
	}
	return nil
}

// loadAccount maps store errors onto the engine taxonomy.
func (e *Engine) loadAccount(ctx context.Context, userID string) (Account, error) {
	acc, err := e.accounts.GetAccountByID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Account{}, ErrAccountNotFound
		}
		return Account{}, ErrBackendUnavailable
	}
	return acc, nil
}

// Account returns the account userID with its password hash and sealed
// TOTP secret removed.
func (e *Engine) Account(ctx context.Context, userID string) (Account, error) {
	if err := e.ready(); err != nil {
		return Account{}, err
	}
	acc, err := e.loadAccount(ctx, userID)
	if err != nil {
		return Account{}, err
	}
	acc.PasswordHash = ""
	acc.TOTPSecret = nil
	return acc, nil
}
