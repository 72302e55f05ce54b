package flows

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/MrEthical07/goMFA/internal"
	"github.com/MrEthical07/goMFA/store"
)

type EmailOTPMetrics struct {
	EmailOTPIssued   int
	EmailOTPVerified int
	EmailOTPFailed   int
	DeliveryFailed   int
}

type EmailOTPEvents struct {
	EmailOTPIssued   string
	EmailOTPVerified string
	EmailOTPFailed   string
}

type EmailOTPErrors struct {
	EngineNotReady      error
	OTPExpired          error
	OTPInvalid          error
	OTPAlreadyUsed      error
	OTPUnavailable      error
	DeliveryUnavailable error
}

type EmailOTPDeps struct {
	Digits int
	TTL    time.Duration
	Pepper []byte

	Now     func() time.Time
	NewCode func(int) (string, error)

	ReplaceEmailOTP func(context.Context, store.EmailOTP) error
	LatestEmailOTP  func(context.Context, string) (store.EmailOTP, error)
	ConsumeEmailOTP func(context.Context, string, time.Time) (bool, error)
	Deliver         func(ctx context.Context, userID, email, code string, expiresAt time.Time) error

	MetricInc func(int)
	EmitAudit func(context.Context, string, bool, string, error, func() map[string]string)

	Metrics EmailOTPMetrics
	Events  EmailOTPEvents
	Errors  EmailOTPErrors
}

// RunIssueEmailOTP mints a code, supersedes any live code of the user and
// hands the plaintext to Deliver. The plaintext never leaves this function
// otherwise.
func RunIssueEmailOTP(ctx context.Context, userID, email string, deps EmailOTPDeps) (time.Time, error) {
	normalizeEmailOTPDeps(&deps)

	if deps.ReplaceEmailOTP == nil || deps.Deliver == nil {
		return time.Time{}, deps.Errors.EngineNotReady
	}

	code, err := deps.NewCode(deps.Digits)
	if err != nil {
		return time.Time{}, deps.Errors.OTPUnavailable
	}

	now := deps.Now()
	record := store.EmailOTP{
		ID:        uuid.NewString(),
		UserID:    userID,
		CodeHash:  EmailOTPHash(deps.Pepper, userID, code),
		IssuedAt:  now,
		ExpiresAt: now.Add(deps.TTL),
	}
	if err := deps.ReplaceEmailOTP(ctx, record); err != nil {
		return time.Time{}, deps.Errors.OTPUnavailable
	}

	if err := deps.Deliver(ctx, userID, email, code, record.ExpiresAt); err != nil {
		deps.MetricInc(deps.Metrics.DeliveryFailed)
		deps.EmitAudit(ctx, deps.Events.EmailOTPIssued, false, userID, deps.Errors.DeliveryUnavailable, nil)
		return time.Time{}, deps.Errors.DeliveryUnavailable
	}

	deps.MetricInc(deps.Metrics.EmailOTPIssued)
	deps.EmitAudit(ctx, deps.Events.EmailOTPIssued, true, userID, nil, func() map[string]string {
		return map[string]string{"otp_id": record.ID}
	})
	return record.ExpiresAt, nil
}

// RunVerifyEmailOTP checks candidate against the user's latest code. The
// checks run in order: expiry, prior consumption, mismatch. A match is
// consumed with a conditional write, so a concurrent duplicate loses.
func RunVerifyEmailOTP(ctx context.Context, userID, candidate string, deps EmailOTPDeps) error {
	normalizeEmailOTPDeps(&deps)

	if deps.LatestEmailOTP == nil || deps.ConsumeEmailOTP == nil {
		return deps.Errors.EngineNotReady
	}

	fail := func(reason error) error {
		deps.MetricInc(deps.Metrics.EmailOTPFailed)
		deps.EmitAudit(ctx, deps.Events.EmailOTPFailed, false, userID, reason, nil)
		return reason
	}

	record, err := deps.LatestEmailOTP(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fail(deps.Errors.OTPInvalid)
		}
		return deps.Errors.OTPUnavailable
	}

	now := deps.Now()
	if now.After(record.ExpiresAt) {
		return fail(deps.Errors.OTPExpired)
	}
	if record.Consumed {
		return fail(deps.Errors.OTPAlreadyUsed)
	}

	candidateHash := EmailOTPHash(deps.Pepper, userID, strings.TrimSpace(candidate))
	if subtle.ConstantTimeCompare([]byte(candidateHash), []byte(record.CodeHash)) != 1 {
		return fail(deps.Errors.OTPInvalid)
	}

	consumed, err := deps.ConsumeEmailOTP(ctx, record.ID, now)
	if err != nil {
		return deps.Errors.OTPUnavailable
	}
	if !consumed {
		return fail(deps.Errors.OTPAlreadyUsed)
	}

	deps.MetricInc(deps.Metrics.EmailOTPVerified)
	deps.EmitAudit(ctx, deps.Events.EmailOTPVerified, true, userID, nil, nil)
	return nil
}

// EmailOTPHash is HMAC-SHA256(pepper, userID || 0x00 || code), hex encoded.
func EmailOTPHash(pepper []byte, userID, code string) string {
	mac := hmac.New(sha256.New, pepper)
	_, _ = mac.Write([]byte(userID))
	_, _ = mac.Write([]byte{0})
	_, _ = mac.Write([]byte(code))
	return hex.EncodeToString(mac.Sum(nil))
}

func normalizeEmailOTPDeps(deps *EmailOTPDeps) {
	if deps.Digits <= 0 {
		deps.Digits = 6
	}
	if deps.TTL <= 0 {
		deps.TTL = 5 * time.Minute
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.NewCode == nil {
		deps.NewCode = internal.NewNumericCode
	}
	if deps.MetricInc == nil {
		deps.MetricInc = func(int) {}
	}
	if deps.EmitAudit == nil {
		deps.EmitAudit = func(context.Context, string, bool, string, error, func() map[string]string) {}
	}
}
