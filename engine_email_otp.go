package goMFA

import (
	"context"
	"time"

	internalflows "github.com/MrEthical07/goMFA/internal/flows"
)

// IssueEmailOTP sends a fresh code to the account's email address and
// returns its expiry. Any earlier live code of the user stops verifying.
func (e *Engine) IssueEmailOTP(ctx context.Context, userID string) (time.Time, error) {
	if err := e.ready(); err != nil {
		return time.Time{}, err
	}
	acc, err := e.loadAccount(ctx, userID)
	if err != nil {
		return time.Time{}, err
	}
	return internalflows.RunIssueEmailOTP(ctx, acc.ID, acc.Email, e.emailOTPFlowDeps())
}

// VerifyEmailOTP checks candidate against the latest code issued to userID
// and consumes it. It returns ErrOTPInvalid, ErrOTPExpired or
// ErrOTPAlreadyUsed on failure.
func (e *Engine) VerifyEmailOTP(ctx context.Context, userID, candidate string) error {
	return internalflows.RunVerifyEmailOTP(ctx, userID, candidate, e.emailOTPFlowDeps())
}

func (e *Engine) emailOTPFlowDeps() internalflows.EmailOTPDeps {
	var cfg Config
	if e != nil {
		cfg = e.config
	}

	deps := internalflows.EmailOTPDeps{
		Digits: cfg.EmailOTP.Digits,
		TTL:    cfg.EmailOTP.TTL,
		Pepper: cfg.EmailOTP.Pepper,
		MetricInc: func(id int) {
			e.metricInc(MetricID(id))
		},
		Metrics: internalflows.EmailOTPMetrics{
			EmailOTPIssued:   int(MetricEmailOTPIssued),
			EmailOTPVerified: int(MetricEmailOTPVerified),
			EmailOTPFailed:   int(MetricEmailOTPFailed),
			DeliveryFailed:   int(MetricEmailDeliveryFailed),
		},
		Events: internalflows.EmailOTPEvents{
			EmailOTPIssued:   auditEventEmailOTPIssued,
			EmailOTPVerified: auditEventEmailOTPVerified,
			EmailOTPFailed:   auditEventEmailOTPFailed,
		},
		Errors: internalflows.EmailOTPErrors{
			EngineNotReady:      ErrEngineNotReady,
			OTPExpired:          ErrOTPExpired,
			OTPInvalid:          ErrOTPInvalid,
			OTPAlreadyUsed:      ErrOTPAlreadyUsed,
			OTPUnavailable:      ErrBackendUnavailable,
			DeliveryUnavailable: ErrDeliveryUnavailable,
		},
	}

	if e != nil {
		deps.Now = e.now
		deps.EmitAudit = e.flowAudit
	}
	if e != nil && e.emailOTPs != nil {
		deps.ReplaceEmailOTP = e.emailOTPs.ReplaceEmailOTP
		deps.LatestEmailOTP = e.emailOTPs.LatestEmailOTP
		deps.ConsumeEmailOTP = e.emailOTPs.ConsumeEmailOTP
	}
	if e != nil && e.mailer != nil {
		mailer := e.mailer
		deps.Deliver = func(ctx context.Context, userID, email, code string, expiresAt time.Time) error {
			return mailer.SendOTP(ctx, OTPMessage{UserID: userID, To: email, Code: code, ExpiresAt: expiresAt})
		}
	}

	return deps
}
