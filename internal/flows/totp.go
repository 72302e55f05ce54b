package flows

import (
	"context"
	"time"
)

type TOTPMetrics struct {
	TOTPSuccess int
	TOTPFailure int
	TOTPReplay  int
}

type TOTPEvents struct {
	TOTPSuccess string
	TOTPFailure string
}

type TOTPErrors struct {
	EngineNotReady    error
	TOTPInvalid       error
	TOTPNotConfigured error
	TOTPUnavailable   error
}

type TOTPDeps struct {
	EnforceReplayProtection bool

	Now func() time.Time

	// OpenSecret unseals the stored secret of the user.
	OpenSecret         func(userID string, sealed []byte) ([]byte, error)
	VerifyCode         func([]byte, string, time.Time) (bool, int64, error)
	AdvanceTOTPCounter func(context.Context, string, int64) (bool, error)

	MetricInc func(int)
	EmitAudit func(context.Context, string, bool, string, error, func() map[string]string)

	Metrics TOTPMetrics
	Events  TOTPEvents
	Errors  TOTPErrors
}

// TOTPAccount is the slice of an account the validator needs.
type TOTPAccount struct {
	UserID    string
	Enabled   bool
	SealedKey []byte
}

// RunVerifyTOTP validates code against the account's secret within the
// configured skew. With replay protection, a step already accepted once (or
// any earlier step) is rejected as invalid.
func RunVerifyTOTP(ctx context.Context, account TOTPAccount, code string, deps TOTPDeps) error {
	normalizeTOTPDeps(&deps)

	if deps.OpenSecret == nil || deps.VerifyCode == nil {
		return deps.Errors.EngineNotReady
	}
	if !account.Enabled || len(account.SealedKey) == 0 {
		return deps.Errors.TOTPNotConfigured
	}

	secret, err := deps.OpenSecret(account.UserID, account.SealedKey)
	if err != nil {
		return deps.Errors.TOTPUnavailable
	}

	ok, counter, err := deps.VerifyCode(secret, code, deps.Now())
	if err != nil {
		return deps.Errors.TOTPUnavailable
	}
	if !ok {
		deps.MetricInc(deps.Metrics.TOTPFailure)
		deps.EmitAudit(ctx, deps.Events.TOTPFailure, false, account.UserID, deps.Errors.TOTPInvalid, nil)
		return deps.Errors.TOTPInvalid
	}

	if deps.EnforceReplayProtection && deps.AdvanceTOTPCounter != nil {
		advanced, err := deps.AdvanceTOTPCounter(ctx, account.UserID, counter)
		if err != nil {
			return deps.Errors.TOTPUnavailable
		}
		if !advanced {
			deps.MetricInc(deps.Metrics.TOTPReplay)
			deps.EmitAudit(ctx, deps.Events.TOTPFailure, false, account.UserID, deps.Errors.TOTPInvalid, func() map[string]string {
				return map[string]string{"reason": "replay"}
			})
			return deps.Errors.TOTPInvalid
		}
	}

	deps.MetricInc(deps.Metrics.TOTPSuccess)
	deps.EmitAudit(ctx, deps.Events.TOTPSuccess, true, account.UserID, nil, nil)
	return nil
}

func normalizeTOTPDeps(deps *TOTPDeps) {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.MetricInc == nil {
		deps.MetricInc = func(int) {}
	}
	if deps.EmitAudit == nil {
		deps.EmitAudit = func(context.Context, string, bool, string, error, func() map[string]string) {}
	}
}
