package goMFA

import (
	"context"

	internalflows "github.com/MrEthical07/goMFA/internal/flows"
)

// VerifyTOTP checks an authenticator code for userID. With replay
// protection enabled a time step is accepted at most once.
func (e *Engine) VerifyTOTP(ctx context.Context, userID, code string) error {
	if err := e.ready(); err != nil {
		return err
	}
	acc, err := e.loadAccount(ctx, userID)
	if err != nil {
		return err
	}
	return e.verifyTOTPForAccount(ctx, acc, code)
}

func (e *Engine) verifyTOTPForAccount(ctx context.Context, acc Account, code string) error {
	return internalflows.RunVerifyTOTP(ctx, internalflows.TOTPAccount{
		UserID:    acc.ID,
		Enabled:   acc.MFATOTPEnabled,
		SealedKey: acc.TOTPSecret,
	}, code, e.totpFlowDeps())
}

func (e *Engine) totpFlowDeps() internalflows.TOTPDeps {
	var cfg Config
	if e != nil {
		cfg = e.config
	}

	deps := internalflows.TOTPDeps{
		EnforceReplayProtection: cfg.TOTP.EnforceReplayProtection,
		MetricInc: func(id int) {
			e.metricInc(MetricID(id))
		},
		Metrics: internalflows.TOTPMetrics{
			TOTPSuccess: int(MetricTOTPSuccess),
			TOTPFailure: int(MetricTOTPFailure),
			TOTPReplay:  int(MetricTOTPReplay),
		},
		Events: internalflows.TOTPEvents{
			TOTPSuccess: auditEventTOTPSuccess,
			TOTPFailure: auditEventTOTPFailure,
		},
		Errors: internalflows.TOTPErrors{
			EngineNotReady:    ErrEngineNotReady,
			TOTPInvalid:       ErrTOTPInvalid,
			TOTPNotConfigured: ErrTOTPNotConfigured,
			TOTPUnavailable:   ErrBackendUnavailable,
		},
	}

	if e != nil {
		deps.Now = e.now
		deps.EmitAudit = e.flowAudit
	}
	if e != nil && e.totp != nil && e.totpBox != nil {
		deps.OpenSecret = func(userID string, sealed []byte) ([]byte, error) {
			return e.totpBox.Open(sealed, userID)
		}
		deps.VerifyCode = e.totp.Verify
	}
	if e != nil && e.accounts != nil {
		deps.AdvanceTOTPCounter = e.accounts.AdvanceTOTPCounter
	}

	return deps
}
