package goMFA

import (
	"context"
	"errors"

	"github.com/MrEthical07/goMFA/internal/limiters"
	"github.com/MrEthical07/goMFA/internal/stores"
)

// EnrollmentState derives the enrollment state of userID from its current
// flags.
func (e *Engine) EnrollmentState(ctx context.Context, userID string) (EnrollmentState, error) {
	if err := e.ready(); err != nil {
		return Unenrolled, err
	}
	acc, err := e.loadAccount(ctx, userID)
	if err != nil {
		return Unenrolled, err
	}
	return EnrollmentStateOf(acc), nil
}

// SetupTOTP generates an authenticator secret for the account behind a
// setup-only session. The secret is held sealed until ConfirmTOTP and no
// account flag changes here. Calling it again replaces the pending secret.
func (e *Engine) SetupTOTP(ctx context.Context, sess *Session) (*TOTPSetup, error) {
	acc, err := e.requireSetupSession(ctx, sess)
	if err != nil {
		return nil, err
	}

	key, err := e.totp.NewKey()
	if err != nil {
		return nil, ErrBackendUnavailable
	}
	sealed, err := e.pendingBox.Seal(key.Raw, acc.ID)
	if err != nil {
		return nil, ErrBackendUnavailable
	}
	ttl := e.config.TOTP.SetupTTL
	if err := e.enrollments.Save(ctx, acc.ID, sealed, ttl); err != nil {
		return nil, ErrBackendUnavailable
	}

	e.emitAudit(ctx, auditEventTOTPSetupRequested, true, sessionTarget(sess), nil, nil)
	return &TOTPSetup{
		Secret:          key.Encoded,
		ProvisioningURI: e.totp.ProvisioningURI(acc.Email, key.Encoded),
		ExpiresAt:       e.now().Add(ttl),
	}, nil
}

// ConfirmTOTP checks a code against the pending secret. On success it
// enables TOTP, issues the first batch of backup codes, and upgrades the
// session to verified. Wrong codes are charged to the verification limiter.
func (e *Engine) ConfirmTOTP(ctx context.Context, sess *Session, code string) ([]string, error) {
	acc, err := e.requireSetupSession(ctx, sess)
	if err != nil {
		return nil, err
	}

	if retryAfter, err := e.verifyLimiter.Check(ctx, acc.ID); err != nil {
		if errors.Is(err, limiters.ErrVerificationLocked) {
			return nil, &VerificationError{Method: MethodTOTP, Cause: ErrVerificationLocked, RetryAfter: retryAfter}
		}
		return nil, ErrBackendUnavailable
	}

	sealed, err := e.enrollments.Get(ctx, acc.ID)
	if err != nil {
		if errors.Is(err, stores.ErrEnrollmentNotFound) {
			return nil, ErrSetupIncomplete
		}
		return nil, ErrBackendUnavailable
	}
	raw, err := e.pendingBox.Open(sealed, acc.ID)
	if err != nil {
		_ = e.enrollments.Delete(ctx, acc.ID)
		return nil, ErrSetupIncomplete
	}

	ok, counter, err := e.totp.Verify(raw, code, e.now())
	if err != nil {
		return nil, ErrBackendUnavailable
	}
	if !ok {
		e.metricInc(MetricTOTPFailure)
		verr := verificationFailure(MethodTOTP, ErrTOTPInvalid)
		if lockout, lerr := e.verifyLimiter.RecordFailure(ctx, acc.ID); errors.Is(lerr, limiters.ErrVerificationLocked) {
			e.metricInc(MetricVerificationLocked)
			verr.Cause = errors.Join(verr.Cause, ErrVerificationLocked)
			verr.RetryAfter = lockout
		}
		e.emitAudit(ctx, auditEventTOTPFailure, false, sessionTarget(sess), ErrTOTPInvalid, func() map[string]string {
			return map[string]string{"stage": "enrollment"}
		})
		return nil, verr
	}

	atRest, err := e.totpBox.Seal(raw, acc.ID)
	if err != nil {
		return nil, ErrBackendUnavailable
	}

	// Only one confirmation of a given pending secret proceeds.
	claimed, err := e.enrollments.Claim(ctx, acc.ID, sealed)
	if err != nil {
		return nil, ErrBackendUnavailable
	}
	if !claimed {
		return nil, ErrSetupIncomplete
	}
	restore := func() {
		_ = e.enrollments.Save(ctx, acc.ID, sealed, e.config.TOTP.SetupTTL)
	}

	// Codes go in before TOTP is enabled. A challenge accepts them only once
	// it is.
	codes, err := e.GenerateBackupCodes(ctx, acc.ID)
	if err != nil {
		restore()
		return nil, err
	}
	if err := e.accounts.EnableTOTP(ctx, acc.ID, atRest); err != nil {
		restore()
		return nil, ErrBackendUnavailable
	}
	// The confirming code must not be replayable at the next login.
	_, _ = e.accounts.AdvanceTOTPCounter(ctx, acc.ID, counter)
	_ = e.verifyLimiter.Reset(ctx, acc.ID)

	if err := e.upgradeSession(ctx, sess); err != nil {
		return nil, err
	}

	e.metricInc(MetricEnrollmentCompleted)
	e.emitAudit(ctx, auditEventTOTPEnabled, true, sessionTarget(sess), nil, nil)
	return codes, nil
}

// SetupEmail enables the email channel for the account behind a setup-only
// session and upgrades the session. No backup codes are issued for this
// channel.
func (e *Engine) SetupEmail(ctx context.Context, sess *Session) error {
	acc, err := e.requireSetupSession(ctx, sess)
	if err != nil {
		return err
	}
	if err := e.accounts.EnableEmailMFA(ctx, acc.ID); err != nil {
		return ErrBackendUnavailable
	}
	if err := e.upgradeSession(ctx, sess); err != nil {
		return err
	}

	e.metricInc(MetricEnrollmentCompleted)
	e.emitAudit(ctx, auditEventEmailMFAEnabled, true, sessionTarget(sess), nil, nil)
	return nil
}

// RegenerateBackupCodes replaces the backup codes of a verified TOTP user
// after a fresh authenticator code.
func (e *Engine) RegenerateBackupCodes(ctx context.Context, sess *Session, totpCode string) ([]string, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, ErrUnauthorized
	}
	if !sess.MFAVerified || sess.SetupPending || sess.Impersonating() {
		return nil, ErrForbidden
	}
	acc, err := e.loadAccount(ctx, sess.AccountID)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return nil, ErrUnauthorized
		}
		return nil, err
	}
	if !acc.MFATOTPEnabled {
		return nil, ErrMethodUnavailable
	}

	if retryAfter, err := e.verifyLimiter.Check(ctx, acc.ID); err != nil {
		if errors.Is(err, limiters.ErrVerificationLocked) {
			return nil, &VerificationError{Method: MethodTOTP, Cause: ErrVerificationLocked, RetryAfter: retryAfter}
		}
		return nil, ErrBackendUnavailable
	}
	if err := e.verifyTOTPForAccount(ctx, acc, totpCode); err != nil {
		if errors.Is(err, ErrBackendUnavailable) || errors.Is(err, ErrEngineNotReady) {
			return nil, err
		}
		verr := verificationFailure(MethodTOTP, err)
		if lockout, lerr := e.verifyLimiter.RecordFailure(ctx, acc.ID); errors.Is(lerr, limiters.ErrVerificationLocked) {
			verr.Cause = errors.Join(verr.Cause, ErrVerificationLocked)
			verr.RetryAfter = lockout
		}
		return nil, verr
	}
	_ = e.verifyLimiter.Reset(ctx, acc.ID)

	return e.GenerateBackupCodes(ctx, acc.ID)
}

// requireSetupSession admits only a live setup-only session whose account is
// still waiting to enroll.
func (e *Engine) requireSetupSession(ctx context.Context, sess *Session) (Account, error) {
	if err := e.ready(); err != nil {
		return Account{}, err
	}
	if sess == nil {
		return Account{}, ErrUnauthorized
	}
	if sess.Impersonating() {
		return Account{}, ErrForbidden
	}
	acc, err := e.loadAccount(ctx, sess.AccountID)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return Account{}, ErrUnauthorized
		}
		return Account{}, err
	}
	if EnrollmentStateOf(acc) != SetupPending {
		return Account{}, ErrForbidden
	}
	return acc, nil
}
