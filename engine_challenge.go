package goMFA

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/MrEthical07/goMFA/internal/limiters"
	"github.com/MrEthical07/goMFA/internal/stores"
	"github.com/MrEthical07/goMFA/jwt"
)

func (e *Engine) issueChallenge(ctx context.Context, acc Account) (*Challenge, error) {
	id := uuid.NewString()
	ttl := e.config.Challenge.TTL
	expiresAt := e.now().Add(ttl).Truncate(time.Second)
	methods := methodsOf(acc)

	record := &stores.Challenge{
		UserID:    acc.ID,
		Methods:   methodBits(methods),
		State:     stores.StateAwaitingMethod,
		ExpiresAt: expiresAt.Unix(),
	}
	if err := e.challenges.Save(ctx, id, record, ttl); err != nil {
		return nil, ErrBackendUnavailable
	}

	token, err := e.tokens.IssueChallenge(id, acc.ID, expiresAt)
	if err != nil {
		_, _ = e.challenges.Delete(ctx, id)
		return nil, ErrEngineNotReady
	}

	e.metricInc(MetricChallengeIssued)
	e.emitAudit(ctx, auditEventChallengeIssued, true, userTarget(acc.ID), nil, func() map[string]string {
		return map[string]string{"challenge_id": id}
	})

	return &Challenge{
		Token:     token,
		UserID:    acc.ID,
		Email:     acc.Email,
		Methods:   methods,
		ExpiresAt: expiresAt,
	}, nil
}

// SelectMethod records the user's choice of channel. Choosing email sends a
// code; TOTP and backup only move the challenge to awaiting a code. The
// method may be switched again later.
func (e *Engine) SelectMethod(ctx context.Context, token string, method Method) (*ChallengeInfo, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	id, record, err := e.loadChallenge(ctx, token)
	if err != nil {
		return nil, err
	}
	if !methodsFromBits(record.Methods).Allows(method) {
		return nil, ErrMethodUnavailable
	}

	if method == MethodEmail {
		if err := e.sendChallengeOTP(ctx, record.UserID); err != nil {
			return nil, err
		}
	}

	updated, err := e.challenges.Update(ctx, id, func(c *stores.Challenge) error {
		c.State = stores.StateAwaitingCode
		c.Selected = string(method)
		if method == MethodEmail {
			c.EmailIssued = true
		}
		return nil
	})
	if err != nil {
		return nil, mapChallengeErr(err)
	}

	e.emitAudit(ctx, auditEventMethodSelected, true, auditTarget{
		actorID:   record.UserID,
		subjectID: record.UserID,
		method:    method,
	}, nil, nil)

	info := e.challengeInfo(updated)
	return &info, nil
}

// ResendEmailOTP sends a new email code for the challenge, restarting the
// code's validity window and superseding the previous code.
func (e *Engine) ResendEmailOTP(ctx context.Context, token string) (*ChallengeInfo, error) {
	return e.SelectMethod(ctx, token, MethodEmail)
}

// Verify completes a challenge with one attempt. On success the challenge is
// destroyed and a verified session is created. Every code failure is a
// *VerificationError carrying the specific cause.
func (e *Engine) Verify(ctx context.Context, token string, attempt VerificationAttempt) (*VerifyResult, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if attempt == nil {
		return nil, verificationFailure("", ErrMethodUnavailable)
	}
	start := time.Now()
	defer e.metricObserve(MetricVerifyLatency, start)

	method := attempt.Method()
	id, record, err := e.loadChallenge(ctx, token)
	if err != nil {
		return nil, err
	}
	userID := record.UserID

	retryAfter, err := e.verifyLimiter.Check(ctx, userID)
	if err != nil {
		if errors.Is(err, limiters.ErrVerificationLocked) {
			e.metricInc(MetricVerificationLocked)
			e.emitAudit(ctx, auditEventMFALocked, false, auditTarget{actorID: userID, subjectID: userID, method: method}, ErrVerificationLocked, nil)
			return nil, &VerificationError{Method: method, Cause: ErrVerificationLocked, RetryAfter: retryAfter}
		}
		return nil, ErrBackendUnavailable
	}

	if !methodsFromBits(record.Methods).Allows(method) {
		return nil, verificationFailure(method, ErrMethodUnavailable)
	}
	if method == MethodEmail && !record.EmailIssued {
		return nil, verificationFailure(method, ErrMethodNotSelected)
	}

	if record.State != stores.StateAwaitingCode || record.Selected != string(method) {
		if _, err := e.challenges.Update(ctx, id, func(c *stores.Challenge) error {
			c.State = stores.StateAwaitingCode
			c.Selected = string(method)
			return nil
		}); err != nil {
			return nil, mapChallengeErr(err)
		}
	}

	acc, err := e.loadAccount(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			_, _ = e.challenges.Delete(ctx, id)
			return nil, ErrChallengeInvalid
		}
		return nil, err
	}

	var (
		remaining int
		cause     error
	)
	switch a := attempt.(type) {
	case TOTPAttempt:
		cause = e.verifyTOTPForAccount(ctx, acc, a.Code)
	case BackupAttempt:
		remaining, cause = e.ConsumeBackupCode(ctx, acc.ID, a.Code)
	case EmailAttempt:
		cause = e.VerifyEmailOTP(ctx, acc.ID, a.OTP)
	default:
		cause = ErrMethodUnavailable
	}
	if cause != nil {
		if errors.Is(cause, ErrBackendUnavailable) || errors.Is(cause, ErrEngineNotReady) {
			return nil, cause
		}
		return nil, e.recordVerificationFailure(ctx, id, acc.ID, method, cause)
	}

	deleted, err := e.challenges.Delete(ctx, id)
	if err != nil {
		return nil, ErrBackendUnavailable
	}
	if !deleted {
		// Completed or cancelled concurrently; only one success materializes.
		return nil, verificationFailure(method, ErrChallengeInvalid)
	}
	_ = e.verifyLimiter.Reset(ctx, acc.ID)

	sess, err := e.createSession(ctx, acc, sessionVerified)
	if err != nil {
		return nil, err
	}

	e.metricInc(MetricMFASuccess)
	e.emitAudit(ctx, auditEventMFASuccess, true, auditTarget{
		actorID:   acc.ID,
		subjectID: acc.ID,
		sessionID: sess.ID,
		method:    method,
	}, nil, nil)

	return &VerifyResult{
		Session:              sess,
		Account:              acc,
		Method:               method,
		UsedBackupCode:       method == MethodBackup,
		RemainingBackupCodes: remaining,
	}, nil
}

// Cancel abandons the challenge. Cancelling a challenge that is already gone
// succeeds.
func (e *Engine) Cancel(ctx context.Context, token string) error {
	if err := e.ready(); err != nil {
		return err
	}
	claims, err := e.tokens.ParseChallenge(token)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil
		}
		return ErrChallengeInvalid
	}

	deleted, err := e.challenges.Delete(ctx, claims.ChallengeID())
	if err != nil {
		return ErrBackendUnavailable
	}
	if deleted {
		e.emitAudit(ctx, auditEventChallengeCancelled, true, userTarget(claims.UserID()), nil, nil)
	}
	return nil
}

// ChallengeStatus reports the state of a live challenge.
func (e *Engine) ChallengeStatus(ctx context.Context, token string) (*ChallengeInfo, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	_, record, err := e.loadChallenge(ctx, token)
	if err != nil {
		return nil, err
	}
	info := e.challengeInfo(record)
	return &info, nil
}

func (e *Engine) loadChallenge(ctx context.Context, token string) (string, *stores.Challenge, error) {
	claims, err := e.tokens.ParseChallenge(token)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", nil, ErrChallengeExpired
		}
		return "", nil, ErrChallengeInvalid
	}

	id := claims.ChallengeID()
	record, err := e.challenges.Get(ctx, id)
	if err != nil {
		return "", nil, mapChallengeErr(err)
	}
	if record.UserID != claims.UserID() {
		return "", nil, ErrChallengeInvalid
	}
	return id, record, nil
}

func (e *Engine) sendChallengeOTP(ctx context.Context, userID string) error {
	acc, err := e.loadAccount(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return ErrChallengeInvalid
		}
		return err
	}
	if !acc.MFAEmailEnabled {
		return ErrMethodUnavailable
	}
	_, err = e.IssueEmailOTP(ctx, acc.ID)
	return err
}

// recordVerificationFailure charges one failure to the challenge and to the
// per-user limiter, destroying the challenge or locking the user when their
// thresholds are reached.
func (e *Engine) recordVerificationFailure(ctx context.Context, challengeID, userID string, method Method, cause error) error {
	e.metricInc(MetricMFAFailure)
	verr := verificationFailure(method, cause)
	target := auditTarget{actorID: userID, subjectID: userID, method: method}

	exceeded, err := e.challenges.RecordFailure(ctx, challengeID, e.config.Challenge.MaxAttempts)
	if err == nil && exceeded {
		e.metricInc(MetricMFAAttemptsExceeded)
		e.emitAudit(ctx, auditEventMFAAttemptsExceeded, false, target, ErrAttemptsExceeded, nil)
		verr.Cause = errors.Join(verr.Cause, ErrAttemptsExceeded)
	}

	lockout, err := e.verifyLimiter.RecordFailure(ctx, userID)
	if errors.Is(err, limiters.ErrVerificationLocked) {
		e.metricInc(MetricVerificationLocked)
		e.emitAudit(ctx, auditEventMFALocked, false, target, ErrVerificationLocked, func() map[string]string {
			return map[string]string{"lockout": lockout.String()}
		})
		verr.Cause = errors.Join(verr.Cause, ErrVerificationLocked)
		verr.RetryAfter = lockout
	}

	e.emitAudit(ctx, auditEventMFAFailure, false, target, cause, nil)
	return verr
}

func (e *Engine) challengeInfo(record *stores.Challenge) ChallengeInfo {
	state := ChallengeAwaitingMethod
	if record.State == stores.StateAwaitingCode {
		state = ChallengeAwaitingCode
	}
	remaining := e.config.Challenge.MaxAttempts - int(record.Attempts)
	if remaining < 0 {
		remaining = 0
	}
	return ChallengeInfo{
		State:             state,
		Methods:           methodsFromBits(record.Methods),
		Selected:          Method(record.Selected),
		EmailSent:         record.EmailIssued,
		RemainingAttempts: remaining,
		ExpiresAt:         time.Unix(record.ExpiresAt, 0),
	}
}

func mapChallengeErr(err error) error {
	switch {
	case errors.Is(err, stores.ErrChallengeExpired):
		return ErrChallengeExpired
	case errors.Is(err, stores.ErrChallengeBackend), errors.Is(err, stores.ErrChallengeConflict):
		return ErrBackendUnavailable
	default:
		return ErrChallengeInvalid
	}
}

func methodBits(m Methods) uint8 {
	var bits uint8
	if m.TOTP {
		bits |= stores.MethodTOTP
	}
	if m.Email {
		bits |= stores.MethodEmail
	}
	return bits
}

func methodsFromBits(bits uint8) Methods {
	return Methods{
		TOTP:  bits&stores.MethodTOTP != 0,
		Email: bits&stores.MethodEmail != 0,
	}
}
