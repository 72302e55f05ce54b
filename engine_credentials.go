package goMFA

import (
	"context"
	"errors"
	"strings"

	"github.com/MrEthical07/goMFA/internal/rate"
	"github.com/MrEthical07/goMFA/store"
)

// Authenticate checks email and password and decides what the caller gets
// next: a verified session, a second-factor challenge, or a setup-only
// session for an account that must enroll first.
//
// Unknown email, wrong password and empty input all return
// ErrInvalidCredentials after comparable work.
func (e *Engine) Authenticate(ctx context.Context, email, password string) (*AuthResult, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	email = strings.ToLower(strings.TrimSpace(email))
	ip := clientIPFromContext(ctx)

	if err := e.loginLimiter.Check(ctx, email, ip); err != nil {
		if errors.Is(err, rate.ErrRateLimited) {
			e.metricInc(MetricLoginRateLimited)
			e.emitAudit(ctx, auditEventLoginRateLimited, false, auditTarget{}, ErrLoginRateLimited, func() map[string]string {
				return map[string]string{"email": email}
			})
			return nil, ErrLoginRateLimited
		}
		return nil, ErrBackendUnavailable
	}

	fail := func(userID string) (*AuthResult, error) {
		_ = e.loginLimiter.RecordFailure(ctx, email, ip)
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, userTarget(userID), ErrInvalidCredentials, nil)
		return nil, ErrInvalidCredentials
	}

	if email == "" || password == "" {
		e.hasher.DummyVerify(password)
		return fail("")
	}

	acc, err := e.accounts.GetAccountByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			return nil, ErrBackendUnavailable
		}
		e.hasher.DummyVerify(password)
		return fail("")
	}

	ok, err := e.hasher.Verify(password, acc.PasswordHash)
	if err != nil || !ok {
		return fail(acc.ID)
	}

	_ = e.loginLimiter.Reset(ctx, email)
	e.metricInc(MetricLoginSuccess)
	e.emitAudit(ctx, auditEventLoginSuccess, true, userTarget(acc.ID), nil, nil)

	switch EnrollmentStateOf(acc) {
	case Enrolled:
		challenge, err := e.issueChallenge(ctx, acc)
		if err != nil {
			return nil, err
		}
		return &AuthResult{Outcome: OutcomeChallengeIssued, Account: acc, Challenge: challenge}, nil

	case SetupPending:
		sess, err := e.createSession(ctx, acc, sessionSetupOnly)
		if err != nil {
			return nil, err
		}
		e.metricInc(MetricSetupRequired)
		e.emitAudit(ctx, auditEventSetupRequired, true, sessionTarget(sess), nil, nil)
		return &AuthResult{Outcome: OutcomeSetupRequired, Account: acc, Session: sess}, nil

	default:
		sess, err := e.createSession(ctx, acc, sessionVerified)
		if err != nil {
			return nil, err
		}
		return &AuthResult{Outcome: OutcomeAuthenticated, Account: acc, Session: sess}, nil
	}
}
