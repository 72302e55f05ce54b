package goMFA

import (
	"context"
	"errors"

	"github.com/MrEthical07/goMFA/internal"
	"github.com/MrEthical07/goMFA/session"
)

// sessionKind selects the privileges a materialized session starts with.
type sessionKind uint8

const (
	sessionVerified sessionKind = iota + 1
	sessionSetupOnly
)

func (e *Engine) createSession(ctx context.Context, acc Account, kind sessionKind) (*Session, error) {
	id, err := internal.NewOpaqueID()
	if err != nil {
		return nil, ErrBackendUnavailable
	}

	now := e.now()
	lifetime := e.config.Session.AbsoluteLifetime
	if kind == sessionSetupOnly {
		lifetime = e.config.Session.SetupLifetime
	}

	sess := &Session{
		ID:           id.String(),
		AccountID:    acc.ID,
		Role:         string(acc.Role),
		MFAVerified:  kind == sessionVerified,
		SetupPending: kind == sessionSetupOnly,
		CreatedAt:    now.Unix(),
		ExpiresAt:    now.Add(lifetime).Unix(),
	}
	if err := e.sessions.Save(ctx, sess); err != nil {
		return nil, ErrBackendUnavailable
	}

	e.metricInc(MetricSessionCreated)
	e.emitAudit(ctx, auditEventSessionCreated, true, sessionTarget(sess), nil, func() map[string]string {
		if kind == sessionSetupOnly {
			return map[string]string{"kind": "setup_only"}
		}
		return map[string]string{"kind": "verified"}
	})
	return sess, nil
}

// upgradeSession turns a setup-only session into a verified one in place.
func (e *Engine) upgradeSession(ctx context.Context, sess *Session) error {
	sess.SetupPending = false
	sess.MFAVerified = true
	if err := e.sessions.Replace(ctx, sess); err != nil {
		if errors.Is(err, session.ErrSessionNotFound) {
			return ErrUnauthorized
		}
		return ErrBackendUnavailable
	}
	e.emitAudit(ctx, auditEventSessionUpgraded, true, sessionTarget(sess), nil, nil)
	return nil
}

// ResolveSession loads the session referenced by a cookie and re-derives
// its privileges from the live account. A verified session whose account
// has drifted into SetupPending is demoted to setup-only.
func (e *Engine) ResolveSession(ctx context.Context, sessionID string) (*Session, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if sessionID == "" {
		return nil, ErrUnauthorized
	}

	sess, err := e.sessions.Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, session.ErrRedisUnavailable) {
			return nil, ErrBackendUnavailable
		}
		return nil, ErrUnauthorized
	}

	acc, err := e.loadAccount(ctx, sess.AccountID)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			_ = e.sessions.Delete(ctx, sess.ID)
			return nil, ErrUnauthorized
		}
		return nil, err
	}

	changed := false
	if string(acc.Role) != sess.Role {
		sess.Role = string(acc.Role)
		changed = true
	}
	if EnrollmentStateOf(acc) == SetupPending && !sess.SetupPending {
		sess.SetupPending = true
		sess.MFAVerified = false
		sess.Impersonation = nil
		changed = true
	}
	if sess.Impersonation != nil && sess.Role != string(RoleAdmin) {
		sess.Impersonation = nil
		changed = true
	}
	if changed {
		if err := e.sessions.Replace(ctx, sess); err != nil {
			if errors.Is(err, session.ErrSessionNotFound) {
				return nil, ErrUnauthorized
			}
			return nil, ErrBackendUnavailable
		}
	}
	return sess, nil
}

// Impersonate binds the admin session sessionID to targetID. The admin must
// be fully verified and not already impersonating; the target must exist
// and must not be the admin.
func (e *Engine) Impersonate(ctx context.Context, sessionID, targetID string) (*Session, error) {
	sess, err := e.ResolveSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	deny := func(reason string) (*Session, error) {
		e.metricInc(MetricImpersonationDenied)
		e.emitAudit(ctx, auditEventImpersonationDenied, false, auditTarget{
			actorID:   sess.ActorID(),
			subjectID: targetID,
			sessionID: sess.ID,
		}, ErrForbidden, func() map[string]string {
			return map[string]string{"reason": reason}
		})
		return nil, ErrForbidden
	}

	switch {
	case sess.Role != string(RoleAdmin):
		return deny("not_admin")
	case !sess.MFAVerified || sess.SetupPending:
		return deny("not_verified")
	case sess.Impersonating():
		return deny("already_impersonating")
	case targetID == "" || targetID == sess.AccountID:
		return deny("invalid_target")
	}

	target, err := e.loadAccount(ctx, targetID)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return deny("target_not_found")
		}
		return nil, err
	}

	sess.Impersonation = &Impersonation{
		AdminID:    sess.AccountID,
		TargetID:   target.ID,
		TargetRole: string(target.Role),
		StartedAt:  e.now().Unix(),
	}
	if err := e.sessions.Replace(ctx, sess); err != nil {
		if errors.Is(err, session.ErrSessionNotFound) {
			return nil, ErrUnauthorized
		}
		return nil, ErrBackendUnavailable
	}

	e.metricInc(MetricImpersonationStarted)
	e.emitAudit(ctx, auditEventImpersonationStarted, true, sessionTarget(sess), nil, nil)
	return sess, nil
}

// StopImpersonation returns the session to the admin's own account. It is a
// no-op on a session that is not impersonating.
func (e *Engine) StopImpersonation(ctx context.Context, sessionID string) (*Session, error) {
	sess, err := e.ResolveSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !sess.Impersonating() {
		return sess, nil
	}

	target := sessionTarget(sess)
	sess.Impersonation = nil
	if err := e.sessions.Replace(ctx, sess); err != nil {
		if errors.Is(err, session.ErrSessionNotFound) {
			return nil, ErrUnauthorized
		}
		return nil, ErrBackendUnavailable
	}

	e.metricInc(MetricImpersonationStopped)
	e.emitAudit(ctx, auditEventImpersonationStopped, true, target, nil, nil)
	return sess, nil
}

// Logout deletes the session. Deleting an unknown session is not an error.
func (e *Engine) Logout(ctx context.Context, sessionID string) error {
	if err := e.ready(); err != nil {
		return err
	}
	if sessionID == "" {
		return nil
	}
	if err := e.sessions.Delete(ctx, sessionID); err != nil {
		return ErrBackendUnavailable
	}
	e.metricInc(MetricLogout)
	e.emitAudit(ctx, auditEventLogoutSession, true, auditTarget{sessionID: sessionID}, nil, nil)
	return nil
}

// RecordAccess audits a data access made under sess, attributing it to the
// real actor and the account whose data was touched.
func (e *Engine) RecordAccess(ctx context.Context, sess *Session, resource string) {
	if sess == nil {
		return
	}
	e.emitAudit(ctx, auditEventResourceAccess, true, sessionTarget(sess), nil, func() map[string]string {
		return map[string]string{"resource": resource}
	})
}
