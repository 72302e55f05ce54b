package goMFA

import (
	"context"
	"errors"
)

const (
	auditEventLoginSuccess         = "login_success"
	auditEventLoginFailure         = "login_failure"
	auditEventLoginRateLimited     = "login_rate_limited"
	auditEventChallengeIssued      = "mfa_challenge_issued"
	auditEventSetupRequired        = "mfa_setup_required"
	auditEventMethodSelected       = "mfa_method_selected"
	auditEventChallengeCancelled   = "mfa_challenge_cancelled"
	auditEventMFASuccess           = "mfa_success"
	auditEventMFAFailure           = "mfa_failure"
	auditEventMFAAttemptsExceeded  = "mfa_attempts_exceeded"
	auditEventMFALocked            = "mfa_locked"
	auditEventTOTPSetupRequested   = "totp_setup_requested"
	auditEventTOTPEnabled          = "totp_enabled"
	auditEventEmailMFAEnabled      = "email_mfa_enabled"
	auditEventTOTPSuccess          = "totp_success"
	auditEventTOTPFailure          = "totp_failure"
	auditEventEmailOTPIssued       = "email_otp_issued"
	auditEventEmailOTPVerified     = "email_otp_verified"
	auditEventEmailOTPFailed       = "email_otp_failed"
	auditEventBackupCodesGenerated = "backup_codes_generated"
	auditEventBackupCodeUsed       = "backup_code_used"
	auditEventBackupCodeFailed     = "backup_code_failed"
	auditEventSessionCreated       = "session_created"
	auditEventSessionUpgraded      = "session_upgraded"
	auditEventLogoutSession        = "logout_session"
	auditEventImpersonationStarted = "impersonation_started"
	auditEventImpersonationStopped = "impersonation_stopped"
	auditEventImpersonationDenied  = "impersonation_denied"
	auditEventResourceAccess       = "resource_access"
)

// AuditErrorCode is the coarse reason recorded on failed audit events.
type AuditErrorCode string

const (
	auditErrUnauthorized       AuditErrorCode = "unauthorized"
	auditErrForbidden          AuditErrorCode = "forbidden"
	auditErrInvalidCredentials AuditErrorCode = "invalid_credentials"
	auditErrRateLimited        AuditErrorCode = "rate_limited"
	auditErrLocked             AuditErrorCode = "locked"
	auditErrChallengeInvalid   AuditErrorCode = "challenge_invalid"
	auditErrChallengeExpired   AuditErrorCode = "challenge_expired"
	auditErrAttemptsExceeded   AuditErrorCode = "attempts_exceeded"
	auditErrTOTPInvalid        AuditErrorCode = "totp_invalid"
	auditErrOTPExpired         AuditErrorCode = "otp_expired"
	auditErrOTPInvalid         AuditErrorCode = "otp_invalid"
	auditErrOTPAlreadyUsed     AuditErrorCode = "otp_already_used"
	auditErrBackupCodeInvalid  AuditErrorCode = "backup_code_invalid"
	auditErrMethodUnavailable  AuditErrorCode = "method_unavailable"
	auditErrMethodNotSelected  AuditErrorCode = "method_not_selected"
	auditErrSetupIncomplete    AuditErrorCode = "setup_incomplete"
	auditErrAccountNotFound    AuditErrorCode = "account_not_found"
	auditErrDelivery           AuditErrorCode = "delivery_unavailable"
	auditErrUnavailable        AuditErrorCode = "backend_unavailable"
	auditErrInternal           AuditErrorCode = "internal_error"
)

// auditTarget names who acted and on whose account.
type auditTarget struct {
	actorID   string
	subjectID string
	sessionID string
	method    Method
}

func userTarget(userID string) auditTarget {
	return auditTarget{actorID: userID, subjectID: userID}
}

func sessionTarget(sess *Session) auditTarget {
	if sess == nil {
		return auditTarget{}
	}
	return auditTarget{actorID: sess.ActorID(), subjectID: sess.SubjectID(), sessionID: sess.ID}
}

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	target auditTarget,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		Timestamp: e.now().UTC(),
		EventType: eventType,
		ActorID:   target.actorID,
		SubjectID: target.subjectID,
		SessionID: target.sessionID,
		Method:    string(target.method),
		IP:        clientIPFromContext(ctx),
		UserAgent: userAgentFromContext(ctx),
		Success:   success,
		Metadata:  metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

// flowAudit adapts emitAudit to the callback shape used by internal flows,
// where the acting user is also the subject.
func (e *Engine) flowAudit(ctx context.Context, eventType string, success bool, userID string, err error, metadataBuilder func() map[string]string) {
	e.emitAudit(ctx, eventType, success, userTarget(userID), err, metadataBuilder)
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrVerificationLocked):
		return auditErrLocked
	case errors.Is(err, ErrAttemptsExceeded):
		return auditErrAttemptsExceeded
	case errors.Is(err, ErrUnauthorized):
		return auditErrUnauthorized
	case errors.Is(err, ErrForbidden):
		return auditErrForbidden
	case errors.Is(err, ErrInvalidCredentials):
		return auditErrInvalidCredentials
	case errors.Is(err, ErrLoginRateLimited):
		return auditErrRateLimited
	case errors.Is(err, ErrChallengeInvalid):
		return auditErrChallengeInvalid
	case errors.Is(err, ErrChallengeExpired):
		return auditErrChallengeExpired
	case errors.Is(err, ErrTOTPInvalid), errors.Is(err, ErrTOTPNotConfigured):
		return auditErrTOTPInvalid
	case errors.Is(err, ErrOTPExpired):
		return auditErrOTPExpired
	case errors.Is(err, ErrOTPAlreadyUsed):
		return auditErrOTPAlreadyUsed
	case errors.Is(err, ErrOTPInvalid):
		return auditErrOTPInvalid
	case errors.Is(err, ErrBackupCodeInvalid):
		return auditErrBackupCodeInvalid
	case errors.Is(err, ErrMethodUnavailable):
		return auditErrMethodUnavailable
	case errors.Is(err, ErrMethodNotSelected):
		return auditErrMethodNotSelected
	case errors.Is(err, ErrSetupIncomplete):
		return auditErrSetupIncomplete
	case errors.Is(err, ErrAccountNotFound):
		return auditErrAccountNotFound
	case errors.Is(err, ErrDeliveryUnavailable):
		return auditErrDelivery
	case errors.Is(err, ErrBackendUnavailable), errors.Is(err, ErrEngineNotReady):
		return auditErrUnavailable
	default:
		return auditErrInternal
	}
}
